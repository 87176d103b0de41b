package synth

import (
	"errors"
	"fmt"

	"github.com/avelinetan/reverie/internal/reliability"
)

var (
	// ErrNoVoiceSelected means a playback request could not resolve any voice.
	ErrNoVoiceSelected = errors.New("no voice selected")

	// ErrPlaybackAborted marks a request cancelled by a superseding call or an
	// explicit stop. It is an internal signal, never a user-visible error.
	ErrPlaybackAborted = errors.New("playback aborted")

	// ErrPlaybackUnsupported means the platform refused to start audio and no
	// fallback was available.
	ErrPlaybackUnsupported = errors.New("playback unsupported")
)

// SynthesisError carries the failure detail of a remote synthesis call.
type SynthesisError struct {
	Status  int
	Timeout bool
	Detail  string
}

func (e *SynthesisError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("synthesis failed: timeout (%s)", e.Detail)
	case e.Status != 0:
		return fmt.Sprintf("synthesis failed: status %d (%s)", e.Status, e.Detail)
	default:
		return fmt.Sprintf("synthesis failed: %s", e.Detail)
	}
}

// AuthFailure reports whether the failure was an authorization rejection.
func (e *SynthesisError) AuthFailure() bool {
	return reliability.IsAuthHTTPStatus(e.Status)
}

// Retryable reports whether re-triggering the request may succeed.
func (e *SynthesisError) Retryable() bool {
	return e.Timeout || reliability.IsRetryableHTTPStatus(e.Status)
}
