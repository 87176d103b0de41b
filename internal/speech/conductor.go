package speech

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/avelinetan/reverie/internal/capture"
	"github.com/avelinetan/reverie/internal/interpreter"
	"github.com/avelinetan/reverie/internal/observability"
	"github.com/avelinetan/reverie/internal/playback"
	"github.com/avelinetan/reverie/internal/synth"
	"github.com/avelinetan/reverie/internal/voicepref"
)

var (
	// ErrNeedsUnlock means the client platform blocks playback until the
	// user performs an unlock gesture.
	ErrNeedsUnlock = errors.New("speech: playback requires an unlock gesture")
	// ErrNoBackend means no synthesis backend is usable at all.
	ErrNoBackend = errors.New("speech: no synthesis backend available")
)

// RemoteBackend is the hosted synthesis surface the conductor drives.
type RemoteBackend interface {
	Speak(ctx context.Context, req synth.Request) error
	Stop()
}

// LocalBackend is the on-device synthesis surface the conductor drives.
type LocalBackend interface {
	Speak(ctx context.Context, text string) bool
	Stop()
}

// Conductor binds one client's speech surfaces together: it routes speak
// requests to the preferred backend, gates playback behind the autoplay
// unlock, and fronts capture and dream interpretation. All cross-surface
// exclusivity goes through the shared coordinator.
type Conductor struct {
	coord    *playback.Coordinator
	capture  *capture.Capture
	remote   RemoteBackend
	local    LocalBackend
	prefs    *voicepref.Service
	unlocker *playback.Unlocker
	interp   interpreter.Interpreter
	metrics  *observability.Metrics
	logf     func(format string, args ...any)
}

// Deps carries the surfaces a conductor drives. Remote, Local, Capture and
// Unlocker may each be nil when the platform lacks them.
type Deps struct {
	Coordinator *playback.Coordinator
	Capture     *capture.Capture
	Remote      RemoteBackend
	Local       LocalBackend
	Prefs       *voicepref.Service
	Unlocker    *playback.Unlocker
	Interpreter interpreter.Interpreter
	Metrics     *observability.Metrics
}

func NewConductor(d Deps) *Conductor {
	return &Conductor{
		coord:    d.Coordinator,
		capture:  d.Capture,
		remote:   d.Remote,
		local:    d.Local,
		prefs:    d.Prefs,
		unlocker: d.Unlocker,
		interp:   d.Interpreter,
		metrics:  d.Metrics,
		logf:     log.Printf,
	}
}

// SetLogf replaces the logger. Useful in tests.
func (c *Conductor) SetLogf(logf func(format string, args ...any)) { c.logf = logf }

// Capture exposes the capture surface for transport layers that stream its
// updates to the client.
func (c *Conductor) Capture() *capture.Capture { return c.capture }

// SetCaptureUpdates installs fn as the capture update subscriber. Pass nil to
// clear. No-op when the platform has no capture surface.
func (c *Conductor) SetCaptureUpdates(fn func(capture.Snapshot)) {
	if c.capture != nil {
		c.capture.SetOnUpdate(fn)
	}
}

// CaptureText returns everything dictated so far, interim guess included.
func (c *Conductor) CaptureText() string {
	if c.capture == nil {
		return ""
	}
	return c.capture.Text()
}

// Speak routes text to the preferred backend. A preference for the hosted
// backend degrades to the on-device one when the hosted backend is missing;
// the reverse never happens implicitly.
func (c *Conductor) Speak(ctx context.Context, text string) error {
	if c.unlocker != nil && c.unlocker.NeedsUnlock() {
		return ErrNeedsUnlock
	}

	pref, err := c.currentPref(ctx)
	if err != nil {
		return err
	}

	switch pref.Backend {
	case voicepref.BackendRemote:
		if c.remote == nil {
			if c.local == nil {
				return ErrNoBackend
			}
			c.logf("speech: hosted backend unavailable, using on-device voice")
			return c.speakLocal(ctx, text)
		}
		return c.speakRemote(ctx, text, pref.RemoteVoiceID)
	case voicepref.BackendLocal:
		if c.local == nil {
			return ErrNoBackend
		}
		return c.speakLocal(ctx, text)
	default:
		return fmt.Errorf("speech: unknown voice backend %q", pref.Backend)
	}
}

func (c *Conductor) speakRemote(ctx context.Context, text, voiceID string) error {
	err := c.remote.Speak(ctx, synth.Request{Text: text, VoiceID: voiceID})
	switch {
	case err == nil:
		c.countPlayback("remote", "completed")
	case errors.Is(err, synth.ErrPlaybackAborted):
		c.countPlayback("remote", "aborted")
	default:
		c.countPlayback("remote", "failed")
		c.countSynthError("remote", err)
	}
	return err
}

func (c *Conductor) speakLocal(ctx context.Context, text string) error {
	if c.local.Speak(ctx, text) {
		c.countPlayback("local", "started")
	} else {
		c.countPlayback("local", "skipped")
	}
	return nil
}

// StopAll silences every registered audio surface at once.
func (c *Conductor) StopAll() {
	c.coord.StopAll()
	c.countPlayback("all", "stopped")
}

// StartCapture begins dictation.
func (c *Conductor) StartCapture(ctx context.Context) error {
	if c.capture == nil {
		return capture.ErrNoRecognizer
	}
	if err := c.capture.Start(ctx); err != nil {
		return err
	}
	c.countCapture("started")
	return nil
}

// StopCapture ends dictation, preserving the transcript.
func (c *Conductor) StopCapture() {
	if c.capture == nil {
		return
	}
	c.capture.Stop()
	c.countCapture("stopped")
}

// ResetCapture ends dictation and discards the transcript.
func (c *Conductor) ResetCapture() {
	if c.capture == nil {
		return
	}
	c.capture.Reset()
	c.countCapture("reset")
}

// NeedsUnlock reports whether the client must perform an unlock gesture.
func (c *Conductor) NeedsUnlock() bool {
	return c.unlocker != nil && c.unlocker.NeedsUnlock()
}

// Unlock clears the autoplay restriction in response to a user gesture.
func (c *Conductor) Unlock(ctx context.Context) {
	if c.unlocker != nil {
		c.unlocker.Unlock(ctx)
	}
}

// CurrentVoice returns the resolved voice preference.
func (c *Conductor) CurrentVoice(ctx context.Context) (voicepref.Preference, error) {
	return c.currentPref(ctx)
}

// SetVoice validates and persists a new voice preference.
func (c *Conductor) SetVoice(ctx context.Context, p voicepref.Preference) error {
	if c.prefs == nil {
		return errors.New("speech: no preference store configured")
	}
	return c.prefs.Set(ctx, p)
}

// Interpret analyzes dictated dream text.
func (c *Conductor) Interpret(ctx context.Context, userID, sessionID, dreamText string) (interpreter.Interpretation, error) {
	if c.interp == nil {
		return interpreter.Interpretation{}, errors.New("speech: no interpreter configured")
	}
	return c.interp.Analyze(ctx, interpreter.Request{
		UserID:    userID,
		SessionID: sessionID,
		DreamText: dreamText,
	})
}

// InterpretAndSpeak analyzes the dream and narrates the result through the
// preferred voice.
func (c *Conductor) InterpretAndSpeak(ctx context.Context, userID, sessionID, dreamText string) (interpreter.Interpretation, error) {
	out, err := c.Interpret(ctx, userID, sessionID, dreamText)
	if err != nil {
		return interpreter.Interpretation{}, err
	}
	if err := c.Speak(ctx, interpreter.SpeakableText(out)); err != nil {
		// The analysis itself succeeded; narration failure is secondary.
		c.logf("speech: narrating interpretation failed: %v", err)
	}
	return out, nil
}

func (c *Conductor) currentPref(ctx context.Context) (voicepref.Preference, error) {
	if c.prefs == nil {
		// No store at all still routes somewhere deterministic.
		if c.remote != nil {
			return voicepref.Preference{Backend: voicepref.BackendRemote}, nil
		}
		return voicepref.Preference{Backend: voicepref.BackendLocal}, nil
	}
	return c.prefs.Current(ctx)
}

func (c *Conductor) countPlayback(backend, outcome string) {
	if c.metrics != nil {
		c.metrics.PlaybackEvents.WithLabelValues(backend, outcome).Inc()
	}
}

func (c *Conductor) countCapture(event string) {
	if c.metrics != nil {
		c.metrics.CaptureEvents.WithLabelValues(event).Inc()
	}
}

func (c *Conductor) countSynthError(backend string, err error) {
	if c.metrics == nil {
		return
	}
	code := "unknown"
	var synthErr *synth.SynthesisError
	if errors.As(err, &synthErr) {
		switch {
		case synthErr.Timeout:
			code = "timeout"
		case synthErr.AuthFailure():
			code = "auth"
		case synthErr.Status != 0:
			code = fmt.Sprintf("http_%d", synthErr.Status)
		}
	}
	c.metrics.SynthesisErrors.WithLabelValues(backend, code).Inc()
}
