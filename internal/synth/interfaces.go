package synth

import (
	"context"
	"io"
)

// Settings mirrors the hosted voice API's voice_settings payload.
type Settings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// DefaultSettings are the values the dream reader ships with.
func DefaultSettings() Settings {
	return Settings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0.2,
		SpeakerBoost:    true,
	}
}

// Request describes one playback request. Ephemeral: created per user action.
type Request struct {
	Text     string
	VoiceID  string
	Settings Settings
}

// Player consumes synthesized audio as it arrives. Playback starts on the
// first buffered bytes; implementations must not wait for EOF before playing.
// A Player that cannot start (autoplay policy) returns ErrPlaybackUnsupported.
type Player interface {
	Play(ctx context.Context, format string, r io.Reader) error
}

// PlayerFunc adapts a function to the Player interface.
type PlayerFunc func(ctx context.Context, format string, r io.Reader) error

func (f PlayerFunc) Play(ctx context.Context, format string, r io.Reader) error {
	return f(ctx, format, r)
}

// Fallback switches a failed remote playback to another path, typically local
// synthesis of the same text.
type Fallback func(ctx context.Context, text string) error
