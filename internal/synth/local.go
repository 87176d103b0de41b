package synth

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/avelinetan/reverie/internal/playback"
)

// LocalVoice describes one on-device voice profile.
type LocalVoice struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Gender  string `json:"gender,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// Utterance is one unit of on-device speech.
type Utterance struct {
	Text   string
	Voice  LocalVoice
	Rate   float64
	Pitch  float64
	Volume float64
}

// Engine drives the platform speech-synthesis capability. Speak blocks until
// the utterance finishes or ctx is cancelled; Cancel interrupts the current
// utterance and is an idempotent no-op otherwise.
type Engine interface {
	Speak(ctx context.Context, u Utterance) error
	Cancel()
}

// LocalConfig holds the utterance tuning applied to every local playback.
type LocalConfig struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

// LocalSynthesizer selects and drives the best available on-device voice.
// It never fails hard: when no engine or voice is usable, Speak just reports
// that nothing is playing.
type LocalSynthesizer struct {
	coord    *playback.Coordinator
	engine   Engine
	handleID string

	mu       sync.Mutex
	cfg      LocalConfig
	voices   []LocalVoice
	selected *LocalVoice
	speaking bool
	gen      uint64
	cancel   context.CancelFunc
}

func NewLocalSynthesizer(cfg LocalConfig, coord *playback.Coordinator, engine Engine) *LocalSynthesizer {
	if cfg.Rate <= 0 {
		cfg.Rate = 0.9
	}
	if cfg.Pitch <= 0 {
		cfg.Pitch = 1.0
	}
	if cfg.Volume <= 0 || cfg.Volume > 1 {
		cfg.Volume = 1.0
	}
	s := &LocalSynthesizer{
		cfg:      cfg,
		coord:    coord,
		engine:   engine,
		handleID: "local-synth-" + uuid.NewString(),
	}
	coord.Register(s.handleID, playback.KindPlayback, s.Stop)
	return s
}

// HandleID returns the coordinator registry id owned by this backend.
func (s *LocalSynthesizer) HandleID() string { return s.handleID }

// SetVoices replaces the voice catalog and re-runs selection. Platform voice
// discovery is asynchronous and may deliver the list several times as it
// fills in; each delivery goes through here.
func (s *LocalSynthesizer) SetVoices(voices []LocalVoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voices = voices
	s.selected = selectLocalVoice(voices)
}

// SelectedVoice returns the current selection, if any.
func (s *LocalSynthesizer) SelectedVoice() (LocalVoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return LocalVoice{}, false
	}
	return *s.selected, true
}

// Voices returns the current catalog.
func (s *LocalSynthesizer) Voices() []LocalVoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LocalVoice, len(s.voices))
	copy(out, s.voices)
	return out
}

// Speaking reports whether an utterance is currently playing.
func (s *LocalSynthesizer) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Speak starts an utterance and reports whether playback began. Calling it
// while already speaking is treated as a stop request, not queued. A missing
// engine or empty catalog yields false, never an error.
func (s *LocalSynthesizer) Speak(ctx context.Context, text string) bool {
	text = normalizeSpokenText(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	if s.speaking {
		s.mu.Unlock()
		s.Stop()
		return false
	}
	if s.engine == nil || s.selected == nil {
		s.mu.Unlock()
		return false
	}
	utterCtx, cancel := context.WithCancel(ctx)
	s.gen++
	myGen := s.gen
	s.cancel = cancel
	s.speaking = true
	u := Utterance{
		Text:   text,
		Voice:  *s.selected,
		Rate:   s.cfg.Rate,
		Pitch:  s.cfg.Pitch,
		Volume: s.cfg.Volume,
	}
	engine := s.engine
	s.mu.Unlock()

	s.coord.SetActive(s.handleID, true)

	go func() {
		_ = engine.Speak(utterCtx, u)
		cancel()

		s.mu.Lock()
		stillCurrent := s.gen == myGen
		if stillCurrent {
			s.cancel = nil
			s.speaking = false
		}
		s.mu.Unlock()

		if stillCurrent {
			s.coord.SetActive(s.handleID, false)
		}
	}()

	return true
}

// Stop cancels any in-progress utterance. Idempotent.
func (s *LocalSynthesizer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.speaking = false
	engine := s.engine
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if engine != nil {
		engine.Cancel()
	}
	s.coord.SetActive(s.handleID, false)
}

// Close unregisters the backend's handle.
func (s *LocalSynthesizer) Close() {
	s.Stop()
	s.coord.Unregister(s.handleID)
}

// Ordered selection predicates: the first one with a match wins, and ties
// within a predicate keep catalog order.
var localVoicePredicates = []func(LocalVoice) bool{
	func(v LocalVoice) bool { return isEnglish(v) && hasPremiumQuality(v) },
	func(v LocalVoice) bool { return isEnglish(v) && isKnownQualityName(v.Name) },
	func(v LocalVoice) bool { return isEnglish(v) && strings.HasPrefix(v.Name, "Google") },
	func(v LocalVoice) bool { return isEnglish(v) && strings.EqualFold(v.Gender, "female") },
	isEnglish,
	func(LocalVoice) bool { return true },
}

func selectLocalVoice(voices []LocalVoice) *LocalVoice {
	if len(voices) == 0 {
		return nil
	}
	for _, match := range localVoicePredicates {
		for i := range voices {
			if match(voices[i]) {
				v := voices[i]
				return &v
			}
		}
	}
	return nil
}

func isEnglish(v LocalVoice) bool {
	return strings.HasPrefix(strings.ToLower(v.Lang), "en")
}

func hasPremiumQuality(v LocalVoice) bool {
	probe := strings.ToLower(v.Quality + " " + v.Name)
	for _, tag := range []string{"neural", "enhanced", "premium"} {
		if strings.Contains(probe, tag) {
			return true
		}
	}
	return false
}

// Platform voices that consistently sound good for long narration.
var knownQualityVoiceNames = map[string]struct{}{
	"samantha": {},
	"karen":    {},
	"daniel":   {},
	"moira":    {},
	"tessa":    {},
	"alex":     {},
}

func isKnownQualityName(name string) bool {
	_, ok := knownQualityVoiceNames[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
