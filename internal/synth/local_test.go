package synth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avelinetan/reverie/internal/playback"
)

type stubEngine struct {
	mu         sync.Mutex
	utterances []Utterance
	cancels    int
	block      chan struct{}
	started    chan struct{}
}

func (e *stubEngine) Speak(ctx context.Context, u Utterance) error {
	e.mu.Lock()
	e.utterances = append(e.utterances, u)
	started := e.started
	e.started = nil
	e.mu.Unlock()
	if started != nil {
		close(started)
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *stubEngine) Cancel() {
	e.mu.Lock()
	e.cancels++
	e.mu.Unlock()
}

func (e *stubEngine) Utterances() []Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Utterance, len(e.utterances))
	copy(out, e.utterances)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newLocalForTest(engine Engine, voices ...LocalVoice) (*LocalSynthesizer, *playback.Coordinator) {
	coord := playback.NewCoordinator()
	s := NewLocalSynthesizer(LocalConfig{Rate: 0.9}, coord, engine)
	s.SetVoices(voices)
	return s, coord
}

func TestVoiceSelectionPrefersPremiumEnglish(t *testing.T) {
	s, _ := newLocalForTest(&stubEngine{},
		LocalVoice{ID: "a", Name: "Plain Voice", Lang: "en-US"},
		LocalVoice{ID: "b", Name: "Ava (Enhanced)", Lang: "en-US", Quality: "enhanced"},
		LocalVoice{ID: "c", Name: "Samantha", Lang: "en-US"},
	)
	defer s.Close()

	v, ok := s.SelectedVoice()
	if !ok || v.ID != "b" {
		t.Fatalf("selected = %+v (ok=%v), want the enhanced-quality voice", v, ok)
	}
}

func TestVoiceSelectionFallsThroughPredicateTiers(t *testing.T) {
	cases := []struct {
		name   string
		voices []LocalVoice
		wantID string
	}{
		{
			name: "known name beats branded",
			voices: []LocalVoice{
				{ID: "g", Name: "Google US English", Lang: "en-US"},
				{ID: "s", Name: "Samantha", Lang: "en-US"},
			},
			wantID: "s",
		},
		{
			name: "branded beats plain female",
			voices: []LocalVoice{
				{ID: "f", Name: "Plain", Lang: "en-GB", Gender: "female"},
				{ID: "g", Name: "Google UK English Female", Lang: "en-GB"},
			},
			wantID: "g",
		},
		{
			name: "english female beats other english",
			voices: []LocalVoice{
				{ID: "m", Name: "Plain", Lang: "en-AU", Gender: "male"},
				{ID: "f", Name: "Plain", Lang: "en-AU", Gender: "female"},
			},
			wantID: "f",
		},
		{
			name: "any english beats non-english",
			voices: []LocalVoice{
				{ID: "de", Name: "Anna", Lang: "de-DE"},
				{ID: "en", Name: "Plain", Lang: "en-IN"},
			},
			wantID: "en",
		},
		{
			name: "first voice when nothing is english",
			voices: []LocalVoice{
				{ID: "de", Name: "Anna", Lang: "de-DE"},
				{ID: "fr", Name: "Amelie", Lang: "fr-FR"},
			},
			wantID: "de",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newLocalForTest(&stubEngine{}, tc.voices...)
			defer s.Close()
			v, ok := s.SelectedVoice()
			if !ok || v.ID != tc.wantID {
				t.Fatalf("selected = %+v (ok=%v), want id %q", v, ok, tc.wantID)
			}
		})
	}
}

func TestVoiceSelectionTiesKeepCatalogOrder(t *testing.T) {
	s, _ := newLocalForTest(&stubEngine{},
		LocalVoice{ID: "first", Name: "Karen", Lang: "en-AU"},
		LocalVoice{ID: "second", Name: "Daniel", Lang: "en-GB"},
	)
	defer s.Close()

	v, ok := s.SelectedVoice()
	if !ok || v.ID != "first" {
		t.Fatalf("selected = %+v (ok=%v), want the earlier catalog entry", v, ok)
	}
}

func TestSetVoicesRerunsSelectionOnLaterDelivery(t *testing.T) {
	s, _ := newLocalForTest(&stubEngine{},
		LocalVoice{ID: "plain", Name: "Plain", Lang: "en-US"},
	)
	defer s.Close()

	// Platform discovery delivers a richer catalog a moment later.
	s.SetVoices([]LocalVoice{
		{ID: "plain", Name: "Plain", Lang: "en-US"},
		{ID: "better", Name: "Samantha", Lang: "en-US"},
	})

	v, ok := s.SelectedVoice()
	if !ok || v.ID != "better" {
		t.Fatalf("selected = %+v (ok=%v), want re-selection to pick the new voice", v, ok)
	}
}

func TestSpeakWithoutEngineOrVoicesReportsFalse(t *testing.T) {
	noEngine, _ := newLocalForTest(nil, LocalVoice{ID: "v", Name: "V", Lang: "en"})
	defer noEngine.Close()
	if noEngine.Speak(context.Background(), "hello") {
		t.Fatalf("Speak without an engine must report false")
	}

	noVoices, _ := newLocalForTest(&stubEngine{})
	defer noVoices.Close()
	if noVoices.Speak(context.Background(), "hello") {
		t.Fatalf("Speak with an empty catalog must report false")
	}
}

func TestSpeakEmptyTextReportsFalse(t *testing.T) {
	engine := &stubEngine{}
	s, _ := newLocalForTest(engine, LocalVoice{ID: "v", Name: "V", Lang: "en"})
	defer s.Close()

	if s.Speak(context.Background(), "   \n ") {
		t.Fatalf("Speak(blank) must report false")
	}
	if len(engine.Utterances()) != 0 {
		t.Fatalf("blank text must never reach the engine")
	}
}

func TestSpeakNormalizesTextAndAppliesTuning(t *testing.T) {
	engine := &stubEngine{}
	s, _ := newLocalForTest(engine, LocalVoice{ID: "v", Name: "Samantha", Lang: "en-US"})
	defer s.Close()

	if !s.Speak(context.Background(), "I was flying\nover the sea") {
		t.Fatalf("Speak should begin playback")
	}
	waitFor(t, "utterance to reach engine", func() bool { return len(engine.Utterances()) == 1 })

	u := engine.Utterances()[0]
	if u.Text != "I was flying. over the sea." {
		t.Fatalf("utterance text = %q, want normalized form", u.Text)
	}
	if u.Rate != 0.9 {
		t.Fatalf("utterance rate = %v, want config value 0.9", u.Rate)
	}
	if u.Voice.ID != "v" {
		t.Fatalf("utterance voice = %+v, want the selected voice", u.Voice)
	}
}

func TestSpeakWhileSpeakingTogglesOff(t *testing.T) {
	engine := &stubEngine{block: make(chan struct{}), started: make(chan struct{})}
	started := engine.started
	s, coord := newLocalForTest(engine, LocalVoice{ID: "v", Name: "V", Lang: "en"})
	defer s.Close()

	if !s.Speak(context.Background(), "a long dream") {
		t.Fatalf("first Speak should begin playback")
	}
	<-started
	if !coord.IsActive(s.HandleID()) {
		t.Fatalf("handle should be active while speaking")
	}

	if s.Speak(context.Background(), "another dream") {
		t.Fatalf("Speak during playback is a stop request and must report false")
	}
	waitFor(t, "playback to stop", func() bool { return !s.Speaking() })

	if coord.IsActive(s.HandleID()) {
		t.Fatalf("handle must be inactive after the toggle stop")
	}
	if got := len(engine.Utterances()); got != 1 {
		t.Fatalf("engine saw %d utterances, toggling must not queue a second one", got)
	}
}

func TestStopIsIdempotentAndCancelsEngine(t *testing.T) {
	engine := &stubEngine{block: make(chan struct{}), started: make(chan struct{})}
	started := engine.started
	s, _ := newLocalForTest(engine, LocalVoice{ID: "v", Name: "V", Lang: "en"})
	defer s.Close()

	s.Speak(context.Background(), "dream")
	<-started

	s.Stop()
	s.Stop()
	waitFor(t, "speaking to clear", func() bool { return !s.Speaking() })

	engine.mu.Lock()
	cancels := engine.cancels
	engine.mu.Unlock()
	if cancels < 1 {
		t.Fatalf("Stop must cancel the engine utterance")
	}
}

func TestPlaybackCompletionClearsState(t *testing.T) {
	engine := &stubEngine{}
	s, coord := newLocalForTest(engine, LocalVoice{ID: "v", Name: "V", Lang: "en"})
	defer s.Close()

	s.Speak(context.Background(), "short dream")
	waitFor(t, "playback to finish", func() bool { return !s.Speaking() })

	if coord.IsActive(s.HandleID()) {
		t.Fatalf("handle must go inactive when the utterance finishes on its own")
	}
}
