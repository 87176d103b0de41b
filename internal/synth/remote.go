package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelinetan/reverie/internal/audio"
	"github.com/avelinetan/reverie/internal/playback"
)

// RemoteConfig configures the hosted voice-synthesis backend.
type RemoteConfig struct {
	APIKey       string
	BaseURL      string
	ModelID      string
	OutputFormat string
	// Timeout bounds the whole synthesis call. The hosted API has no
	// server-side deadline we can rely on, so a hanging connection would
	// otherwise hold the backend's single in-flight slot forever.
	Timeout time.Duration
}

// RemoteSynthesizer turns text into audible speech through a hosted API.
// A single instance owns at most one in-flight request: a new Speak cancels
// the one it supersedes, and audio that arrives after a supersession or a
// global stop is never played.
type RemoteSynthesizer struct {
	cfg         RemoteConfig
	coord       *playback.Coordinator
	player      Player
	client      *http.Client
	handleID    string
	selectVoice func(ctx context.Context) string
	fallback    Fallback

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewRemoteSynthesizer builds the backend. selectVoice resolves the currently
// preferred remote voice when a request does not name one; it may be nil.
func NewRemoteSynthesizer(cfg RemoteConfig, coord *playback.Coordinator, player Player, selectVoice func(ctx context.Context) string) *RemoteSynthesizer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	s := &RemoteSynthesizer{
		cfg:         cfg,
		coord:       coord,
		player:      player,
		client:      &http.Client{},
		handleID:    "remote-synth-" + uuid.NewString(),
		selectVoice: selectVoice,
	}
	coord.Register(s.handleID, playback.KindPlayback, s.Stop)
	return s
}

// SetFallback installs the degradation path used on authorization failures
// and platform playback refusal.
func (s *RemoteSynthesizer) SetFallback(fb Fallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = fb
}

// HandleID returns the coordinator registry id owned by this backend.
func (s *RemoteSynthesizer) HandleID() string { return s.handleID }

// Speaking reports whether this backend's handle is currently active.
func (s *RemoteSynthesizer) Speaking() bool {
	return s.coord.IsActive(s.handleID)
}

// Speak synthesizes req.Text and plays it. Empty text resolves immediately.
// A later Speak or Stop on the same instance supersedes this call; the
// superseded call returns ErrPlaybackAborted and its audio never plays.
func (s *RemoteSynthesizer) Speak(ctx context.Context, req Request) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil
	}

	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" && s.selectVoice != nil {
		voiceID = strings.TrimSpace(s.selectVoice(ctx))
	}
	if voiceID == "" {
		return ErrNoVoiceSelected
	}

	speakCtx, myGen, coordGen := s.supersede(ctx)
	defer s.finish(myGen)

	res, err := s.synthesize(speakCtx, voiceID, text, req.Settings)
	if err != nil {
		var synthErr *SynthesisError
		if errors.As(err, &synthErr) && synthErr.AuthFailure() {
			if fb := s.currentFallback(); fb != nil {
				// The hosted API rejected our credentials; degrade silently.
				return fb(ctx, text)
			}
		}
		return err
	}
	defer res.Body.Close()

	// A stop or a newer Speak may have arrived while the network call was in
	// flight. Audio readiness is event-driven and can land out of order with
	// respect to issuing calls, so the check happens here, not earlier.
	if !s.isCurrent(myGen) || s.coord.Generation() != coordGen {
		return ErrPlaybackAborted
	}

	s.coord.SetActive(s.handleID, true)
	playErr := s.player.Play(speakCtx, s.cfg.OutputFormat, res.Body)
	s.coord.SetActive(s.handleID, false)

	switch {
	case playErr == nil:
		return nil
	case errors.Is(playErr, context.Canceled), errors.Is(speakCtx.Err(), context.Canceled):
		return ErrPlaybackAborted
	case errors.Is(playErr, ErrPlaybackUnsupported):
		if fb := s.currentFallback(); fb != nil {
			return fb(ctx, text)
		}
		return ErrPlaybackUnsupported
	case errors.Is(playErr, context.DeadlineExceeded), errors.Is(speakCtx.Err(), context.DeadlineExceeded):
		// The synthesis deadline can also expire mid-playback; that is the
		// same timeout as on the network path.
		return &SynthesisError{Timeout: true, Detail: playErr.Error()}
	default:
		return &SynthesisError{Detail: playErr.Error()}
	}
}

// Stop aborts any in-flight request and any running playback. Idempotent;
// safe to call when nothing ever started.
func (s *RemoteSynthesizer) Stop() {
	s.mu.Lock()
	s.gen++
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.coord.SetActive(s.handleID, false)
}

// Close unregisters the backend's handle. Call on teardown of the owning
// component or the registry leaks the entry.
func (s *RemoteSynthesizer) Close() {
	s.Stop()
	s.coord.Unregister(s.handleID)
}

// supersede cancels the previous in-flight call and installs this one as the
// single current call.
func (s *RemoteSynthesizer) supersede(ctx context.Context) (context.Context, uint64, uint64) {
	speakCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)

	s.mu.Lock()
	prev := s.cancel
	s.gen++
	myGen := s.gen
	s.cancel = cancel
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	return speakCtx, myGen, s.coord.Generation()
}

func (s *RemoteSynthesizer) finish(myGen uint64) {
	s.mu.Lock()
	if s.gen == myGen && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

func (s *RemoteSynthesizer) isCurrent(myGen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == myGen
}

func (s *RemoteSynthesizer) currentFallback() Fallback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

func (s *RemoteSynthesizer) synthesize(ctx context.Context, voiceID, text string, settings Settings) (*http.Response, error) {
	if settings == (Settings{}) {
		settings = DefaultSettings()
	}

	u, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID))
	if err != nil {
		return nil, &SynthesisError{Detail: err.Error()}
	}
	q := u.Query()
	q.Set("output_format", s.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	payload := map[string]any{
		"text":           text,
		"model_id":       s.cfg.ModelID,
		"voice_settings": settings,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SynthesisError{Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &SynthesisError{Detail: err.Error()}
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/*")

	res, err := s.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return nil, ErrPlaybackAborted
		case errors.Is(err, context.DeadlineExceeded):
			return nil, &SynthesisError{Timeout: true, Detail: err.Error()}
		default:
			return nil, &SynthesisError{Detail: err.Error()}
		}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		return nil, &SynthesisError{
			Status: res.StatusCode,
			Detail: fmt.Sprintf("%s: %s", res.Status, strings.TrimSpace(string(detail))),
		}
	}
	return res, nil
}

// Render synthesizes req and returns the audio bytes without playing them.
// Raw PCM output formats get wrapped in a WAV container so plain HTTP
// clients can play the result directly.
func (s *RemoteSynthesizer) Render(ctx context.Context, req Request) ([]byte, string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, "", nil
	}
	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" && s.selectVoice != nil {
		voiceID = strings.TrimSpace(s.selectVoice(ctx))
	}
	if voiceID == "" {
		return nil, "", ErrNoVoiceSelected
	}

	renderCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := s.synthesize(renderCtx, voiceID, text, req.Settings)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", &SynthesisError{Detail: err.Error()}
	}

	if rate, ok := audio.PCMSampleRate(s.cfg.OutputFormat); ok {
		wrapped, err := audio.EncodeWAVPCM16LE(data, rate)
		if err != nil {
			return nil, "", &SynthesisError{Detail: err.Error()}
		}
		return wrapped, "audio/wav", nil
	}
	return data, audio.MIMEForFormat(s.cfg.OutputFormat), nil
}

// ListVoices fetches the hosted catalog of available voices.
func (s *RemoteSynthesizer) ListVoices(ctx context.Context) ([]RemoteVoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.cfg.BaseURL, "/")+"/v1/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &SynthesisError{Status: res.StatusCode, Detail: strings.TrimSpace(string(body))}
	}

	var parsed struct {
		Voices []RemoteVoice `json:"voices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("list voices: invalid json: %w", err)
	}
	return parsed.Voices, nil
}

// RemoteVoice is one entry of the hosted voice catalog.
type RemoteVoice struct {
	VoiceID    string `json:"voice_id"`
	Name       string `json:"name"`
	Category   string `json:"category,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
}
