package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/avelinetan/reverie/internal/capture"
	"github.com/avelinetan/reverie/internal/config"
	"github.com/avelinetan/reverie/internal/interpreter"
	"github.com/avelinetan/reverie/internal/observability"
	"github.com/avelinetan/reverie/internal/session"
	"github.com/avelinetan/reverie/internal/speech"
	"github.com/avelinetan/reverie/internal/synth"
	"github.com/avelinetan/reverie/internal/voicepref"
)

// Speech is the conductor surface the HTTP layer drives.
type Speech interface {
	Speak(ctx context.Context, text string) error
	StopAll()
	StartCapture(ctx context.Context) error
	StopCapture()
	ResetCapture()
	SetCaptureUpdates(fn func(capture.Snapshot))
	CaptureText() string
	NeedsUnlock() bool
	Unlock(ctx context.Context)
	CurrentVoice(ctx context.Context) (voicepref.Preference, error)
	SetVoice(ctx context.Context, p voicepref.Preference) error
	Interpret(ctx context.Context, userID, sessionID, dreamText string) (interpreter.Interpretation, error)
	InterpretAndSpeak(ctx context.Context, userID, sessionID, dreamText string) (interpreter.Interpretation, error)
}

// VoiceCatalog lists the hosted voices. Nil when no hosted backend exists.
type VoiceCatalog interface {
	ListVoices(ctx context.Context) ([]synth.RemoteVoice, error)
}

// Renderer returns synthesized audio bytes for preview-style endpoints.
type Renderer interface {
	Render(ctx context.Context, req synth.Request) ([]byte, string, error)
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	speech   Speech
	catalog  VoiceCatalog
	renderer Renderer
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, speech Speech, catalog VoiceCatalog, renderer Renderer, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		speech:   speech,
		catalog:  catalog,
		renderer: renderer,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Another website must not
				// be able to drive the user's microphone session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Get("/v1/speech/ws", s.handleSpeechWS)

	r.Get("/v1/voices", s.handleListVoices)
	r.Get("/v1/voice/preference", s.handleGetVoicePreference)
	r.Put("/v1/voice/preference", s.handleSetVoicePreference)

	r.Post("/v1/speech/speak", s.handleSpeak)
	r.Post("/v1/speech/stop", s.handleStop)
	r.Post("/v1/speech/render", s.handleRender)

	r.Post("/v1/dreams/interpret", s.handleInterpret)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"hosted_backend": s.catalog != nil,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		req.VoiceID = s.cfg.DefaultRemoteVoiceID
	}

	sess := s.sessions.Create(req.UserID, req.VoiceID)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          sess.Status,
		VoiceID:         sess.VoiceID,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondJSON(w, http.StatusOK, map[string]any{"voices": []synth.RemoteVoice{}})
		return
	}
	voices, err := s.catalog.ListVoices(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "voice_catalog_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

func (s *Server) handleGetVoicePreference(w http.ResponseWriter, r *http.Request) {
	pref, err := s.speech.CurrentVoice(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "preference_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, pref)
}

type setVoiceRequest struct {
	VoiceID   string `json:"voice_id"`
	VoiceName string `json:"voice_name"`
	VoiceType string `json:"voice_type"`
}

func (s *Server) handleSetVoicePreference(w http.ResponseWriter, r *http.Request) {
	var req setVoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	pref := voicepref.FromParts(req.VoiceID, req.VoiceName, req.VoiceType)
	if err := s.speech.SetVoice(r.Context(), pref); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_preference", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, pref)
}

type speakRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.SessionID != "" {
		_ = s.sessions.RecordPlayback(req.SessionID)
	}

	start := time.Now()
	err := s.speech.Speak(r.Context(), req.Text)
	switch {
	case err == nil:
		s.metrics.ObserveFirstAudioLatency(time.Since(start))
		respondJSON(w, http.StatusOK, map[string]any{"status": "completed"})
	case errors.Is(err, synth.ErrPlaybackAborted):
		respondJSON(w, http.StatusOK, map[string]any{"status": "aborted"})
	case errors.Is(err, speech.ErrNeedsUnlock):
		respondError(w, http.StatusConflict, "needs_unlock", err.Error())
	default:
		respondError(w, http.StatusBadGateway, "synthesis_failed", err.Error())
	}
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.speech.StopAll()
	respondJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

type renderRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if s.renderer == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "no hosted synthesis backend configured")
		return
	}
	var req renderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	audioBytes, mime, err := s.renderer.Render(r.Context(), synth.Request{Text: req.Text, VoiceID: req.VoiceID})
	if err != nil {
		var synthErr *synth.SynthesisError
		if errors.As(err, &synthErr) && synthErr.AuthFailure() {
			respondError(w, http.StatusBadGateway, "synthesis_auth_failed", err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "synthesis_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audioBytes)
}

type interpretRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	DreamText string `json:"dream_text"`
	Narrate   bool   `json:"narrate"`
}

func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	var req interpretRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.DreamText) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "dream_text is required")
		return
	}
	if req.SessionID != "" {
		_ = s.sessions.Touch(req.SessionID)
	}

	var (
		out interpreter.Interpretation
		err error
	)
	if req.Narrate {
		out, err = s.speech.InterpretAndSpeak(r.Context(), req.UserID, req.SessionID, req.DreamText)
	} else {
		out, err = s.speech.Interpret(r.Context(), req.UserID, req.SessionID, req.DreamText)
	}
	if err != nil {
		respondError(w, http.StatusBadGateway, "interpretation_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
