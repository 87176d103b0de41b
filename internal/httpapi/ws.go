package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avelinetan/reverie/internal/capture"
	"github.com/avelinetan/reverie/internal/protocol"
	"github.com/avelinetan/reverie/internal/speech"
	"github.com/avelinetan/reverie/internal/synth"
	"github.com/avelinetan/reverie/internal/voicepref"
)

func (s *Server) handleSpeechWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	send := func(msg any) {
		select {
		case outbound <- msg:
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
			}
		default:
			// Keep websocket writes single-threaded; drop when the outbound
			// queue is saturated rather than block the speech pipeline.
			s.metrics.WSMessages.WithLabelValues("outbound", "drop_full").Inc()
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	s.speech.SetCaptureUpdates(s.captureRelay(sess.ID, send))
	defer s.speech.SetCaptureUpdates(nil)

	if s.speech.NeedsUnlock() {
		send(protocol.NeedsUnlock{Type: protocol.TypeNeedsUnlock, SessionID: sess.ID})
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			})
			continue
		}
		control, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", control.Action).Inc()
		_ = s.sessions.Touch(sess.ID)
		s.handleControl(ctx, sess.ID, sess.UserID, control, send)
	}

	cancel()
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// captureRelay turns capture snapshots into transcript and state events. It
// tracks what was already relayed so each committed utterance goes out once.
func (s *Server) captureRelay(sessionID string, send func(any)) func(capture.Snapshot) {
	var lastListening bool
	var relayed int
	var lastInterim string

	return func(snap capture.Snapshot) {
		listening := snap.State == capture.StateListening
		if listening != lastListening {
			lastListening = listening
			send(protocol.CaptureState{Type: protocol.TypeCaptureState, SessionID: sessionID, Listening: listening})
		}
		if relayed > len(snap.Committed) {
			// A new dictation run began with a fresh transcript.
			relayed = 0
		}
		for ; relayed < len(snap.Committed); relayed++ {
			send(protocol.TranscriptCommitted{
				Type:      protocol.TypeTranscriptCommitted,
				SessionID: sessionID,
				Text:      snap.Committed[relayed],
				Full:      strings.Join(snap.Committed[:relayed+1], " "),
			})
		}
		if snap.Interim != lastInterim {
			lastInterim = snap.Interim
			if snap.Interim != "" {
				send(protocol.TranscriptPartial{Type: protocol.TypeTranscriptPartial, SessionID: sessionID, Text: snap.Interim})
			}
		}
		if snap.Err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "capture_failed",
				Source:    "capture",
				Retryable: true,
				Detail:    snap.Err.Error(),
			})
		}
	}
}

func (s *Server) handleControl(ctx context.Context, sessionID, userID string, control protocol.ClientControl, send func(any)) {
	switch control.Action {
	case protocol.ActionStartCapture:
		if err := s.speech.StartCapture(ctx); err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "capture_unavailable",
				Source:    "capture",
				Detail:    err.Error(),
			})
			return
		}
		_ = s.sessions.RecordDictation(sessionID)

	case protocol.ActionStopCapture:
		s.speech.StopCapture()

	case protocol.ActionResetCapture:
		s.speech.ResetCapture()

	case protocol.ActionSpeak:
		_ = s.sessions.RecordPlayback(sessionID)
		go s.runSpeak(ctx, sessionID, control.Text, send)

	case protocol.ActionStopAll:
		s.speech.StopAll()
		send(protocol.PlaybackEnded{Type: protocol.TypePlaybackEnded, SessionID: sessionID, Backend: "all", Reason: "stopped"})

	case protocol.ActionUnlock:
		s.speech.Unlock(ctx)

	case protocol.ActionSetVoice:
		pref := voicepref.FromParts(control.VoiceID, control.VoiceName, control.VoiceType)
		if err := s.speech.SetVoice(ctx, pref); err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_preference",
				Source:    "voicepref",
				Detail:    err.Error(),
			})
			return
		}
		send(protocol.VoiceChanged{
			Type:      protocol.TypeVoiceChanged,
			SessionID: sessionID,
			VoiceID:   pref.ID,
			VoiceName: pref.DisplayName,
			VoiceType: string(pref.Backend),
		})

	case protocol.ActionInterpret:
		dream := strings.TrimSpace(control.Text)
		if dream == "" {
			dream = s.speech.CaptureText()
		}
		go s.runInterpret(ctx, sessionID, userID, dream, send)
	}
}

func (s *Server) runSpeak(ctx context.Context, sessionID, text string, send func(any)) {
	backend := s.currentBackendLabel(ctx)
	send(protocol.PlaybackStarted{Type: protocol.TypePlaybackStarted, SessionID: sessionID, Backend: backend})

	err := s.speech.Speak(ctx, text)
	reason := "completed"
	switch {
	case err == nil:
	case errors.Is(err, synth.ErrPlaybackAborted):
		reason = "aborted"
	case errors.Is(err, speech.ErrNeedsUnlock):
		send(protocol.NeedsUnlock{Type: protocol.TypeNeedsUnlock, SessionID: sessionID})
		reason = "needs_unlock"
	default:
		reason = "error"
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      "synthesis_failed",
			Source:    "synth",
			Retryable: isRetryable(err),
			Detail:    err.Error(),
		})
	}
	send(protocol.PlaybackEnded{Type: protocol.TypePlaybackEnded, SessionID: sessionID, Backend: backend, Reason: reason})
}

func (s *Server) runInterpret(ctx context.Context, sessionID, userID, dream string, send func(any)) {
	out, err := s.speech.InterpretAndSpeak(ctx, userID, sessionID, dream)
	if err != nil {
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      "interpretation_failed",
			Source:    "interpreter",
			Retryable: true,
			Detail:    err.Error(),
		})
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return
	}
	send(protocol.InterpretationResult{Type: protocol.TypeInterpretationResult, SessionID: sessionID, Result: raw})
}

func (s *Server) currentBackendLabel(ctx context.Context) string {
	pref, err := s.speech.CurrentVoice(ctx)
	if err != nil {
		return "unknown"
	}
	return string(pref.Backend)
}

func isRetryable(err error) bool {
	var synthErr *synth.SynthesisError
	if errors.As(err, &synthErr) {
		return synthErr.Retryable() || synthErr.Timeout
	}
	return false
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.CaptureState:
		return m.Type, true
	case protocol.TranscriptPartial:
		return m.Type, true
	case protocol.TranscriptCommitted:
		return m.Type, true
	case protocol.PlaybackStarted:
		return m.Type, true
	case protocol.PlaybackEnded:
		return m.Type, true
	case protocol.NeedsUnlock:
		return m.Type, true
	case protocol.VoiceChanged:
		return m.Type, true
	case protocol.InterpretationResult:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
