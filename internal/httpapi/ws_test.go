package httpapi

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avelinetan/reverie/internal/protocol"
)

func dialWS(t *testing.T, httpURL, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/v1/speech/ws?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s error = %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) (protocol.MessageType, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message error = %v", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env.Type, data
}

func sendControl(t *testing.T, conn *websocket.Conn, control protocol.ClientControl) {
	t.Helper()
	control.Type = protocol.TypeClientControl
	if err := conn.WriteJSON(control); err != nil {
		t.Fatalf("write control error = %v", err)
	}
}

func TestWSRejectsUnknownSession(t *testing.T) {
	_, _, ts := newTestServer(t, &stubSpeech{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/speech/ws?session_id=nope"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("dial should fail for an unknown session")
	}
	if res == nil || res.StatusCode != 404 {
		t.Fatalf("expected 404 handshake rejection, got %+v", res)
	}
}

func TestWSCaptureFlowStreamsTranscript(t *testing.T) {
	sp := &stubSpeech{}
	_, sessions, ts := newTestServer(t, sp)
	sess := sessions.Create("u1", "")

	conn := dialWS(t, ts.URL, sess.ID)
	sendControl(t, conn, protocol.ClientControl{SessionID: sess.ID, Action: protocol.ActionStartCapture})

	typ, _ := readEvent(t, conn)
	if typ != protocol.TypeCaptureState {
		t.Fatalf("first event = %q, want capture_state", typ)
	}

	typ, data := readEvent(t, conn)
	if typ != protocol.TypeTranscriptCommitted {
		t.Fatalf("second event = %q, want transcript_committed", typ)
	}
	var committed protocol.TranscriptCommitted
	if err := json.Unmarshal(data, &committed); err != nil {
		t.Fatalf("decode committed: %v", err)
	}
	if committed.Text != "a dream" || committed.Full != "a dream" {
		t.Fatalf("unexpected committed event: %+v", committed)
	}
}

func TestWSSpeakEmitsPlaybackLifecycle(t *testing.T) {
	sp := &stubSpeech{}
	_, sessions, ts := newTestServer(t, sp)
	sess := sessions.Create("u1", "")

	conn := dialWS(t, ts.URL, sess.ID)
	sendControl(t, conn, protocol.ClientControl{SessionID: sess.ID, Action: protocol.ActionSpeak, Text: "hello"})

	typ, _ := readEvent(t, conn)
	if typ != protocol.TypePlaybackStarted {
		t.Fatalf("first event = %q, want playback_started", typ)
	}
	typ, data := readEvent(t, conn)
	if typ != protocol.TypePlaybackEnded {
		t.Fatalf("second event = %q, want playback_ended", typ)
	}
	var ended protocol.PlaybackEnded
	_ = json.Unmarshal(data, &ended)
	if ended.Reason != "completed" {
		t.Fatalf("reason = %q, want completed", ended.Reason)
	}
}

func TestWSSetVoiceEchoesChange(t *testing.T) {
	sp := &stubSpeech{}
	_, sessions, ts := newTestServer(t, sp)
	sess := sessions.Create("u1", "")

	conn := dialWS(t, ts.URL, sess.ID)
	sendControl(t, conn, protocol.ClientControl{
		SessionID: sess.ID,
		Action:    protocol.ActionSetVoice,
		VoiceID:   "v9",
		VoiceName: "Moira",
		VoiceType: "elevenlabs",
	})

	typ, data := readEvent(t, conn)
	if typ != protocol.TypeVoiceChanged {
		t.Fatalf("event = %q, want voice_changed", typ)
	}
	var changed protocol.VoiceChanged
	_ = json.Unmarshal(data, &changed)
	if changed.VoiceID != "v9" || changed.VoiceType != "remote" {
		t.Fatalf("unexpected voice_changed: %+v (legacy elevenlabs should map to remote)", changed)
	}
}

func TestWSNeedsUnlockAnnouncedOnConnect(t *testing.T) {
	sp := &stubSpeech{needsUnlock: true}
	_, sessions, ts := newTestServer(t, sp)
	sess := sessions.Create("u1", "")

	conn := dialWS(t, ts.URL, sess.ID)
	typ, _ := readEvent(t, conn)
	if typ != protocol.TypeNeedsUnlock {
		t.Fatalf("event = %q, want needs_unlock on connect", typ)
	}
}

func TestWSInvalidMessageYieldsErrorEvent(t *testing.T) {
	sp := &stubSpeech{}
	_, sessions, ts := newTestServer(t, sp)
	sess := sessions.Create("u1", "")

	conn := dialWS(t, ts.URL, sess.ID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"wat"}`)); err != nil {
		t.Fatalf("write error = %v", err)
	}

	typ, data := readEvent(t, conn)
	if typ != protocol.TypeErrorEvent {
		t.Fatalf("event = %q, want error_event", typ)
	}
	var errEvent protocol.ErrorEvent
	_ = json.Unmarshal(data, &errEvent)
	if errEvent.Code != "invalid_client_message" {
		t.Fatalf("code = %q", errEvent.Code)
	}
}
