package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl        MessageType = "client_control"
	TypeCaptureState         MessageType = "capture_state"
	TypeTranscriptPartial    MessageType = "transcript_partial"
	TypeTranscriptCommitted  MessageType = "transcript_committed"
	TypePlaybackStarted      MessageType = "playback_started"
	TypePlaybackEnded        MessageType = "playback_ended"
	TypeNeedsUnlock          MessageType = "needs_unlock"
	TypeVoiceChanged         MessageType = "voice_changed"
	TypeInterpretationResult MessageType = "interpretation_result"
	TypeErrorEvent           MessageType = "error_event"
)

// Client control actions.
const (
	ActionStartCapture = "start_capture"
	ActionStopCapture  = "stop_capture"
	ActionResetCapture = "reset_capture"
	ActionSpeak        = "speak"
	ActionStopAll      = "stop_all"
	ActionUnlock       = "unlock"
	ActionSetVoice     = "set_voice"
	ActionInterpret    = "interpret"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientControl is the single client-to-server variant; Action selects the
// operation and the optional fields carry its arguments.
type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Text      string      `json:"text,omitempty"`
	VoiceID   string      `json:"voice_id,omitempty"`
	VoiceName string      `json:"voice_name,omitempty"`
	VoiceType string      `json:"voice_type,omitempty"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type CaptureState struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Listening bool        `json:"listening"`
}

type TranscriptPartial struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type TranscriptCommitted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Full      string      `json:"full"`
}

type PlaybackStarted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Backend   string      `json:"backend"`
}

type PlaybackEnded struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Backend   string      `json:"backend"`
	Reason    string      `json:"reason"`
}

type NeedsUnlock struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type VoiceChanged struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	VoiceID   string      `json:"voice_id"`
	VoiceName string      `json:"voice_name"`
	VoiceType string      `json:"voice_type"`
}

type InterpretationResult struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id"`
	Result    json.RawMessage `json:"result"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

var knownActions = map[string]struct{}{
	ActionStartCapture: {},
	ActionStopCapture:  {},
	ActionResetCapture: {},
	ActionSpeak:        {},
	ActionStopAll:      {},
	ActionUnlock:       {},
	ActionSetVoice:     {},
	ActionInterpret:    {},
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		if _, ok := knownActions[msg.Action]; !ok {
			return nil, fmt.Errorf("unknown action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
