package voicepref

import (
	"context"
	"fmt"
	"strings"
)

// Backend selects which synthesis engine a preference points at.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Preference is the persisted singleton voice choice. Exactly one of
// LocalVoice / RemoteVoiceID is meaningful, discriminated by Backend.
type Preference struct {
	ID            string  `json:"id"`
	DisplayName   string  `json:"display_name"`
	Backend       Backend `json:"backend"`
	LocalVoice    string  `json:"local_voice,omitempty"`
	RemoteVoiceID string  `json:"remote_voice_id,omitempty"`
}

// Validate checks that the preference resolves to exactly one concrete
// backend+voice.
func (p Preference) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("voice preference: id is required")
	}
	switch p.Backend {
	case BackendLocal:
		if strings.TrimSpace(p.LocalVoice) == "" {
			return fmt.Errorf("voice preference: local backend requires a local voice")
		}
		return nil
	case BackendRemote:
		if strings.TrimSpace(p.RemoteVoiceID) == "" {
			return fmt.Errorf("voice preference: remote backend requires a remote voice id")
		}
		return nil
	default:
		return fmt.Errorf("voice preference: unknown backend %q", p.Backend)
	}
}

// ParseBackend maps stored or wire type strings to the tagged backend,
// including the legacy names the web client wrote ("system" for on-device
// voices, "elevenlabs" for the hosted API).
func ParseBackend(raw string) Backend {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "local", "system":
		return BackendLocal
	case "remote", "elevenlabs":
		return BackendRemote
	default:
		return Backend(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// FromParts builds a preference from its stored string parts.
func FromParts(id, name, rawType string) Preference {
	p := Preference{ID: id, DisplayName: name, Backend: ParseBackend(rawType)}
	switch p.Backend {
	case BackendLocal:
		p.LocalVoice = id
	case BackendRemote:
		p.RemoteVoiceID = id
	}
	return p
}

// Persisted key names, kept compatible with what the web client stored.
const (
	keyVoiceID   = "voice-id"
	keyVoiceName = "voice-name"
	keyVoiceType = "voice-type"
)

// Store persists preference fields as plain string key-value pairs. Absence
// of a key means "no preference yet".
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}
