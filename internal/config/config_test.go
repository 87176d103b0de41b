package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.SpeechBackend != "auto" {
		t.Fatalf("SpeechBackend = %q, want auto", cfg.SpeechBackend)
	}
	if cfg.DefaultRemoteVoiceID == "" {
		t.Fatalf("DefaultRemoteVoiceID must have a non-empty default")
	}
	if cfg.RemoteSynthesisTimeout < time.Second {
		t.Fatalf("RemoteSynthesisTimeout = %v, want >= 1s", cfg.RemoteSynthesisTimeout)
	}
	if !cfg.CaptureContinuous {
		t.Fatalf("CaptureContinuous should default to true")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("REMOTE_SYNTHESIS_TIMEOUT", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for invalid REMOTE_SYNTHESIS_TIMEOUT")
	}
}

func TestLoadRejectsTinySynthesisTimeout(t *testing.T) {
	t.Setenv("REMOTE_SYNTHESIS_TIMEOUT", "10ms")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for sub-second synthesis timeout")
	}
}

func TestLoadRejectsOutOfRangeVolume(t *testing.T) {
	t.Setenv("LOCAL_SPEECH_VOLUME", "1.5")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for LOCAL_SPEECH_VOLUME > 1")
	}
}

func TestLoadParsesBools(t *testing.T) {
	t.Setenv("CAPTURE_CONTINUOUS", "off")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if cfg.CaptureContinuous {
		t.Fatalf("CAPTURE_CONTINUOUS=off should disable continuous capture")
	}
}
