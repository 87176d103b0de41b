package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the reverie speech service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	SpeechBackend string

	RemoteVoiceAPIKey       string
	RemoteVoiceBaseURL      string
	RemoteVoiceModelID      string
	RemoteVoiceOutputFormat string
	RemoteSynthesisTimeout  time.Duration
	DefaultRemoteVoiceID    string
	DefaultRemoteVoiceName  string

	LocalSpeechRate   float64
	LocalSpeechPitch  float64
	LocalSpeechVolume float64

	CaptureContinuous   bool
	CaptureRestartDelay time.Duration

	LocalWhisperCLI       string
	LocalWhisperModelPath string
	LocalWhisperLanguage  string
	// CaptureChunk is how much microphone audio each recognizer pass covers.
	CaptureChunk time.Duration

	InterpreterMode    string
	InterpreterHTTPURL string
	InterpreterTimeout time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "reverie"),
		AllowAnyOrigin:     false,
		SpeechBackend:      envOrDefault("SPEECH_BACKEND", "auto"),
		RemoteVoiceBaseURL: envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		RemoteVoiceModelID: envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		// MP3 decodes everywhere; PCM variants get wrapped as WAV by the preview endpoint.
		RemoteVoiceOutputFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "mp3_44100_128"),
		// Sarah: the premade voice the dream reader uses when nothing is persisted yet.
		DefaultRemoteVoiceID:   envOrDefault("DEFAULT_REMOTE_VOICE_ID", "EXAVITQu4vr4xnSDxMaL"),
		DefaultRemoteVoiceName: envOrDefault("DEFAULT_REMOTE_VOICE_NAME", "Sarah"),
		RemoteVoiceAPIKey:      stringsTrimSpace("ELEVENLABS_API_KEY"),
		LocalSpeechRate:        0.9,
		LocalSpeechPitch:       1.0,
		LocalSpeechVolume:      1.0,
		CaptureContinuous:      true,
		CaptureRestartDelay:    250 * time.Millisecond,
		LocalWhisperCLI:        envOrDefault("LOCAL_WHISPER_CLI", "whisper-cli"),
		LocalWhisperModelPath:  stringsTrimSpace("LOCAL_WHISPER_MODEL_PATH"),
		LocalWhisperLanguage:   envOrDefault("LOCAL_WHISPER_LANGUAGE", "en"),
		CaptureChunk:           6 * time.Second,
		InterpreterMode:        envOrDefault("INTERPRETER_MODE", "auto"),
		InterpreterHTTPURL:     stringsTrimSpace("INTERPRETER_HTTP_URL"),
		InterpreterTimeout:     45 * time.Second,
		DatabaseURL:            stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:        15 * time.Second,
		// Dictated dreams pause often; keep sessions alive across long silences.
		SessionInactivityTimeout: 5 * time.Minute,
		RemoteSynthesisTimeout:   30 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RemoteSynthesisTimeout, err = durationFromEnv("REMOTE_SYNTHESIS_TIMEOUT", cfg.RemoteSynthesisTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureRestartDelay, err = durationFromEnv("CAPTURE_RESTART_DELAY", cfg.CaptureRestartDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureChunk, err = durationFromEnv("CAPTURE_CHUNK", cfg.CaptureChunk)
	if err != nil {
		return Config{}, err
	}
	cfg.InterpreterTimeout, err = durationFromEnv("INTERPRETER_TIMEOUT", cfg.InterpreterTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureContinuous, err = boolFromEnv("CAPTURE_CONTINUOUS", cfg.CaptureContinuous)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalSpeechRate, err = floatFromEnv("LOCAL_SPEECH_RATE", cfg.LocalSpeechRate)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalSpeechPitch, err = floatFromEnv("LOCAL_SPEECH_PITCH", cfg.LocalSpeechPitch)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalSpeechVolume, err = floatFromEnv("LOCAL_SPEECH_VOLUME", cfg.LocalSpeechVolume)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.RemoteSynthesisTimeout < time.Second {
		return Config{}, fmt.Errorf("REMOTE_SYNTHESIS_TIMEOUT must be at least 1s")
	}
	if cfg.LocalSpeechRate <= 0 || cfg.LocalSpeechRate > 4 {
		return Config{}, fmt.Errorf("LOCAL_SPEECH_RATE must be in (0, 4]")
	}
	if cfg.LocalSpeechPitch <= 0 || cfg.LocalSpeechPitch > 2 {
		return Config{}, fmt.Errorf("LOCAL_SPEECH_PITCH must be in (0, 2]")
	}
	if cfg.LocalSpeechVolume < 0 || cfg.LocalSpeechVolume > 1 {
		return Config{}, fmt.Errorf("LOCAL_SPEECH_VOLUME must be in [0, 1]")
	}
	if strings.TrimSpace(cfg.DefaultRemoteVoiceID) == "" {
		return Config{}, fmt.Errorf("DEFAULT_REMOTE_VOICE_ID must not be empty")
	}
	if cfg.CaptureChunk < time.Second {
		return Config{}, fmt.Errorf("CAPTURE_CHUNK must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
