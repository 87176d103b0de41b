package interpreter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request is the normalized dream-analysis request.
type Request struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	DreamText string `json:"dream_text"`
}

// Symbol is one recognized dream symbol and its reading.
type Symbol struct {
	Name    string `json:"name"`
	Meaning string `json:"meaning"`
}

// Interpretation is the structured analysis of a dream.
type Interpretation struct {
	Summary               string   `json:"summary"`
	Archetypes            []string `json:"archetypes,omitempty"`
	Symbols               []Symbol `json:"symbols,omitempty"`
	JungianInterpretation string   `json:"jungian_interpretation,omitempty"`
	ShadowWork            string   `json:"shadow_work,omitempty"`
	Recommendations       []string `json:"recommendations,omitempty"`
	EmotionalTone         string   `json:"emotional_tone,omitempty"`
}

// Interpreter analyzes dictated dream text.
type Interpreter interface {
	Analyze(ctx context.Context, req Request) (Interpretation, error)
}

// Config controls interpreter construction.
type Config struct {
	Mode    string
	HTTPURL string
	Timeout time.Duration
}

func NewInterpreter(cfg Config) (Interpreter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPInterpreter(cfg.HTTPURL, cfg.Timeout), nil
		}
		return NewMockInterpreter(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("interpreter HTTP url is required for http mode")
		}
		return NewHTTPInterpreter(cfg.HTTPURL, cfg.Timeout), nil
	case "mock":
		return NewMockInterpreter(), nil
	default:
		return nil, fmt.Errorf("unsupported interpreter mode %q", cfg.Mode)
	}
}
