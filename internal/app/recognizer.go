package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/avelinetan/reverie/internal/capture"
	"github.com/avelinetan/reverie/internal/config"
)

// newRecognizer wires the on-device dictation pipeline: an external recorder
// grabs a short chunk from the default microphone and whisper.cpp transcribes
// it. Hosts missing the recorder, the CLI, or the model get no recognizer;
// dictation then reports ErrNoRecognizer instead of pretending to work.
func newRecognizer(cfg config.Config) capture.Recognizer {
	modelPath := strings.TrimSpace(cfg.LocalWhisperModelPath)
	if modelPath == "" {
		log.Printf("dictation unavailable: LOCAL_WHISPER_MODEL_PATH is not set")
		return nil
	}
	if _, err := os.Stat(modelPath); err != nil {
		log.Printf("dictation unavailable: whisper.cpp model not found: %s", modelPath)
		return nil
	}
	cliPath, err := exec.LookPath(cfg.LocalWhisperCLI)
	if err != nil {
		log.Printf("dictation unavailable: %s not found", cfg.LocalWhisperCLI)
		return nil
	}
	recorderPath, recorderKind := findRecorder()
	if recorderPath == "" {
		log.Printf("dictation unavailable: no microphone recorder binary (arecord or ffmpeg)")
		return nil
	}

	language := strings.TrimSpace(cfg.LocalWhisperLanguage)
	if language == "" {
		language = "en"
	}
	return &whisperRecognizer{
		recorderPath: recorderPath,
		recorderKind: recorderKind,
		cliPath:      cliPath,
		modelPath:    modelPath,
		language:     language,
		chunk:        cfg.CaptureChunk,
	}
}

func findRecorder() (path, kind string) {
	if p, err := exec.LookPath("arecord"); err == nil {
		return p, "arecord"
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p, "ffmpeg"
	}
	return "", ""
}

// whisperRecognizer is a chunked recognizer: each Listen records one stretch
// of microphone audio, transcribes it with the whisper.cpp CLI, and emits the
// result as a final utterance. Continuous capture restarts the stream, so a
// single dictation run covers as many chunks as the speaker needs.
type whisperRecognizer struct {
	recorderPath string
	recorderKind string
	cliPath      string
	modelPath    string
	language     string
	chunk        time.Duration
}

func (r *whisperRecognizer) Listen(ctx context.Context, emit func(capture.Event)) error {
	tmpDir, err := os.MkdirTemp("", "reverie-dictation-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "chunk.wav")
	if err := r.record(ctx, wavPath); err != nil {
		return err
	}
	text, err := r.transcribe(ctx, wavPath, filepath.Join(tmpDir, "out"))
	if err != nil {
		return err
	}
	if text != "" {
		emit(capture.Event{Text: text, Final: true})
	}
	return nil
}

func (r *whisperRecognizer) record(ctx context.Context, wavPath string) error {
	seconds := int(r.chunk / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	var args []string
	switch r.recorderKind {
	case "ffmpeg":
		args = []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "alsa", "-i", "default",
			"-t", strconv.Itoa(seconds),
			"-ar", "16000", "-ac", "1",
			wavPath,
		}
	default:
		args = []string{
			"-q", "-f", "S16_LE", "-r", "16000", "-c", "1",
			"-d", strconv.Itoa(seconds),
			wavPath,
		}
	}
	cmd := exec.CommandContext(ctx, r.recorderPath, args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("microphone recorder: %w", err)
	}
	return nil
}

func (r *whisperRecognizer) transcribe(ctx context.Context, wavPath, outPrefix string) (string, error) {
	// whisper.cpp CLI flag set varies slightly across builds; keep this conservative.
	args := []string{
		"-m", r.modelPath,
		"-f", wavPath,
		"-l", r.language,
		"-otxt",
		"-of", outPrefix,
		"-nt",
	}
	cmd := exec.CommandContext(ctx, r.cliPath, args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		// whisper.cpp can be extremely chatty; keep errors readable.
		if len(detail) > 8<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(8<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("whisper.cpp failed: %s", detail)
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
