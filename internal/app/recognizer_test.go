package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avelinetan/reverie/internal/capture"
	"github.com/avelinetan/reverie/internal/config"
)

func writeFakeTool(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newFakeWhisperRecognizer(t *testing.T, transcript string) *whisperRecognizer {
	t.Helper()
	dir := t.TempDir()
	recorder := writeFakeTool(t, dir, "recorder", "#!/bin/sh\nexit 0\n")
	cli := writeFakeTool(t, dir, "whisper-cli", `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then out="$2"; fi
  shift
done
printf '%s' "`+transcript+`" > "$out.txt"
`)
	return &whisperRecognizer{
		recorderPath: recorder,
		recorderKind: "arecord",
		cliPath:      cli,
		modelPath:    filepath.Join(dir, "model.bin"),
		language:     "en",
		chunk:        time.Second,
	}
}

func TestWhisperRecognizerEmitsFinalUtterance(t *testing.T) {
	r := newFakeWhisperRecognizer(t, "I dreamed of water")

	var events []capture.Event
	err := r.Listen(context.Background(), func(ev capture.Event) { events = append(events, ev) })
	if err != nil {
		t.Fatalf("Listen() = %v", err)
	}
	if len(events) != 1 || !events[0].Final || events[0].Text != "I dreamed of water" {
		t.Fatalf("events = %+v, want one final utterance", events)
	}
}

func TestWhisperRecognizerSilentChunkEmitsNothing(t *testing.T) {
	r := newFakeWhisperRecognizer(t, "")

	calls := 0
	if err := r.Listen(context.Background(), func(capture.Event) { calls++ }); err != nil {
		t.Fatalf("Listen() = %v", err)
	}
	if calls != 0 {
		t.Fatalf("a silent chunk must emit no events, got %d", calls)
	}
}

func TestNewRecognizerRequiresModel(t *testing.T) {
	if rec := newRecognizer(config.Config{}); rec != nil {
		t.Fatalf("no model path must mean no recognizer, got %T", rec)
	}

	cfg := config.Config{LocalWhisperModelPath: filepath.Join(t.TempDir(), "missing.bin")}
	if rec := newRecognizer(cfg); rec != nil {
		t.Fatalf("a missing model file must mean no recognizer, got %T", rec)
	}
}
