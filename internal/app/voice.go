package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"

	"github.com/avelinetan/reverie/internal/config"
	"github.com/avelinetan/reverie/internal/httpapi"
	"github.com/avelinetan/reverie/internal/playback"
	"github.com/avelinetan/reverie/internal/synth"
	"github.com/avelinetan/reverie/internal/voicepref"
)

type voiceSetup struct {
	remote   *synth.RemoteSynthesizer
	local    *synth.LocalSynthesizer
	catalog  httpapi.VoiceCatalog
	renderer httpapi.Renderer
	detail   string
	cleanup  func()
}

// resolveSpeechBackends builds the synthesis backends the host can actually
// support. "auto" takes the hosted backend when an API key exists and keeps
// the on-device one alongside it as the degradation path.
func resolveSpeechBackends(cfg config.Config, coord *playback.Coordinator, prefs *voicepref.Service) (*voiceSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.SpeechBackend))
	if mode == "" {
		mode = "auto"
	}

	setup := &voiceSetup{}

	buildLocal := func() *synth.LocalSynthesizer {
		engine := newLocalEngine()
		local := synth.NewLocalSynthesizer(synth.LocalConfig{
			Rate:   cfg.LocalSpeechRate,
			Pitch:  cfg.LocalSpeechPitch,
			Volume: cfg.LocalSpeechVolume,
		}, coord, engine)
		local.SetVoices(localVoiceCatalog())
		return local
	}

	buildRemote := func() *synth.RemoteSynthesizer {
		selectVoice := func(ctx context.Context) string {
			p, err := prefs.Current(ctx)
			if err == nil && p.Backend == voicepref.BackendRemote {
				return p.RemoteVoiceID
			}
			return cfg.DefaultRemoteVoiceID
		}
		return synth.NewRemoteSynthesizer(synth.RemoteConfig{
			APIKey:       cfg.RemoteVoiceAPIKey,
			BaseURL:      cfg.RemoteVoiceBaseURL,
			ModelID:      cfg.RemoteVoiceModelID,
			OutputFormat: cfg.RemoteVoiceOutputFormat,
			Timeout:      cfg.RemoteSynthesisTimeout,
		}, coord, newPlayer(), selectVoice)
	}

	switch mode {
	case "remote":
		if strings.TrimSpace(cfg.RemoteVoiceAPIKey) == "" {
			return nil, fmt.Errorf("SPEECH_BACKEND=remote but ELEVENLABS_API_KEY is not set")
		}
		setup.remote = buildRemote()
		setup.detail = "hosted synthesis only"
	case "local":
		setup.local = buildLocal()
		setup.detail = "on-device synthesis only"
	case "auto":
		setup.local = buildLocal()
		if strings.TrimSpace(cfg.RemoteVoiceAPIKey) != "" {
			setup.remote = buildRemote()
			setup.detail = "hosted synthesis with on-device fallback"
		} else {
			setup.detail = "on-device synthesis (no hosted API key)"
		}
	default:
		return nil, fmt.Errorf("invalid SPEECH_BACKEND %q (expected auto|remote|local)", cfg.SpeechBackend)
	}

	if setup.remote != nil {
		setup.catalog = setup.remote
		setup.renderer = setup.remote
		if setup.local != nil {
			local := setup.local
			setup.remote.SetFallback(func(ctx context.Context, text string) error {
				local.Speak(ctx, text)
				return nil
			})
		}
	}

	setup.cleanup = func() {
		if setup.remote != nil {
			setup.remote.Close()
		}
		if setup.local != nil {
			setup.local.Close()
		}
	}
	return setup, nil
}

// localVoiceCatalog is the static voice list the espeak engine supports. The
// selection predicates still run over it, so a richer engine can swap in a
// discovered catalog without touching callers.
func localVoiceCatalog() []synth.LocalVoice {
	return []synth.LocalVoice{
		{ID: "en-us", Name: "English (America)", Lang: "en-US"},
		{ID: "en-gb", Name: "English (Great Britain)", Lang: "en-GB"},
		{ID: "en-us+f3", Name: "English (America, female)", Lang: "en-US", Gender: "female"},
	}
}

// espeakEngine drives the espeak-ng binary for on-device narration. Stop goes
// through context cancellation, which kills the spawned process.
type espeakEngine struct {
	binary string
}

func newLocalEngine() synth.Engine {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return &espeakEngine{binary: path}
		}
	}
	log.Printf("local speech engine unavailable: espeak-ng not found")
	return nil
}

func (e *espeakEngine) Speak(ctx context.Context, u synth.Utterance) error {
	// espeak speed is words per minute; 175 is its default pace.
	wpm := int(175 * u.Rate)
	if wpm < 80 {
		wpm = 80
	}
	amplitude := int(100 * u.Volume)
	args := []string{
		"-v", u.Voice.ID,
		"-s", fmt.Sprintf("%d", wpm),
		"-a", fmt.Sprintf("%d", amplitude),
		u.Text,
	}
	cmd := exec.CommandContext(ctx, e.binary, args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("espeak: %w", err)
	}
	return nil
}

func (e *espeakEngine) Cancel() {
	// Cancellation happens through the utterance context.
}

// execPlayer streams synthesized audio into an external player binary.
type execPlayer struct {
	binary string
	args   []string
}

func newPlayer() synth.Player {
	if path, err := exec.LookPath("ffplay"); err == nil {
		return &execPlayer{binary: path, args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-"}}
	}
	if path, err := exec.LookPath("mpv"); err == nil {
		return &execPlayer{binary: path, args: []string{"--no-video", "--really-quiet", "-"}}
	}
	log.Printf("no audio player binary found, synthesized audio will be consumed silently")
	return discardPlayer{}
}

func (p *execPlayer) Play(ctx context.Context, _ string, r io.Reader) error {
	cmd := exec.CommandContext(ctx, p.binary, p.args...)
	cmd.Stdin = r
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio player: %w", err)
	}
	return nil
}

// discardPlayer drains the stream without producing sound. It keeps the
// synthesis pipeline exercisable on hosts with no audio output.
type discardPlayer struct{}

func (discardPlayer) Play(ctx context.Context, _ string, r io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, r)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
