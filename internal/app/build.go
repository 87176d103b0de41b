package app

import (
	"context"
	"fmt"

	"github.com/avelinetan/reverie/internal/capture"
	"github.com/avelinetan/reverie/internal/config"
	"github.com/avelinetan/reverie/internal/httpapi"
	"github.com/avelinetan/reverie/internal/interpreter"
	"github.com/avelinetan/reverie/internal/observability"
	"github.com/avelinetan/reverie/internal/playback"
	"github.com/avelinetan/reverie/internal/session"
	"github.com/avelinetan/reverie/internal/speech"
	"github.com/avelinetan/reverie/internal/voicepref"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Manager
	Conductor *speech.Conductor
	Metrics   *observability.Metrics
	Detail    string

	// Cleanup releases external resources (DB pool, backend handles).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	coord := playback.NewCoordinator()
	coord.Subscribe(func(snap playback.Snapshot) {
		metrics.ActiveHandles.Set(float64(snap.Registered))
	})

	prefStore, err := voicepref.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("voice preference store init failed: %w", err)
	}
	prefs := voicepref.NewService(prefStore, cfg.DefaultRemoteVoiceID, cfg.DefaultRemoteVoiceName)

	setup, err := resolveSpeechBackends(cfg, coord, prefs)
	if err != nil {
		_ = prefs.Close()
		return nil, err
	}

	capt := capture.New(capture.Config{
		Continuous:   cfg.CaptureContinuous,
		RestartDelay: cfg.CaptureRestartDelay,
	}, coord, newRecognizer(cfg))

	interp, err := interpreter.NewInterpreter(interpreter.Config{
		Mode:    cfg.InterpreterMode,
		HTTPURL: cfg.InterpreterHTTPURL,
		Timeout: cfg.InterpreterTimeout,
	})
	if err != nil {
		setup.cleanup()
		_ = prefs.Close()
		return nil, fmt.Errorf("interpreter init failed: %w", err)
	}

	// A server host has no autoplay policy; the probe resolves to unlocked.
	unlocker := playback.NewUnlocker(nil, false)
	unlocker.Probe(ctx)

	var remote speech.RemoteBackend
	if setup.remote != nil {
		remote = setup.remote
	}
	var local speech.LocalBackend
	if setup.local != nil {
		local = setup.local
	}

	conductor := speech.NewConductor(speech.Deps{
		Coordinator: coord,
		Capture:     capt,
		Remote:      remote,
		Local:       local,
		Prefs:       prefs,
		Unlocker:    unlocker,
		Interpreter: interp,
		Metrics:     metrics,
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, conductor, setup.catalog, setup.renderer, metrics)

	cleanup := func() error {
		capt.Close()
		setup.cleanup()
		return prefs.Close()
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Conductor: conductor,
		Metrics:   metrics,
		Detail:    setup.detail,
		Cleanup:   cleanup,
	}, nil
}
