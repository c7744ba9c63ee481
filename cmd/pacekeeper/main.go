package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/petems/pacekeeper/internal/analysis"
	"github.com/petems/pacekeeper/internal/app"
	"github.com/petems/pacekeeper/internal/audio"
	"github.com/petems/pacekeeper/internal/capture"
	"github.com/petems/pacekeeper/internal/catalog"
	"github.com/petems/pacekeeper/internal/config"
	"github.com/petems/pacekeeper/internal/logging"
	"github.com/petems/pacekeeper/internal/metrics"
	"github.com/petems/pacekeeper/internal/permissions"
	"github.com/petems/pacekeeper/internal/persist"
	"github.com/petems/pacekeeper/internal/transcript"
	"github.com/petems/pacekeeper/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: platform config dir)")
	transcriptPath := flag.String("transcript", "", "JSON-lines transcript stream, '-' for stdin (overrides transcript_file)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Use console logger if config fails to load
		log := logging.New("info", "")
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logging.New(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pa, err := audio.New(audio.Config{
		FramesPerBuffer:        cfg.Audio.FramesPerBuffer,
		MinIsolationSampleRate: audio.DefaultConfig().MinIsolationSampleRate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer pa.Close()

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("Failed to open catalog")
	}
	defer cat.Close()

	store := persist.NewStore(log.With().Str("component", "persist").Logger())

	orchestrator := analysis.NewOrchestrator(analysis.Config{
		SpeechThreshold:     cfg.Analysis.SpeechThreshold,
		PauseThreshold:      cfg.Analysis.GetPauseThreshold(),
		LatencyWindow:       cfg.Analysis.LatencyWindow,
		LatencyHigh:         cfg.Analysis.GetLatencyHigh(),
		LatencyCritical:     cfg.Analysis.GetLatencyCritical(),
		UtilizationWindow:   cfg.Analysis.UtilizationWindow,
		UtilizationHigh:     cfg.Analysis.UtilizationHigh,
		UtilizationCritical: cfg.Analysis.UtilizationCritical,
		CheckpointInterval:  cfg.Analysis.GetCheckpointInterval(),
		CrutchWords:         cfg.Analysis.CrutchWords,
		Sink:                app.CheckpointSink(cfg.RecordingsDir, store),
		Metrics:             m,
		Logger:              log.With().Str("component", "analysis").Logger(),
	})

	controller := capture.New(capture.Config{
		Backends:                 pa,
		RecordingsDir:            cfg.RecordingsDir,
		PreferredDevice:          cfg.Audio.DeviceID,
		VoiceIsolation:           cfg.Audio.VoiceIsolation,
		StartTimeout:             cfg.Capture.GetStartTimeout(),
		ValidationGrace:          cfg.Capture.GetValidationGrace(),
		ValidationLevelThreshold: cfg.Capture.ValidationLevelThreshold,
		MaxSegmentDuration:       cfg.Capture.GetMaxSegmentDuration(),
		StoragePollInterval:      cfg.Capture.GetStoragePollInterval(),
		StorageWarningThreshold:  cfg.Capture.GetStorageWarningThreshold(),
		Analyzer:                 orchestrator,
		Metrics:                  m,
		Logger:                   log.With().Str("component", "capture").Logger(),
	})

	source, closeSource, err := openTranscripts(ctx, *transcriptPath, cfg.TranscriptFile, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transcript stream")
	}
	defer closeSource()

	application := app.New(app.Config{
		Recorder:    controller,
		Analyzer:    orchestrator,
		Transcripts: source,
		Devices:     pa,
		Backends:    pa,
		Permissions: permissions.Default(),
		Store:       store,
		Catalog:     cat,
		Config:      cfg,
		Logger:      log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	g.Go(func() error { return application.Watch(gctx, cfg.Capture.GetDevicePollInterval()) })
	if cfg.Metrics.Address != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Address, m, log) })
	}

	log.Info().Str("version", Version).Str("recordings", cfg.RecordingsDir).Msg("Pacekeeper starting...")

	// Start tray UI - MUST run on main thread
	ui := tray.New(application, cfg, orchestrator.Live(), log, Version, Commit)
	if err := ui.Run(gctx); err != nil {
		log.Error().Err(err).Msg("Tray error")
	}

	log.Info().Msg("Shutting down...")
	stop()
	if err := application.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Background task failed")
	}
}

// openTranscripts picks the flag over the configured file; no source disables pace and crutch analysis
func openTranscripts(ctx context.Context, flagPath, cfgPath string, log zerolog.Logger) (transcript.Source, func(), error) {
	path := flagPath
	if path == "" {
		path = cfgPath
	}
	if path == "" {
		log.Warn().Msg("No transcript stream configured; pace and crutch words will stay empty")
		return nil, func() {}, nil
	}

	var r io.ReadCloser = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		r = f
	}
	return transcript.NewReader(ctx, r, log.With().Str("component", "transcript").Logger()), func() { r.Close() }, nil
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
