package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aouyang1/photojournal/api"
	"github.com/aouyang1/photojournal/config"
	"github.com/aouyang1/photojournal/intake"
	"github.com/aouyang1/photojournal/remote"
	"github.com/aouyang1/photojournal/sanitize"
	"github.com/aouyang1/photojournal/state"
	"github.com/aouyang1/photojournal/store"
	"github.com/aouyang1/photojournal/syncstore"
)

const shutdownTimeout = 10 * time.Second

func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := setupLogger(cfg)
	logger.Info("starting photo journal", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local := store.NewLocalStore(cfg.DatabasePath())

	rc, err := remote.New(ctx, cfg.Remote())
	if err != nil {
		// keep the tier so the probe can report why it is unusable
		logger.Warn("remote store unavailable, saving locally only", "driver", cfg.RemoteDriver, "error", err)
		rc = remote.Unavailable(cfg.RemoteDriver, err)
	}

	orchestrator := syncstore.New(syncstore.OrchestratorConfig{
		Local:         local,
		Remote:        rc,
		RemoteTimeout: cfg.RemoteTimeout,
		Logger:        logger,
	})

	controller := state.NewController(state.ControllerConfig{
		Store:     orchestrator,
		Sanitizer: sanitize.New(),
		Logger:    logger,
	})

	var classifier intake.Classifier
	if cfg.ClassifierConfigured() {
		vision, err := intake.NewVisionClassifier(ctx, cfg.ClassifierAPIKey, cfg.ClassifierCredentials)
		if err != nil {
			logger.Warn("image classifier unavailable, using default colors", "error", err)
		} else {
			defer vision.Close()
			classifier = vision
		}
	}

	pipeline := intake.NewPipeline(controller, classifier, intake.Config{
		MaxUploadBytes:  cfg.MaxUploadBytes,
		MaxDimension:    cfg.MaxDimension,
		ClassifyTimeout: cfg.ClassifyTimeout,
	}, logger)

	monitor, err := api.NewStatusMonitor(orchestrator, cfg.ProbeInterval)
	if err != nil {
		log.Fatalf("Failed to initialize status monitor: %v", err)
	}
	go monitor.Run(ctx)

	var inbox *api.InboxManager
	if cfg.InboxEnabled() {
		inbox, err = api.NewInboxManager(cfg.InboxDir, cfg.InboxInterval, pipeline)
		if err != nil {
			log.Fatalf("Failed to initialize inbox manager: %v", err)
		}
		go inbox.Run(ctx)
	}
	go api.WatchUpdates(ctx, logger, monitor, inbox, func() int { return len(controller.Photos()) })

	go func() {
		if err := controller.Load(ctx); err != nil {
			logger.Error("failed to load app state", "error", err)
			return
		}
		logger.Info("app state loaded", "photos", len(controller.Photos()), "sources", controller.Sources())
	}()

	webServer, err := api.NewWebServer(api.WebServerConfig{
		Controller:     controller,
		Pipeline:       pipeline,
		Status:         monitor,
		Local:          local,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("Failed to initialize web server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- webServer.Start(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.Error("web server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down web server", "error", err)
	}
	if err := orchestrator.Close(); err != nil {
		logger.Error("failed to close sync orchestrator", "error", err)
	}
	if err := local.Close(); err != nil {
		logger.Error("failed to close local store", "error", err)
	}
}
