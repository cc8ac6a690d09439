package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"alprd/internal/config"
	"alprd/internal/feed"
	"alprd/internal/observability/metrics"
	"alprd/internal/pipeline"
	"alprd/internal/repository"
	"alprd/internal/repository/sqlite"
	"alprd/internal/routes"
	"alprd/internal/storage"
)

// App wires the detection pipeline to its storage backends and the
// diagnostic HTTP surface. The recognition stage hands frames to the
// pipeline through Pipeline().Observe.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	pipeline *pipeline.DetectionPipeline
	reader   *sqlite.DetectionRepository
	hub      *feed.Hub
	server   *http.Server
}

func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	pipelineMetrics, err := metrics.NewPipelineMetrics()
	if err != nil {
		logger.Warn("metrics disabled", zap.Error(err))
		pipelineMetrics = nil
	}

	sink := storage.NewImageDir(cfg.StorageBaseDir)
	openStore := func() (repository.DetectionStore, error) {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return sqlite.NewDetectionRepository(db), nil
	}

	p := pipeline.New(cfg, sink, openStore, logger, pipelineMetrics)

	hub := feed.NewHub(logger)
	p.SetOnWritten(hub.Publish)

	// The diagnostic read side gets its own connection; the writer's handle
	// stays exclusively owned by the writer goroutine.
	readerDB, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open reader database: %w", err)
	}
	reader := sqlite.NewDetectionRepository(readerDB)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: routes.SetupRoutes(reader, p, hub, logger),
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		pipeline: p,
		reader:   reader,
		hub:      hub,
		server:   server,
	}, nil
}

// Pipeline exposes the ingestion entry point for the recognition stage.
func (a *App) Pipeline() *pipeline.DetectionPipeline {
	return a.pipeline
}

// Run starts the pipeline, the feed hub, and the HTTP server. It blocks
// until the server stops.
func (a *App) Run() error {
	if err := a.pipeline.Start(); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	go a.hub.Run()

	a.logger.Info("alprd listening",
		zap.Int("port", a.cfg.Port),
		zap.String("database", a.cfg.DatabasePath),
		zap.String("storage_dir", a.cfg.StorageBaseDir),
	)

	if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, drains the pipeline, and closes the
// reader connection.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.pipeline.Stop(); err != nil && !errors.Is(err, pipeline.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("pipeline stop: %w", err))
	}
	if err := a.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("reader close: %w", err))
	}

	return errors.Join(errs...)
}
