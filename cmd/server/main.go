// Package main provides the entry point for the file-upload service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/auth-platform/file-upload/internal/api"
	"github.com/auth-platform/file-upload/internal/archive"
	"github.com/auth-platform/file-upload/internal/chunkwriter"
	"github.com/auth-platform/file-upload/internal/config"
	"github.com/auth-platform/file-upload/internal/coordinator"
	"github.com/auth-platform/file-upload/internal/health"
	"github.com/auth-platform/file-upload/internal/janitor"
	"github.com/auth-platform/file-upload/internal/observability"
	"github.com/auth-platform/file-upload/internal/server"
	"github.com/auth-platform/file-upload/internal/store"
)

const (
	serviceName    = "file-upload"
	serviceVersion = "2.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg.Logging.Level).WithComponent(serviceName)
	metrics := observability.NewMetrics("file_upload")
	tracer := observability.NewTracer()

	db, err := sqlx.Connect("postgres", cfg.Store.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", err)
	}
	db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Store.MaxIdleConns)

	if _, err := db.Exec(store.Schema); err != nil {
		logger.Fatal("failed to apply metadata store schema", err)
	}

	metadataStore := store.NewPostgres(db)

	writer, err := chunkwriter.New(cfg.Upload.UploadDir)
	if err != nil {
		logger.Fatal("failed to initialize chunk writer", err)
	}

	var archiver coordinator.Archiver
	if cfg.Archive.Enabled() {
		s3Archiver, err := archive.New(context.Background(), archive.Config{
			Region:   cfg.Archive.Region,
			Bucket:   cfg.Archive.Bucket,
			Endpoint: cfg.Archive.Endpoint,
		})
		if err != nil {
			logger.Fatal("failed to initialize archiver", err)
		}
		archiver = s3Archiver
	}

	coord, err := coordinator.New(coordinator.Config{
		Store:     metadataStore,
		Writer:    writer,
		TempDir:   cfg.Upload.TempDir,
		ChunkSize: cfg.Upload.ChunkSize,
		Archiver:  archiver,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
	})
	if err != nil {
		logger.Fatal("failed to initialize coordinator", err)
	}

	jan := janitor.New(janitor.Config{
		Store:            metadataStore,
		Writer:           writer,
		TempDir:          cfg.Upload.TempDir,
		Interval:         cfg.Janitor.Interval,
		SessionRetention: cfg.Janitor.SessionRetention,
		ScratchRetention: cfg.Janitor.ScratchRetention,
		Logger:           logger,
		Metrics:          metrics,
	})
	if err := jan.Start(); err != nil {
		logger.Fatal("failed to start janitor", err)
	}

	healthChecker := health.NewHealthChecker(serviceVersion)
	healthChecker.Register("database", health.DatabaseChecker(metadataStore.Ping))
	healthChecker.Register("storage", health.StorageChecker(func(ctx context.Context) error {
		probe := cfg.Upload.UploadDir + "/.health-probe"
		f, err := os.Create(probe)
		if err != nil {
			return err
		}
		f.Close()
		return os.Remove(probe)
	}))

	router := api.New(coord, healthChecker, logger)

	srv := server.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), router, server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Signals: server.DefaultShutdownConfig().Signals,
	})

	srv.RegisterShutdownHandler(func(ctx context.Context) error {
		return jan.Stop()
	})
	srv.RegisterShutdownHandler(func(ctx context.Context) error {
		return db.Close()
	})

	logger.Info(fmt.Sprintf("starting %s v%s on port %d", serviceName, serviceVersion, cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", err)
	}

	logger.Info("server stopped")
}
