// Command records runs the earthquake record service: the Postgres-backed
// record store, the CSV ingestion pipeline, the live record view fed by the
// change feed, and the admin HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/quakewatch/eq-records/internal/adapter/auth"
	"github.com/quakewatch/eq-records/internal/adapter/forecast"
	kafkaadapter "github.com/quakewatch/eq-records/internal/adapter/kafka"
	"github.com/quakewatch/eq-records/internal/adapter/postgres"
	"github.com/quakewatch/eq-records/internal/adapter/web"
	"github.com/quakewatch/eq-records/internal/blob"
	"github.com/quakewatch/eq-records/internal/config"
	"github.com/quakewatch/eq-records/internal/ingest"
	"github.com/quakewatch/eq-records/internal/live"
	"github.com/quakewatch/eq-records/internal/observability"
)

func main() {
	// Local development convenience; the file is absent in deployment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL, logger, metrics)
	if err != nil {
		logger.Error("failed to connect to record store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	blobs, err := blob.Open(ctx, cfg)
	if err != nil {
		logger.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}
	logger.Info("blob store ready", "driver", cfg.BlobDriver, "prefix", cfg.BlobPrefix)

	// Subscribe before the view's initial load so no change is missed.
	var feed live.Feed
	switch cfg.FeedDriver {
	case config.FeedDriverKafka:
		feed = kafkaadapter.Subscribe(cfg, logger, metrics)
		logger.Info("change feed ready", "driver", cfg.FeedDriver, "topic", cfg.KafkaFeedTopic)
	default:
		feed, err = postgres.Subscribe(ctx, cfg.DatabaseURL, cfg.FeedChannel, logger, metrics)
		if err != nil {
			logger.Error("failed to subscribe to change feed", "error", err)
			os.Exit(1)
		}
		logger.Info("change feed ready", "driver", cfg.FeedDriver, "channel", cfg.FeedChannel)
	}

	view, err := live.New(ctx, store, feed, logger, metrics)
	if err != nil {
		logger.Error("failed to build live record view", "error", err)
		feed.Close()
		os.Exit(1)
	}

	authClient := auth.NewClient(cfg.AuthURL, cfg.AuthAnonKey, cfg.AuthTimeout, logger)
	forecasts := forecast.NewCachedService(
		forecast.NewClient(cfg.ForecastURL, cfg.ForecastTimeout, logger),
		cfg.ForecastCacheSize,
	)
	ingestor := ingest.New(blobs, store, cfg.BlobPrefix, logger, metrics)

	srv := web.NewServer(cfg.HTTPAddr, store, view, ingestor, authClient, forecasts, cfg.MaxUploadBytes, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	view.Close()

	logger.Info("shutdown complete")
}
