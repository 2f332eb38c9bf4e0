package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/climate-indicator-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/climate-indicator-service/internal/adapter/kafka"
	"github.com/couchcryptid/climate-indicator-service/internal/adapter/mapbox"
	"github.com/couchcryptid/climate-indicator-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-indicator-service/internal/adapter/s3"
	"github.com/couchcryptid/climate-indicator-service/internal/config"
	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/observability"
	"github.com/couchcryptid/climate-indicator-service/internal/pipeline"
	"github.com/couchcryptid/climate-indicator-service/internal/registry"
	"github.com/couchcryptid/climate-indicator-service/internal/retrieval"
	"github.com/couchcryptid/climate-indicator-service/internal/scheduler"
	"github.com/couchcryptid/climate-indicator-service/internal/session"
	"github.com/couchcryptid/climate-indicator-service/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Error("failed to load variable registry", "error", err)
		os.Exit(1)
	}
	logger.Info("variable registry loaded", "variables", reg.Len(), "path", cfg.RegistryPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	objects := s3.NewStore(s3.Config{
		Region:     cfg.S3Region,
		Endpoint:   cfg.S3Endpoint,
		Timeout:    cfg.FetchTimeout,
		MaxRetries: cfg.FetchMaxRetries,
	}, metrics, logger)
	fetcher := retrieval.NewFetcher(objects, netcdf.NewDecoder(cfg.DecodeTempDir), metrics, logger)
	retriever := retrieval.NewRetriever(domain.NewLocator(cfg.BaseURL), fetcher, reg, metrics, logger)

	jobs, err := store.New(ctx, store.Config{
		Driver: cfg.StoreDriver,
		DSN:    cfg.StoreDSN,
		TTL:    cfg.StoreTTL,
	}, nil, metrics, logger)
	if err != nil {
		logger.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := jobs.Close(); err != nil {
			logger.Error("job store close error", "error", err)
		}
	}()

	// Geocoding is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	sessions := session.New(retriever, jobs, geocoder, logger)

	pruner := scheduler.New(jobs, cfg.StorePruneInterval, logger)
	if err := pruner.Start(); err != nil {
		logger.Error("failed to start store pruning", "error", err)
		os.Exit(1)
	}
	defer pruner.Stop()

	var checks readiness
	if c, ok := jobs.(sharedobs.ReadinessChecker); ok {
		checks = append(checks, c)
	}

	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
		worker *pipeline.Pipeline
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(retriever, geocoder, logger)
		worker = pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)
		checks = append(checks, worker)
	} else {
		logger.Info("kafka worker disabled")
	}

	api := httpadapter.NewAPI(reg, sessions, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, checks, api, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	if worker != nil {
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// readiness is ready when every component it holds is ready.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
