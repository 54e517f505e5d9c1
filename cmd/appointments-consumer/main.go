package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/portfolio-bff/cmd/mainconfig"
	"github.com/wolfman30/portfolio-bff/internal/app/bootstrap"
	appconfig "github.com/wolfman30/portfolio-bff/internal/config"
	"github.com/wolfman30/portfolio-bff/internal/eventlog"
	"github.com/wolfman30/portfolio-bff/internal/observability/metrics"
	appointmentsworker "github.com/wolfman30/portfolio-bff/internal/worker/appointments"
	"github.com/wolfman30/portfolio-bff/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	if err := appconfig.ParseConsumerFlags(cfg, os.Args[1:], os.Stderr); err != nil {
		os.Exit(2)
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("appointment consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if err := cfg.ValidateConsumer(); err != nil {
		return err
	}

	kafkaCfg, err := bootstrap.KafkaConfig(cfg)
	if err != nil {
		return err
	}
	logger.Info("starting appointment consumer",
		"env", cfg.Env,
		"brokers", kafkaCfg.Brokers,
		"topic", kafkaCfg.Topic,
		"group_id", kafkaCfg.GroupID,
		"offset_reset", string(kafkaCfg.OffsetReset),
	)

	store, pool, err := bootstrap.BuildPostgresStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	client, err := eventlog.NewKafkaClient(kafkaCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = client.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("kafka not reachable: %w", err)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	consumer := appointmentsworker.New(client, store, logger, appointmentsworker.Config{
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		PollTimeout:    cfg.KafkaPollTimeout,
		MaxPollRecords: cfg.KafkaMaxPollRecords,
		MaxMessages:    cfg.KafkaMaxMessages,
	}).WithProgress(bootstrap.BuildProgressTracker(redisClient, cfg))

	if cfg.RejectedArchiveBucket != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		consumer.WithArchive(bootstrap.BuildArchiveStore(mainconfig.NewS3Client(awsCfg, cfg), cfg, logger))
	}

	if cfg.ConsumerMetricsAddr != "" {
		handler, ingest := setupIngestMetrics()
		consumer.WithMetrics(ingest)
		srv := &http.Server{
			Addr:              cfg.ConsumerMetricsAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return consumer.Run(ctx)
}

// setupIngestMetrics registers consumer metrics on a dedicated registry and returns its /metrics handler.
func setupIngestMetrics() (http.Handler, *metrics.IngestMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ingest := metrics.NewIngestMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux, ingest
}
