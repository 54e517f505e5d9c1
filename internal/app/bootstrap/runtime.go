// Package bootstrap wires the shared runtime dependencies for the binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/portfolio-bff/internal/appointments"
	"github.com/wolfman30/portfolio-bff/internal/archive"
	appconfig "github.com/wolfman30/portfolio-bff/internal/config"
	"github.com/wolfman30/portfolio-bff/internal/eventlog"
	"github.com/wolfman30/portfolio-bff/internal/progress"
	"github.com/wolfman30/portfolio-bff/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available; consumer progress disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildProgressTracker returns the Redis progress tracker, or nil when Redis is disabled.
func BuildProgressTracker(redisClient *redis.Client, cfg *appconfig.Config) *progress.Tracker {
	if redisClient == nil || cfg == nil {
		return nil
	}
	return progress.NewTracker(redisClient, cfg.KafkaGroupID, cfg.KafkaTopic)
}

// BuildArchiveStore returns the rejected-record archive. It is disabled when no bucket is set.
func BuildArchiveStore(s3Client archive.S3API, cfg *appconfig.Config, logger *logging.Logger) *archive.Store {
	if cfg == nil || strings.TrimSpace(cfg.RejectedArchiveBucket) == "" || s3Client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("rejected record archive enabled", "bucket", cfg.RejectedArchiveBucket)
	return archive.NewStore(s3Client, cfg.RejectedArchiveBucket, logger.Logger)
}

// BuildPostgresStore opens a pool for DATABASE_URL and verifies it with a ping.
func BuildPostgresStore(ctx context.Context, cfg *appconfig.Config) (*appointments.PostgresStore, *pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil, errors.New("bootstrap: DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return appointments.NewPostgresStore(pool), pool, nil
}

// KafkaConfig maps the application config onto the event log client settings.
func KafkaConfig(cfg *appconfig.Config) (eventlog.KafkaConfig, error) {
	if cfg == nil {
		return eventlog.KafkaConfig{}, errors.New("bootstrap: config is required")
	}
	reset, err := eventlog.ParseOffsetReset(cfg.KafkaOffsetReset)
	if err != nil {
		return eventlog.KafkaConfig{}, err
	}
	return eventlog.KafkaConfig{
		Brokers:     cfg.KafkaBrokers(),
		Topic:       cfg.KafkaTopic,
		GroupID:     cfg.KafkaGroupID,
		OffsetReset: reset,
	}, nil
}
