package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/wolfman30/portfolio-bff/internal/archive"
	appconfig "github.com/wolfman30/portfolio-bff/internal/config"
	"github.com/wolfman30/portfolio-bff/internal/eventlog"
	"github.com/wolfman30/portfolio-bff/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
	if tracker := BuildProgressTracker(nil, &appconfig.Config{}); tracker != nil {
		t.Fatalf("expected nil tracker without redis")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr(), KafkaGroupID: "g", KafkaTopic: "t"}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	if tracker := BuildProgressTracker(client, cfg); !tracker.Enabled() {
		t.Fatalf("expected enabled tracker")
	}

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildArchiveStoreDisabledWithoutBucket(t *testing.T) {
	var s3Client archive.S3API
	if store := BuildArchiveStore(s3Client, &appconfig.Config{}, nil); store != nil {
		t.Fatalf("expected nil archive store without bucket")
	}
}

func TestBuildPostgresStoreRequiresURL(t *testing.T) {
	if _, _, err := BuildPostgresStore(context.Background(), &appconfig.Config{}); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestKafkaConfig(t *testing.T) {
	cfg := &appconfig.Config{
		KafkaBootstrapServers: "a:9092,b:9092",
		KafkaTopic:            "appointments.created",
		KafkaGroupID:          "portfolio-bff",
		KafkaOffsetReset:      "earliest",
	}
	kc, err := KafkaConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kc.Brokers) != 2 || kc.OffsetReset != eventlog.OffsetEarliest {
		t.Fatalf("unexpected kafka config %+v", kc)
	}

	cfg.KafkaOffsetReset = "sometime"
	if _, err := KafkaConfig(cfg); err == nil {
		t.Fatalf("expected error for bad offset reset")
	}
	if _, err := KafkaConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
