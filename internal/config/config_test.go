package config_test

import (
	"strings"
	"testing"

	"github.com/example/prime-worker/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Fatalf("unexpected default brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.MaxPollRecords != 10 {
		t.Fatalf("unexpected default max poll records: %d", cfg.Kafka.MaxPollRecords)
	}
	if cfg.Kafka.PollTimeoutMs != 100 {
		t.Fatalf("unexpected default poll timeout: %d", cfg.Kafka.PollTimeoutMs)
	}
	if cfg.Kafka.AutoCommitIntervalMs != 1000 {
		t.Fatalf("unexpected default auto-commit interval: %d", cfg.Kafka.AutoCommitIntervalMs)
	}
	if cfg.Kafka.CommitOnDeliver {
		t.Fatal("commit-on-deliver must default to off")
	}
	if cfg.Worker.MaxRequestValue != 1000000 {
		t.Fatalf("unexpected default request limit: %d", cfg.Worker.MaxRequestValue)
	}
	if cfg.Worker.SkipOverLimit {
		t.Fatal("skip-over-limit must default to off")
	}
	if !strings.HasPrefix(cfg.Delivery.DefaultEndpoint, "https://") {
		t.Fatalf("default endpoint must be https, got %q", cfg.Delivery.DefaultEndpoint)
	}
	if cfg.Delivery.Audience == "" {
		t.Fatal("default audience must be set")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("KAFKA_TOPIC", "numbers")
	t.Setenv("KAFKA_MAX_POLL_RECORDS", "25")
	t.Setenv("COMMIT_ON_DELIVER", "true")
	t.Setenv("WORKER_SKIP_OVER_LIMIT", "true")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Topic != "numbers" {
		t.Fatalf("unexpected topic: %q", cfg.Kafka.Topic)
	}
	if cfg.Kafka.MaxPollRecords != 25 {
		t.Fatalf("unexpected max poll records: %d", cfg.Kafka.MaxPollRecords)
	}
	if !cfg.Kafka.CommitOnDeliver {
		t.Fatal("expected commit-on-deliver to be enabled")
	}
	if !cfg.Worker.SkipOverLimit {
		t.Fatal("expected skip-over-limit to be enabled")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("KAFKA_MAX_POLL_RECORDS", "0")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected validation error for zero max poll records")
	}

	t.Setenv("KAFKA_MAX_POLL_RECORDS", "ten")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected validation error for non-integer value")
	}
}
