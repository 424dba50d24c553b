package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the prime worker.
type Config struct {
	App      AppConfig
	Kafka    KafkaConfig
	Delivery DeliveryConfig
	Worker   WorkerConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// KafkaConfig defines broker information and consumer tuning.
type KafkaConfig struct {
	Brokers              []string
	Topic                string
	GroupID              string
	MaxPollRecords       int
	PollTimeoutMs        int
	AutoCommitIntervalMs int
	CommitOnDeliver      bool
}

// DeliveryConfig controls the authenticated result delivery.
type DeliveryConfig struct {
	DefaultEndpoint string
	Audience        string
	TimeoutSeconds  int
}

// WorkerConfig holds the processing limits for the driver loop.
type WorkerConfig struct {
	MaxRequestValue int
	SkipOverLimit   bool
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", "localhost:9092")
	cfg.Kafka.Topic = ldr.getString("KAFKA_TOPIC", "seng4400", false)
	cfg.Kafka.GroupID = ldr.getString("KAFKA_CONSUMER_GROUP", "ass2", false)
	cfg.Kafka.MaxPollRecords = ldr.getInt("KAFKA_MAX_POLL_RECORDS", 10, false)
	cfg.Kafka.PollTimeoutMs = ldr.getInt("KAFKA_POLL_TIMEOUT_MS", 100, false)
	cfg.Kafka.AutoCommitIntervalMs = ldr.getInt("KAFKA_AUTO_COMMIT_INTERVAL_MS", 1000, false)
	cfg.Kafka.CommitOnDeliver = ldr.getBool("COMMIT_ON_DELIVER", false, false)

	cfg.Delivery.DefaultEndpoint = ldr.getString("DELIVERY_DEFAULT_ENDPOINT",
		"https://australia-southeast1-seng4400-350016.cloudfunctions.net/endpoint-function-1", false)
	cfg.Delivery.Audience = ldr.getString("DELIVERY_AUDIENCE", "App Engine default service account", false)
	cfg.Delivery.TimeoutSeconds = ldr.getInt("DELIVERY_TIMEOUT_SECONDS", 30, false)

	cfg.Worker.MaxRequestValue = ldr.getInt("WORKER_MAX_REQUEST_VALUE", 1000000, false)
	cfg.Worker.SkipOverLimit = ldr.getBool("WORKER_SKIP_OVER_LIMIT", false, false)

	if cfg.Kafka.MaxPollRecords < 1 {
		ldr.addError("KAFKA_MAX_POLL_RECORDS must be >= 1")
	}
	if cfg.Kafka.PollTimeoutMs < 1 {
		ldr.addError("KAFKA_POLL_TIMEOUT_MS must be >= 1")
	}
	if cfg.Worker.MaxRequestValue < 0 {
		ldr.addError("WORKER_MAX_REQUEST_VALUE cannot be negative")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key, def string) []string {
	raw := l.getString(key, def, false)
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
