// request-gen publishes integer request values onto the request topic; the
// counterpart of the worker for local end-to-end runs.
package main

import (
	"math/rand"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/prime-worker/internal/config"
	"github.com/example/prime-worker/internal/kafka/producer"
	"github.com/example/prime-worker/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "request-gen").Logger()

	count := envInt("GEN_COUNT", 10)
	maxValue := envInt("GEN_MAX_VALUE", 10000)

	prod, err := producer.New(cfg.Kafka.Brokers, log.With().Str("component", "producer").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	for i := 0; i < count; i++ {
		value := rand.Intn(maxValue + 1)
		key := []byte(uuid.NewString())
		if err := prod.PublishSync(cfg.Kafka.Topic, key, []byte(strconv.Itoa(value))); err != nil {
			log.Fatal().Err(err).Int("value", value).Msg("failed to publish request")
		}
		log.Info().Int("value", value).Str("topic", cfg.Kafka.Topic).Msg("request published")
	}
}

func envInt(key string, def int) int {
	if raw, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("request generator init failed")
}
