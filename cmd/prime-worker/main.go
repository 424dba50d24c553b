package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/prime-worker/internal/config"
	"github.com/example/prime-worker/internal/delivery"
	"github.com/example/prime-worker/internal/kafka/consumer"
	"github.com/example/prime-worker/internal/logger"
	"github.com/example/prime-worker/internal/worker"
)

func main() {
	// Argument handling happens before any resource is touched: the only
	// accepted form is an optional endpoint URL override.
	args := os.Args[1:]
	if len(args) > 1 {
		fail("args", errors.New("at most one optional endpoint url argument is accepted"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	endpoint := cfg.Delivery.DefaultEndpoint
	if len(args) == 1 {
		endpoint = args[0]
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "prime-worker").Logger()

	consumerLogger := log.With().Str("component", "consumer").Logger()
	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.GroupID, consumerLogger, cfg.Kafka.CommitOnDeliver,
		consumer.WithAutoCommitInterval(time.Duration(cfg.Kafka.AutoCommitIntervalMs)*time.Millisecond))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	deliverer, err := delivery.New(endpoint, cfg.Delivery.Audience, delivery.ADCTokenProvider{},
		log.With().Str("component", "delivery").Logger(),
		delivery.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Delivery.TimeoutSeconds) * time.Second}))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise deliverer")
	}

	engine, err := worker.NewEngine(worker.Config{
		PollTimeout:     time.Duration(cfg.Kafka.PollTimeoutMs) * time.Millisecond,
		MaxPollRecords:  cfg.Kafka.MaxPollRecords,
		MaxRequestValue: cfg.Worker.MaxRequestValue,
		SkipOverLimit:   cfg.Worker.SkipOverLimit,
	}, worker.Dependencies{
		Poller:    worker.NewKafkaPoller(cons),
		Deliverer: deliverer,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker engine")
	}

	if err := cons.Subscribe(ctx, cfg.Kafka.Topic); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to request topic")
	}

	log.Info().
		Str("topic", cfg.Kafka.Topic).
		Str("group_id", cfg.Kafka.GroupID).
		Str("endpoint", endpoint).
		Msg("prime worker started")

	err = engine.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		log.Info().Msg("shutdown signal received")
	case err != nil:
		log.Fatal().Err(err).Msg("worker terminated with error")
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("prime worker init failed")
}
