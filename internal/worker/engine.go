package worker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/prime-worker/internal/encoder"
	"github.com/example/prime-worker/internal/models"
	"github.com/example/prime-worker/internal/primes"
)

// ErrBadRequestValue indicates a record value that does not encode a decimal
// integer. The engine treats it as fatal: there is no per-record isolation or
// dead-letter path.
var ErrBadRequestValue = errors.New("worker: record value is not a decimal integer")

// Config contains the runtime settings the worker engine relies on to drive
// the poll loop.
type Config struct {
	// PollTimeout bounds how long a single poll waits for records.
	PollTimeout time.Duration
	// MaxPollRecords caps the batch size returned by one poll.
	MaxPollRecords int
	// MaxRequestValue is the largest request value eligible for computation.
	MaxRequestValue int
	// SkipOverLimit switches the over-limit policy from abandoning the
	// remainder of the batch to skipping just the offending record.
	SkipOverLimit bool
}

// Record is one inbound request as seen by the engine. It is a minimal
// abstraction that keeps the engine decoupled from the concrete consumer
// implementation.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Value     []byte

	commit func(context.Context) error
}

// Commit invokes the bound commit function, if any.
func (r *Record) Commit(ctx context.Context) error {
	if r == nil || r.commit == nil {
		return nil
	}
	return r.commit(ctx)
}

func (r *Record) setCommitFn(fn func(context.Context) error) {
	r.commit = fn
}

// Poller supplies batches of inbound records. An empty batch with a nil error
// means the poll timed out without records.
type Poller interface {
	Poll(ctx context.Context, timeout time.Duration, max int) ([]*Record, error)
}

// Deliverer posts an encoded payload to the remote endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, payload models.Payload) error
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Poller    Poller
	Deliverer Deliverer
	Compute   func(max int) models.Result
	Encoder   encoder.Encoder
	Logger    zerolog.Logger
}

// Engine drives the poll → parse → compute → encode → deliver pipeline. All
// stages run sequentially on the calling goroutine; the only blocking points
// are the bounded poll wait and the synchronous delivery call.
type Engine struct {
	cfg       Config
	poller    Poller
	deliverer Deliverer
	compute   func(max int) models.Result
	enc       encoder.Encoder
	logger    zerolog.Logger
}

// NewEngine constructs a worker engine using the supplied configuration and
// collaborators. The configuration and dependencies are validated to prevent
// misconfiguration at startup.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.PollTimeout <= 0 {
		return nil, errors.New("worker: poll timeout must be positive")
	}
	if cfg.MaxPollRecords < 1 {
		return nil, errors.New("worker: max poll records must be >= 1")
	}
	if cfg.MaxRequestValue < 0 {
		return nil, errors.New("worker: max request value cannot be negative")
	}
	if deps.Poller == nil {
		return nil, errors.New("worker: poller dependency is required")
	}
	if deps.Deliverer == nil {
		return nil, errors.New("worker: deliverer dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "worker_engine").Logger()

	compute := deps.Compute
	if compute == nil {
		compute = primes.Compute
	}

	return &Engine{
		cfg:       cfg,
		poller:    deps.Poller,
		deliverer: deps.Deliverer,
		compute:   compute,
		enc:       deps.Encoder,
		logger:    logger,
	}, nil
}

// Run loops forever between polling and batch processing until the context
// is cancelled or a fatal error occurs. Parse and delivery failures are
// fatal: the error propagates out and the process is expected to exit.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().
		Dur("poll_timeout", e.cfg.PollTimeout).
		Int("max_poll_records", e.cfg.MaxPollRecords).
		Int("max_request_value", e.cfg.MaxRequestValue).
		Msg("worker engine started")

	for {
		batch, err := e.poller.Poll(ctx, e.cfg.PollTimeout, e.cfg.MaxPollRecords)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("worker: poll: %w", err)
		}

		if err := e.processBatch(ctx, batch); err != nil {
			return err
		}
	}
}

func (e *Engine) processBatch(ctx context.Context, batch []*Record) error {
	for _, rec := range batch {
		value, err := parseRequestValue(rec.Value)
		if err != nil {
			return fmt.Errorf("worker: record %s[%d]@%d: %w", rec.Topic, rec.Partition, rec.Offset, err)
		}

		if value > e.cfg.MaxRequestValue {
			if e.cfg.SkipOverLimit {
				e.logger.Warn().
					Int("request", value).
					Int("limit", e.cfg.MaxRequestValue).
					Msg("worker: skipping over-limit request")
				continue
			}
			// Abandons the rest of the batch, not just this record; the
			// remaining records are redelivered only if their offsets were
			// not committed in the meantime.
			e.logger.Warn().
				Int("request", value).
				Int("limit", e.cfg.MaxRequestValue).
				Int64("offset", rec.Offset).
				Msg("worker: over-limit request, abandoning remainder of batch")
			return nil
		}

		result := e.compute(value)
		payload := e.enc.Encode(result)

		e.logger.Info().
			Int("request", value).
			Int("primes", len(payload.Answer)).
			Int64("time_taken_ms", payload.TimeTaken).
			Msg("worker: request computed")

		if err := e.deliverer.Deliver(ctx, payload); err != nil {
			return fmt.Errorf("worker: deliver result for request %d: %w", value, err)
		}

		if err := rec.Commit(ctx); err != nil {
			e.logger.Error().
				Str("topic", rec.Topic).
				Int32("partition", rec.Partition).
				Int64("offset", rec.Offset).
				Err(err).
				Msg("worker: failed to commit record offset")
		}
	}
	return nil
}

// parseRequestValue parses the record value as a decimal ASCII integer. No
// other encoding is accepted. Negative values parse fine and simply yield an
// empty prime list downstream.
func parseRequestValue(value []byte) (int, error) {
	n, err := strconv.Atoi(string(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadRequestValue, string(value))
	}
	return n, nil
}
