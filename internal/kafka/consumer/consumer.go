package consumer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

const (
	defaultSessionTimeout     = 30 * time.Second
	defaultHeartbeat          = 3 * time.Second
	defaultRebalanceTimeout   = 30 * time.Second
	defaultConsumeBackoff     = time.Second
	defaultAutoCommitInterval = time.Second
	defaultMaxProcessingTime  = 2 * time.Second
	defaultBufferSize         = 64
)

// Option customises the consumer during construction.
type Option func(*options)

type options struct {
	config             *sarama.Config
	autoCommitInterval time.Duration
	bufferSize         int
}

// WithConfig allows callers to supply a Sarama config. The configuration is
// cloned internally so the caller retains ownership.
func WithConfig(cfg *sarama.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.config = cfg
		}
	}
}

// WithAutoCommitInterval overrides how often marked offsets are flushed when
// auto-commit is active.
func WithAutoCommitInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.autoCommitInterval = interval
		}
	}
}

// WithBufferSize overrides the size of the record buffer between the group
// session and Poll.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// Consumer wraps a Sarama consumer group behind a poll interface: a
// background session feeds a bounded buffer which Poll drains in batches.
//
// Offset handling has two modes. In the default auto-commit mode a record is
// marked as consumed the moment Poll hands it out, and Sarama flushes marked
// offsets on a timer, so a crash between the flush and the completion of
// processing loses those records (at most once on crash). With commitOnDeliver
// set, marking and flushing are deferred to Commit, which callers invoke after
// processing succeeds.
type Consumer struct {
	logger zerolog.Logger

	group           sarama.ConsumerGroup
	groupID         string
	commitOnDeliver bool
	records         chan *Record
	errorsDoneCh    chan struct{}

	ready atomic.Bool

	mu         sync.Mutex
	subscribed bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Record represents a Kafka message delivered by the consumer. Topic,
// partition and offset are owned by the broker client and read-only here.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time

	session sarama.ConsumerGroupSession
	message *sarama.ConsumerMessage

	mu        sync.Mutex
	committed bool
}

// New constructs a consumer for the supplied brokers and consumer group.
func New(brokers []string, groupID string, logger zerolog.Logger, commitOnDeliver bool, opts ...Option) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka consumer: at least one broker is required")
	}
	if groupID == "" {
		return nil, errors.New("kafka consumer: group id is required")
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	settings := &options{
		config:             defaultConfig(commitOnDeliver, defaultAutoCommitInterval),
		autoCommitInterval: defaultAutoCommitInterval,
		bufferSize:         defaultBufferSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(settings)
		}
	}

	cfg := cloneConfig(settings.config)
	cfg.Consumer.Offsets.AutoCommit.Enable = !commitOnDeliver
	cfg.Consumer.Offsets.AutoCommit.Interval = settings.autoCommitInterval

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: create consumer group: %w", err)
	}

	c := &Consumer{
		logger:          logger,
		group:           group,
		groupID:         groupID,
		commitOnDeliver: commitOnDeliver,
		records:         make(chan *Record, settings.bufferSize),
		errorsDoneCh:    make(chan struct{}),
	}

	go c.consumeErrors()

	return c, nil
}

// Subscribe joins the consumer group for the supplied topic and starts the
// background session that feeds Poll. It may be called once per consumer.
func (c *Consumer) Subscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return errors.New("kafka consumer: topic is required")
	}

	c.mu.Lock()
	if c.subscribed {
		c.mu.Unlock()
		return errors.New("kafka consumer: already subscribed")
	}
	c.subscribed = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(ctx, topic)
	return nil
}

func (c *Consumer) run(ctx context.Context, topic string) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.group.Consume(ctx, []string{topic}, &groupHandler{consumer: c})
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			// Broker-side trouble is retried here; it never surfaces to the
			// poll loop unless the group is closed for good.
			c.logger.Error().Err(err).Msg("kafka consumer: consume error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(defaultConsumeBackoff):
			}
		}
	}
}

// Poll blocks up to timeout for the first available record, then drains
// whatever else is immediately buffered, up to max records. An expired
// timeout returns an empty batch and a nil error.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration, max int) ([]*Record, error) {
	if max < 1 {
		max = 1
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var batch []*Record
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case rec := <-c.records:
		batch = append(batch, c.checkout(rec))
	}

	for len(batch) < max {
		select {
		case rec := <-c.records:
			batch = append(batch, c.checkout(rec))
		default:
			return batch, nil
		}
	}
	return batch, nil
}

// checkout marks the record as consumed when auto-commit is active, which
// schedules its offset for the next timed flush regardless of processing.
func (c *Consumer) checkout(rec *Record) *Record {
	if !c.commitOnDeliver && rec.session != nil && rec.message != nil {
		rec.session.MarkMessage(rec.message, "")
	}
	return rec
}

// Commit marks the record as processed. When commit-on-deliver is enabled the
// offset is flushed immediately; otherwise it is marked and relies on the
// configured auto-commit interval.
func (c *Consumer) Commit(_ context.Context, record *Record) error {
	if record == nil {
		return errors.New("kafka consumer: record is required")
	}
	if record.session == nil || record.message == nil {
		return errors.New("kafka consumer: record missing session data")
	}

	record.mu.Lock()
	if record.committed {
		record.mu.Unlock()
		return nil
	}
	record.committed = true
	record.mu.Unlock()

	record.session.MarkMessage(record.message, "")
	if c.commitOnDeliver {
		record.session.Commit()
	}
	return nil
}

// IsReady returns true once the consumer has joined the group and is actively
// consuming.
func (c *Consumer) IsReady() bool {
	return c.ready.Load()
}

// Close shuts down the consumer group and associated goroutines.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	err := c.group.Close()
	c.wg.Wait()
	<-c.errorsDoneCh
	return err
}

func (c *Consumer) consumeErrors() {
	defer close(c.errorsDoneCh)
	for err := range c.group.Errors() {
		if err != nil {
			c.logger.Error().Err(err).Msg("kafka consumer error")
		}
	}
}

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.consumer.ready.Store(true)
	h.consumer.logger.Info().
		Str("group_id", h.consumer.groupID).
		Msg("kafka consumer group ready")
	return nil
}

func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.consumer.ready.Store(false)
	h.consumer.logger.Info().
		Str("group_id", h.consumer.groupID).
		Msg("kafka consumer group cleanup")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		record := &Record{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       cloneBytes(msg.Key),
			Value:     cloneBytes(msg.Value),
			Timestamp: msg.Timestamp,
			session:   session,
			message:   msg,
		}

		select {
		case h.consumer.records <- record:
		case <-session.Context().Done():
			return nil
		}
	}

	return nil
}

func defaultConfig(commitOnDeliver bool, autoCommitInterval time.Duration) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "prime-worker-consumer"

	cfg.Consumer.Group.Session.Timeout = defaultSessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = defaultHeartbeat
	cfg.Consumer.Group.Rebalance.Timeout = defaultRebalanceTimeout
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Offsets.AutoCommit.Enable = !commitOnDeliver
	cfg.Consumer.Offsets.AutoCommit.Interval = autoCommitInterval
	cfg.Consumer.MaxProcessingTime = defaultMaxProcessingTime
	cfg.Consumer.Return.Errors = true

	return cfg
}

func cloneConfig(cfg *sarama.Config) *sarama.Config {
	if cfg == nil {
		return defaultConfig(false, defaultAutoCommitInterval)
	}
	cloned := *cfg
	return &cloned
}

func cloneBytes(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
