package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// pollFixture builds a consumer with just enough state to exercise Poll.
// commitOnDeliver is set so checkout never touches the (absent) session.
func pollFixture(buffer int) *Consumer {
	return &Consumer{
		logger:          zerolog.Nop(),
		commitOnDeliver: true,
		records:         make(chan *Record, buffer),
	}
}

func TestPollTimeoutReturnsEmptyBatch(t *testing.T) {
	c := pollFixture(4)

	start := time.Now()
	batch, err := c.Poll(context.Background(), 20*time.Millisecond, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected empty batch, got %d records", len(batch))
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("poll returned before the timeout expired")
	}
}

func TestPollDrainsUpToMax(t *testing.T) {
	c := pollFixture(8)
	for i := 0; i < 5; i++ {
		c.records <- &Record{Offset: int64(i), Value: []byte("10")}
	}

	batch, err := c.Poll(context.Background(), time.Second, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 records, got %d", len(batch))
	}
	for i, rec := range batch {
		if rec.Offset != int64(i) {
			t.Fatalf("records out of order: offset %d at index %d", rec.Offset, i)
		}
	}

	// The remainder stays buffered for the next poll.
	batch, err = c.Poll(context.Background(), time.Second, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 leftover records, got %d", len(batch))
	}
}

func TestPollReturnsEarlyWithPartialBatch(t *testing.T) {
	c := pollFixture(4)
	c.records <- &Record{Offset: 7}

	batch, err := c.Poll(context.Background(), time.Second, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 1 || batch[0].Offset != 7 {
		t.Fatalf("expected the single buffered record, got %v", batch)
	}
}

func TestPollHonoursContextCancellation(t *testing.T) {
	c := pollFixture(1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Poll(ctx, time.Minute, 1)
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}

// sessionFake records mark and commit calls so tests can observe when offsets
// are scheduled for commit.
type sessionFake struct {
	mu      sync.Mutex
	marked  []int64
	commits int
}

func (s *sessionFake) Claims() map[string][]int32 { return nil }
func (s *sessionFake) MemberID() string           { return "test-member" }
func (s *sessionFake) GenerationID() int32        { return 1 }
func (s *sessionFake) MarkOffset(topic string, partition int32, offset int64, metadata string) {
}
func (s *sessionFake) ResetOffset(topic string, partition int32, offset int64, metadata string) {
}
func (s *sessionFake) Context() context.Context { return context.Background() }

func (s *sessionFake) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
}

func (s *sessionFake) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *sessionFake) markedOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

func sessionRecord(session sarama.ConsumerGroupSession, offset int64) *Record {
	msg := &sarama.ConsumerMessage{Topic: "questions", Partition: 0, Offset: offset}
	return &Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Value:     []byte("10"),
		session:   session,
		message:   msg,
	}
}

func TestPollMarksRecordsInAutoCommitMode(t *testing.T) {
	session := &sessionFake{}
	c := &Consumer{
		logger:  zerolog.Nop(),
		records: make(chan *Record, 4),
	}
	c.records <- sessionRecord(session, 3)
	c.records <- sessionRecord(session, 4)

	batch, err := c.Poll(context.Background(), time.Second, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 records, got %d", len(batch))
	}

	// Hand-off is the commit point: offsets are marked before any
	// processing happens, and the timed flush does the rest.
	marked := session.markedOffsets()
	if len(marked) != 2 || marked[0] != 3 || marked[1] != 4 {
		t.Fatalf("expected offsets 3 and 4 marked at poll hand-off, got %v", marked)
	}
	if session.commits != 0 {
		t.Fatalf("auto-commit mode must not flush explicitly, saw %d commits", session.commits)
	}
}

func TestCommitDeferredInCommitOnDeliverMode(t *testing.T) {
	session := &sessionFake{}
	c := pollFixture(4)
	c.records <- sessionRecord(session, 9)

	batch, err := c.Poll(context.Background(), time.Second, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected 1 record, got %d", len(batch))
	}

	if marked := session.markedOffsets(); len(marked) != 0 {
		t.Fatalf("no offset may be marked before Commit, got %v", marked)
	}

	if err := c.Commit(context.Background(), batch[0]); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if marked := session.markedOffsets(); len(marked) != 1 || marked[0] != 9 {
		t.Fatalf("expected offset 9 marked on Commit, got %v", marked)
	}
	if session.commits != 1 {
		t.Fatalf("expected one explicit flush, saw %d", session.commits)
	}

	// Commit is idempotent per record.
	if err := c.Commit(context.Background(), batch[0]); err != nil {
		t.Fatalf("unexpected repeat commit error: %v", err)
	}
	if marked := session.markedOffsets(); len(marked) != 1 {
		t.Fatalf("repeat commit must not re-mark, got %v", marked)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, "group", zerolog.Nop(), false); err == nil {
		t.Fatal("expected error for missing brokers")
	}
	if _, err := New([]string{"localhost:9092"}, "", zerolog.Nop(), false); err == nil {
		t.Fatal("expected error for missing group id")
	}
}
