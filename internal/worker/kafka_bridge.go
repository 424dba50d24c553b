package worker

import (
	"context"
	"time"

	"github.com/example/prime-worker/internal/kafka/consumer"
)

// KafkaPoller adapts the Kafka consumer to the engine's Poller interface,
// converting consumer records into worker records with a bound commit
// function.
type KafkaPoller struct {
	cons *consumer.Consumer
}

// NewKafkaPoller wraps the supplied consumer.
func NewKafkaPoller(cons *consumer.Consumer) *KafkaPoller {
	if cons == nil {
		return nil
	}
	return &KafkaPoller{cons: cons}
}

// Poll fetches a batch from the consumer and converts each record.
func (p *KafkaPoller) Poll(ctx context.Context, timeout time.Duration, max int) ([]*Record, error) {
	recs, err := p.cons.Poll(ctx, timeout, max)
	if err != nil {
		return nil, err
	}

	batch := make([]*Record, 0, len(recs))
	for _, rec := range recs {
		batch = append(batch, newRecordFromConsumer(p.cons, rec))
	}
	return batch, nil
}

func newRecordFromConsumer(cons *consumer.Consumer, rec *consumer.Record) *Record {
	wr := &Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Value:     cloneBytes(rec.Value),
	}
	wr.setCommitFn(func(ctx context.Context) error {
		return cons.Commit(ctx, rec)
	})
	return wr
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	clone := make([]byte, len(b))
	copy(clone, b)
	return clone
}
