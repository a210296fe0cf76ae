package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by StreamRepo.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// streamBatchTimeout bounds how long WriteMessages waits to fill a batch.
// Append runs on the request path, so the kafka-go default of one second
// would be added to every audited call.
const streamBatchTimeout = 10 * time.Millisecond

// StreamRepo publishes each event as JSON to a Kafka topic, keyed by call id.
type StreamRepo struct {
	w MessageWriter
}

func NewStreamRepo(brokers []string, topic string) *StreamRepo {
	return NewStreamRepoWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           streamBatchTimeout,
		AllowAutoTopicCreation: true,
	})
}

func NewStreamRepoWithWriter(w MessageWriter) *StreamRepo { return &StreamRepo{w: w} }

func (r *StreamRepo) Append(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(e.Key()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := r.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("audit: publish %s: %w", e.Type, err)
	}
	return nil
}

func (r *StreamRepo) Close() error { return r.w.Close() }
