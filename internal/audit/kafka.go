package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the Kafka sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes each event as a JSON message keyed by user id, so
// one user's events stay ordered within a partition.
type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
	onError func(Event, error)
}

// NewKafkaWriter returns a writer for topic with the settings the sink
// expects: hash balancing on the message key and synchronous acks.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewKafkaSink wraps w. onError may be nil; it receives events that could
// not be written.
func NewKafkaSink(w MessageWriter, timeout time.Duration, onError func(Event, error)) *KafkaSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaSink{writer: w, timeout: timeout, onError: onError}
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	s.EmitBatch(ctx, []Event{event})
}

// EmitBatch writes events with a single WriteMessages call. When the write
// fails every event in the batch is reported to onError.
func (s *KafkaSink) EmitBatch(ctx context.Context, events []Event) {
	if s == nil || s.writer == nil || len(events) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(events))
	sent := make([]Event, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			s.fail(ev, err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.UserID),
			Value: value,
			Time:  ev.Timestamp,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.EventType)},
			},
		})
		sent = append(sent, ev)
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		for _, ev := range sent {
			s.fail(ev, err)
		}
	}
}

func (s *KafkaSink) fail(event Event, err error) {
	if s.onError != nil {
		s.onError(event, err)
	}
}
