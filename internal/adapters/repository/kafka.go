package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/uruk/internal/domain/model"
)

// MessageWriter is the part of kafka.Writer the store uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStore publishes records as JSON envelopes. Messages are keyed by issuer
// and jti so that redeliveries land on the same partition.
type KafkaStore struct {
	writer       MessageWriter
	topic        string
	batchTimeout time.Duration
}

// NewKafkaStore creates a store producing to topic on brokers.
func NewKafkaStore(brokers []string, topic string, opts ...KafkaOption) *KafkaStore {
	s := &KafkaStore{
		topic:        topic,
		batchTimeout: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.writer == nil {
		s.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: s.batchTimeout,
		}
	}
	return s
}

// Name implements Named.
func (s *KafkaStore) Name() string { return "kafka" }

// Append publishes rec and waits for the broker acknowledgement.
func (s *KafkaStore) Append(ctx context.Context, rec model.AuditRecord) error { //nolint:gocritic // hugeParam: records are values end to end
	value, err := json.Marshal(newEnvelope(rec))
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(recordKey(rec)),
		Value: value,
		Time:  rec.ReceivedAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "client-id", Value: []byte(rec.ClientID)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish audit record %s to %s: %w", rec.ID, s.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaStore) Close() error {
	return s.writer.Close()
}
