// Package publisher emits dead-letter records for permanently failed jobs.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour the publisher needs.
type SyncProducer interface {
	PublishSync(topic string, key, payload []byte) error
}

// DLQPublisher writes dead-letter records to the configured Kafka topic.
type DLQPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewDLQPublisher constructs a DLQPublisher instance.
func NewDLQPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *DLQPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &DLQPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// PublishDLQ writes the supplied dead-letter record synchronously, keyed by
// message id so replays for one message stay ordered.
func (p *DLQPublisher) PublishDLQ(_ context.Context, record models.DLQRecord) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal dlq record: %w", err)
	}

	if err := p.producer.PublishSync(p.topic, []byte(record.MessageID), payload); err != nil {
		return fmt.Errorf("kafka publisher: publish dlq record: %w", err)
	}

	p.logger.Info().
		Str("message_id", record.MessageID).
		Str("failure_type", record.FailureType).
		Int("attempts", record.Attempts).
		Msg("dead-letter record published")
	return nil
}
