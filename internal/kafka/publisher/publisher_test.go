package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/models"
)

type publishedRecord struct {
	topic   string
	key     []byte
	payload []byte
}

type stubProducer struct {
	mu        sync.Mutex
	published []publishedRecord
	err       error
}

func (s *stubProducer) PublishSync(topic string, key, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, publishedRecord{topic: topic, key: key, payload: payload})
	return nil
}

func TestPublishDLQ(t *testing.T) {
	prod := &stubProducer{}
	pub := NewDLQPublisher(prod, "whatsapp.messages.dlq", zerolog.Nop())

	record := models.DLQRecord{
		MessageID:     "msg-1",
		PhoneNumberID: "pn-1",
		To:            "+15551234567",
		FailureType:   models.FailureTypePermanent,
		Attempts:      1,
		LastError:     "Recipient unavailable",
		ErrorCode:     "131021",
		FirstFailedAt: time.Now(),
		LastAttemptAt: time.Now(),
	}
	if err := pub.PublishDLQ(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(prod.published) != 1 {
		t.Fatalf("published records = %d, want 1", len(prod.published))
	}
	got := prod.published[0]
	if got.topic != "whatsapp.messages.dlq" {
		t.Fatalf("topic = %q, want whatsapp.messages.dlq", got.topic)
	}
	if string(got.key) != "msg-1" {
		t.Fatalf("key = %q, want message id for per-message ordering", got.key)
	}

	var decoded models.DLQRecord
	if err := json.Unmarshal(got.payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.ID == "" {
		t.Fatal("published record has no generated id")
	}
	if decoded.MessageID != "msg-1" || decoded.FailureType != models.FailureTypePermanent || decoded.ErrorCode != "131021" {
		t.Fatalf("decoded record = %+v", decoded)
	}
}

func TestPublishDLQProducerError(t *testing.T) {
	prod := &stubProducer{err: errors.New("broker unavailable")}
	pub := NewDLQPublisher(prod, "whatsapp.messages.dlq", zerolog.Nop())

	err := pub.PublishDLQ(context.Background(), models.DLQRecord{MessageID: "msg-2"})
	if err == nil {
		t.Fatal("expected publish error to surface")
	}
}

func TestNewDLQPublisherRequiresProducer(t *testing.T) {
	if pub := NewDLQPublisher(nil, "whatsapp.messages.dlq", zerolog.Nop()); pub != nil {
		t.Fatal("expected nil publisher without a producer")
	}
}
