package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/models"
)

// ErrMessageNotFound is returned when no message row exists for an id.
var ErrMessageNotFound = errors.New("store: message not found")

// MessageStore persists message delivery lifecycle transitions.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore constructs a MessageStore over the supplied database handle.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Get loads one message row by id.
func (s *MessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	var (
		m        models.Message
		content  []byte
		waID     sql.NullString
		errCode  sql.NullString
		errMsg   sql.NullString
		sentAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, phone_number_id, to_address, type, content,
		       status, whatsapp_message_id, error_code, error_message,
		       created_at, sent_at
		FROM messages
		WHERE id = $1
	`, id).Scan(
		&m.ID,
		&m.TenantID,
		&m.PhoneNumberID,
		&m.To,
		&m.Type,
		&content,
		&m.Status,
		&waID,
		&errCode,
		&errMsg,
		&m.CreatedAt,
		&sentAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("store: get message %s: %w", id, err)
	}

	if len(content) > 0 {
		if err := json.Unmarshal(content, &m.Content); err != nil {
			return nil, fmt.Errorf("store: decode content for message %s: %w", id, err)
		}
	}
	if waID.Valid {
		m.WhatsAppMessageID = waID.String
	}
	if errCode.Valid {
		m.ErrorCode = errCode.String
	}
	if errMsg.Valid {
		m.ErrorMessage = errMsg.String
	}
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	return &m, nil
}

// MarkSent transitions the message to sent and records the provider-assigned
// id. The status predicate makes the write idempotent-safe: a message that
// already reached sent keeps its original timestamp and provider id, so a
// duplicate resolution becomes a no-op instead of a corrupting overwrite.
func (s *MessageStore) MarkSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $2,
		    whatsapp_message_id = $3,
		    sent_at = $4,
		    error_code = NULL,
		    error_message = NULL
		WHERE id = $1 AND status <> $2
	`, id, models.StatusSent, providerMessageID, sentAt.UTC())
	if err != nil {
		return fmt.Errorf("store: mark message %s sent: %w", id, err)
	}
	return nil
}

// MarkFailed records the latest attempt's failure reason. The record reflects
// the most recent failure, not a history, so the code and message are always
// overwritten. A message that already reached sent is never reverted.
func (s *MessageStore) MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $2,
		    error_code = $3,
		    error_message = $4
		WHERE id = $1 AND status <> $5
	`, id, models.StatusFailed, errorCode, errorMessage, models.StatusSent)
	if err != nil {
		return fmt.Errorf("store: mark message %s failed: %w", id, err)
	}
	return nil
}
