package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/models"
)

// ErrPhoneNumberNotFound is returned when no sender identity exists for an
// id. The worker treats this as a data-integrity error, not a retryable one.
var ErrPhoneNumberNotFound = errors.New("store: phone number not found")

// PhoneNumberStore reads sender identities. The worker never mutates them.
type PhoneNumberStore struct {
	db *sql.DB
}

// NewPhoneNumberStore constructs a PhoneNumberStore over the supplied handle.
func NewPhoneNumberStore(db *sql.DB) *PhoneNumberStore {
	return &PhoneNumberStore{db: db}
}

// Get loads one sender identity with its tenant-scoped credential.
func (s *PhoneNumberStore) Get(ctx context.Context, id string) (*models.PhoneNumber, error) {
	var pn models.PhoneNumber
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, whatsapp_phone_number_id, access_token, display_number
		FROM phone_numbers
		WHERE id = $1
	`, id).Scan(
		&pn.ID,
		&pn.TenantID,
		&pn.WhatsAppPhoneNumberID,
		&pn.AccessToken,
		&pn.DisplayNumber,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPhoneNumberNotFound
		}
		return nil, fmt.Errorf("store: get phone number %s: %w", id, err)
	}
	return &pn, nil
}
