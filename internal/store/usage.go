package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/models"
)

// UsageStore attributes billable usage per (tenant, phone number, day).
type UsageStore struct {
	db *sql.DB
}

// NewUsageStore constructs a UsageStore over the supplied database handle.
func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

// Record books one billable message for the given day. The upsert is a single
// atomic statement, so concurrent workers completing sends for the same
// sender on the same day cannot lose increments.
func (s *UsageStore) Record(ctx context.Context, tenantID, phoneNumberID string, day time.Time, costCents int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (tenant_id, phone_number_id, usage_date, message_count, cost_cents)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (tenant_id, phone_number_id, usage_date)
		DO UPDATE SET message_count = usage_records.message_count + 1,
		              cost_cents = usage_records.cost_cents + EXCLUDED.cost_cents
	`, tenantID, phoneNumberID, day.UTC().Format(models.UsageDateLayout), costCents)
	if err != nil {
		return fmt.Errorf("store: record usage for tenant %s phone %s: %w", tenantID, phoneNumberID, err)
	}
	return nil
}

// Get loads the usage row for one (tenant, phone number, day) triple.
func (s *UsageStore) Get(ctx context.Context, tenantID, phoneNumberID string, day time.Time) (*models.UsageRecord, error) {
	rec := models.UsageRecord{TenantID: tenantID, PhoneNumberID: phoneNumberID}
	err := s.db.QueryRowContext(ctx, `
		SELECT usage_date, message_count, cost_cents
		FROM usage_records
		WHERE tenant_id = $1 AND phone_number_id = $2 AND usage_date = $3
	`, tenantID, phoneNumberID, day.UTC().Format(models.UsageDateLayout)).Scan(
		&rec.Date,
		&rec.MessageCount,
		&rec.CostCents,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get usage for tenant %s phone %s: %w", tenantID, phoneNumberID, err)
	}
	return &rec, nil
}
