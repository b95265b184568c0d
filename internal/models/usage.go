package models

import "time"

// UsageDateLayout is the calendar-day key format used for usage attribution.
const UsageDateLayout = "2006-01-02"

// UsageRecord accumulates billable usage for one (tenant, phone number,
// calendar day) triple. Exactly one increment happens per successfully
// dispatched message.
type UsageRecord struct {
	TenantID      string
	PhoneNumberID string
	Date          time.Time
	MessageCount  int
	CostCents     int
}
