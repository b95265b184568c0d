package models

import "time"

// Failure classifications attached to dead-letter records.
const (
	// FailureTypePermanent marks a provider rejection that will never succeed
	// on retry (invalid template, unreachable recipient, unknown codes).
	FailureTypePermanent = "permanent"
	// FailureTypeThrottled marks a throttled job that exhausted its retry
	// budget.
	FailureTypeThrottled = "throttled"
	// FailureTypeValidation marks payloads the worker could not parse.
	FailureTypeValidation = "validation"
	// FailureTypeInfrastructure marks data-integrity or dependency failures
	// (sender identity missing, database or transport errors).
	FailureTypeInfrastructure = "infrastructure"
)

// DLQRecord is the payload published to the dead-letter topic when a job is
// permanently failed, so operators can inspect and replay it.
type DLQRecord struct {
	ID            string    `json:"id"`
	MessageID     string    `json:"message_id"`
	PhoneNumberID string    `json:"phone_number_id,omitempty"`
	To            string    `json:"to,omitempty"`
	FailureType   string    `json:"failure_type"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	FirstFailedAt time.Time `json:"first_failed_at"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	Payload       []byte    `json:"payload,omitempty"`
}
