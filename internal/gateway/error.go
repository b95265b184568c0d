package gateway

import (
	"fmt"
	"strconv"
)

// Cloud API error codes the worker distinguishes. Any other code is treated
// as a permanent failure.
const (
	// CodeRateLimited is returned when the sender exceeded its provider-side
	// throughput cap.
	CodeRateLimited = 130429
	// CodeTemplateInvalid is returned when the referenced template does not
	// exist or has not been approved.
	CodeTemplateInvalid = 131026
	// CodeRecipientUnavailable is returned when the recipient cannot receive
	// WhatsApp messages.
	CodeRecipientUnavailable = 131021
)

// UnknownErrorCode is persisted when the provider response carried no usable
// error object.
const UnknownErrorCode = "UNKNOWN_ERROR"

// GatewayError carries the provider's numeric error code and human readable
// message for a failed send. A zero Code means the response was malformed or
// absent.
type GatewayError struct {
	Code       int
	Message    string
	HTTPStatus int
}

func (e *GatewayError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("whatsapp gateway: %s (http %d)", e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("whatsapp gateway: code %d: %s", e.Code, e.Message)
}

// ErrorCode renders the code for persistence on the message record. Malformed
// responses are stored under a stable placeholder rather than "0".
func (e *GatewayError) ErrorCode() string {
	if e.Code == 0 {
		return UnknownErrorCode
	}
	return strconv.Itoa(e.Code)
}
