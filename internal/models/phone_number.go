package models

// PhoneNumber is the sender identity on whose behalf messages are sent. It
// scopes rate limits and carries the credential used against the Cloud API.
// The worker reads these records; it never mutates them.
type PhoneNumber struct {
	ID string
	// TenantID identifies the owning tenant for billing attribution.
	TenantID string
	// WhatsAppPhoneNumberID is the provider-side identifier used to build the
	// Cloud API endpoint URL.
	WhatsAppPhoneNumberID string
	// AccessToken is the tenant-scoped bearer credential.
	AccessToken   string
	DisplayNumber string
}
