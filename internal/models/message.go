package models

import (
	"encoding/json"
	"time"
)

// Message delivery statuses. Transitions are one-directional per attempt:
// queued -> sent or queued -> failed. A record that reached sent is never
// reverted by a later write.
const (
	StatusQueued = "queued"
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Message types supported by the delivery pipeline.
const (
	TypeText     = "text"
	TypeTemplate = "template"
	TypeMedia    = "media"
)

// Media type discriminators accepted for media messages. They map directly to
// the Cloud API payload keys.
const (
	MediaImage    = "image"
	MediaVideo    = "video"
	MediaDocument = "document"
	MediaAudio    = "audio"
)

// MessageContent holds the type-specific payload for an outbound message.
// Exactly one branch is populated depending on the message type. Template
// content is carried verbatim so approved template structures reach the
// provider unchanged.
type MessageContent struct {
	Text      string          `json:"text,omitempty"`
	Template  json.RawMessage `json:"template,omitempty"`
	MediaType string          `json:"mediaType,omitempty"`
	MediaURL  string          `json:"mediaUrl,omitempty"`
	Caption   string          `json:"caption,omitempty"`
}

// Message is the durable representation of an outbound message's delivery
// lifecycle. Rows are created by the API layer; this worker only moves them
// through their status transitions.
type Message struct {
	ID                string
	TenantID          string
	PhoneNumberID     string
	To                string
	Type              string
	Content           MessageContent
	Status            string
	WhatsAppMessageID string
	ErrorCode         string
	ErrorMessage      string
	CreatedAt         time.Time
	SentAt            *time.Time
}
