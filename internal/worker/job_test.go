package worker

import (
	"strings"
	"testing"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/models"
)

func TestParseJob(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{
			name:    "valid text job",
			payload: `{"message_id":"msg-1","phone_number_id":"pn-1","to":"+15551234567","type":"text","content":{"text":"hello"}}`,
		},
		{
			name:    "valid template job",
			payload: `{"message_id":"msg-2","phone_number_id":"pn-1","to":"+15551234567","type":"template","content":{"template":{"name":"order_update","language":{"code":"en_US"}}}}`,
		},
		{
			name:    "valid media job",
			payload: `{"message_id":"msg-3","phone_number_id":"pn-1","to":"+15551234567","type":"media","content":{"mediaType":"image","mediaUrl":"https://cdn.example.com/a.jpg"}}`,
		},
		{
			name:    "empty payload",
			payload: "",
			wantErr: "payload is empty",
		},
		{
			name:    "not json",
			payload: "not-json",
			wantErr: "not valid JSON",
		},
		{
			name:    "missing message id",
			payload: `{"phone_number_id":"pn-1","to":"+15551234567","type":"text","content":{"text":"hello"}}`,
			wantErr: "missing message_id",
		},
		{
			name:    "missing phone number id",
			payload: `{"message_id":"msg-1","to":"+15551234567","type":"text","content":{"text":"hello"}}`,
			wantErr: "missing phone_number_id",
		},
		{
			name:    "missing recipient",
			payload: `{"message_id":"msg-1","phone_number_id":"pn-1","type":"text","content":{"text":"hello"}}`,
			wantErr: "missing recipient",
		},
		{
			name:    "text without body",
			payload: `{"message_id":"msg-1","phone_number_id":"pn-1","to":"+15551234567","type":"text","content":{"text":"  "}}`,
			wantErr: "empty body",
		},
		{
			name:    "template without content",
			payload: `{"message_id":"msg-1","phone_number_id":"pn-1","to":"+15551234567","type":"template","content":{}}`,
			wantErr: "no template content",
		},
		{
			name:    "media with unsupported media type",
			payload: `{"message_id":"msg-1","phone_number_id":"pn-1","to":"+15551234567","type":"media","content":{"mediaType":"sticker","mediaUrl":"https://cdn.example.com/a"}}`,
			wantErr: "unsupported media type",
		},
		{
			name:    "media without url",
			payload: `{"message_id":"msg-1","phone_number_id":"pn-1","to":"+15551234567","type":"media","content":{"mediaType":"video"}}`,
			wantErr: "no source URL",
		},
		{
			name:    "unsupported job type",
			payload: `{"message_id":"msg-1","phone_number_id":"pn-1","to":"+15551234567","type":"carrier-pigeon","content":{}}`,
			wantErr: "unsupported type",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			job, err := ParseJob([]byte(tc.payload))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if job == nil {
					t.Fatal("expected a job")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseJobReturnsMessageIDOnValidationFailure(t *testing.T) {
	payload := `{"message_id":"msg-9","phone_number_id":"pn-1","to":"+15551234567","type":"text","content":{}}`

	job, err := ParseJob([]byte(payload))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if job == nil || job.MessageID != "msg-9" {
		t.Fatalf("job = %+v, want message id msg-9 preserved for failure bookkeeping", job)
	}
	if job.Type != models.TypeText {
		t.Fatalf("type = %q, want %q", job.Type, models.TypeText)
	}
}
