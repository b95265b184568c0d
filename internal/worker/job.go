package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/models"
)

// ParseJob decodes and validates a job record payload. A non-nil job may be
// returned alongside an error so the caller can persist the failure against
// the message id when one was present.
func ParseJob(payload []byte) (*models.DeliveryJob, error) {
	if len(payload) == 0 {
		return nil, errors.New("job payload is empty")
	}

	var job models.DeliveryJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("job payload is not valid JSON: %w", err)
	}

	if strings.TrimSpace(job.MessageID) == "" {
		return &job, errors.New("job is missing message_id")
	}
	if strings.TrimSpace(job.PhoneNumberID) == "" {
		return &job, errors.New("job is missing phone_number_id")
	}
	if strings.TrimSpace(job.To) == "" {
		return &job, errors.New("job is missing recipient address")
	}

	switch job.Type {
	case models.TypeText:
		if strings.TrimSpace(job.Content.Text) == "" {
			return &job, errors.New("text job has empty body")
		}
	case models.TypeTemplate:
		if len(job.Content.Template) == 0 {
			return &job, errors.New("template job has no template content")
		}
	case models.TypeMedia:
		switch strings.ToLower(strings.TrimSpace(job.Content.MediaType)) {
		case models.MediaImage, models.MediaVideo, models.MediaDocument, models.MediaAudio:
		default:
			return &job, fmt.Errorf("media job has unsupported media type %q", job.Content.MediaType)
		}
		if strings.TrimSpace(job.Content.MediaURL) == "" {
			return &job, errors.New("media job has no source URL")
		}
	default:
		return &job, fmt.Errorf("job has unsupported type %q", job.Type)
	}

	return &job, nil
}
