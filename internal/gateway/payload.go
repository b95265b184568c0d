package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/models"
)

// buildPayload converts a delivery job into the Cloud API request body. The
// body is discriminated by the "type" field: text wraps the body text,
// template passes the stored template structure through verbatim, and media
// nests the link and optional caption under the media-type key.
func buildPayload(job *models.DeliveryJob) (map[string]any, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                job.To,
	}

	switch job.Type {
	case models.TypeText:
		payload["type"] = "text"
		payload["text"] = map[string]string{"body": job.Content.Text}
	case models.TypeTemplate:
		if len(job.Content.Template) == 0 {
			return nil, fmt.Errorf("template message %s has no template content", job.MessageID)
		}
		payload["type"] = "template"
		payload["template"] = json.RawMessage(job.Content.Template)
	case models.TypeMedia:
		mediaType := strings.ToLower(strings.TrimSpace(job.Content.MediaType))
		switch mediaType {
		case models.MediaImage, models.MediaVideo, models.MediaDocument, models.MediaAudio:
		default:
			return nil, fmt.Errorf("media message %s has unsupported media type %q", job.MessageID, job.Content.MediaType)
		}
		media := map[string]string{"link": job.Content.MediaURL}
		if strings.TrimSpace(job.Content.Caption) != "" {
			media["caption"] = job.Content.Caption
		}
		payload["type"] = mediaType
		payload[mediaType] = media
	default:
		return nil, fmt.Errorf("message %s has unsupported type %q", job.MessageID, job.Type)
	}

	return payload, nil
}
