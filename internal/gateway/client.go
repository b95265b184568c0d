package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/config"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/models"
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the behaviour of the gateway client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to the Cloud API.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL sets the Cloud API base URL. Useful for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithBodyLimit adjusts how many bytes are read from an HTTP response body.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// Client issues sends against the WhatsApp Cloud API. It performs exactly one
// HTTP attempt per call; retry policy lives in the worker.
type Client struct {
	logger       zerolog.Logger
	httpClient   HTTPClient
	baseURL      string
	graphVersion string
	maxBodyBytes int64
}

// NewClient constructs a Cloud API client from the gateway configuration.
func NewClient(cfg config.GatewayConfig, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("gateway client: base URL is required")
	}
	if strings.TrimSpace(cfg.GraphVersion) == "" {
		return nil, errors.New("gateway client: graph version is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		logger:       logger,
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		graphVersion: strings.Trim(cfg.GraphVersion, "/"),
		maxBodyBytes: 64 * 1024,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Send posts the job to the sender's messages endpoint using the tenant's
// bearer credential and returns the provider-assigned message id. Provider
// rejections come back as *GatewayError; transport failures are returned
// unwrapped so the caller can treat them as infrastructure errors.
func (c *Client) Send(ctx context.Context, job *models.DeliveryJob, sender *models.PhoneNumber) (string, error) {
	if job == nil {
		return "", errors.New("gateway client: job is required")
	}
	if sender == nil {
		return "", errors.New("gateway client: sender identity is required")
	}

	payload, err := buildPayload(job)
	if err != nil {
		return "", &GatewayError{Message: err.Error()}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gateway client: marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.graphVersion, sender.WhatsAppPhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gateway client: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+sender.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway client: post messages: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("gateway client: read response: %w", err)
	}

	c.logger.Debug().
		Str("message_id", job.MessageID).
		Str("phone_number_id", job.PhoneNumberID).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("cloud api request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", parseGatewayError(resp.StatusCode, respBody)
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", &GatewayError{
			Message:    "provider response missing message id",
			HTTPStatus: resp.StatusCode,
		}
	}
	return parsed.Messages[0].ID, nil
}

// parseGatewayError extracts the provider's error object from a non-2xx
// response. Malformed bodies degrade to a generic unknown error carrying the
// HTTP status.
func parseGatewayError(statusCode int, body []byte) *GatewayError {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err != nil || (parsed.Error.Code == 0 && parsed.Error.Message == "") {
		return &GatewayError{
			Message:    fmt.Sprintf("unexpected provider response: %s", firstLine(body)),
			HTTPStatus: statusCode,
		}
	}
	msg := parsed.Error.Message
	if msg == "" {
		msg = "provider returned no error message"
	}
	return &GatewayError{
		Code:       parsed.Error.Code,
		Message:    msg,
		HTTPStatus: statusCode,
	}
}

func firstLine(body []byte) string {
	s := strings.TrimSpace(string(body))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
