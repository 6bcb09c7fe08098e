package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nif-edu/fees-api/pkg/config"
	"github.com/nif-edu/fees-api/pkg/jobs"
)

// WebhookEvent is the envelope posted to the super-admin platform.
type WebhookEvent struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Source    string      `json:"source"`
}

type webhookMetrics interface {
	RecordWebhookDelivery(event string, success bool)
}

// WebhookService delivers domain events to the configured super-admin
// endpoint. Delivery runs through a background queue; a failed POST is
// retried with the queue's backoff and never blocks the request path.
type WebhookService struct {
	cfg     config.WebhookConfig
	client  *http.Client
	queue   *jobs.Queue
	metrics webhookMetrics
	logger  *zap.Logger
}

// NewWebhookService constructs a WebhookService. An empty URL disables
// delivery; Emit becomes a no-op.
func NewWebhookService(cfg config.WebhookConfig, logger *zap.Logger) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &WebhookService{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
	s.queue = jobs.NewQueue("webhooks", s.deliver, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.Retries,
		RetryDelay: 5 * time.Second,
		Logger:     logger,
	})
	return s
}

// WithMetrics attaches a delivery counter.
func (s *WebhookService) WithMetrics(m webhookMetrics) *WebhookService {
	s.metrics = m
	return s
}

// Start launches the delivery workers.
func (s *WebhookService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *WebhookService) Stop() {
	s.queue.Stop()
}

// Emit queues an event for delivery. Never returns an error: webhook egress
// is best-effort and must not fail the originating operation.
func (s *WebhookService) Emit(event string, data interface{}) {
	if s.cfg.URL == "" {
		return
	}
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: event,
		Payload: WebhookEvent{
			Event:     event,
			Timestamp: time.Now().UTC(),
			Data:      data,
			Source:    "fees-api",
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue webhook event", zap.String("event", event), zap.Error(err))
	}
}

func (s *WebhookService) deliver(ctx context.Context, job jobs.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		s.logger.Error("webhook payload not serialisable", zap.String("event", job.Type), zap.Error(err))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}
	if s.cfg.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(payload, s.cfg.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.recordDelivery(job.Type, false)
		return fmt.Errorf("post webhook %s: %w", job.Type, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.recordDelivery(job.Type, false)
		return fmt.Errorf("webhook %s rejected with status %d", job.Type, resp.StatusCode)
	}

	s.recordDelivery(job.Type, true)
	s.logger.Debug("webhook delivered", zap.String("event", job.Type), zap.String("job_id", job.ID))
	return nil
}

func (s *WebhookService) recordDelivery(event string, success bool) {
	if s.metrics != nil {
		s.metrics.RecordWebhookDelivery(event, success)
	}
}

// Sign computes the hex HMAC-SHA256 signature the receiver verifies.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
