package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lexprep/achievement-engine/pkg/logger"
	"github.com/lexprep/achievement-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SINKS
// ══════════════════════════════════════════════════════════════════════════════

// Sink delivers one unlock notification. Transient failures are returned
// wrapped with retry.Retryable; anything else is final for this attempt.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n UnlockNotification) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Log sink
// ─────────────────────────────────────────────────────────────────────────────

// LogSink writes notifications to the structured log. It never fails.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.Nop()
	}
	return &LogSink{log: log.With(logger.Component("notifier"))}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, n UnlockNotification) error {
	s.log.Info("achievement unlocked",
		logger.String("notification_id", n.ID),
		logger.UserID(n.UserID),
		logger.AchievementID(n.AchievementID),
		logger.String("title", n.Title),
		logger.Time("unlocked_at", n.UnlockedAt),
	)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Webhook sink
// ─────────────────────────────────────────────────────────────────────────────

// WebhookConfig configures WebhookSink.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	// Secret, when set, is sent as the X-Webhook-Secret header.
	Secret string
}

// WebhookSink POSTs each notification as JSON.
type WebhookSink struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookSink creates a WebhookSink.
func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &WebhookSink{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, n UnlockNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.ID)
	if s.cfg.Secret != "" {
		req.Header.Set("X-Webhook-Secret", s.cfg.Secret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("webhook request: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("webhook status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook rejected notification: status %d", resp.StatusCode)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Queue sink
// ─────────────────────────────────────────────────────────────────────────────

// Pusher is the producer side of a work queue.
type Pusher interface {
	Push(ctx context.Context, v any) error
}

// QueueSink hands notifications to a queue consumed by another service.
type QueueSink struct {
	queue Pusher
}

// NewQueueSink creates a QueueSink.
func NewQueueSink(queue Pusher) *QueueSink {
	return &QueueSink{queue: queue}
}

func (s *QueueSink) Name() string { return "redis" }

func (s *QueueSink) Deliver(ctx context.Context, n UnlockNotification) error {
	if err := s.queue.Push(ctx, n); err != nil {
		return retry.Retryable(fmt.Errorf("enqueue notification: %w", err))
	}
	return nil
}
