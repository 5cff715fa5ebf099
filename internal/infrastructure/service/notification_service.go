// Package service holds the engine's outbound collaborators.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/internal/infrastructure/messaging"
	"github.com/lexprep/achievement-engine/pkg/circuitbreaker"
	"github.com/lexprep/achievement-engine/pkg/logger"
	"github.com/lexprep/achievement-engine/pkg/retry"
)

// UnlockNotification is the payload handed to a sink for one unlock.
type UnlockNotification struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	AchievementID string    `json:"achievementId"`
	Title         string    `json:"title"`
	Icon          string    `json:"icon,omitempty"`
	UnlockedAt    time.Time `json:"unlockedAt"`
	TriggeredBy   string    `json:"triggeredBy,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// NotifierConfig tunes delivery.
type NotifierConfig struct {
	// RatePerSecond and Burst throttle outbound deliveries. Zero disables.
	RatePerSecond float64
	Burst         int

	// MaxAttempts per delivery, counting the first try.
	MaxAttempts int

	// MaxRedeliveries bounds how often a dead-lettered notification is
	// retried by Redeliver before it is dropped.
	MaxRedeliveries int

	// BreakerCooldown is how long the sink stays open after repeated failures.
	BreakerCooldown time.Duration
}

// DefaultNotifierConfig returns the default delivery settings.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{
		RatePerSecond:   50,
		Burst:           100,
		MaxAttempts:     3,
		MaxRedeliveries: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Notifier is the outbound collaborator that receives one call per newly
// unlocked achievement. Delivery failures park the notification in the
// dead-letter queue; they never affect the unlock itself.
type Notifier struct {
	sink    Sink
	cfg     NotifierConfig
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	dlq     *messaging.DeadLetterQueue
	log     *logger.Logger
}

// NewNotifier creates a Notifier delivering to sink.
func NewNotifier(sink Sink, dlq *messaging.DeadLetterQueue, cfg NotifierConfig, log *logger.Logger) *Notifier {
	def := DefaultNotifierConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxRedeliveries <= 0 {
		cfg.MaxRedeliveries = def.MaxRedeliveries
	}
	if log == nil {
		log = logger.Nop()
	}
	if dlq == nil {
		dlq = messaging.NewDeadLetterQueue(0)
	}
	log = log.With(logger.Component("notifier"), logger.String("sink", sink.Name()))

	n := &Notifier{
		sink:    sink,
		cfg:     cfg,
		retrier: retry.NotificationRetrier(cfg.MaxAttempts),
		dlq:     dlq,
		log:     log,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	n.breaker = circuitbreaker.NotifierBreaker(sink.Name(), cfg.BreakerCooldown,
		func(name string, from, to circuitbreaker.State) {
			log.Warn("notifier circuit state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})
	return n
}

// HandleUnlocked is a shared.EventHandler for achievement.unlocked events.
// Errors are reported for logging only; the notification is already parked.
func (n *Notifier) HandleUnlocked(ctx context.Context, event shared.Event) error {
	unlocked, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		return nil
	}
	return n.Notify(ctx, unlocked)
}

// Notify delivers a single unlock.
func (n *Notifier) Notify(ctx context.Context, event shared.AchievementUnlockedEvent) error {
	err := n.deliver(ctx, toNotification(event))
	if err == nil {
		return nil
	}

	n.dlq.Add(messaging.DeadLetterEntry{
		Event:     event,
		Sink:      n.sink.Name(),
		LastError: err.Error(),
		Attempts:  1,
		FailedAt:  time.Now().UTC(),
	})
	n.log.Warn("notification parked for redelivery",
		logger.UserID(event.UserID),
		logger.AchievementID(event.AchievementID),
		logger.Err(err),
	)
	return err
}

// Redeliver retries parked notifications once each. Entries that fail again
// are re-parked until MaxRedeliveries, then dropped.
func (n *Notifier) Redeliver(ctx context.Context) (delivered, dropped int, err error) {
	pending := n.dlq.Size()
	for i := 0; i < pending; i++ {
		if err := ctx.Err(); err != nil {
			return delivered, dropped, err
		}
		entry, ok := n.dlq.Pop()
		if !ok {
			break
		}
		unlocked, ok := entry.Event.(shared.AchievementUnlockedEvent)
		if !ok {
			dropped++
			continue
		}

		derr := n.deliver(ctx, toNotification(unlocked))
		if derr == nil {
			delivered++
			continue
		}

		entry.Attempts++
		entry.LastError = derr.Error()
		entry.FailedAt = time.Now().UTC()
		if entry.Attempts > n.cfg.MaxRedeliveries {
			dropped++
			n.log.Error("notification dropped after redeliveries",
				logger.UserID(unlocked.UserID),
				logger.AchievementID(unlocked.AchievementID),
				logger.Int("attempts", entry.Attempts),
				logger.Err(derr),
			)
			continue
		}
		n.dlq.Add(entry)
	}
	return delivered, dropped, nil
}

// BreakerState reports the sink's circuit state for the health endpoint.
func (n *Notifier) BreakerState() string {
	return n.breaker.State().String()
}

// Pending returns the number of parked notifications.
func (n *Notifier) Pending() int {
	return n.dlq.Size()
}

func (n *Notifier) deliver(ctx context.Context, note UnlockNotification) error {
	if n.limiter != nil && !n.limiter.Allow() {
		return shared.ErrNotifierThrottled
	}

	err := n.retrier.Do(ctx, func(ctx context.Context) error {
		return n.breaker.Execute(ctx, func(ctx context.Context) error {
			return n.sink.Deliver(ctx, note)
		})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.WrapError("notification", "Send", shared.ErrServiceUnavailable,
			fmt.Sprintf("%s sink unavailable", n.sink.Name()), err)
	}
	return shared.WrapError("notification", "Send", shared.ErrExternalService,
		"failed to deliver unlock notification", err)
}

// toNotification derives a stable notification id from the unlock, so a
// redelivered notification carries the same idempotency key.
func toNotification(e shared.AchievementUnlockedEvent) UnlockNotification {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("unlock:"+e.UserID+":"+e.AchievementID)).String()
	return UnlockNotification{
		ID:            id,
		UserID:        e.UserID,
		AchievementID: e.AchievementID,
		Title:         e.Title,
		Icon:          e.Icon,
		UnlockedAt:    e.UnlockedAt,
		TriggeredBy:   e.CorrelationID,
	}
}
