// Package eventhandler reacts to engine events published on the bus.
package eventhandler

import (
	"context"
	"sync"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/pkg/logger"
)

// UnlockNotifier delivers one unlock to the outside world.
type UnlockNotifier interface {
	Notify(ctx context.Context, event shared.AchievementUnlockedEvent) error
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT UNLOCKED
// ══════════════════════════════════════════════════════════════════════════════

// OnAchievementUnlocked forwards unlocks to the notifier.
type OnAchievementUnlocked struct {
	notifier UnlockNotifier
	log      *logger.Logger
}

// NewOnAchievementUnlocked creates the handler.
func NewOnAchievementUnlocked(notifier UnlockNotifier, log *logger.Logger) *OnAchievementUnlocked {
	if log == nil {
		log = logger.Nop()
	}
	return &OnAchievementUnlocked{notifier: notifier, log: log.With(logger.Component("on_achievement_unlocked"))}
}

// Handle implements shared.EventHandler. Delivery errors are logged and
// swallowed: the notifier has already parked the notification.
func (h *OnAchievementUnlocked) Handle(ctx context.Context, event shared.Event) error {
	unlocked, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		return nil
	}
	if err := h.notifier.Notify(ctx, unlocked); err != nil {
		h.log.Warn("unlock notification deferred",
			logger.UserID(unlocked.UserID),
			logger.AchievementID(unlocked.AchievementID),
			logger.Err(err),
		)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY REJECTED
// ══════════════════════════════════════════════════════════════════════════════

// OnActivityRejected counts rejected events per kind so producers sending
// bad payloads show up on the health endpoint.
type OnActivityRejected struct {
	mu     sync.Mutex
	byKind map[string]int64
}

// NewOnActivityRejected creates the handler.
func NewOnActivityRejected() *OnActivityRejected {
	return &OnActivityRejected{byKind: make(map[string]int64)}
}

// Handle implements shared.EventHandler.
func (h *OnActivityRejected) Handle(_ context.Context, event shared.Event) error {
	rejected, ok := event.(shared.ActivityRejectedEvent)
	if !ok {
		return nil
	}
	h.mu.Lock()
	h.byKind[rejected.Kind]++
	h.mu.Unlock()
	return nil
}

// Counts returns a copy of the per-kind rejection counters.
func (h *OnActivityRejected) Counts() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int64, len(h.byKind))
	for k, v := range h.byKind {
		out[k] = v
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Registration
// ─────────────────────────────────────────────────────────────────────────────

// Register subscribes the handlers to their event types.
func Register(sub shared.EventSubscriber, unlocked *OnAchievementUnlocked, rejected *OnActivityRejected) error {
	if unlocked != nil {
		if err := sub.Subscribe(shared.EventAchievementUnlocked, unlocked.Handle); err != nil {
			return err
		}
	}
	if rejected != nil {
		if err := sub.Subscribe(shared.EventActivityRejected, rejected.Handle); err != nil {
			return err
		}
	}
	return nil
}
