package command

import (
	"context"
	"errors"
	"time"

	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPLAY USER COMMAND
// Rebuilds a user's snapshot from the event log and re-evaluates every
// achievement along the way. Used after catalog changes and for repair.
// ══════════════════════════════════════════════════════════════════════════════

// ReplayUserResult summarises a replay.
type ReplayUserResult struct {
	UserID   string                `json:"userId"`
	Events   int                   `json:"events"`
	Applied  int                   `json:"applied"`
	Skipped  int                   `json:"skipped"`
	Unlocked []UnlockedAchievement `json:"unlocked"`
	Duration time.Duration         `json:"duration"`
}

// ReplayUserHandler handles user replay.
type ReplayUserHandler struct {
	pipeline
	aggregator *progress.Aggregator
	snapshots  progress.Repository
	eventLog   activity.Log
	publisher  shared.EventPublisher
	locker     UserLocker
	log        *logger.Logger
}

// NewReplayUserHandler creates a ReplayUserHandler from the same
// collaborators as the submit handler. EventLog is required.
func NewReplayUserHandler(d SubmitEventDeps) *ReplayUserHandler {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Locker == nil {
		d.Locker = NewLockTable(DefaultLockShards)
	}
	if d.Aggregator == nil {
		d.Aggregator = progress.NewAggregator(progress.DefaultAggregatorConfig())
	}
	return &ReplayUserHandler{
		pipeline: pipeline{
			registry: d.Registry,
			unlocks:  d.Unlocks,
			awarder:  NewAwarder(d.Unlocks),
		},
		aggregator: d.Aggregator,
		snapshots:  d.Snapshots,
		eventLog:   d.EventLog,
		publisher:  d.Publisher,
		locker:     d.Locker,
		log:        d.Logger.With(logger.Component("replay_user")),
	}
}

// Handle replays userID's history. Existing unlocks are kept; replay only
// adds the ones the history now earns. The rebuilt snapshot replaces the
// stored one.
func (h *ReplayUserHandler) Handle(ctx context.Context, userID shared.UserID) (*ReplayUserResult, error) {
	if !userID.IsValid() {
		return nil, shared.NewDomainError("command", "ReplayUser", shared.ErrInvalidID, "user id is required")
	}
	if h.eventLog == nil {
		return nil, shared.NewDomainError("command", "ReplayUser", shared.ErrServiceUnavailable, "event log is not configured")
	}

	start := time.Now()
	log := h.log.With(logger.UserID(userID.String()))

	release, err := h.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	events, err := h.eventLog.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned, err := h.owned(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		snap     *progress.Snapshot
		unlocked unlockList
		result   = &ReplayUserResult{UserID: userID.String(), Events: len(events)}
	)
	for _, e := range events {
		next, outcome, err := h.aggregator.Apply(snap, e)
		if err != nil {
			result.Skipped++
			log.Warn("skipping unreadable logged event", logger.EventID(e.ID), logger.Err(err))
			continue
		}
		if outcome != progress.OutcomeApplied {
			result.Skipped++
			continue
		}
		snap = next
		result.Applied++

		if err := h.evaluate(ctx, e, snap, owned, &unlocked, log); err != nil {
			return nil, err
		}
	}

	if err := h.store(ctx, userID, snap); err != nil {
		return nil, err
	}

	result.Unlocked = unlocked.list()
	result.Duration = time.Since(start)
	h.notify(ctx, userID, result.Unlocked, log)

	log.Info("user replayed",
		logger.Int("events", result.Events),
		logger.Int("applied", result.Applied),
		logger.Int("unlocked", len(result.Unlocked)),
		logger.Latency(result.Duration),
	)
	return result, nil
}

// store overwrites the stored snapshot with the rebuilt one.
func (h *ReplayUserHandler) store(ctx context.Context, userID shared.UserID, snap *progress.Snapshot) error {
	current, err := h.snapshots.Get(ctx, userID)
	var version int64
	switch {
	case err == nil:
		version = current.Version
	case errors.Is(err, shared.ErrSnapshotNotFound):
	default:
		return err
	}

	if snap == nil {
		if version == 0 {
			return nil
		}
		return h.snapshots.Delete(ctx, userID)
	}
	return h.snapshots.Save(ctx, snap, version)
}

func (h *ReplayUserHandler) notify(ctx context.Context, userID shared.UserID, unlocked []UnlockedAchievement, log *logger.Logger) {
	if h.publisher == nil {
		return
	}
	for _, u := range unlocked {
		ev := shared.NewAchievementUnlockedEvent(userID.String(), u.AchievementID, u.Title, u.Icon, u.UnlockedAt)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID("replay")
		if err := h.publisher.Publish(ctx, ev); err != nil {
			log.Warn("publish unlock failed", logger.AchievementID(u.AchievementID), logger.Err(err))
		}
	}
}
