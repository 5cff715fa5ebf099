package command

import (
	"context"
	"errors"
	"time"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/pkg/logger"
	"github.com/lexprep/achievement-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT EVENT COMMAND
// The single entry point that feeds activity into the engine: aggregate,
// select candidates, evaluate, award, notify.
// ══════════════════════════════════════════════════════════════════════════════

// Outcome labels reported in SubmitEventResult.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
)

// SubmitEventResult is returned for every event that was not a transient failure.
type SubmitEventResult struct {
	Accepted bool                  `json:"accepted"`
	Reason   string                `json:"reason,omitempty"`
	Outcome  string                `json:"outcome"`
	Unlocked []UnlockedAchievement `json:"unlocked"`
}

// SubmitEventDeps bundles the handler's collaborators. EventLog and
// Publisher are optional.
type SubmitEventDeps struct {
	Registry   *achievement.Registry
	Aggregator *progress.Aggregator
	Snapshots  progress.Repository
	Unlocks    achievement.UnlockRepository
	EventLog   activity.Log
	Publisher  shared.EventPublisher
	Locker     UserLocker
	Logger     *logger.Logger
}

// SubmitEventHandler handles activity submission.
type SubmitEventHandler struct {
	pipeline
	aggregator *progress.Aggregator
	snapshots  progress.Repository
	eventLog   activity.Log
	publisher  shared.EventPublisher
	locker     UserLocker
	retrier    *retry.Retrier
	log        *logger.Logger
}

// NewSubmitEventHandler creates a SubmitEventHandler.
func NewSubmitEventHandler(d SubmitEventDeps) *SubmitEventHandler {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Locker == nil {
		d.Locker = NewLockTable(DefaultLockShards)
	}
	if d.Aggregator == nil {
		d.Aggregator = progress.NewAggregator(progress.DefaultAggregatorConfig())
	}
	return &SubmitEventHandler{
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
		retrier:    retry.PersistenceRetrier(shared.IsRetryable),
		log:        d.Logger.With(logger.Component("submit_event")),
	}
}

// Handle processes one event. Malformed events are rejected with
// Accepted=false and a nil error; only transient failures return an error,
// and the caller is expected to redeliver the same event.
func (h *SubmitEventHandler) Handle(ctx context.Context, e activity.Event) (*SubmitEventResult, error) {
	start := time.Now()
	log := h.log.With(
		logger.UserID(e.UserID.String()),
		logger.EventKind(e.Kind.String()),
		logger.EventID(e.ID),
	)

	if err := e.ValidateEnvelope(); err != nil {
		return h.reject(ctx, e, err, log), nil
	}

	release, err := h.locker.Lock(ctx, e.UserID)
	if err != nil {
		log.Warn("user lock not acquired", logger.Err(err))
		return nil, err
	}
	defer release()

	// Unlocks survive a retried attempt: the second pass sees them as owned
	// and would otherwise drop them from the result and from notification.
	var (
		unlocked unlockList
		saved    bool
		res      *SubmitEventResult
	)
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = h.process(ctx, e, &unlocked, &saved, log)
		return err
	})
	if err != nil {
		if shared.IsMalformed(err) {
			return h.reject(ctx, e, err, log), nil
		}
		log.Error("event processing failed", logger.Err(err), logger.Latency(time.Since(start)))
		return nil, err
	}

	res.Unlocked = unlocked.list()
	h.notify(ctx, e, res.Unlocked, log)

	log.Debug("event processed",
		logger.String("outcome", res.Outcome),
		logger.Int("unlocked", len(res.Unlocked)),
		logger.Latency(time.Since(start)),
	)
	return res, nil
}

// process runs one attempt. saved records that an earlier attempt of the
// same call already committed the snapshot.
func (h *SubmitEventHandler) process(ctx context.Context, e activity.Event, unlocked *unlockList, saved *bool, log *logger.Logger) (*SubmitEventResult, error) {
	current, err := h.snapshots.Get(ctx, e.UserID)
	var expected int64
	switch {
	case err == nil:
		expected = current.Version
	case errors.Is(err, shared.ErrSnapshotNotFound):
		current = nil
	default:
		return nil, err
	}

	next, outcome, err := h.aggregator.Apply(current, e)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case progress.OutcomeIgnored:
		return &SubmitEventResult{Accepted: true, Reason: "unknown event kind", Outcome: OutcomeIgnored}, nil
	case progress.OutcomeDuplicate:
		// A redelivery after a failed award or log append lands here. The
		// stored snapshot already includes this event; finish both steps.
		if err := h.award(ctx, e, current, unlocked, log); err != nil {
			return nil, err
		}
		if err := h.appendLog(ctx, e); err != nil {
			return nil, err
		}
		if *saved {
			return &SubmitEventResult{Accepted: true, Outcome: OutcomeApplied}, nil
		}
		return &SubmitEventResult{Accepted: true, Reason: "duplicate event", Outcome: OutcomeDuplicate}, nil
	}

	// The snapshot is committed before anything is awarded, so awards only
	// ever see a state that won the version check. A writer that lost the
	// race gets a conflict here and the retry re-reads the winner's state.
	if err := h.snapshots.Save(ctx, next, expected); err != nil {
		return nil, err
	}
	*saved = true
	if err := h.award(ctx, e, next, unlocked, log); err != nil {
		return nil, err
	}
	if err := h.appendLog(ctx, e); err != nil {
		return nil, err
	}
	return &SubmitEventResult{Accepted: true, Outcome: OutcomeApplied}, nil
}

func (h *SubmitEventHandler) award(ctx context.Context, e activity.Event, s *progress.Snapshot, unlocked *unlockList, log *logger.Logger) error {
	owned, err := h.owned(ctx, e.UserID)
	if err != nil {
		return err
	}
	return h.evaluate(ctx, e, s, owned, unlocked, log)
}

func (h *SubmitEventHandler) appendLog(ctx context.Context, e activity.Event) error {
	if h.eventLog == nil {
		return nil
	}
	return h.eventLog.Append(ctx, e.Key(), e)
}

func (h *SubmitEventHandler) reject(ctx context.Context, e activity.Event, cause error, log *logger.Logger) *SubmitEventResult {
	reason := cause.Error()
	var de *shared.DomainError
	if errors.As(cause, &de) && de.Message != "" {
		reason = de.Message
	}
	log.Warn("event rejected", logger.String("reason", reason))

	if h.publisher != nil {
		rejected := shared.NewActivityRejectedEvent(e.UserID.String(), e.ID, e.Kind.String(), reason, time.Now().UTC())
		if err := h.publisher.Publish(ctx, rejected); err != nil {
			log.Warn("publish rejection failed", logger.Err(err))
		}
	}
	return &SubmitEventResult{Accepted: false, Reason: reason, Outcome: OutcomeRejected, Unlocked: []UnlockedAchievement{}}
}

// notify hands each new unlock to the publisher. Failures are logged only;
// an unlock is never rolled back because its notification failed.
func (h *SubmitEventHandler) notify(ctx context.Context, e activity.Event, unlocked []UnlockedAchievement, log *logger.Logger) {
	if h.publisher == nil {
		return
	}
	for _, u := range unlocked {
		ev := shared.NewAchievementUnlockedEvent(e.UserID.String(), u.AchievementID, u.Title, u.Icon, u.UnlockedAt)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(e.Key())
		if err := h.publisher.Publish(ctx, ev); err != nil {
			log.Warn("publish unlock failed", logger.AchievementID(u.AchievementID), logger.Err(err))
		}
	}
}
