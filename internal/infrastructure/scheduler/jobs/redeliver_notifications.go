// Package jobs contains the engine's scheduled jobs.
package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lexprep/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDELIVER UNLOCK NOTIFICATIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Redeliverer retries parked unlock notifications.
type Redeliverer interface {
	Redeliver(ctx context.Context) (delivered, dropped int, err error)
	Pending() int
}

// RedeliverStats describes the latest run.
type RedeliverStats struct {
	RanAt     time.Time `json:"ranAt"`
	Pending   int       `json:"pending"`
	Delivered int       `json:"delivered"`
	Dropped   int       `json:"dropped"`
}

// RedeliverNotificationsJob drains the notification dead-letter queue.
type RedeliverNotificationsJob struct {
	notifier Redeliverer
	log      *logger.Logger
	last     atomic.Pointer[RedeliverStats]
}

// NewRedeliverNotificationsJob creates the job.
func NewRedeliverNotificationsJob(notifier Redeliverer, log *logger.Logger) *RedeliverNotificationsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RedeliverNotificationsJob{
		notifier: notifier,
		log:      log.With(logger.Component("job"), logger.String("job", "redeliver_unlock_notifications")),
	}
}

func (j *RedeliverNotificationsJob) Name() string { return "redeliver_unlock_notifications" }

func (j *RedeliverNotificationsJob) Description() string {
	return "Retries unlock notifications that failed inline delivery"
}

func (j *RedeliverNotificationsJob) Run(ctx context.Context) error {
	stats := RedeliverStats{RanAt: time.Now().UTC(), Pending: j.notifier.Pending()}
	if stats.Pending == 0 {
		j.last.Store(&stats)
		return nil
	}

	delivered, dropped, err := j.notifier.Redeliver(ctx)
	stats.Delivered = delivered
	stats.Dropped = dropped
	j.last.Store(&stats)

	j.log.Info("redelivery pass finished",
		logger.Int("pending", stats.Pending),
		logger.Int("delivered", delivered),
		logger.Int("dropped", dropped),
	)
	return err
}

// LastStats returns the most recent run, or nil before the first run.
func (j *RedeliverNotificationsJob) LastStats() *RedeliverStats {
	return j.last.Load()
}
