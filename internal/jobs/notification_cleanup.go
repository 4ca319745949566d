package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"hseptw.io/ptw/internal/pkg/logger"
)

// DefaultNotificationRetention is how long inbox notifications are kept.
const DefaultNotificationRetention = 90 * 24 * time.Hour

// NotificationCleanupArgs is the daily inbox retention job. Workflow notices
// (review requests, decisions, expiries) are only kept for the retention window.
type NotificationCleanupArgs struct{}

// Kind returns the job kind identifier for periodic notification cleanup.
func (NotificationCleanupArgs) Kind() string { return "notification_cleanup" }

// InsertOpts allows one cleanup per day. A failed purge waits for the next day.
func (NotificationCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// NotificationCleanupWorker purges the workflow notification inbox.
type NotificationCleanupWorker struct {
	river.WorkerDefaults[NotificationCleanupArgs]
	pool      *pgxpool.Pool
	retention time.Duration
}

// NewNotificationCleanupWorker creates a cleanup worker. Non-positive retention
// falls back to the 90-day default.
func NewNotificationCleanupWorker(pool *pgxpool.Pool, retention time.Duration) *NotificationCleanupWorker {
	if retention <= 0 {
		retention = DefaultNotificationRetention
	}
	return &NotificationCleanupWorker{
		pool:      pool,
		retention: retention,
	}
}

// Work removes notices older than the retention window.
func (w *NotificationCleanupWorker) Work(ctx context.Context, _ *river.Job[NotificationCleanupArgs]) error {
	_, err := w.purge(ctx, time.Now())
	return err
}

// purge deletes inbox rows created before now minus retention, read
// or not, and returns how many went.
func (w *NotificationCleanupWorker) purge(ctx context.Context, now time.Time) (int64, error) {
	if w == nil || w.pool == nil {
		return 0, fmt.Errorf("notification cleanup worker is not initialized")
	}

	cutoff := now.UTC().Add(-w.retention)
	tag, err := w.pool.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("notification inbox purged",
		zap.Int64("deleted", tag.RowsAffected()),
		zap.Time("cutoff", cutoff),
		zap.Duration("retention", w.retention),
	)
	return tag.RowsAffected(), nil
}

// NotificationCleanupJob schedules the purge daily and once at startup.
func NotificationCleanupJob() *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(24*time.Hour),
		func() (river.JobArgs, *river.InsertOpts) {
			return NotificationCleanupArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
