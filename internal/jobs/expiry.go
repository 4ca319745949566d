// Package jobs defines background jobs: River job types for the
// PostgreSQL deployment and a ticker-driven sweeper for memory mode.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"hseptw.io/ptw/internal/domain"
	apperrors "hseptw.io/ptw/internal/pkg/errors"
	"hseptw.io/ptw/internal/pkg/logger"
	"hseptw.io/ptw/internal/pkg/worker"
	"hseptw.io/ptw/internal/repository"
)

// Expirer expires one record as the system actor.
type Expirer interface {
	Expire(ctx context.Context, id string, asOf time.Time) (domain.Record, error)
}

// Candidates lists records whose planned end is before a cutoff.
type Candidates interface {
	ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

var _ Candidates = (repository.Repository)(nil)

// SweepResult summarises one sweep.
type SweepResult struct {
	Candidates int
	Expired    int
	Skipped    int
	Failed     int
}

// Sweeper expires every record past its planned end plus the grace window.
type Sweeper struct {
	candidates Candidates
	expirer    Expirer
	pool       *worker.Pool
	grace      time.Duration
	batch      int
	now        func() time.Time

	running atomic.Bool
}

// NewSweeper creates a Sweeper. Expiry calls fan out over pool.
func NewSweeper(candidates Candidates, expirer Expirer, pool *worker.Pool, grace time.Duration, batch int) *Sweeper {
	if batch <= 0 {
		batch = 500
	}
	return &Sweeper{
		candidates: candidates,
		expirer:    expirer,
		pool:       pool,
		grace:      grace,
		batch:      batch,
		now:        time.Now,
	}
}

// Sweep runs one pass at asOf. Records that moved on since listing
// (stale state, precondition no longer met) are skipped, not failed.
func (s *Sweeper) Sweep(ctx context.Context, asOf time.Time) (SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		logger.Debug("expiry sweep already running, skipping")
		return SweepResult{}, nil
	}
	defer s.running.Store(false)

	asOf = asOf.UTC()
	ids, err := s.candidates.ListExpirable(ctx, asOf.Add(-s.grace), s.batch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list expirable records: %w", err)
	}

	var (
		mu  sync.Mutex
		res = SweepResult{Candidates: len(ids)}
	)
	tasks := make([]worker.Task, 0, len(ids))
	for _, id := range ids {
		id := id
		tasks = append(tasks, func(ctx context.Context) {
			_, err := s.expirer.Expire(ctx, id, asOf)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Expired++
			case errors.Is(err, apperrors.ErrStaleState),
				errors.Is(err, apperrors.ErrPreconditionNotMet),
				errors.Is(err, apperrors.ErrInvalidTransition):
				res.Skipped++
				logger.Debug("expiry skipped", zap.String("record_id", id), zap.Error(err))
			default:
				res.Failed++
				logger.Warn("expiry failed", zap.String("record_id", id), zap.Error(err))
			}
		})
	}

	dropped, runErr := s.pool.Run(ctx, tasks)
	mu.Lock()
	res.Skipped += dropped
	out := res
	mu.Unlock()

	logger.Info("expiry sweep completed",
		zap.Time("as_of", asOf),
		zap.Int("candidates", out.Candidates),
		zap.Int("expired", out.Expired),
		zap.Int("skipped", out.Skipped),
		zap.Int("failed", out.Failed),
	)
	if runErr != nil {
		return out, fmt.Errorf("expiry sweep interrupted: %w", runErr)
	}
	return out, nil
}

// Run sweeps every interval until ctx is done. Used when no job queue is
// available.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("expiry sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, s.now()); err != nil && ctx.Err() == nil {
				logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// ExpirySweepArgs is a periodic job that expires overdue records.
type ExpirySweepArgs struct{}

// Kind returns the job kind identifier for the expiry sweep.
func (ExpirySweepArgs) Kind() string { return "record_expiry_sweep" }

// InsertOpts keeps at most one sweep per minute in the queue.
func (ExpirySweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Minute,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// ExpirySweepWorker runs a Sweeper pass for each job.
type ExpirySweepWorker struct {
	river.WorkerDefaults[ExpirySweepArgs]
	sweeper *Sweeper
}

// NewExpirySweepWorker creates the sweep worker.
func NewExpirySweepWorker(sweeper *Sweeper) *ExpirySweepWorker {
	return &ExpirySweepWorker{sweeper: sweeper}
}

// Work sweeps as of the job's scheduled time.
func (w *ExpirySweepWorker) Work(ctx context.Context, job *river.Job[ExpirySweepArgs]) error {
	if w == nil || w.sweeper == nil {
		return fmt.Errorf("expiry sweep worker is not initialized")
	}
	asOf := w.sweeper.now()
	if job != nil && job.JobRow != nil && !job.ScheduledAt.IsZero() && job.ScheduledAt.Before(asOf) {
		asOf = job.ScheduledAt
	}
	_, err := w.sweeper.Sweep(ctx, asOf)
	return err
}

// ExpirySweepJob returns the periodic job that enqueues sweeps.
func ExpirySweepJob(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return ExpirySweepArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
