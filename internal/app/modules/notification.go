package modules

import (
	"context"

	"github.com/riverqueue/river"

	"hseptw.io/ptw/internal/jobs"
)

// NotificationModule schedules inbox retention cleanup. It is inert in
// memory mode, where notices only go to the log.
type NotificationModule struct {
	infra *Infrastructure
}

// NewNotificationModule creates the notification module.
func NewNotificationModule(infra *Infrastructure) *NotificationModule {
	return &NotificationModule{infra: infra}
}

func (m *NotificationModule) Name() string { return "notification" }

func (m *NotificationModule) RegisterWorkers(workers *river.Workers) {
	if m.infra.Pool == nil {
		return
	}
	river.AddWorker(workers, jobs.NewNotificationCleanupWorker(m.infra.Pool, m.infra.Config.River.NotificationRetention))
}

func (m *NotificationModule) PeriodicJobs() []*river.PeriodicJob {
	if m.infra.Pool == nil {
		return nil
	}
	return []*river.PeriodicJob{jobs.NotificationCleanupJob()}
}

func (m *NotificationModule) Shutdown(context.Context) error { return nil }
