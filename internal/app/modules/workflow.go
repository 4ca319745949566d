package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"hseptw.io/ptw/internal/api/handlers"
	"hseptw.io/ptw/internal/domain"
	"hseptw.io/ptw/internal/governance/approval"
	"hseptw.io/ptw/internal/governance/workflow"
	"hseptw.io/ptw/internal/jobs"
	"hseptw.io/ptw/internal/notification"
	"hseptw.io/ptw/internal/pkg/worker"
)

// WorkflowModule wires the engine, the approval gateway and the expiry sweep.
type WorkflowModule struct {
	infra    *Infrastructure
	engine   *workflow.Engine
	gateway  *approval.Gateway
	notifier *notification.Triggers
	sweeper  *jobs.Sweeper
}

// NewWorkflowModule creates the workflow module.
func NewWorkflowModule(infra *Infrastructure) (*WorkflowModule, error) {
	if infra == nil || infra.Repository == nil || infra.Pools == nil {
		return nil, fmt.Errorf("workflow module requires a repository and worker pools")
	}
	wf := infra.Config.Workflow

	engine := workflow.NewEngine(infra.Policy, workflow.WithExpiryGrace(wf.ExpiryGrace))
	gateway := approval.NewGateway(infra.Repository, engine, infra.AuditLogger)

	var sender notification.Sender = notification.LogSender{}
	if infra.Pool != nil {
		sender = notification.NewInboxSender(infra.Pool)
	}
	notifier := notification.NewTriggers(sender, map[domain.Status]string{
		domain.StatusPendingManagerReview: workflow.RoleProjectManager,
		domain.StatusPendingSafetyReview:  workflow.RoleHSEOfficer,
	})
	gateway.SetNotifier(notifier)

	sweeper := jobs.NewSweeper(infra.Repository, gateway, infra.Pools.Sweep, wf.ExpiryGrace, wf.ExpirySweepBatch)

	return &WorkflowModule{
		infra:    infra,
		engine:   engine,
		gateway:  gateway,
		notifier: notifier,
		sweeper:  sweeper,
	}, nil
}

func (m *WorkflowModule) Name() string { return "workflow" }

// Gateway returns the approval gateway.
func (m *WorkflowModule) Gateway() *approval.Gateway { return m.gateway }

func (m *WorkflowModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Gateway = m.gateway
	deps.Policy = m.engine.Policy()
}

func (m *WorkflowModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewExpirySweepWorker(m.sweeper))
}

func (m *WorkflowModule) PeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{jobs.ExpirySweepJob(m.infra.Config.Workflow.ExpirySweepInterval)}
}

// Start runs the ticker sweep when there is no job queue to schedule it.
func (m *WorkflowModule) Start(context.Context) error {
	if m.infra.RiverClient != nil {
		return nil
	}
	interval := m.infra.Config.Workflow.ExpirySweepInterval
	return m.infra.Pools.SubmitDetached(worker.PoolGeneral, func(ctx context.Context) {
		m.sweeper.Run(ctx, interval)
	})
}

func (m *WorkflowModule) Shutdown(context.Context) error { return nil }
