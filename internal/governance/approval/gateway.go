// Package approval runs workflow operations against stored records.
//
// Every operation is load, engine step, compare-and-swap save, then the
// best-effort side effects (audit row, notification, log line). A lost
// race surfaces as a STALE_STATE error and nothing is written.
package approval

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hseptw.io/ptw/internal/domain"
	"hseptw.io/ptw/internal/governance/audit"
	"hseptw.io/ptw/internal/governance/workflow"
	"hseptw.io/ptw/internal/notification"
	apperrors "hseptw.io/ptw/internal/pkg/errors"
	"hseptw.io/ptw/internal/pkg/logger"
	"hseptw.io/ptw/internal/repository"
)

// Gateway orchestrates workflow operations.
type Gateway struct {
	repo        repository.Repository
	engine      *workflow.Engine
	auditLogger *audit.Logger
	notifier    *notification.Triggers // Optional: nil disables notifications
	now         func() time.Time
}

// NewGateway creates a new approval Gateway.
func NewGateway(repo repository.Repository, engine *workflow.Engine, auditLogger *audit.Logger) *Gateway {
	if auditLogger == nil {
		auditLogger = audit.NewLogger(nil)
	}
	return &Gateway{
		repo:        repo,
		engine:      engine,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// SetNotifier configures the notification triggers.
func (g *Gateway) SetNotifier(notifier *notification.Triggers) {
	g.notifier = notifier
}

// SetClock overrides the clock used for creation and field-check timestamps.
func (g *Gateway) SetClock(now func() time.Time) {
	g.now = now
}

// Engine returns the workflow engine.
func (g *Gateway) Engine() *workflow.Engine { return g.engine }

// Create stores rec as a new draft owned by actor. Envelope fields supplied
// by the caller are overwritten and every risk level is recomputed.
func (g *Gateway) Create(ctx context.Context, actor workflow.Actor, rec domain.Record) (domain.Record, error) {
	if rec == nil {
		return nil, apperrors.Validation("record is required")
	}
	if actor.ID == "" || !g.engine.Policy().Allows(actor.Role, workflow.CapCreate) {
		return nil, apperrors.PermissionDenied("create", actor.Role)
	}

	h := rec.Header()
	if !h.Kind.Valid() {
		return nil, apperrors.Validation("unknown record kind",
			apperrors.FieldError{Field: "kind", Code: "invalid"})
	}
	if h.PlannedStart != nil && h.PlannedEnd != nil && h.PlannedEnd.Before(*h.PlannedStart) {
		return nil, apperrors.Validation("planned end is before planned start",
			apperrors.FieldError{Field: "planned_end", Code: "before_start"})
	}
	if err := g.checkParent(ctx, rec); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeInternal, "failed to generate record id")
	}
	now := g.now().UTC()
	*h = domain.Envelope{
		ID:           id.String(),
		Kind:         h.Kind,
		Status:       domain.StatusDraft,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		ModifiedBy:   actor.ID,
		ModifiedAt:   now,
		Approvals:    []domain.Approval{},
		PlannedStart: utc(h.PlannedStart),
		PlannedEnd:   utc(h.PlannedEnd),
	}
	domain.RerateAll(rec.Risks())
	if iv, ok := rec.(*domain.Intervention); ok {
		iv.DailyValidations = nil
		iv.Take5s = nil
	}

	if err := g.repo.Create(ctx, rec); err != nil {
		return nil, g.mapRepoError(err, h.ID)
	}

	if err := g.auditLogger.LogRecordAction(ctx, rec, "record.create", actor.ID, actor.Role, nil); err != nil {
		logger.Warn("audit write failed", zap.String("record_id", h.ID), zap.Error(err))
	}
	logger.Info("record created",
		zap.String("record_id", h.ID),
		zap.String("kind", string(h.Kind)),
		zap.String("actor", actor.ID),
	)
	return rec, nil
}

// checkParent enforces the document chain: a permit needs a validated
// prevention plan, an intervention needs a validated or running permit.
func (g *Gateway) checkParent(ctx context.Context, rec domain.Record) error {
	var (
		parentID string
		field    string
		accept   func(domain.Kind, domain.Status) bool
	)
	switch r := rec.(type) {
	case *domain.GeneralPermit:
		parentID, field = r.PreventionPlanID, "prevention_plan_id"
	case *domain.HeightPermit:
		parentID, field = r.PreventionPlanID, "prevention_plan_id"
	case *domain.ElectricalPermit:
		parentID, field = r.PreventionPlanID, "prevention_plan_id"
	case *domain.Intervention:
		parentID, field = r.PermitID, "permit_id"
	default:
		return nil
	}
	if field == "prevention_plan_id" {
		accept = func(k domain.Kind, s domain.Status) bool {
			return k == domain.KindPreventionPlan && s == domain.StatusValidated
		}
	} else {
		accept = func(k domain.Kind, s domain.Status) bool {
			return k.IsPermit() && (s == domain.StatusValidated || s == domain.StatusInProgress)
		}
	}

	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return apperrors.Validation(field+" is required", apperrors.FieldError{Field: field, Code: "required"})
	}
	parent, err := g.repo.Load(ctx, parentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.Validation("referenced record does not exist",
				apperrors.FieldError{Field: field, Code: "not_found"})
		}
		return apperrors.Internal(apperrors.CodeInternal, "failed to load referenced record")
	}
	ph := parent.Header()
	if !accept(ph.Kind, ph.Status) {
		return apperrors.PreconditionNotMet("referenced record is not in a state that allows new work").
			WithParams(map[string]interface{}{field: parentID, "kind": string(ph.Kind), "status": string(ph.Status)})
	}
	return nil
}

// Get returns a record by id.
func (g *Gateway) Get(ctx context.Context, id string) (domain.Record, error) {
	rec, err := g.repo.Load(ctx, id)
	if err != nil {
		return nil, g.mapRepoError(err, id)
	}
	return rec, nil
}

// List returns one page of records and the total match count.
func (g *Gateway) List(ctx context.Context, f repository.Filter) ([]domain.Record, int, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, 0, apperrors.Validation("unknown record kind", apperrors.FieldError{Field: "kind", Code: "invalid"})
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperrors.Validation("unknown status", apperrors.FieldError{Field: "status", Code: "invalid"})
	}
	if f.Offset < 0 {
		return nil, 0, apperrors.Validation("offset must not be negative", apperrors.FieldError{Field: "offset", Code: "min"})
	}
	if f.Limit < 0 {
		return nil, 0, apperrors.Validation("limit must not be negative", apperrors.FieldError{Field: "limit", Code: "min"})
	}
	recs, total, err := g.repo.List(ctx, f)
	if err != nil {
		return nil, 0, g.mapRepoError(err, "")
	}
	return recs, total, nil
}

// Submit sends a draft to manager review.
func (g *Gateway) Submit(ctx context.Context, id string, actor workflow.Actor) (domain.Record, error) {
	return g.transition(ctx, id, actor, func(rec domain.Record) (workflow.Result, error) {
		return g.engine.Submit(rec, actor)
	})
}

// ApproveAsManager forwards a record to HSE review.
func (g *Gateway) ApproveAsManager(ctx context.Context, id string, actor workflow.Actor, comment string) (domain.Record, error) {
	return g.transition(ctx, id, actor, func(rec domain.Record) (workflow.Result, error) {
		return g.engine.ApproveAsManager(rec, actor, comment)
	})
}

// RejectAsManager rejects a record under manager review.
func (g *Gateway) RejectAsManager(ctx context.Context, id string, actor workflow.Actor, reason string) (domain.Record, error) {
	return g.transition(ctx, id, actor, func(rec domain.Record) (workflow.Result, error) {
		return g.engine.RejectAsManager(rec, actor, reason)
	})
}

// ApproveAsSafetyOfficer validates a record under the given reference number.
func (g *Gateway) ApproveAsSafetyOfficer(ctx context.Context, id string, actor workflow.Actor, referenceNumber, comment string) (domain.Record, error) {
	return g.transition(ctx, id, actor, func(rec domain.Record) (workflow.Result, error) {
		return g.engine.ApproveAsSafetyOfficer(rec, actor, referenceNumber, comment)
	})
}

// RejectAsSafetyOfficer rejects a record under HSE review.
func (g *Gateway) RejectAsSafetyOfficer(ctx context.Context, id string, actor workflow.Actor, reason string) (domain.Record, error) {
	return g.transition(ctx, id, actor, func(rec domain.Record) (workflow.Result, error) {
		return g.engine.RejectAsSafetyOfficer(rec, actor, reason)
	})
}

// Start puts a validated record in progress.
func (g *Gateway) Start(ctx context.Context, id string, actor workflow.Actor) (domain.Record, error) {
	return g.transition(ctx, id, actor, func(rec domain.Record) (workflow.Result, error) {
		return g.engine.Start(rec, actor)
	})
}

// Close ends an in-progress record.
func (g *Gateway) Close(ctx context.Context, id string, actor workflow.Actor, comment string, closingDate time.Time) (domain.Record, error) {
	return g.transition(ctx, id, actor, func(rec domain.Record) (workflow.Result, error) {
		return g.engine.Close(rec, actor, comment, closingDate)
	})
}

// Expire marks a record expired as the system actor.
func (g *Gateway) Expire(ctx context.Context, id string, asOf time.Time) (domain.Record, error) {
	actor := workflow.SystemActor
	return g.transition(ctx, id, actor, func(rec domain.Record) (workflow.Result, error) {
		return g.engine.Expire(rec, actor, asOf)
	})
}

func (g *Gateway) transition(
	ctx context.Context,
	id string,
	actor workflow.Actor,
	op func(domain.Record) (workflow.Result, error),
) (domain.Record, error) {
	loaded, err := g.repo.Load(ctx, id)
	if err != nil {
		return nil, g.mapRepoError(err, id)
	}

	res, err := op(loaded)
	if err != nil {
		return nil, err
	}
	if !res.Changed {
		return res.Record, nil
	}

	if err := g.repo.Save(ctx, res.Record, repository.Expect(loaded)); err != nil {
		return nil, g.mapRepoError(err, id)
	}

	entry := *res.Entry
	if err := g.auditLogger.LogTransition(ctx, res.Record, entry); err != nil {
		logger.Warn("audit write failed",
			zap.String("record_id", id),
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
	}
	if g.notifier != nil {
		g.notifier.OnTransition(ctx, res.Record, entry)
	}
	logger.Info("record transition committed",
		zap.String("record_id", id),
		zap.String("kind", string(res.Record.Header().Kind)),
		zap.String("from", string(entry.FromStatus)),
		zap.String("to", string(entry.ToStatus)),
		zap.String("actor", actor.ID),
		zap.Int64("version", res.Record.Header().Version),
	)
	return res.Record, nil
}

// RecordDailyValidation appends a daily checkpoint to an in-progress
// intervention. It is not a status transition and adds no approval entry.
func (g *Gateway) RecordDailyValidation(ctx context.Context, id string, actor workflow.Actor, dv domain.DailyValidation) (domain.Record, error) {
	if dv.ProgressPercent < 0 || dv.ProgressPercent > 100 {
		return nil, apperrors.Validation("progress must be between 0 and 100",
			apperrors.FieldError{Field: "progress_percent", Code: "out_of_range"})
	}
	if dv.Date.IsZero() {
		return nil, apperrors.Validation("date is required", apperrors.FieldError{Field: "date", Code: "required"})
	}
	return g.fieldCheck(ctx, id, actor, "record.daily_validation", func(iv *domain.Intervention, now time.Time) {
		dv.Date = dv.Date.UTC()
		dv.ValidatedBy = actor.ID
		dv.Comment = strings.TrimSpace(dv.Comment)
		dv.RecordedAt = now
		iv.DailyValidations = append(iv.DailyValidations, dv)
	})
}

// RecordTake5 appends a complete Take 5 to an in-progress intervention.
func (g *Gateway) RecordTake5(ctx context.Context, id string, actor workflow.Actor, t5 domain.Take5) (domain.Record, error) {
	if missing := t5.Missing(); len(missing) > 0 {
		fields := make([]apperrors.FieldError, 0, len(missing))
		for _, path := range missing {
			fields = append(fields, apperrors.FieldError{Field: path, Code: "required"})
		}
		return nil, apperrors.Validation("take 5 is incomplete", fields...)
	}
	return g.fieldCheck(ctx, id, actor, "record.take5", func(iv *domain.Intervention, now time.Time) {
		t5.PerformedBy = actor.ID
		if t5.PerformedAt.IsZero() {
			t5.PerformedAt = now
		}
		t5.PerformedAt = t5.PerformedAt.UTC()
		t5.RiskEntries = append([]domain.RiskEntry(nil), t5.RiskEntries...)
		domain.RerateAll(t5.RiskEntries)
		iv.Take5s = append(iv.Take5s, t5)
	})
}

func (g *Gateway) fieldCheck(
	ctx context.Context,
	id string,
	actor workflow.Actor,
	action string,
	add func(iv *domain.Intervention, now time.Time),
) (domain.Record, error) {
	loaded, err := g.repo.Load(ctx, id)
	if err != nil {
		return nil, g.mapRepoError(err, id)
	}
	iv, ok := loaded.(*domain.Intervention)
	if !ok {
		return nil, apperrors.PreconditionNotMet("field checks apply to interventions only").
			WithParams(map[string]interface{}{"record_id": id, "kind": string(loaded.Header().Kind)})
	}
	if iv.Status != domain.StatusInProgress {
		return nil, apperrors.PreconditionNotMet("intervention is not in progress").
			WithParams(map[string]interface{}{"record_id": id, "status": string(iv.Status)})
	}
	if actor.ID == "" || !g.engine.Policy().Allows(actor.Role, workflow.CapExecute) {
		return nil, apperrors.PermissionDenied(action, actor.Role)
	}

	next := iv.Clone().(*domain.Intervention)
	now := g.now().UTC()
	add(next, now)
	next.ModifiedBy = actor.ID
	next.ModifiedAt = now

	if err := g.repo.Save(ctx, next, repository.Expect(loaded)); err != nil {
		return nil, g.mapRepoError(err, id)
	}
	if err := g.auditLogger.LogRecordAction(ctx, next, action, actor.ID, actor.Role, nil); err != nil {
		logger.Warn("audit write failed", zap.String("record_id", id), zap.Error(err))
	}
	logger.Info("field check recorded",
		zap.String("record_id", id),
		zap.String("action", action),
		zap.String("actor", actor.ID),
	)
	return next, nil
}

func (g *Gateway) mapRepoError(err error, id string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.RecordNotFound(id)
	case errors.Is(err, repository.ErrConflict):
		return apperrors.StaleState(id)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.PreconditionNotMet("reference number or id is already in use").
			WithParams(map[string]interface{}{"record_id": id})
	default:
		logger.Error("repository failure", zap.String("record_id", id), zap.Error(err))
		return apperrors.Internal(apperrors.CodeInternal, "storage failure")
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
