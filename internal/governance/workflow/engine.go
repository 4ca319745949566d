// Package workflow is the status state machine of prevention plans,
// permits and interventions.
//
// The Engine is pure: it takes a loaded record and an actor, and returns a
// new record plus one audit entry, or a typed error. The input record is
// never modified, persistence and locking belong to the caller.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"hseptw.io/ptw/internal/domain"
	apperrors "hseptw.io/ptw/internal/pkg/errors"
)

// Actor is the user (or system) performing an operation.
type Actor struct {
	ID   string
	Role string
}

// SystemActor is the identity of the expiry scheduler.
var SystemActor = Actor{ID: "scheduler", Role: RoleSystem}

// Result is the outcome of a successful operation.
// Entry is nil and Changed false when the operation was a no-op.
type Result struct {
	Record  domain.Record
	Entry   *domain.Approval
	Changed bool
}

// Engine applies workflow operations.
type Engine struct {
	policy *Policy
	grace  time.Duration
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithExpiryGrace sets how long after planned_end a record may be expired.
func WithExpiryGrace(d time.Duration) Option {
	return func(e *Engine) { e.grace = d }
}

// NewEngine creates an Engine. A nil policy means DefaultPolicy.
func NewEngine(policy *Policy, opts ...Option) *Engine {
	if policy == nil {
		policy = DefaultPolicy()
	}
	e := &Engine{policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the role table used by the engine.
func (e *Engine) Policy() *Policy { return e.policy }

// Grace returns the expiry grace window.
func (e *Engine) Grace() time.Duration { return e.grace }

type step struct {
	action   domain.Action
	decision domain.Decision
	comment  string
	// authorize runs after the status check.
	authorize func(env *domain.Envelope) error
	// check runs after authorize: argument validation, then business preconditions.
	check func(rec domain.Record) error
	// mutate applies operation-specific fields to the copy.
	mutate func(env *domain.Envelope)
	at     time.Time
}

func (e *Engine) apply(rec domain.Record, actor Actor, s step) (Result, error) {
	if rec == nil {
		return Result{}, apperrors.Validation("record is required")
	}
	env := rec.Header()
	if !supports(env.Kind, s.action) || !allowedFrom(env.Kind, s.action, env.Status) {
		return Result{}, apperrors.InvalidTransition(string(s.action), string(env.Status))
	}
	if err := s.authorize(env); err != nil {
		return Result{}, err
	}
	if s.check != nil {
		if err := s.check(rec); err != nil {
			return Result{}, err
		}
	}

	at := s.at
	if at.IsZero() {
		at = e.now().UTC()
	}
	next := rec.Clone()
	h := next.Header()
	entry := domain.Approval{
		Action:     s.action,
		ActorRole:  actor.Role,
		ActorID:    actor.ID,
		Decision:   s.decision,
		FromStatus: h.Status,
		ToStatus:   edges[s.action].to,
		Comment:    s.comment,
		Timestamp:  at,
	}
	h.Status = entry.ToStatus
	h.ModifiedBy = actor.ID
	h.ModifiedAt = at
	if s.mutate != nil {
		s.mutate(h)
	}
	h.Approvals = append(h.Approvals, entry)
	return Result{Record: next, Entry: &entry, Changed: true}, nil
}

func (e *Engine) requireCapability(actor Actor, action domain.Action, c Capability) func(*domain.Envelope) error {
	return func(*domain.Envelope) error {
		if actor.ID == "" || !e.policy.Allows(actor.Role, c) {
			return apperrors.PermissionDenied(string(action), actor.Role)
		}
		return nil
	}
}

// Submit moves a draft to manager review. Only the record's creator may submit,
// and every risk entry must carry mitigations and a level matching the matrix.
func (e *Engine) Submit(rec domain.Record, actor Actor) (Result, error) {
	return e.apply(rec, actor, step{
		action:   domain.ActionSubmit,
		decision: domain.DecisionApprove,
		authorize: func(env *domain.Envelope) error {
			if actor.ID == "" || actor.ID != env.CreatedBy {
				return apperrors.PermissionDenied(string(domain.ActionSubmit), actor.Role).
					WithParams(map[string]interface{}{"operation": string(domain.ActionSubmit), "reason": "not_owner"})
			}
			return nil
		},
		check: checkRisks,
	})
}

// ApproveAsManager forwards a record to HSE review.
func (e *Engine) ApproveAsManager(rec domain.Record, actor Actor, comment string) (Result, error) {
	return e.apply(rec, actor, step{
		action:    domain.ActionApproveManager,
		decision:  domain.DecisionApprove,
		comment:   strings.TrimSpace(comment),
		authorize: e.requireCapability(actor, domain.ActionApproveManager, CapManagerValidation),
	})
}

// RejectAsManager rejects a record under manager review. The reason is mandatory.
func (e *Engine) RejectAsManager(rec domain.Record, actor Actor, reason string) (Result, error) {
	return e.apply(rec, actor, step{
		action:    domain.ActionRejectManager,
		decision:  domain.DecisionReject,
		comment:   strings.TrimSpace(reason),
		authorize: e.requireCapability(actor, domain.ActionRejectManager, CapManagerValidation),
		check:     requireReason(reason),
	})
}

// ApproveAsSafetyOfficer validates a record and assigns its reference number.
// This is the only operation that sets ReferenceNumber.
func (e *Engine) ApproveAsSafetyOfficer(rec domain.Record, actor Actor, referenceNumber, comment string) (Result, error) {
	ref := strings.TrimSpace(referenceNumber)
	return e.apply(rec, actor, step{
		action:    domain.ActionApproveSafety,
		decision:  domain.DecisionApprove,
		comment:   strings.TrimSpace(comment),
		authorize: e.requireCapability(actor, domain.ActionApproveSafety, CapSafetyValidation),
		check: func(rec domain.Record) error {
			if ref == "" {
				return apperrors.Validation("reference number is required",
					apperrors.FieldError{Field: "reference_number", Code: "required"})
			}
			if rec.Header().ReferenceNumber != "" {
				return apperrors.PreconditionNotMet("reference number is already assigned")
			}
			return nil
		},
		mutate: func(env *domain.Envelope) { env.ReferenceNumber = ref },
	})
}

// RejectAsSafetyOfficer rejects a record under HSE review. The reason is mandatory.
func (e *Engine) RejectAsSafetyOfficer(rec domain.Record, actor Actor, reason string) (Result, error) {
	return e.apply(rec, actor, step{
		action:    domain.ActionRejectSafety,
		decision:  domain.DecisionReject,
		comment:   strings.TrimSpace(reason),
		authorize: e.requireCapability(actor, domain.ActionRejectSafety, CapSafetyValidation),
		check:     requireReason(reason),
	})
}

// Start puts a validated record in progress. Starting a record that is
// already in progress returns it unchanged, without an audit entry.
func (e *Engine) Start(rec domain.Record, actor Actor) (Result, error) {
	if rec != nil && rec.Header().Status == domain.StatusInProgress && supports(rec.Header().Kind, domain.ActionStart) {
		if err := e.requireCapability(actor, domain.ActionStart, CapExecute)(rec.Header()); err != nil {
			return Result{}, err
		}
		return Result{Record: rec.Clone()}, nil
	}
	return e.apply(rec, actor, step{
		action:    domain.ActionStart,
		decision:  domain.DecisionApprove,
		authorize: e.requireCapability(actor, domain.ActionStart, CapExecute),
	})
}

// Close ends an in-progress record. An intervention closes only once its
// latest daily validation reports 100% progress.
func (e *Engine) Close(rec domain.Record, actor Actor, closingComment string, closingDate time.Time) (Result, error) {
	comment := strings.TrimSpace(closingComment)
	return e.apply(rec, actor, step{
		action:    domain.ActionClose,
		decision:  domain.DecisionApprove,
		comment:   comment,
		authorize: e.requireCapability(actor, domain.ActionClose, CapClose),
		check: func(rec domain.Record) error {
			if closingDate.IsZero() {
				return apperrors.Validation("closing date is required",
					apperrors.FieldError{Field: "closing_date", Code: "required"})
			}
			iv, ok := rec.(*domain.Intervention)
			if !ok {
				return nil
			}
			progress, found := iv.LatestProgress()
			if !found || progress != 100 {
				return apperrors.PreconditionNotMet("progress must reach 100% before closing").
					WithParams(map[string]interface{}{"progress_percent": progress})
			}
			return nil
		},
		mutate: func(env *domain.Envelope) {
			env.ClosingComment = comment
			closed := closingDate.UTC()
			env.ClosedAt = &closed
		},
	})
}

// Expire marks a validated or in-progress record expired once asOf is past
// its planned end plus the grace window. Only the system actor may expire.
// The entry is timestamped asOf.
func (e *Engine) Expire(rec domain.Record, actor Actor, asOf time.Time) (Result, error) {
	return e.apply(rec, actor, step{
		action:   domain.ActionExpire,
		decision: domain.DecisionApprove,
		at:       asOf.UTC(),
		authorize: func(*domain.Envelope) error {
			if actor.Role != RoleSystem {
				return apperrors.PermissionDenied(string(domain.ActionExpire), actor.Role)
			}
			return nil
		},
		check: func(rec domain.Record) error {
			end := rec.Header().PlannedEnd
			if end == nil {
				return apperrors.PreconditionNotMet("record has no planned end date")
			}
			if !asOf.After(end.Add(e.grace)) {
				return apperrors.PreconditionNotMet("planned window has not elapsed").
					WithParams(map[string]interface{}{"planned_end": end.UTC(), "grace": e.grace.String()})
			}
			return nil
		},
	})
}

// Expirable reports whether Expire would succeed for rec at asOf, ignoring the actor.
func (e *Engine) Expirable(rec domain.Record, asOf time.Time) bool {
	env := rec.Header()
	if !allowedFrom(env.Kind, domain.ActionExpire, env.Status) || env.PlannedEnd == nil {
		return false
	}
	return asOf.After(env.PlannedEnd.Add(e.grace))
}

func requireReason(reason string) func(domain.Record) error {
	return func(domain.Record) error {
		if strings.TrimSpace(reason) == "" {
			return apperrors.Validation("a rejection reason is required",
				apperrors.FieldError{Field: "reason", Code: "required"})
		}
		return nil
	}
}

func checkRisks(rec domain.Record) error {
	var fields []apperrors.FieldError
	for _, path := range domain.MissingMitigations(rec.Risks()) {
		fields = append(fields, apperrors.FieldError{Field: path, Code: "required"})
	}
	for i, r := range rec.Risks() {
		if !r.Consistent() {
			fields = append(fields, apperrors.FieldError{
				Field:   fmt.Sprintf("risks[%d].risk_level", i),
				Code:    "stale",
				Message: "risk level does not match severity and probability",
			})
		}
	}
	if len(fields) > 0 {
		return apperrors.Validation("risk section is incomplete", fields...)
	}
	return nil
}
