package approval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hseptw.io/ptw/internal/domain"
	"hseptw.io/ptw/internal/governance/workflow"
	"hseptw.io/ptw/internal/notification"
	apperrors "hseptw.io/ptw/internal/pkg/errors"
	"hseptw.io/ptw/internal/repository"
	"hseptw.io/ptw/internal/risk"
)

var (
	contractor = workflow.Actor{ID: "u-contractor", Role: workflow.RoleContractor}
	manager    = workflow.Actor{ID: "u-manager", Role: workflow.RoleProjectManager}
	officer    = workflow.Actor{ID: "u-hse", Role: workflow.RoleHSEOfficer}
	supervisor = workflow.Actor{ID: "u-super", Role: workflow.RoleSiteSupervisor}
)

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	gw    *Gateway
	store *repository.MemoryStore
	sent  *capturingSender
}

type capturingSender struct{ sent []notification.Params }

func (c *capturingSender) Send(_ context.Context, p notification.Params) error {
	c.sent = append(c.sent, p)
	return nil
}

func (c *capturingSender) SendToMany(ctx context.Context, ids []string, p notification.Params) error {
	for _, id := range ids {
		p.RecipientID = id
		_ = c.Send(ctx, p)
	}
	return nil
}

func newTestEnv(t *testing.T, repo repository.Repository, store *repository.MemoryStore) *testEnv {
	t.Helper()
	clock := func() time.Time { return testNow }
	engine := workflow.NewEngine(nil, workflow.WithClock(clock), workflow.WithExpiryGrace(24*time.Hour))
	gw := NewGateway(repo, engine, nil)
	gw.SetClock(clock)
	sender := &capturingSender{}
	gw.SetNotifier(notification.NewTriggers(sender, map[domain.Status]string{
		domain.StatusPendingManagerReview: workflow.RoleProjectManager,
		domain.StatusPendingSafetyReview:  workflow.RoleHSEOfficer,
	}))
	return &testEnv{gw: gw, store: store, sent: sender}
}

func setup(t *testing.T) *testEnv {
	store := repository.NewMemoryStore()
	return newTestEnv(t, store, store)
}

func mitigated() []domain.RiskEntry {
	return []domain.RiskEntry{{
		Hazard:      "chute de hauteur",
		Severity:    risk.SeverityEleve,
		Probability: risk.ProbabilityProbable,
		RiskLevel:   risk.LevelFaible, // recomputed on create
		Mitigations: "harnais, ligne de vie",
	}}
}

func validate(t *testing.T, env *testEnv, id, ref string) domain.Record {
	t.Helper()
	ctx := context.Background()
	_, err := env.gw.Submit(ctx, id, contractor)
	require.NoError(t, err)
	_, err = env.gw.ApproveAsManager(ctx, id, manager, "")
	require.NoError(t, err)
	rec, err := env.gw.ApproveAsSafetyOfficer(ctx, id, officer, ref, "ok")
	require.NoError(t, err)
	return rec
}

func validatedPlan(t *testing.T, env *testEnv) domain.Record {
	t.Helper()
	pp, err := env.gw.Create(context.Background(), contractor, &domain.PreventionPlan{
		Envelope:    domain.Envelope{Kind: domain.KindPreventionPlan},
		Contractor:  "ACME",
		Site:        "Usine Nord",
		RiskEntries: mitigated(),
	})
	require.NoError(t, err)
	return validate(t, env, pp.Header().ID, "PP-2026-001")
}

func requireCode(t *testing.T, err error, sentinel error, code string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, sentinel), "want %v, got %v", sentinel, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, code, appErr.Code)
}

func TestCreate_AssignsEnvelope(t *testing.T) {
	env := setup(t)
	end := testNow.Add(48 * time.Hour)
	rec, err := env.gw.Create(context.Background(), contractor, &domain.PreventionPlan{
		Envelope: domain.Envelope{
			ID:              "client-chosen",
			Kind:            domain.KindPreventionPlan,
			Status:          domain.StatusValidated,
			ReferenceNumber: "FORGED",
			PlannedEnd:      &end,
		},
		RiskEntries: mitigated(),
	})
	require.NoError(t, err)

	h := rec.Header()
	require.NotEqual(t, "client-chosen", h.ID)
	require.Equal(t, domain.StatusDraft, h.Status)
	require.Empty(t, h.ReferenceNumber)
	require.Equal(t, contractor.ID, h.CreatedBy)
	require.Equal(t, testNow, h.CreatedAt)
	require.Equal(t, int64(1), h.Version)
	require.Equal(t, risk.LevelIntolerable, rec.Risks()[0].RiskLevel)
	require.NotNil(t, h.Approvals)
	require.Empty(t, h.Approvals)

	stored, err := env.gw.Get(context.Background(), h.ID)
	require.NoError(t, err)
	require.Equal(t, risk.LevelIntolerable, stored.Risks()[0].RiskLevel)

	body, err := json.Marshal(stored)
	require.NoError(t, err)
	require.Contains(t, string(body), `"approvals":[]`)
}

func TestCreate_Errors(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.gw.Create(ctx, officer, &domain.PreventionPlan{Envelope: domain.Envelope{Kind: domain.KindPreventionPlan}})
	requireCode(t, err, apperrors.ErrPermissionDenied, apperrors.CodePermissionDenied)

	start, end := testNow, testNow.Add(-time.Hour)
	_, err = env.gw.Create(ctx, contractor, &domain.PreventionPlan{
		Envelope: domain.Envelope{Kind: domain.KindPreventionPlan, PlannedStart: &start, PlannedEnd: &end},
	})
	requireCode(t, err, apperrors.ErrValidation, apperrors.CodeValidation)

	_, err = env.gw.Create(ctx, contractor, &domain.GeneralPermit{Envelope: domain.Envelope{Kind: domain.KindGeneralPermit}})
	requireCode(t, err, apperrors.ErrValidation, apperrors.CodeValidation)

	draft, err := env.gw.Create(ctx, contractor, &domain.PreventionPlan{Envelope: domain.Envelope{Kind: domain.KindPreventionPlan}})
	require.NoError(t, err)
	permit := &domain.GeneralPermit{Envelope: domain.Envelope{Kind: domain.KindGeneralPermit}}
	permit.PreventionPlanID = draft.Header().ID
	_, err = env.gw.Create(ctx, contractor, permit)
	requireCode(t, err, apperrors.ErrPreconditionNotMet, apperrors.CodePreconditionNotMet)
}

func TestLifecycle_PermitAndIntervention(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	pp := validatedPlan(t, env)

	permit := &domain.HeightPermit{Envelope: domain.Envelope{Kind: domain.KindHeightPermit}, MaxHeightMeters: 12}
	permit.PreventionPlanID = pp.Header().ID
	permit.RiskEntries = mitigated()
	created, err := env.gw.Create(ctx, contractor, permit)
	require.NoError(t, err)
	permitID := created.Header().ID

	rec := validate(t, env, permitID, "PH-2026-014")
	require.Equal(t, domain.StatusValidated, rec.Header().Status)
	require.Equal(t, "PH-2026-014", rec.Header().ReferenceNumber)
	require.Len(t, rec.Header().Approvals, 3)
	require.Equal(t, int64(4), rec.Header().Version)

	iv, err := env.gw.Create(ctx, contractor, &domain.Intervention{
		Envelope: domain.Envelope{Kind: domain.KindIntervention},
		PermitID: permitID,
	})
	require.NoError(t, err)
	ivID := iv.Header().ID
	validate(t, env, ivID, "INT-2026-101")

	_, err = env.gw.Start(ctx, ivID, supervisor)
	require.NoError(t, err)

	_, err = env.gw.Close(ctx, ivID, supervisor, "", testNow)
	requireCode(t, err, apperrors.ErrPreconditionNotMet, apperrors.CodePreconditionNotMet)

	_, err = env.gw.RecordDailyValidation(ctx, ivID, supervisor, domain.DailyValidation{Date: testNow, ProgressPercent: 60})
	require.NoError(t, err)
	_, err = env.gw.RecordDailyValidation(ctx, ivID, supervisor, domain.DailyValidation{Date: testNow.Add(24 * time.Hour), ProgressPercent: 100})
	require.NoError(t, err)

	closed, err := env.gw.Close(ctx, ivID, supervisor, "travaux termines", testNow.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.StatusClosed, closed.Header().Status)
	require.Equal(t, "travaux termines", closed.Header().ClosingComment)
	// three reviews, start, close; daily validations add no entries
	require.Len(t, closed.Header().Approvals, 5)

	var types []string
	for _, p := range env.sent.sent {
		types = append(types, p.Type)
	}
	require.Contains(t, types, notification.TypeReviewPending)
	require.Contains(t, types, notification.TypeValidated)
	require.Contains(t, types, notification.TypeClosed)
}

func TestStart_AlreadyInProgressIsNoop(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	pp := validatedPlan(t, env)

	first, err := env.gw.Start(ctx, pp.Header().ID, supervisor)
	require.Error(t, err, "prevention plans are never started")
	require.Nil(t, first)

	permit := &domain.GeneralPermit{Envelope: domain.Envelope{Kind: domain.KindGeneralPermit}}
	permit.PreventionPlanID = pp.Header().ID
	created, err := env.gw.Create(ctx, contractor, permit)
	require.NoError(t, err)
	id := created.Header().ID
	validate(t, env, id, "PG-1")

	started, err := env.gw.Start(ctx, id, supervisor)
	require.NoError(t, err)
	again, err := env.gw.Start(ctx, id, supervisor)
	require.NoError(t, err)
	require.Equal(t, started.Header().Version, again.Header().Version)
	require.Len(t, again.Header().Approvals, len(started.Header().Approvals))
}

func TestApproveAsSafetyOfficer_DuplicateReference(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	validatedPlan(t, env)

	other, err := env.gw.Create(ctx, contractor, &domain.PreventionPlan{Envelope: domain.Envelope{Kind: domain.KindPreventionPlan}})
	require.NoError(t, err)
	id := other.Header().ID
	_, err = env.gw.Submit(ctx, id, contractor)
	require.NoError(t, err)
	_, err = env.gw.ApproveAsManager(ctx, id, manager, "")
	require.NoError(t, err)

	_, err = env.gw.ApproveAsSafetyOfficer(ctx, id, officer, "PP-2026-001", "")
	requireCode(t, err, apperrors.ErrPreconditionNotMet, apperrors.CodePreconditionNotMet)

	rec, err := env.gw.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingSafetyReview, rec.Header().Status)
}

// racingRepo lets another writer commit between the gateway's load and save.
type racingRepo struct {
	*repository.MemoryStore
	race func()
}

func (r *racingRepo) Save(ctx context.Context, rec domain.Record, expect repository.Precondition) error {
	if r.race != nil {
		race := r.race
		r.race = nil
		race()
	}
	return r.MemoryStore.Save(ctx, rec, expect)
}

func TestTransition_StaleState(t *testing.T) {
	store := repository.NewMemoryStore()
	repo := &racingRepo{MemoryStore: store}
	env := newTestEnv(t, repo, store)
	ctx := context.Background()

	rec, err := env.gw.Create(ctx, contractor, &domain.PreventionPlan{Envelope: domain.Envelope{Kind: domain.KindPreventionPlan}})
	require.NoError(t, err)
	id := rec.Header().ID
	_, err = env.gw.Submit(ctx, id, contractor)
	require.NoError(t, err)

	repo.race = func() {
		_, err := env.gw.RejectAsManager(ctx, id, manager, "incomplet")
		require.NoError(t, err)
	}
	_, err = env.gw.ApproveAsManager(ctx, id, manager, "")
	requireCode(t, err, apperrors.ErrStaleState, apperrors.CodeStaleState)
	require.True(t, apperrors.IsRetryable(err))

	stored, err := env.gw.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, stored.Header().Status)
	require.Len(t, stored.Header().Approvals, 2)
}

func TestFieldChecks(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	pp := validatedPlan(t, env)

	permit := &domain.ElectricalPermit{Envelope: domain.Envelope{Kind: domain.KindElectricalPermit}, VoltageLevel: "BT"}
	permit.PreventionPlanID = pp.Header().ID
	created, err := env.gw.Create(ctx, contractor, permit)
	require.NoError(t, err)
	validate(t, env, created.Header().ID, "PE-7")

	iv, err := env.gw.Create(ctx, contractor, &domain.Intervention{
		Envelope: domain.Envelope{Kind: domain.KindIntervention},
		PermitID: created.Header().ID,
	})
	require.NoError(t, err)
	id := iv.Header().ID

	dv := domain.DailyValidation{Date: testNow, ProgressPercent: 10}
	_, err = env.gw.RecordDailyValidation(ctx, id, supervisor, dv)
	requireCode(t, err, apperrors.ErrPreconditionNotMet, apperrors.CodePreconditionNotMet)

	_, err = env.gw.RecordDailyValidation(ctx, pp.Header().ID, supervisor, dv)
	requireCode(t, err, apperrors.ErrPreconditionNotMet, apperrors.CodePreconditionNotMet)

	validate(t, env, id, "INT-9")
	_, err = env.gw.Start(ctx, id, contractor)
	require.NoError(t, err)

	_, err = env.gw.RecordDailyValidation(ctx, id, supervisor, domain.DailyValidation{Date: testNow, ProgressPercent: 101})
	requireCode(t, err, apperrors.ErrValidation, apperrors.CodeValidation)
	_, err = env.gw.RecordDailyValidation(ctx, id, manager, dv)
	requireCode(t, err, apperrors.ErrPermissionDenied, apperrors.CodePermissionDenied)

	rec, err := env.gw.RecordDailyValidation(ctx, id, supervisor, dv)
	require.NoError(t, err)
	got := rec.(*domain.Intervention)
	require.Len(t, got.DailyValidations, 1)
	require.Equal(t, supervisor.ID, got.DailyValidations[0].ValidatedBy)
	require.Equal(t, testNow, got.DailyValidations[0].RecordedAt)

	incomplete := domain.Take5{Steps: domain.Take5Steps{Stop: true, Observe: true}}
	_, err = env.gw.RecordTake5(ctx, id, contractor, incomplete)
	requireCode(t, err, apperrors.ErrValidation, apperrors.CodeValidation)
	appErr, _ := apperrors.IsAppError(err)
	require.Len(t, appErr.FieldErrors, 3)

	complete := domain.Take5{
		Steps:       domain.Take5Steps{Stop: true, Observe: true, Analyze: true, Control: true, Proceed: true},
		RiskEntries: mitigated(),
	}
	rec, err = env.gw.RecordTake5(ctx, id, contractor, complete)
	require.NoError(t, err)
	got = rec.(*domain.Intervention)
	require.Len(t, got.Take5s, 1)
	require.Equal(t, contractor.ID, got.Take5s[0].PerformedBy)
	require.Equal(t, risk.LevelIntolerable, got.Take5s[0].RiskEntries[0].RiskLevel)
	require.Equal(t, risk.LevelFaible, complete.RiskEntries[0].RiskLevel, "caller's slice is not modified")
}

func TestExpire(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	end := testNow.Add(2 * time.Hour)
	rec, err := env.gw.Create(ctx, contractor, &domain.PreventionPlan{
		Envelope: domain.Envelope{Kind: domain.KindPreventionPlan, PlannedEnd: &end},
	})
	require.NoError(t, err)
	id := rec.Header().ID
	validate(t, env, id, "PP-EXP")

	_, err = env.gw.Expire(ctx, id, end.Add(time.Hour))
	requireCode(t, err, apperrors.ErrPreconditionNotMet, apperrors.CodePreconditionNotMet)

	asOf := end.Add(25 * time.Hour)
	expired, err := env.gw.Expire(ctx, id, asOf)
	require.NoError(t, err)
	h := expired.Header()
	require.Equal(t, domain.StatusExpired, h.Status)
	require.Equal(t, workflow.SystemActor.ID, h.ModifiedBy)
	require.Equal(t, asOf, h.Approvals[len(h.Approvals)-1].Timestamp)
	require.Equal(t, "PP-EXP", h.ReferenceNumber)
}

func TestGetAndList(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.gw.Get(ctx, "missing")
	requireCode(t, err, apperrors.ErrNotFound, apperrors.CodeRecordNotFound)
	_, err = env.gw.Submit(ctx, "missing", contractor)
	requireCode(t, err, apperrors.ErrNotFound, apperrors.CodeRecordNotFound)

	validatedPlan(t, env)
	_, err = env.gw.Create(ctx, contractor, &domain.PreventionPlan{Envelope: domain.Envelope{Kind: domain.KindPreventionPlan}})
	require.NoError(t, err)

	recs, total, err := env.gw.List(ctx, repository.Filter{Status: domain.StatusDraft})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, recs, 1)

	_, _, err = env.gw.List(ctx, repository.Filter{Kind: "boat"})
	requireCode(t, err, apperrors.ErrValidation, apperrors.CodeValidation)

	for _, f := range []repository.Filter{{Offset: -1}, {Limit: -5}} {
		_, _, err = env.gw.List(ctx, f)
		requireCode(t, err, apperrors.ErrValidation, apperrors.CodeValidation)
	}
}
