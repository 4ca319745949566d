package audit

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"hseptw.io/ptw/internal/domain"
	"hseptw.io/ptw/internal/repository"
	"hseptw.io/ptw/internal/testutil"
)

func TestGenerateAuditID(t *testing.T) {
	id := generateAuditID()
	require.True(t, strings.HasPrefix(id, "audit-"))
	require.NotEqual(t, id, generateAuditID())
}

func TestLogTransition_WithoutPool(t *testing.T) {
	l := NewLogger(nil)
	rec := &domain.PreventionPlan{Envelope: domain.Envelope{ID: "pp-1", Kind: domain.KindPreventionPlan}}
	err := l.LogTransition(context.Background(), rec, domain.Approval{Action: domain.ActionSubmit, ActorID: "u-1"})
	require.NoError(t, err)
}

func TestLogTransition_Postgres(t *testing.T) {
	ctx := context.Background()
	pool := testutil.OpenPGXPool(t, "audit")
	require.NoError(t, repository.Migrate(ctx, pool))

	l := NewLogger(pool)
	rec := &domain.GeneralPermit{Envelope: domain.Envelope{
		ID: "gp-1", Kind: domain.KindGeneralPermit, Status: domain.StatusValidated, ReferenceNumber: "PT-1",
	}}
	entry := domain.Approval{
		Action:     domain.ActionApproveSafety,
		ActorID:    "u-hse",
		ActorRole:  "hse_officer",
		Decision:   domain.DecisionApprove,
		FromStatus: domain.StatusPendingSafetyReview,
		ToStatus:   domain.StatusValidated,
	}
	require.NoError(t, l.LogTransition(ctx, rec, entry))

	var action, ref string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT action, details->>'reference_number' FROM audit_logs WHERE resource_id = $1`, "gp-1",
	).Scan(&action, &ref))
	require.Equal(t, "workflow.approve_safety", action)
	require.Equal(t, "PT-1", ref)
}
