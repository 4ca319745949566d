// Package audit implements the compliance audit log.
//
// Audit rows are append-only. The approvals list on each record is the
// authoritative history; this log mirrors every committed transition for
// cross-record compliance queries.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"hseptw.io/ptw/internal/domain"
	"hseptw.io/ptw/internal/pkg/logger"
)

// Logger writes audit records to the audit_logs table, or to the
// structured log when no pool is configured.
type Logger struct {
	pool *pgxpool.Pool
}

// NewLogger creates a new audit Logger. pool may be nil.
func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

// Entry is one audit row.
type Entry struct {
	Action       string
	ActorID      string
	ActorRole    string
	ResourceType string
	ResourceID   string
	FromStatus   string
	ToStatus     string
	Details      map[string]interface{}
}

// LogAction records an auditable action.
func (l *Logger) LogAction(ctx context.Context, e Entry) error {
	if l.pool == nil {
		logger.Info("audit",
			zap.String("action", e.Action),
			zap.String("actor_id", e.ActorID),
			zap.String("actor_role", e.ActorRole),
			zap.String("resource_type", e.ResourceType),
			zap.String("resource_id", e.ResourceID),
			zap.String("from", e.FromStatus),
			zap.String("to", e.ToStatus),
			zap.Any("details", e.Details),
		)
		return nil
	}

	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, action, actor_id, actor_role, resource_type, resource_id, from_status, to_status, details)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)`,
		generateAuditID(), e.Action, e.ActorID, e.ActorRole, e.ResourceType, e.ResourceID,
		e.FromStatus, e.ToStatus, details,
	)
	if err != nil {
		logger.Error("Failed to write audit log",
			zap.String("action", e.Action),
			zap.String("resource_type", e.ResourceType),
			zap.String("resource_id", e.ResourceID),
			zap.Error(err),
		)
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// LogTransition records a committed workflow transition.
func (l *Logger) LogTransition(ctx context.Context, rec domain.Record, entry domain.Approval) error {
	h := rec.Header()
	details := map[string]interface{}{
		"decision": string(entry.Decision),
		"version":  h.Version,
	}
	if entry.Comment != "" {
		details["comment"] = entry.Comment
	}
	if entry.Action == domain.ActionApproveSafety {
		details["reference_number"] = h.ReferenceNumber
	}
	return l.LogAction(ctx, Entry{
		Action:       "workflow." + string(entry.Action),
		ActorID:      entry.ActorID,
		ActorRole:    entry.ActorRole,
		ResourceType: string(h.Kind),
		ResourceID:   h.ID,
		FromStatus:   string(entry.FromStatus),
		ToStatus:     string(entry.ToStatus),
		Details:      details,
	})
}

// LogRecordAction records a non-transition change such as a daily validation.
func (l *Logger) LogRecordAction(ctx context.Context, rec domain.Record, action, actorID, actorRole string, details map[string]interface{}) error {
	h := rec.Header()
	return l.LogAction(ctx, Entry{
		Action:       action,
		ActorID:      actorID,
		ActorRole:    actorRole,
		ResourceType: string(h.Kind),
		ResourceID:   h.ID,
		Details:      details,
	})
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}
