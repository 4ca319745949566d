// Package notification delivers workflow notices to users and role queues.
//
// Delivery is best-effort: a failed notice is logged and never rolls back
// the transition that triggered it.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"hseptw.io/ptw/internal/pkg/logger"
)

// Notification types.
const (
	TypeReviewPending = "REVIEW_PENDING"
	TypeValidated     = "RECORD_VALIDATED"
	TypeRejected      = "RECORD_REJECTED"
	TypeClosed        = "RECORD_CLOSED"
	TypeExpired       = "RECORD_EXPIRED"
)

// RolePrefix addresses a notice to every holder of a role, e.g. "role:hse_officer".
const RolePrefix = "role:"

// Params holds the fields of one notification.
type Params struct {
	RecipientID string // user id, or RolePrefix + role name
	Type        string // one of the Type* constants
	Title       string
	Message     string
	RecordID    string
}

// Sender delivers notifications.
type Sender interface {
	// Send delivers a notification to a single recipient.
	Send(ctx context.Context, params Params) error

	// SendToMany delivers to several recipients, continuing past individual failures.
	SendToMany(ctx context.Context, recipientIDs []string, params Params) error
}

// InboxSender writes notifications to the notifications table.
type InboxSender struct {
	pool *pgxpool.Pool
}

// NewInboxSender creates a new inbox sender.
func NewInboxSender(pool *pgxpool.Pool) *InboxSender {
	return &InboxSender{pool: pool}
}

// Send stores a single notification.
func (s *InboxSender) Send(ctx context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient, type, title, message, record_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`,
		uuid.NewString(), params.RecipientID, params.Type, params.Title, params.Message, params.RecordID,
	)
	if err != nil {
		return fmt.Errorf("create notification for %s: %w", params.RecipientID, err)
	}

	logger.Debug("notification sent",
		zap.String("recipient", params.RecipientID),
		zap.String("type", params.Type),
		zap.String("title", params.Title),
	)
	return nil
}

// SendToMany implements Sender.
func (s *InboxSender) SendToMany(ctx context.Context, recipientIDs []string, params Params) error {
	return sendEach(ctx, s, recipientIDs, params)
}

// LogSender writes notifications to the structured log. Used when the
// service runs without a database.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}
	logger.Info("notification",
		zap.String("recipient", params.RecipientID),
		zap.String("type", params.Type),
		zap.String("title", params.Title),
		zap.String("message", params.Message),
		zap.String("record_id", params.RecordID),
	)
	return nil
}

// SendToMany implements Sender.
func (l LogSender) SendToMany(ctx context.Context, recipientIDs []string, params Params) error {
	return sendEach(ctx, l, recipientIDs, params)
}

var (
	_ Sender = (*InboxSender)(nil)
	_ Sender = LogSender{}
)

func sendEach(ctx context.Context, s Sender, recipientIDs []string, params Params) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	var failCount int
	for _, recipientID := range recipientIDs {
		p := params
		p.RecipientID = recipientID
		if err := s.Send(ctx, p); err != nil {
			failCount++
			logger.Error("notification delivery failed",
				zap.String("recipient", recipientID),
				zap.String("type", params.Type),
				zap.Error(err),
			)
		}
	}

	if failCount > 0 {
		return fmt.Errorf("notification delivery failed for %d/%d recipients", failCount, len(recipientIDs))
	}
	return nil
}

func validateParams(p Params) error {
	if p.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	switch p.Type {
	case TypeReviewPending, TypeValidated, TypeRejected, TypeClosed, TypeExpired:
	default:
		return fmt.Errorf("unknown notification type: %s", p.Type)
	}
	return nil
}
