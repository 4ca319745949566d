package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hseptw.io/ptw/internal/domain"
	"hseptw.io/ptw/internal/pkg/logger"
)

// Triggers maps committed transitions to notices:
//   - entering a review queue notifies the reviewing role
//   - validation, rejection, closing and expiry notify the record's creator
type Triggers struct {
	sender   Sender
	reviewer map[domain.Status]string
}

// NewTriggers creates a trigger set. reviewers maps a review status to the
// role that acts on it.
func NewTriggers(sender Sender, reviewers map[domain.Status]string) *Triggers {
	return &Triggers{sender: sender, reviewer: reviewers}
}

// OnTransition fires the notices for a committed transition.
func (t *Triggers) OnTransition(ctx context.Context, rec domain.Record, entry domain.Approval) {
	h := rec.Header()
	label := describe(h)

	var (
		recipient string
		params    Params
	)
	switch entry.ToStatus {
	case domain.StatusPendingManagerReview, domain.StatusPendingSafetyReview:
		role, ok := t.reviewer[entry.ToStatus]
		if !ok {
			return
		}
		recipient = RolePrefix + role
		params = Params{
			Type:    TypeReviewPending,
			Title:   "Record awaiting your review",
			Message: fmt.Sprintf("%s submitted by %s is awaiting review", label, h.CreatedBy),
		}
	case domain.StatusValidated:
		recipient = h.CreatedBy
		params = Params{
			Type:    TypeValidated,
			Title:   "Record validated",
			Message: fmt.Sprintf("%s was validated under reference %s", label, h.ReferenceNumber),
		}
	case domain.StatusRejected:
		recipient = h.CreatedBy
		params = Params{
			Type:    TypeRejected,
			Title:   "Record rejected",
			Message: fmt.Sprintf("%s was rejected by %s: %s", label, entry.ActorRole, entry.Comment),
		}
	case domain.StatusClosed:
		recipient = h.CreatedBy
		params = Params{
			Type:    TypeClosed,
			Title:   "Record closed",
			Message: fmt.Sprintf("%s was closed", label),
		}
	case domain.StatusExpired:
		recipient = h.CreatedBy
		params = Params{
			Type:    TypeExpired,
			Title:   "Record expired",
			Message: fmt.Sprintf("%s expired after its planned end date", label),
		}
	default:
		return
	}

	if recipient == "" {
		logger.Warn("no recipient for notification", zap.String("record_id", h.ID), zap.String("type", params.Type))
		return
	}
	params.RecipientID = recipient
	params.RecordID = h.ID

	if err := t.sender.Send(ctx, params); err != nil {
		logger.Error("failed to send workflow notification",
			zap.String("record_id", h.ID),
			zap.String("type", params.Type),
			zap.Error(err),
		)
	}
}

func describe(h *domain.Envelope) string {
	if h.ReferenceNumber != "" {
		return fmt.Sprintf("%s %s", h.Kind, h.ReferenceNumber)
	}
	return fmt.Sprintf("%s %s", h.Kind, h.ID)
}
