package domain

import "time"

// Decision is the outcome recorded by an approval entry.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Action names the workflow operation that produced an approval entry.
type Action string

const (
	ActionSubmit         Action = "submit"
	ActionApproveManager Action = "approve_manager"
	ActionRejectManager  Action = "reject_manager"
	ActionApproveSafety  Action = "approve_safety"
	ActionRejectSafety   Action = "reject_safety"
	ActionStart          Action = "start"
	ActionClose          Action = "close"
	ActionExpire         Action = "expire"
)

// Approval is one entry of the append-only audit log of a record.
type Approval struct {
	Action     Action    `json:"action"`
	ActorRole  string    `json:"actor_role"`
	ActorID    string    `json:"actor_id"`
	Decision   Decision  `json:"decision"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Comment    string    `json:"comment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
