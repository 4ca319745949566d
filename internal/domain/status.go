// Package domain provides the record model of the permit-to-work service.
//
// Records form a closed set of variants (PreventionPlan, GeneralPermit,
// HeightPermit, ElectricalPermit, Intervention) sharing one Envelope that
// carries status, approvals and the reference number.
package domain

// Status is the workflow status of a record.
type Status string

const (
	StatusDraft                Status = "draft"
	StatusPendingManagerReview Status = "pending_manager_review"
	StatusPendingSafetyReview  Status = "pending_safety_review"
	StatusValidated            Status = "validated"
	StatusInProgress           Status = "in_progress"
	StatusClosed               Status = "closed"
	StatusRejected             Status = "rejected"
	StatusExpired              Status = "expired"
)

// StatusMeta is the presentation metadata of a status.
type StatusMeta struct {
	Status   Status `json:"status"`
	Label    string `json:"label"`
	Color    string `json:"color"`
	Terminal bool   `json:"terminal"`
	Order    int    `json:"order"`
}

var statusTable = map[Status]StatusMeta{
	StatusDraft:                {StatusDraft, "Brouillon", "#9e9e9e", false, 0},
	StatusPendingManagerReview: {StatusPendingManagerReview, "En attente chef de projet", "#ff9800", false, 1},
	StatusPendingSafetyReview:  {StatusPendingSafetyReview, "En attente HSE", "#ffc107", false, 2},
	StatusValidated:            {StatusValidated, "Validé", "#4caf50", false, 3},
	StatusInProgress:           {StatusInProgress, "En cours", "#2196f3", false, 4},
	StatusClosed:               {StatusClosed, "Clôturé", "#607d8b", true, 5},
	StatusRejected:             {StatusRejected, "Rejeté", "#f44336", true, 6},
	StatusExpired:              {StatusExpired, "Expiré", "#795548", true, 7},
}

// Meta returns the metadata of s.
func (s Status) Meta() (StatusMeta, bool) {
	m, ok := statusTable[s]
	return m, ok
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusTable[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transition.
func (s Status) IsTerminal() bool {
	return statusTable[s].Terminal
}

// HasReference reports whether a record in status s must carry a reference number.
func (s Status) HasReference() bool {
	switch s {
	case StatusValidated, StatusInProgress, StatusClosed, StatusExpired:
		return true
	}
	return false
}

// Statuses returns the metadata table in display order.
func Statuses() []StatusMeta {
	out := make([]StatusMeta, len(statusTable))
	for _, m := range statusTable {
		out[m.Order] = m
	}
	return out
}
