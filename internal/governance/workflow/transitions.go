package workflow

import "hseptw.io/ptw/internal/domain"

type edge struct {
	from []domain.Status
	to   domain.Status
}

// edges is the full graph used by permits and interventions.
var edges = map[domain.Action]edge{
	domain.ActionSubmit:         {[]domain.Status{domain.StatusDraft}, domain.StatusPendingManagerReview},
	domain.ActionApproveManager: {[]domain.Status{domain.StatusPendingManagerReview}, domain.StatusPendingSafetyReview},
	domain.ActionRejectManager:  {[]domain.Status{domain.StatusPendingManagerReview}, domain.StatusRejected},
	domain.ActionApproveSafety:  {[]domain.Status{domain.StatusPendingSafetyReview}, domain.StatusValidated},
	domain.ActionRejectSafety:   {[]domain.Status{domain.StatusPendingSafetyReview}, domain.StatusRejected},
	domain.ActionStart:          {[]domain.Status{domain.StatusValidated}, domain.StatusInProgress},
	domain.ActionClose:          {[]domain.Status{domain.StatusInProgress}, domain.StatusClosed},
	domain.ActionExpire:         {[]domain.Status{domain.StatusValidated, domain.StatusInProgress}, domain.StatusExpired},
}

// supports reports whether kind takes part in action.
// Prevention plans are never executed, so they have no start or close.
func supports(kind domain.Kind, action domain.Action) bool {
	if kind == domain.KindPreventionPlan {
		return action != domain.ActionStart && action != domain.ActionClose
	}
	return kind.Valid()
}

// sources returns the statuses action may start from for kind.
// Prevention plans never reach in_progress.
func sources(kind domain.Kind, action domain.Action) []domain.Status {
	from := edges[action].from
	if kind != domain.KindPreventionPlan {
		return from
	}
	out := make([]domain.Status, 0, len(from))
	for _, s := range from {
		if s != domain.StatusInProgress {
			out = append(out, s)
		}
	}
	return out
}

func allowedFrom(kind domain.Kind, action domain.Action, status domain.Status) bool {
	for _, s := range sources(kind, action) {
		if s == status {
			return true
		}
	}
	return false
}

// Transitions returns the status graph of kind as from -> reachable targets.
func Transitions(kind domain.Kind) map[domain.Status][]domain.Status {
	out := make(map[domain.Status][]domain.Status)
	for action, e := range edges {
		if !supports(kind, action) {
			continue
		}
		for _, from := range sources(kind, action) {
			out[from] = appendUnique(out[from], e.to)
		}
	}
	return out
}

// Edge reports whether from -> to is a documented transition for kind.
func Edge(kind domain.Kind, from, to domain.Status) bool {
	for _, s := range Transitions(kind)[from] {
		if s == to {
			return true
		}
	}
	return false
}

func appendUnique(in []domain.Status, s domain.Status) []domain.Status {
	for _, v := range in {
		if v == s {
			return in
		}
	}
	return append(in, s)
}
