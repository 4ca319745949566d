package domain

import "hseptw.io/ptw/internal/risk"

// RiskEntry is one identified hazard with its rating and mitigations.
// RiskLevel is derived from Severity and Probability, set it through Rate or Rerate.
type RiskEntry struct {
	Hazard      string           `json:"hazard"`
	Severity    risk.Severity    `json:"severity"`
	Probability risk.Probability `json:"probability"`
	RiskLevel   risk.Level       `json:"risk_level"`
	Mitigations string           `json:"mitigations"`
}

// Rate sets severity and probability and recomputes the level.
func (r *RiskEntry) Rate(s risk.Severity, p risk.Probability) {
	r.Severity = s
	r.Probability = p
	r.RiskLevel = risk.Evaluate(s, p)
}

// Rerate recomputes the level from the current severity and probability.
func (r *RiskEntry) Rerate() {
	r.RiskLevel = risk.Evaluate(r.Severity, r.Probability)
}

// Consistent reports whether the stored level matches the matrix.
func (r RiskEntry) Consistent() bool {
	return r.RiskLevel == risk.Evaluate(r.Severity, r.Probability)
}

// RerateAll recomputes every level in place.
func RerateAll(entries []RiskEntry) {
	for i := range entries {
		entries[i].Rerate()
	}
}

func cloneRisks(in []RiskEntry) []RiskEntry {
	if in == nil {
		return nil
	}
	return append([]RiskEntry(nil), in...)
}
