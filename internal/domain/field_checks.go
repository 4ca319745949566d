package domain

import (
	"fmt"
	"strings"
	"time"
)

// DailyValidation is a per-day checkpoint recorded against an in-progress intervention.
type DailyValidation struct {
	Date            time.Time `json:"date"`
	ProgressPercent int       `json:"progress_percent"`
	ValidatedBy     string    `json:"validated_by"`
	Comment         string    `json:"comment,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// LatestProgress returns the progress of the most recent daily validation.
// The latest entry has the greatest Date; on equal dates the later one recorded wins.
func (i *Intervention) LatestProgress() (int, bool) {
	if len(i.DailyValidations) == 0 {
		return 0, false
	}
	latest := 0
	for n := 1; n < len(i.DailyValidations); n++ {
		if !i.DailyValidations[n].Date.Before(i.DailyValidations[latest].Date) {
			latest = n
		}
	}
	return i.DailyValidations[latest].ProgressPercent, true
}

// Take5Steps are the five ticks of a Take 5 safety pause.
type Take5Steps struct {
	Stop    bool `json:"stop"`
	Observe bool `json:"observe"`
	Analyze bool `json:"analyze"`
	Control bool `json:"control"`
	Proceed bool `json:"proceed"`
}

// Take5 is a safety pause recorded at the start of a work session.
type Take5 struct {
	PerformedBy string      `json:"performed_by"`
	PerformedAt time.Time   `json:"performed_at"`
	Steps       Take5Steps  `json:"steps"`
	RiskEntries []RiskEntry `json:"risks,omitempty"`
}

// Missing lists what keeps t from being complete, as field paths.
func (t Take5) Missing() []string {
	var missing []string
	steps := []struct {
		name string
		done bool
	}{
		{"steps.stop", t.Steps.Stop},
		{"steps.observe", t.Steps.Observe},
		{"steps.analyze", t.Steps.Analyze},
		{"steps.control", t.Steps.Control},
		{"steps.proceed", t.Steps.Proceed},
	}
	for _, s := range steps {
		if !s.done {
			missing = append(missing, s.name)
		}
	}
	missing = append(missing, MissingMitigations(t.RiskEntries)...)
	return missing
}

// MissingMitigations lists the field paths of entries without mitigations.
func MissingMitigations(entries []RiskEntry) []string {
	var missing []string
	for i, r := range entries {
		if strings.TrimSpace(r.Mitigations) == "" {
			missing = append(missing, fmt.Sprintf("risks[%d].mitigations", i))
		}
	}
	return missing
}
