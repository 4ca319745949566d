package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies a record variant.
type Kind string

const (
	KindPreventionPlan   Kind = "prevention_plan"
	KindGeneralPermit    Kind = "general_permit"
	KindHeightPermit     Kind = "height_permit"
	KindElectricalPermit Kind = "electrical_permit"
	KindIntervention     Kind = "intervention"
)

// Kinds lists every record variant.
var Kinds = []Kind{KindPreventionPlan, KindGeneralPermit, KindHeightPermit, KindElectricalPermit, KindIntervention}

// Valid reports whether k is a known variant.
func (k Kind) Valid() bool {
	switch k {
	case KindPreventionPlan, KindGeneralPermit, KindHeightPermit, KindElectricalPermit, KindIntervention:
		return true
	}
	return false
}

// IsPermit reports whether k is one of the three permit kinds.
func (k Kind) IsPermit() bool {
	return k == KindGeneralPermit || k == KindHeightPermit || k == KindElectricalPermit
}

// Envelope is the part of a record owned by the workflow.
// Only the workflow engine changes Status, Approvals and ReferenceNumber.
type Envelope struct {
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	Status          Status     `json:"status"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	ModifiedBy      string     `json:"modified_by,omitempty"`
	ModifiedAt      time.Time  `json:"modified_at"`
	Approvals       []Approval `json:"approvals"`
	ReferenceNumber string     `json:"reference_number,omitempty"`
	PlannedStart    *time.Time `json:"planned_start,omitempty"`
	PlannedEnd      *time.Time `json:"planned_end,omitempty"`
	ClosingComment  string     `json:"closing_comment,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	// Version is bumped by the repository on every write.
	Version int64 `json:"version"`
}

// Header returns the envelope itself.
func (e *Envelope) Header() *Envelope { return e }

func (e *Envelope) sealed() {}

func (e Envelope) clone() Envelope {
	out := e
	out.Approvals = make([]Approval, len(e.Approvals))
	copy(out.Approvals, e.Approvals)
	out.PlannedStart = cloneTime(e.PlannedStart)
	out.PlannedEnd = cloneTime(e.PlannedEnd)
	out.ClosedAt = cloneTime(e.ClosedAt)
	return out
}

// Record is implemented by the five record variants only.
type Record interface {
	Header() *Envelope
	// Clone returns a deep copy.
	Clone() Record
	// Risks returns the live risk entries of the record, nil when it has none.
	Risks() []RiskEntry
	sealed()
}

// PreventionPlan is the contractor's risk assessment, prerequisite to any permit.
type PreventionPlan struct {
	Envelope
	Contractor      string      `json:"contractor"`
	Site            string      `json:"site"`
	WorkDescription string      `json:"work_description"`
	RiskEntries     []RiskEntry `json:"risks"`
}

// Clone implements Record.
func (p *PreventionPlan) Clone() Record {
	out := *p
	out.Envelope = p.Envelope.clone()
	out.RiskEntries = cloneRisks(p.RiskEntries)
	return &out
}

// Risks implements Record.
func (p *PreventionPlan) Risks() []RiskEntry { return p.RiskEntries }

// PermitDetails are the fields shared by the three permit kinds.
type PermitDetails struct {
	PreventionPlanID string      `json:"prevention_plan_id"`
	Location         string      `json:"location"`
	WorkNature       string      `json:"work_nature"`
	Hazards          []string    `json:"hazards,omitempty"`
	RiskEntries      []RiskEntry `json:"risks"`
}

func (d PermitDetails) copyDetails() PermitDetails {
	out := d
	out.Hazards = append([]string(nil), d.Hazards...)
	out.RiskEntries = cloneRisks(d.RiskEntries)
	return out
}

// GeneralPermit authorises ordinary work under a prevention plan.
type GeneralPermit struct {
	Envelope
	PermitDetails
}

// Clone implements Record.
func (p *GeneralPermit) Clone() Record {
	return &GeneralPermit{Envelope: p.Envelope.clone(), PermitDetails: p.PermitDetails.copyDetails()}
}

// Risks implements Record.
func (p *GeneralPermit) Risks() []RiskEntry { return p.RiskEntries }

// HeightPermit authorises work at height.
type HeightPermit struct {
	Envelope
	PermitDetails
	MaxHeightMeters float64  `json:"max_height_m"`
	AccessEquipment string   `json:"access_equipment"`
	FallProtection  []string `json:"fall_protection,omitempty"`
}

// Clone implements Record.
func (p *HeightPermit) Clone() Record {
	out := *p
	out.Envelope = p.Envelope.clone()
	out.PermitDetails = p.PermitDetails.copyDetails()
	out.FallProtection = append([]string(nil), p.FallProtection...)
	return &out
}

// Risks implements Record.
func (p *HeightPermit) Risks() []RiskEntry { return p.RiskEntries }

// ElectricalPermit authorises work on electrical installations.
type ElectricalPermit struct {
	Envelope
	PermitDetails
	VoltageLevel          string   `json:"voltage_level"`
	LockoutPoints         []string `json:"lockout_points,omitempty"`
	AuthorizedElectrician string   `json:"authorized_electrician"`
}

// Clone implements Record.
func (p *ElectricalPermit) Clone() Record {
	out := *p
	out.Envelope = p.Envelope.clone()
	out.PermitDetails = p.PermitDetails.copyDetails()
	out.LockoutPoints = append([]string(nil), p.LockoutPoints...)
	return &out
}

// Risks implements Record.
func (p *ElectricalPermit) Risks() []RiskEntry { return p.RiskEntries }

// Intervention is the field execution of a permit.
type Intervention struct {
	Envelope
	PermitID         string            `json:"permit_id"`
	Description      string            `json:"description"`
	DailyValidations []DailyValidation `json:"daily_validations,omitempty"`
	Take5s           []Take5           `json:"take5,omitempty"`
}

// Clone implements Record.
func (i *Intervention) Clone() Record {
	out := *i
	out.Envelope = i.Envelope.clone()
	out.DailyValidations = append([]DailyValidation(nil), i.DailyValidations...)
	out.Take5s = make([]Take5, len(i.Take5s))
	for n, t := range i.Take5s {
		t.RiskEntries = cloneRisks(t.RiskEntries)
		out.Take5s[n] = t
	}
	if i.Take5s == nil {
		out.Take5s = nil
	}
	return &out
}

// Risks implements Record. Take 5 risks are rated per session, not here.
func (i *Intervention) Risks() []RiskEntry { return nil }

// New returns an empty record of kind k.
func New(k Kind) (Record, error) {
	var rec Record
	switch k {
	case KindPreventionPlan:
		rec = &PreventionPlan{}
	case KindGeneralPermit:
		rec = &GeneralPermit{}
	case KindHeightPermit:
		rec = &HeightPermit{}
	case KindElectricalPermit:
		rec = &ElectricalPermit{}
	case KindIntervention:
		rec = &Intervention{}
	default:
		return nil, fmt.Errorf("unknown record kind %q", k)
	}
	rec.Header().Kind = k
	return rec, nil
}

// Decode unmarshals data into the variant named by k.
func Decode(k Kind, data []byte) (Record, error) {
	rec, err := New(k)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	rec.Header().Kind = k
	return rec, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
