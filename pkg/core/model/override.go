package model

import (
	"maps"
	"slices"
)

// SpecialProgramOverride changes who runs a special program today
type SpecialProgramOverride struct {
	ProgramID   string `json:"programId"`
	TherapistID string `json:"therapistId,omitempty"`
	PCAID       string `json:"pcaId,omitempty"`
	Slots       []Slot `json:"slots,omitempty"`
}

// SubstitutionLink records a floating PCA covering the missing slots of a
// non-floating PCA. Owner is the step that created the link.
type SubstitutionLink struct {
	NonFloatingPCAID string `json:"nonFloatingPcaId"`
	Team             Team   `json:"team"`
	Slots            []Slot `json:"slots"`
	Owner            StepID `json:"owner"`
}

// Key identifies the gap the link covers
func (l SubstitutionLink) Key() string {
	return SubstitutionKey(l.Team, l.NonFloatingPCAID)
}

// SubstitutionKey builds the key of a non-floating PCA gap on a team
func SubstitutionKey(team Team, nonFloatingPCAID string) string {
	return string(team) + "::" + nonFloatingPCAID
}

// StaffOverride is everything a human changed about one staff member for the
// day. Fields are grouped by the workflow step that owns them:
//
//	leave-fte:      LeaveType, FTERemaining, FTESubtraction, AvailableSlots, InvalidSlots
//	therapist-pca:  Team, TherapistTeamFTEByTeam, SpecialProgramOverrides, Substitutions (Owner=therapist-pca)
//	floating-pca:   SlotOverrides, Substitutions (Owner=floating-pca)
//	(display only): CardColorByTeam
type StaffOverride struct {
	LeaveType LeaveType `json:"leaveType,omitempty"`
	// FTERemaining is the on-duty capacity after leave. Nil means the
	// staff member's base capacity.
	FTERemaining   *float64 `json:"fteRemaining,omitempty"`
	FTESubtraction *float64 `json:"fteSubtraction,omitempty"`
	// AvailableSlots is nil for the whole day. An empty list means no
	// slots and is stored as [] so it reloads the same way.
	AvailableSlots []Slot `json:"availableSlots"`
	InvalidSlots   []Slot `json:"invalidSlots,omitempty"`

	Team                    Team                     `json:"team,omitempty"`
	TherapistTeamFTEByTeam  map[Team]float64         `json:"therapistTeamFteByTeam,omitempty"`
	SpecialProgramOverrides []SpecialProgramOverride `json:"specialProgramOverrides,omitempty"`
	Substitutions           []SubstitutionLink       `json:"substitutionFor,omitempty"`

	SlotOverrides map[Slot]Team `json:"slotOverrides,omitempty"`

	CardColorByTeam map[Team]string `json:"cardColorByTeam,omitempty"`
}

// Clone returns a deep copy so callers can derive a new record without
// touching the original
func (o StaffOverride) Clone() StaffOverride {
	out := o
	if o.FTERemaining != nil {
		v := *o.FTERemaining
		out.FTERemaining = &v
	}
	if o.FTESubtraction != nil {
		v := *o.FTESubtraction
		out.FTESubtraction = &v
	}
	out.AvailableSlots = slices.Clone(o.AvailableSlots)
	out.InvalidSlots = slices.Clone(o.InvalidSlots)
	out.TherapistTeamFTEByTeam = maps.Clone(o.TherapistTeamFTEByTeam)
	if o.SpecialProgramOverrides != nil {
		out.SpecialProgramOverrides = make([]SpecialProgramOverride, len(o.SpecialProgramOverrides))
		for i, sp := range o.SpecialProgramOverrides {
			sp.Slots = slices.Clone(sp.Slots)
			out.SpecialProgramOverrides[i] = sp
		}
	}
	if o.Substitutions != nil {
		out.Substitutions = make([]SubstitutionLink, len(o.Substitutions))
		for i, l := range o.Substitutions {
			l.Slots = slices.Clone(l.Slots)
			out.Substitutions[i] = l
		}
	}
	out.SlotOverrides = maps.Clone(o.SlotOverrides)
	out.CardColorByTeam = maps.Clone(o.CardColorByTeam)
	return out
}

// IsEmpty reports whether the record carries no intent at all
func (o StaffOverride) IsEmpty() bool {
	return o.LeaveType == LeaveNone &&
		o.FTERemaining == nil &&
		o.FTESubtraction == nil &&
		o.AvailableSlots == nil &&
		len(o.InvalidSlots) == 0 &&
		o.Team == "" &&
		len(o.TherapistTeamFTEByTeam) == 0 &&
		len(o.SpecialProgramOverrides) == 0 &&
		len(o.Substitutions) == 0 &&
		len(o.SlotOverrides) == 0 &&
		len(o.CardColorByTeam) == 0
}

// EffectiveFTE returns the on-duty capacity given the staff member's base
func (o StaffOverride) EffectiveFTE(base float64) float64 {
	if o.FTERemaining != nil {
		return *o.FTERemaining
	}
	return base
}

// EffectiveSlots returns the slots the staff member can work today. When no
// explicit availability was recorded the whole day is available.
func (o StaffOverride) EffectiveSlots() []Slot {
	if o.AvailableSlots == nil {
		slots := slices.Clone(AllSlots)
		return slices.DeleteFunc(slots, func(s Slot) bool { return slices.Contains(o.InvalidSlots, s) })
	}
	slots := NormalizeSlots(o.AvailableSlots)
	return slices.DeleteFunc(slots, func(s Slot) bool { return slices.Contains(o.InvalidSlots, s) })
}
