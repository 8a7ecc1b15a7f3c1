package overrides

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// Field names a single override field
type Field string

const (
	FieldLeaveType        Field = "leaveType"
	FieldFTERemaining     Field = "fteRemaining"
	FieldFTESubtraction   Field = "fteSubtraction"
	FieldAvailableSlots   Field = "availableSlots"
	FieldInvalidSlots     Field = "invalidSlots"
	FieldTeam             Field = "team"
	FieldTherapistTeamFTE Field = "therapistTeamFTEByTeam"
	FieldSpecialPrograms  Field = "specialProgramOverrides"
	FieldSubstitutions    Field = "substitutionFor"
	FieldSlotOverrides    Field = "slotOverrides"
	FieldCardColorByTeam  Field = "cardColorByTeam"
)

// fieldOwners maps each field to the step that owns it. Substitution links
// carry their own owner and are handled per link. Display-only fields have no
// owner and survive every step clear.
var fieldOwners = map[Field]model.StepID{
	FieldLeaveType:        model.StepLeaveFTE,
	FieldFTERemaining:     model.StepLeaveFTE,
	FieldFTESubtraction:   model.StepLeaveFTE,
	FieldAvailableSlots:   model.StepLeaveFTE,
	FieldInvalidSlots:     model.StepLeaveFTE,
	FieldTeam:             model.StepTherapistPCA,
	FieldTherapistTeamFTE: model.StepTherapistPCA,
	FieldSpecialPrograms:  model.StepTherapistPCA,
	FieldSlotOverrides:    model.StepFloatingPCA,
}

// Owner returns the step owning the field, or "" for unowned fields
func Owner(f Field) model.StepID {
	return fieldOwners[f]
}

// Patch is a partial update to a staff override. Nil fields are left alone.
// Maps are merged key by key (an empty value deletes the key), substitution
// links are added without duplicates, and Clear removes whole fields before
// anything is set. Applying the same patch twice gives the same record as
// applying it once.
type Patch struct {
	LeaveType               *model.LeaveType
	FTERemaining            *float64     `validate:"omitempty,min=0,max=1"`
	FTESubtraction          *float64     `validate:"omitempty,min=0,max=1"`
	AvailableSlots          []model.Slot `validate:"omitempty,dive,min=1,max=4"`
	InvalidSlots            []model.Slot `validate:"omitempty,dive,min=1,max=4"`
	Team                    *model.Team
	TherapistTeamFTEByTeam  map[model.Team]float64 `validate:"omitempty,dive,min=0,max=1"`
	SpecialProgramOverrides []model.SpecialProgramOverride
	AddSubstitutions        []model.SubstitutionLink
	SlotOverrides           map[model.Slot]model.Team
	CardColorByTeam         map[model.Team]string
	Clear                   []Field
}

var validate = validator.New()

// Validate checks value ranges and enum membership of the patch
func (p Patch) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("override patch validation failed: %w", err)
	}
	if p.LeaveType != nil && !p.LeaveType.IsValid() {
		return fmt.Errorf("invalid leave type %q", *p.LeaveType)
	}
	if p.Team != nil && *p.Team != "" && !p.Team.IsValid() {
		return fmt.Errorf("invalid team %q", *p.Team)
	}
	for team := range p.TherapistTeamFTEByTeam {
		if !team.IsValid() {
			return fmt.Errorf("invalid team %q in therapist split", team)
		}
	}
	for slot, team := range p.SlotOverrides {
		if !slot.IsValid() {
			return fmt.Errorf("invalid slot %d in slot overrides", slot)
		}
		if team != "" && !team.IsValid() {
			return fmt.Errorf("invalid team %q in slot overrides", team)
		}
	}
	for _, link := range p.AddSubstitutions {
		if link.NonFloatingPCAID == "" || !link.Team.IsValid() {
			return fmt.Errorf("substitution link needs a non-floating PCA and a team")
		}
		if link.Owner != model.StepTherapistPCA && link.Owner != model.StepFloatingPCA {
			return fmt.Errorf("substitution link owner must be %s or %s", model.StepTherapistPCA, model.StepFloatingPCA)
		}
		if err := model.ValidateSlots(link.Slots); err != nil {
			return fmt.Errorf("substitution link: %w", err)
		}
	}
	for _, f := range p.Clear {
		if _, ok := fieldOwners[f]; !ok && f != FieldSubstitutions && f != FieldCardColorByTeam {
			return fmt.Errorf("unknown override field %q", f)
		}
	}
	return nil
}

// Overrides maps staff id to that staff member's override record. Values are
// never modified in place: every operation returns a new map, so a previous
// map can be kept as an undo snapshot.
type Overrides map[string]model.StaffOverride

// Get returns a copy of the staff member's record
func (o Overrides) Get(staffID string) (model.StaffOverride, bool) {
	rec, ok := o[staffID]
	if !ok {
		return model.StaffOverride{}, false
	}
	return rec.Clone(), true
}

// Apply merges the patch into the staff member's record. Sibling fields not
// named by the patch are preserved.
func (o Overrides) Apply(staffID string, p Patch) (Overrides, error) {
	if staffID == "" {
		return nil, fmt.Errorf("staff id is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	rec := model.StaffOverride{}
	if existing, ok := o[staffID]; ok {
		rec = existing.Clone()
	}

	for _, f := range p.Clear {
		rec = clearField(rec, f)
	}

	if p.LeaveType != nil {
		rec.LeaveType = *p.LeaveType
	}
	if p.FTERemaining != nil {
		v := *p.FTERemaining
		rec.FTERemaining = &v
	}
	if p.FTESubtraction != nil {
		v := *p.FTESubtraction
		rec.FTESubtraction = &v
	}
	if p.AvailableSlots != nil {
		rec.AvailableSlots = model.NormalizeSlots(p.AvailableSlots)
	}
	if p.InvalidSlots != nil {
		rec.InvalidSlots = model.NormalizeSlots(p.InvalidSlots)
	}
	if p.Team != nil {
		rec.Team = *p.Team
	}
	if p.TherapistTeamFTEByTeam != nil {
		rec.TherapistTeamFTEByTeam = maps.Clone(p.TherapistTeamFTEByTeam)
	}
	if p.SpecialProgramOverrides != nil {
		rec.SpecialProgramOverrides = slices.Clone(p.SpecialProgramOverrides)
	}
	for _, link := range p.AddSubstitutions {
		rec.Substitutions = addLink(rec.Substitutions, link)
	}
	if p.SlotOverrides != nil {
		if rec.SlotOverrides == nil {
			rec.SlotOverrides = make(map[model.Slot]model.Team)
		}
		for slot, team := range p.SlotOverrides {
			if team == "" {
				delete(rec.SlotOverrides, slot)
			} else {
				rec.SlotOverrides[slot] = team
			}
		}
		if len(rec.SlotOverrides) == 0 {
			rec.SlotOverrides = nil
		}
	}
	if p.CardColorByTeam != nil {
		if rec.CardColorByTeam == nil {
			rec.CardColorByTeam = make(map[model.Team]string)
		}
		for team, color := range p.CardColorByTeam {
			if color == "" {
				delete(rec.CardColorByTeam, team)
			} else {
				rec.CardColorByTeam[team] = color
			}
		}
		if len(rec.CardColorByTeam) == 0 {
			rec.CardColorByTeam = nil
		}
	}

	return o.with(staffID, rec), nil
}

// Replace swaps in a whole record for the staff member
func (o Overrides) Replace(staffID string, rec model.StaffOverride) Overrides {
	return o.with(staffID, rec.Clone())
}

// RemoveSubstitutionsTargeting drops every substitution link covering one of
// the given gaps (see model.SubstitutionKey). Used when a substitution is
// redone so stale links do not double-book a floating PCA.
func (o Overrides) RemoveSubstitutionsTargeting(targetKeys []string) Overrides {
	if len(targetKeys) == 0 {
		return o
	}
	out := o
	for staffID, rec := range o {
		if len(rec.Substitutions) == 0 {
			continue
		}
		kept := slices.DeleteFunc(slices.Clone(rec.Substitutions), func(l model.SubstitutionLink) bool {
			return slices.Contains(targetKeys, l.Key())
		})
		if len(kept) == len(rec.Substitutions) {
			continue
		}
		next := rec.Clone()
		next.Substitutions = kept
		if len(kept) == 0 {
			next.Substitutions = nil
		}
		out = out.with(staffID, next)
	}
	return out
}

// ClearOwnedFrom removes every field owned by the given step or any later
// step. Fields owned by earlier steps and display-only fields survive.
func (o Overrides) ClearOwnedFrom(step model.StepID) Overrides {
	from := step.Index()
	if from < 0 {
		return o
	}

	owned := func(owner model.StepID) bool {
		return owner != "" && owner.Index() >= from
	}

	out := o
	for staffID, rec := range o {
		next := rec.Clone()
		for f, owner := range fieldOwners {
			if owned(owner) {
				next = clearField(next, f)
			}
		}
		next.Substitutions = slices.DeleteFunc(next.Substitutions, func(l model.SubstitutionLink) bool {
			return owned(l.Owner)
		})
		if len(next.Substitutions) == 0 {
			next.Substitutions = nil
		}
		out = out.with(staffID, next)
	}
	return out
}

// SubstitutionsFor returns the links held by floating PCAs for the gap
func (o Overrides) SubstitutionsFor(team model.Team, nonFloatingPCAID string) map[string]model.SubstitutionLink {
	key := model.SubstitutionKey(team, nonFloatingPCAID)
	out := make(map[string]model.SubstitutionLink)
	for staffID, rec := range o {
		for _, l := range rec.Substitutions {
			if l.Key() == key {
				out[staffID] = l
			}
		}
	}
	return out
}

// CheckCapacity verifies fteRemaining + fteSubtraction does not exceed the
// staff member's base capacity
func CheckCapacity(rec model.StaffOverride, base float64) error {
	remaining := base
	if rec.FTERemaining != nil {
		remaining = *rec.FTERemaining
	}
	subtraction := 0.0
	if rec.FTESubtraction != nil {
		subtraction = *rec.FTESubtraction
	}
	total := capacity.Sum(remaining, subtraction)
	if total > base && !capacity.Equal(total, base) {
		return fmt.Errorf("fte remaining %.2f plus leave cost %.2f exceeds capacity %.2f", remaining, subtraction, base)
	}
	return nil
}

// with returns a new map with the record set, pruning empty records
func (o Overrides) with(staffID string, rec model.StaffOverride) Overrides {
	out := make(Overrides, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	if rec.IsEmpty() {
		delete(out, staffID)
	} else {
		out[staffID] = rec
	}
	return out
}

func clearField(rec model.StaffOverride, f Field) model.StaffOverride {
	switch f {
	case FieldLeaveType:
		rec.LeaveType = model.LeaveNone
	case FieldFTERemaining:
		rec.FTERemaining = nil
	case FieldFTESubtraction:
		rec.FTESubtraction = nil
	case FieldAvailableSlots:
		rec.AvailableSlots = nil
	case FieldInvalidSlots:
		rec.InvalidSlots = nil
	case FieldTeam:
		rec.Team = ""
	case FieldTherapistTeamFTE:
		rec.TherapistTeamFTEByTeam = nil
	case FieldSpecialPrograms:
		rec.SpecialProgramOverrides = nil
	case FieldSubstitutions:
		rec.Substitutions = nil
	case FieldSlotOverrides:
		rec.SlotOverrides = nil
	case FieldCardColorByTeam:
		rec.CardColorByTeam = nil
	}
	return rec
}

func addLink(links []model.SubstitutionLink, link model.SubstitutionLink) []model.SubstitutionLink {
	link.Slots = model.NormalizeSlots(link.Slots)
	for i, existing := range links {
		if existing.Key() == link.Key() && existing.Owner == link.Owner {
			links[i] = link
			return links
		}
	}
	return append(links, link)
}
