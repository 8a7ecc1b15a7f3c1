package workflow

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/overrides"
)

var validate = validator.New()

// edit applies fn to a working copy of the day and, if it succeeds, commits
// the copy and records an undo checkpoint over the touched parts
func (c *Controller) edit(label string, parts part, fn func(w *DayState) error) (err error) {
	defer c.guard(label, &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.state.Clone()
	if err := fn(w); err != nil {
		return err
	}

	parts |= partStatus
	cp := checkpoint{
		ID:     uuid.NewString(),
		Label:  label,
		parts:  parts,
		before: capture(c.state, parts),
		after:  capture(w, parts),
	}
	c.state = w
	c.history.push(cp)

	c.logger.Debug("Applied edit", zap.String("edit", label), zap.String("checkpoint", cp.ID))
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEdit, fmt.Sprintf(format, args...))
}

// adjustPending moves a team's pending need by delta, never below zero
func adjustPending(w *DayState, team model.Team, delta float64) {
	w.Pending[team] = max(0, capacity.Sum(w.Pending[team], delta))
}

// pcaFor returns the index and a copy of the staff member's PCA allocation
func pcaFor(w *DayState, staffID string) (int, model.PCAAllocation, error) {
	i := w.Allocations.FindPCA(staffID)
	if i < 0 {
		return -1, model.PCAAllocation{}, fmt.Errorf("%w: no PCA allocation for %s", ErrUnknownStaff, staffID)
	}
	return i, w.Allocations.PCAs[i].Clone(), nil
}

// slotStep is the step whose output a slot edit on the staff member changes
func slotStep(w *DayState, staffID string) model.StepID {
	if w.isFloating(staffID) {
		return model.StepFloatingPCA
	}
	return model.StepTherapistPCA
}

// pinSlots records the slot owners of a floating PCA so a Step 3 re-run
// keeps them. An empty team unpins the slot.
func pinSlots(w *DayState, staffID string, slots []model.Slot, team model.Team) error {
	if !w.isFloating(staffID) {
		return nil
	}
	pins := make(map[model.Slot]model.Team, len(slots))
	for _, slot := range slots {
		pins[slot] = team
	}
	next, err := w.Overrides.Apply(staffID, overrides.Patch{SlotOverrides: pins})
	if err != nil {
		return err
	}
	w.Overrides = next
	return nil
}

func checkSlots(slots []model.Slot) error {
	if len(slots) == 0 {
		return invalid("no slots given")
	}
	if err := model.ValidateSlots(slots); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// keepPrimaryTeam moves the allocation's primary team when it no longer
// owns any slot
func keepPrimaryTeam(p *model.PCAAllocation) {
	teams := p.Slots.Teams()
	if len(teams) > 0 && !slices.Contains(teams, p.Team) {
		p.Team = teams[0]
	}
}

// MoveSlots hands slots of a PCA from one team to another. Pending need
// follows the slots.
func (c *Controller) MoveSlots(staffID string, from, to model.Team, slots []model.Slot) error {
	return c.edit("move slots", partPCAs|partPending|partOverrides, func(w *DayState) error {
		if !to.IsValid() {
			return invalid("unknown team %q", to)
		}
		if err := checkSlots(slots); err != nil {
			return err
		}
		i, p, err := pcaFor(w, staffID)
		if err != nil {
			return err
		}

		for _, slot := range slots {
			if p.Slots.Get(slot) != from {
				return invalid("slot %d of %s is not assigned to %s", slot, staffID, from)
			}
			p.Slots = p.Slots.With(slot, to)
			if !slices.Contains(p.ProgramSlots, slot) {
				adjustPending(w, from, model.SlotFTE)
				adjustPending(w, to, -model.SlotFTE)
			}
		}
		keepPrimaryTeam(&p)
		w.Allocations.PCAs[i] = p

		w.markModified(slotStep(w, staffID))
		return pinSlots(w, staffID, slots, to)
	})
}

// DiscardSlots frees slots a team holds on a PCA. The PCA's capacity is
// unchanged and the team's pending need grows by a quarter per slot.
func (c *Controller) DiscardSlots(staffID string, team model.Team, slots []model.Slot) error {
	return c.edit("discard slots", partPCAs|partPending|partOverrides, func(w *DayState) error {
		if err := checkSlots(slots); err != nil {
			return err
		}
		i, p, err := pcaFor(w, staffID)
		if err != nil {
			return err
		}

		for _, slot := range slots {
			if p.Slots.Get(slot) != team {
				return invalid("slot %d of %s is not assigned to %s", slot, staffID, team)
			}
			p.Slots = p.Slots.With(slot, "")
			p.FTERemaining = capacity.Sum(p.FTERemaining, model.SlotFTE)
			if idx := slices.Index(p.ProgramSlots, slot); idx >= 0 {
				p.ProgramSlots = slices.Delete(p.ProgramSlots, idx, idx+1)
				continue
			}
			adjustPending(w, team, model.SlotFTE)
		}
		keepPrimaryTeam(&p)
		w.Allocations.PCAs[i] = p

		w.markModified(slotStep(w, staffID))
		return pinSlots(w, staffID, slots, "")
	})
}

// AssignSlot gives a free slot of a PCA to a team
func (c *Controller) AssignSlot(staffID string, team model.Team, slot model.Slot) error {
	return c.edit("assign slot", partPCAs|partPending|partOverrides, func(w *DayState) error {
		if !team.IsValid() {
			return invalid("unknown team %q", team)
		}
		if err := checkSlots([]model.Slot{slot}); err != nil {
			return err
		}
		i, p, err := pcaFor(w, staffID)
		if err != nil {
			return err
		}

		if owner := p.Slots.Get(slot); owner != "" {
			return invalid("slot %d of %s already belongs to %s", slot, staffID, owner)
		}
		rec := w.Overrides[staffID]
		if !slices.Contains(rec.EffectiveSlots(), slot) || slot == p.InvalidSlot {
			return invalid("%s cannot work slot %d", staffID, slot)
		}
		if p.FTERemaining < model.SlotFTE && !capacity.Equal(p.FTERemaining, model.SlotFTE) {
			return invalid("%s has no capacity left", staffID)
		}

		p.Slots = p.Slots.With(slot, team)
		p.FTERemaining = max(0, capacity.Sum(p.FTERemaining, -model.SlotFTE))
		if p.Team == "" {
			p.Team = team
		}
		w.Allocations.PCAs[i] = p
		adjustPending(w, team, -model.SlotFTE)

		w.markModified(slotStep(w, staffID))
		return pinSlots(w, staffID, []model.Slot{slot}, team)
	})
}

// LeaveEdit is a change to a staff member's leave for the day. Nil fields
// are left alone.
type LeaveEdit struct {
	LeaveType      *model.LeaveType
	FTERemaining   *float64
	FTESubtraction *float64
	AvailableSlots []model.Slot
	InvalidSlots   []model.Slot
}

// EditLeave records leave against a staff member. Picking a leave type
// without amounts fills in the type's usual leave cost.
func (c *Controller) EditLeave(staffID string, e LeaveEdit) error {
	return c.edit("edit leave", partOverrides|partPending|partTargets|partBeds, func(w *DayState) error {
		st, ok := w.staffByID(staffID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStaff, staffID)
		}

		patch := overrides.Patch{
			LeaveType:      e.LeaveType,
			FTERemaining:   e.FTERemaining,
			FTESubtraction: e.FTESubtraction,
			AvailableSlots: e.AvailableSlots,
			InvalidSlots:   e.InvalidSlots,
		}
		if e.LeaveType != nil && e.FTERemaining == nil && e.FTESubtraction == nil {
			if cost := e.LeaveType.DefaultFTESubtraction(); cost > 0 {
				remaining := max(0, capacity.Sum(st.BaseCapacity(), -cost))
				patch.FTESubtraction = &cost
				patch.FTERemaining = &remaining
			}
		}

		next, err := w.Overrides.Apply(staffID, patch)
		if err != nil {
			return invalid("%v", err)
		}
		if err := overrides.CheckCapacity(next[staffID], st.BaseCapacity()); err != nil {
			return invalid("%v", err)
		}
		w.Overrides = next

		w.markModified(model.StepLeaveFTE)
		refreshCapacity(w, c.settings)
		return nil
	})
}

// therapistRows returns the staff member's therapist rows and their total
// FTE
func therapistRows(w *DayState, staffID string) ([]model.TherapistAllocation, float64) {
	var rows []model.TherapistAllocation
	total := 0.0
	for _, t := range w.Allocations.Therapists {
		if t.StaffID == staffID {
			rows = append(rows, t)
			total = capacity.Sum(total, t.FTE)
		}
	}
	return rows, total
}

// replaceTherapistRows swaps the staff member's rows for one row per team,
// in the fixed team order
func replaceTherapistRows(w *DayState, template model.TherapistAllocation, fteByTeam map[model.Team]float64) {
	w.Allocations.Therapists = slices.DeleteFunc(w.Allocations.Therapists, func(t model.TherapistAllocation) bool {
		return t.StaffID == template.StaffID
	})
	for _, team := range model.AllTeams {
		fte, ok := fteByTeam[team]
		if !ok || fte <= 0 {
			continue
		}
		row := template
		row.ID = uuid.NewString()
		row.Team = team
		row.FTE = fte
		row.Slots = slices.Clone(template.Slots)
		row.SpecialProgramIDs = slices.Clone(template.SpecialProgramIDs)
		w.Allocations.Therapists = append(w.Allocations.Therapists, row)
	}
}

// SplitTherapist spreads a therapist's on-duty FTE across several teams.
// The split must add up to the FTE the therapist is already allocated.
func (c *Controller) SplitTherapist(staffID string, fteByTeam map[model.Team]float64) error {
	return c.edit("split therapist", partOverrides|partTherapists|partPending|partTargets|partBeds, func(w *DayState) error {
		rows, total := therapistRows(w, staffID)
		if len(rows) == 0 {
			return fmt.Errorf("%w: no therapist allocation for %s", ErrUnknownStaff, staffID)
		}

		split := make(map[model.Team]float64, len(fteByTeam))
		sum := 0.0
		for team, fte := range fteByTeam {
			if !team.IsValid() {
				return invalid("unknown team %q", team)
			}
			if fte < 0 {
				return invalid("negative FTE for %s", team)
			}
			if fte > 0 {
				split[team] = capacity.RoundToQuarter(fte)
				sum = capacity.Sum(sum, split[team])
			}
		}
		if len(split) < 2 {
			return invalid("a split needs at least two teams")
		}
		if !capacity.Equal(sum, total) {
			return invalid("split adds up to %.2f but %s is on duty for %.2f", sum, staffID, total)
		}

		next, err := w.Overrides.Apply(staffID, overrides.Patch{TherapistTeamFTEByTeam: split})
		if err != nil {
			return invalid("%v", err)
		}
		w.Overrides = next
		replaceTherapistRows(w, rows[0], split)

		w.markModified(model.StepTherapistPCA)
		refreshCapacity(w, c.settings)
		return nil
	})
}

// MergeTherapist puts all of a therapist's FTE back on one team
func (c *Controller) MergeTherapist(staffID string, team model.Team) error {
	return c.edit("merge therapist", partOverrides|partTherapists|partPending|partTargets|partBeds, func(w *DayState) error {
		if !team.IsValid() {
			return invalid("unknown team %q", team)
		}
		rows, total := therapistRows(w, staffID)
		if len(rows) == 0 {
			return fmt.Errorf("%w: no therapist allocation for %s", ErrUnknownStaff, staffID)
		}

		next, err := w.Overrides.Apply(staffID, overrides.Patch{
			Team:  &team,
			Clear: []overrides.Field{overrides.FieldTherapistTeamFTE},
		})
		if err != nil {
			return invalid("%v", err)
		}
		w.Overrides = next
		replaceTherapistRows(w, rows[0], map[model.Team]float64{team: total})

		w.markModified(model.StepTherapistPCA)
		refreshCapacity(w, c.settings)
		return nil
	})
}

// SetCardColor sets the display colour of a staff member's card on a team.
// An empty colour removes it.
func (c *Controller) SetCardColor(staffID string, team model.Team, color string) error {
	return c.edit("set card colour", partOverrides, func(w *DayState) error {
		if _, ok := w.staffByID(staffID); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStaff, staffID)
		}
		if !team.IsValid() {
			return invalid("unknown team %q", team)
		}
		next, err := w.Overrides.Apply(staffID, overrides.Patch{CardColorByTeam: map[model.Team]string{team: color}})
		if err != nil {
			return invalid("%v", err)
		}
		w.Overrides = next
		return nil
	})
}

// SetBedCountOverride records the day's bed deductions for a team. A zero
// override removes it.
func (c *Controller) SetBedCountOverride(team model.Team, o model.BedCountOverride) error {
	return c.edit("set bed count", partBedCounts|partBeds|partTargets|partPending, func(w *DayState) error {
		if !team.IsValid() {
			return invalid("unknown team %q", team)
		}
		if err := validate.Struct(o); err != nil {
			return invalid("%v", err)
		}
		if o == (model.BedCountOverride{}) {
			delete(w.BedCountOverrides, team)
		} else {
			w.BedCountOverrides[team] = o
		}

		w.markModified(model.StepBedRelieving)
		refreshCapacity(w, c.settings)
		return nil
	})
}

// SetBedNote records a free-text relieving note for a team
func (c *Controller) SetBedNote(team model.Team, note string) error {
	return c.edit("set bed note", partNotes, func(w *DayState) error {
		if !team.IsValid() {
			return invalid("unknown team %q", team)
		}
		if note == "" {
			delete(w.BedNotes, team)
		} else {
			w.BedNotes[team] = note
		}
		return nil
	})
}
