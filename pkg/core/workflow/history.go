package workflow

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/overrides"
)

// part is a bit set naming the slices of day state an edit touches
type part uint16

const (
	partOverrides part = 1 << iota
	partTherapists
	partPCAs
	partBeds
	partBedCounts
	partNotes
	partPending
	partTargets
	partStatus
)

// snapshot holds copies of the touched slices of day state
type snapshot struct {
	overrides  overrides.Overrides
	therapists []model.TherapistAllocation
	pcas       []model.PCAAllocation
	beds       []model.BedAllocation
	bedCounts  map[model.Team]model.BedCountOverride
	notes      map[model.Team]string
	pending    map[model.Team]float64
	targets    map[model.Team]float64
	status     map[model.StepID]StepStatus
}

func capture(s *DayState, parts part) snapshot {
	var snap snapshot
	allocs := s.Allocations.Clone()
	if parts&partOverrides != 0 {
		snap.overrides = maps.Clone(s.Overrides)
	}
	if parts&partTherapists != 0 {
		snap.therapists = allocs.Therapists
	}
	if parts&partPCAs != 0 {
		snap.pcas = allocs.PCAs
	}
	if parts&partBeds != 0 {
		snap.beds = allocs.Beds
	}
	if parts&partBedCounts != 0 {
		snap.bedCounts = maps.Clone(s.BedCountOverrides)
	}
	if parts&partNotes != 0 {
		snap.notes = maps.Clone(s.BedNotes)
	}
	if parts&partPending != 0 {
		snap.pending = maps.Clone(s.Pending)
	}
	if parts&partTargets != 0 {
		snap.targets = maps.Clone(s.Targets)
	}
	if parts&partStatus != 0 {
		snap.status = maps.Clone(s.Status)
	}
	return snap
}

// restore writes the snapshot's slices back. Slices the edit did not touch
// are left as they are.
func (snap snapshot) restore(s *DayState, parts part) {
	if parts&partOverrides != 0 {
		s.Overrides = maps.Clone(snap.overrides)
	}
	if parts&partTherapists != 0 {
		s.Allocations.Therapists = model.Allocations{Therapists: snap.therapists}.Clone().Therapists
	}
	if parts&partPCAs != 0 {
		s.Allocations.PCAs = model.Allocations{PCAs: snap.pcas}.Clone().PCAs
	}
	if parts&partBeds != 0 {
		s.Allocations.Beds = slices.Clone(snap.beds)
	}
	if parts&partBedCounts != 0 {
		s.BedCountOverrides = maps.Clone(snap.bedCounts)
	}
	if parts&partNotes != 0 {
		s.BedNotes = maps.Clone(snap.notes)
	}
	if parts&partPending != 0 {
		s.Pending = maps.Clone(snap.pending)
	}
	if parts&partTargets != 0 {
		s.Targets = maps.Clone(snap.targets)
	}
	if parts&partStatus != 0 {
		s.Status = maps.Clone(snap.status)
	}
	s.normalize()
}

// checkpoint is one undoable edit
type checkpoint struct {
	ID     string
	Label  string
	parts  part
	before snapshot
	after  snapshot
}

type history struct {
	undo []checkpoint
	redo []checkpoint
}

func (h *history) push(cp checkpoint) {
	h.undo = append(h.undo, cp)
	h.redo = nil
}

func (h *history) reset() {
	h.undo = nil
	h.redo = nil
}

// Undo reverts the most recent edit and returns its label
func (c *Controller) Undo() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.history.undo)
	if n == 0 {
		return "", ErrNothingToUndo
	}
	cp := c.history.undo[n-1]
	c.history.undo = c.history.undo[:n-1]

	w := c.state.Clone()
	cp.before.restore(w, cp.parts)
	c.state = w
	c.history.redo = append(c.history.redo, cp)

	c.logger.Debug("Undid edit", zap.String("edit", cp.Label), zap.String("checkpoint", cp.ID))
	return cp.Label, nil
}

// Redo re-applies the most recently undone edit and returns its label
func (c *Controller) Redo() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.history.redo)
	if n == 0 {
		return "", ErrNothingToRedo
	}
	cp := c.history.redo[n-1]
	c.history.redo = c.history.redo[:n-1]

	w := c.state.Clone()
	cp.after.restore(w, cp.parts)
	c.state = w
	c.history.undo = append(c.history.undo, cp)

	c.logger.Debug("Redid edit", zap.String("edit", cp.Label), zap.String("checkpoint", cp.ID))
	return cp.Label, nil
}

// History returns the labels of the undoable and redoable edits, oldest
// first
func (c *Controller) History() (undo, redo []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cp := range c.history.undo {
		undo = append(undo, cp.Label)
	}
	for _, cp := range c.history.redo {
		redo = append(redo, cp.Label)
	}
	return undo, redo
}
