package model

import (
	"fmt"
	"slices"
)

// Slot is one of the four fixed half-day blocks of a working day
type Slot int

const (
	Slot1 Slot = 1
	Slot2 Slot = 2
	Slot3 Slot = 3
	Slot4 Slot = 4
)

// SlotFTE is the capacity of a single slot
const SlotFTE = 0.25

// SlotsPerDay is the number of slots in a working day
const SlotsPerDay = 4

// AllSlots lists the slots of a day in order
var AllSlots = []Slot{Slot1, Slot2, Slot3, Slot4}

func (s Slot) IsValid() bool {
	return s >= Slot1 && s <= Slot4
}

// IsAM reports whether the slot falls in the morning half of the day
func (s Slot) IsAM() bool {
	return s == Slot1 || s == Slot2
}

// Adjacent returns the slots immediately before and after s
func (s Slot) Adjacent() []Slot {
	var adj []Slot
	if s > Slot1 {
		adj = append(adj, s-1)
	}
	if s < Slot4 {
		adj = append(adj, s+1)
	}
	return adj
}

// ValidateSlots checks every slot is in range and appears once
func ValidateSlots(slots []Slot) error {
	seen := make(map[Slot]bool, len(slots))
	for _, s := range slots {
		if !s.IsValid() {
			return fmt.Errorf("invalid slot %d", s)
		}
		if seen[s] {
			return fmt.Errorf("duplicate slot %d", s)
		}
		seen[s] = true
	}
	return nil
}

// NormalizeSlots returns a sorted copy of slots without duplicates
func NormalizeSlots(slots []Slot) []Slot {
	out := slices.Clone(slots)
	slices.Sort(out)
	return slices.Compact(out)
}

// MissingSlots returns the day's slots that are not in available
func MissingSlots(available []Slot) []Slot {
	var missing []Slot
	for _, s := range AllSlots {
		if !slices.Contains(available, s) {
			missing = append(missing, s)
		}
	}
	return missing
}

// SlotAssignments records which team owns each slot of a PCA's day.
// Index 0 holds slot 1. An empty Team means the slot is unassigned.
type SlotAssignments [SlotsPerDay]Team

// Get returns the team that owns slot s
func (a SlotAssignments) Get(s Slot) Team {
	if !s.IsValid() {
		return ""
	}
	return a[s-1]
}

// With returns a copy with slot s assigned to team
func (a SlotAssignments) With(s Slot, team Team) SlotAssignments {
	if s.IsValid() {
		a[s-1] = team
	}
	return a
}

// SlotsFor returns the slots owned by team, in order
func (a SlotAssignments) SlotsFor(team Team) []Slot {
	var out []Slot
	for i, t := range a {
		if t != "" && t == team {
			out = append(out, Slot(i+1))
		}
	}
	return out
}

// Teams returns the distinct teams owning at least one slot, in slot order
func (a SlotAssignments) Teams() []Team {
	var out []Team
	for _, t := range a {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// AssignedCount returns the number of owned slots
func (a SlotAssignments) AssignedCount() int {
	n := 0
	for _, t := range a {
		if t != "" {
			n++
		}
	}
	return n
}

// FreeSlots returns the unassigned slots, in order
func (a SlotAssignments) FreeSlots() []Slot {
	var out []Slot
	for i, t := range a {
		if t == "" {
			out = append(out, Slot(i+1))
		}
	}
	return out
}
