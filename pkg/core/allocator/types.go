package allocator

import (
	"slices"

	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/overrides"
)

// Pass names the allocation pass that made an assignment
type Pass string

const (
	PassManual         Pass = "manual"
	PassSubstitution   Pass = "substitution"
	PassSpecialProgram Pass = "special-program"
	PassBuffer         Pass = "buffer"
	PassPreferred      Pass = "preferred"
	PassAdjacent       Pass = "adjacent"
	PassFill           Pass = "fill"
	PassExtraCoverage  Pass = "extra-coverage"
)

// Phase is the lifecycle of one engine invocation
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseConfiguring Phase = "configuring"
	PhaseRunning     Phase = "running"
	PhaseCompleted   Phase = "completed"
	PhaseCancelled   Phase = "cancelled"
)

// PoolPCA is a floating PCA in the pool and the slots handed out so far
type PoolPCA struct {
	Staff model.Staff

	// Available are the slots the PCA can work today
	Available []model.Slot

	// Capacity is the number of slots the PCA can fill
	Capacity int64

	// Slots records which team owns each of the PCA's slots
	Slots model.SlotAssignments

	// ProgramSlots are slots reserved for special programs
	ProgramSlots []model.Slot
	ProgramIDs   []string

	LeaveType   model.LeaveType
	InvalidSlot model.Slot

	// anchors are program and continuity slots the adjacent pass extends from
	anchors []model.Slot
}

// Used returns the number of assigned slots
func (p *PoolPCA) Used() int64 {
	return int64(p.Slots.AssignedCount())
}

// Remaining returns the number of slots the PCA can still fill
func (p *PoolPCA) Remaining() int64 {
	return max(0, p.Capacity-p.Used())
}

// CanTake reports whether the slot can still be handed out
func (p *PoolPCA) CanTake(slot model.Slot) bool {
	return p.Remaining() > 0 && slices.Contains(p.Available, slot) && p.Slots.Get(slot) == ""
}

// FreeSlots returns the slots that can still be handed out
func (p *PoolPCA) FreeSlots() []model.Slot {
	if p.Remaining() == 0 {
		return nil
	}
	var out []model.Slot
	for _, slot := range p.Available {
		if p.Slots.Get(slot) == "" {
			out = append(out, slot)
		}
	}
	return out
}

// State is the working state of the allocation
type State struct {
	// Teams in processing order
	Teams []model.Team

	// Pending is the unmet need of each team in quarter slots
	Pending map[model.Team]int64

	// PCAs in the pool, ordered by name
	PCAs []*PoolPCA

	Preferences map[model.Team]model.PCAPreference

	Tracker *Tracker
}

// PendingFTE returns the team's unmet need as FTE
func (s *State) PendingFTE(team model.Team) float64 {
	return capacity.QuarterFTE(s.Pending[team])
}

// FreeUnits is the number of slots the whole pool can still hand out
func (s *State) FreeUnits() int64 {
	var n int64
	for _, p := range s.PCAs {
		n += min(p.Remaining(), int64(len(p.FreeSlots())))
	}
	return n
}

// Find returns the pool entry for the staff member
func (s *State) Find(staffID string) *PoolPCA {
	for _, p := range s.PCAs {
		if p.Staff.ID == staffID {
			return p
		}
	}
	return nil
}

// Preference returns the team's PCA preference, or the zero value
func (s *State) Preference(team model.Team) model.PCAPreference {
	return s.Preferences[team]
}

// TrackerEntry explains a single assignment decision
type TrackerEntry struct {
	Order         int        `json:"order"`
	StaffID       string     `json:"staffId"`
	Team          model.Team `json:"team"`
	Slot          model.Slot `json:"slot"`
	Pass          Pass       `json:"pass"`
	PreferredPCA  bool       `json:"preferredPca"`
	PreferredSlot bool       `json:"preferredSlot"`
	FloorMatch    bool       `json:"floorMatch"`
	UserResolved  bool       `json:"userResolved"`
}

// Tracker is an append-only log of assignment decisions. It explains the
// result and is never read back for control flow.
type Tracker struct {
	entries []TrackerEntry
}

func (t *Tracker) add(e TrackerEntry) {
	e.Order = len(t.entries) + 1
	t.entries = append(t.entries, e)
}

// Entries returns a copy of the log
func (t *Tracker) Entries() []TrackerEntry {
	return slices.Clone(t.entries)
}

// Config is everything Step 3 reads
type Config struct {
	// Teams taking part. Defaults to every team.
	Teams []model.Team

	// TeamOrder is a user-adjusted processing order. Teams missing from it
	// follow in the default order.
	TeamOrder []model.Team

	// Pending is each team's unmet PCA need in FTE after Step 2
	Pending map[model.Team]float64

	// Pool is the roster; only active floating PCAs are used
	Pool      []model.Staff
	Overrides overrides.Overrides

	Preferences []model.PCAPreference

	// Programs are the special programs running today
	Programs []model.SpecialProgram

	// BufferPreassignRatio is the share of each buffer PCA's free slots
	// handed out before the priority passes
	BufferPreassignRatio float64

	// ExtraCoverage spreads slots left over once every need is met
	ExtraCoverage bool

	Criteria []Criterion

	// Decisions are tie-break answers replayed before asking again
	Decisions []model.Team
}

// Outcome is the result of a completed run
type Outcome struct {
	PCAs []model.PCAAllocation
	// Pending is the need left unmet, in FTE
	Pending   map[model.Team]float64
	Tracker   []TrackerEntry
	Warnings  []model.Warning
	Decisions []model.Team
	TeamOrder []model.Team
}

// TieBreakRequest describes a suspended tie-break escalation
type TieBreakRequest struct {
	Tied       []model.Team
	PendingFTE float64
}
