package model

import "slices"

// TherapistAllocation places a therapist on a team for the day. A therapist
// split across teams has one row per team.
type TherapistAllocation struct {
	ID                string
	StaffID           string
	Team              Team
	FTE               float64
	Slots             []Slot
	LeaveType         LeaveType
	SpecialProgramIDs []string
}

// PCAAllocation is a PCA's day. Each of the four slots may belong to a
// different team; Team is the primary team.
type PCAAllocation struct {
	ID                string
	StaffID           string
	Team              Team
	FTEPCA            float64
	FTERemaining      float64
	Slots             SlotAssignments
	InvalidSlot       Slot // Zero when every slot counts
	LeaveType         LeaveType
	SpecialProgramIDs []string
	// ProgramSlots are slots reserved for a special program. They belong to
	// a team but do not count towards its average PCA target.
	ProgramSlots []Slot
}

// Clone returns a copy that shares no slices with the original
func (a PCAAllocation) Clone() PCAAllocation {
	a.SpecialProgramIDs = slices.Clone(a.SpecialProgramIDs)
	a.ProgramSlots = slices.Clone(a.ProgramSlots)
	return a
}

// FTEFor returns the capacity the allocation gives to team
func (a PCAAllocation) FTEFor(team Team) float64 {
	return float64(len(a.Slots.SlotsFor(team))) * SlotFTE
}

// BedAllocation transfers relieving capacity between two teams
type BedAllocation struct {
	FromTeam Team
	ToTeam   Team
	Beds     int
	Ward     string
}

// Allocations is the day's algorithmic and hand-edited output. PCAs are
// stored once per staff member; per-team views are derived.
type Allocations struct {
	Therapists []TherapistAllocation
	PCAs       []PCAAllocation
	Beds       []BedAllocation
}

// Clone returns a deep copy
func (a Allocations) Clone() Allocations {
	out := Allocations{
		Therapists: make([]TherapistAllocation, len(a.Therapists)),
		PCAs:       make([]PCAAllocation, len(a.PCAs)),
		Beds:       slices.Clone(a.Beds),
	}
	for i, t := range a.Therapists {
		t.Slots = slices.Clone(t.Slots)
		t.SpecialProgramIDs = slices.Clone(t.SpecialProgramIDs)
		out.Therapists[i] = t
	}
	for i, p := range a.PCAs {
		out.PCAs[i] = p.Clone()
	}
	return out
}

// TeamView is the per-team slice of the day's allocations
type TeamView struct {
	Team       Team
	Therapists []TherapistAllocation
	// PCAs contains every PCA owning at least one slot on the team. A
	// floating PCA split across teams appears under each of them.
	PCAs []PCAAllocation
	Beds []BedAllocation
}

// ByTeam groups the allocations per team in the fixed team order
func (a Allocations) ByTeam() map[Team]TeamView {
	views := make(map[Team]TeamView, len(AllTeams))
	for _, team := range AllTeams {
		views[team] = TeamView{Team: team}
	}
	for _, t := range a.Therapists {
		v := views[t.Team]
		v.Therapists = append(v.Therapists, t)
		views[t.Team] = v
	}
	for _, p := range a.PCAs {
		teams := p.Slots.Teams()
		if len(teams) == 0 && p.Team != "" {
			teams = []Team{p.Team}
		}
		for _, team := range teams {
			v := views[team]
			v.PCAs = append(v.PCAs, p)
			views[team] = v
		}
	}
	for _, b := range a.Beds {
		for _, team := range []Team{b.FromTeam, b.ToTeam} {
			v := views[team]
			v.Beds = append(v.Beds, b)
			views[team] = v
		}
	}
	return views
}

// FindPCA returns the index of the staff member's PCA allocation, or -1
func (a Allocations) FindPCA(staffID string) int {
	return slices.IndexFunc(a.PCAs, func(p PCAAllocation) bool { return p.StaffID == staffID })
}

// TherapistFTEByTeam sums on-duty therapist FTE per team
func (a Allocations) TherapistFTEByTeam() map[Team]float64 {
	out := make(map[Team]float64, len(AllTeams))
	for _, t := range a.Therapists {
		out[t.Team] += t.FTE
	}
	return out
}

// PCAFTEByTeam sums assigned PCA slot capacity per team, leaving out slots
// reserved for special programs
func (a Allocations) PCAFTEByTeam() map[Team]float64 {
	out := make(map[Team]float64, len(AllTeams))
	for _, p := range a.PCAs {
		for i, team := range p.Slots {
			if team == "" {
				continue
			}
			if slices.Contains(p.ProgramSlots, Slot(i+1)) {
				continue
			}
			out[team] += SlotFTE
		}
	}
	return out
}
