package workflow

import (
	"time"

	"github.com/jakechorley/rehab-roster/pkg/core/allocator"
	"github.com/jakechorley/rehab-roster/pkg/core/baseline"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/overrides"
)

// Progress is the part of a day that is stored as a single document next to
// its allocations, baseline and bed tables
type Progress struct {
	Overrides         overrides.Overrides              `json:"overrides"`
	ActivePrograms    []model.SpecialProgram           `json:"activePrograms,omitempty"`
	Pending           map[model.Team]float64           `json:"pending"`
	Targets           map[model.Team]float64           `json:"targets"`
	CurrentStep       model.StepID                     `json:"currentStep"`
	Status            map[model.StepID]StepStatus      `json:"status"`
	Initialized       map[model.StepID]bool            `json:"initialized,omitempty"`
	Warnings          map[model.StepID][]model.Warning `json:"warnings,omitempty"`
	Tracker           []allocator.TrackerEntry         `json:"tracker,omitempty"`
	TieBreakDecisions []model.Team                     `json:"tieBreakDecisions,omitempty"`
	TeamOrder         []model.Team                     `json:"teamOrder,omitempty"`
}

// Stored is a day broken into the pieces persistence keeps separately
type Stored struct {
	Date              time.Time
	Progress          Progress
	Allocations       model.Allocations
	Baseline          baseline.Snapshot
	BedCountOverrides map[model.Team]model.BedCountOverride
	BedNotes          map[model.Team]string
}

// Split breaks a day into its stored pieces. The pieces share nothing with s.
func (s *DayState) Split() Stored {
	c := s.Clone()
	return Stored{
		Date: c.Date,
		Progress: Progress{
			Overrides:         c.Overrides,
			ActivePrograms:    c.ActivePrograms,
			Pending:           c.Pending,
			Targets:           c.Targets,
			CurrentStep:       c.CurrentStep,
			Status:            c.Status,
			Initialized:       c.Initialized,
			Warnings:          c.Warnings,
			Tracker:           c.Tracker,
			TieBreakDecisions: c.TieBreakDecisions,
			TeamOrder:         c.TeamOrder,
		},
		Allocations:       c.Allocations,
		Baseline:          c.Baseline,
		BedCountOverrides: c.BedCountOverrides,
		BedNotes:          c.BedNotes,
	}
}

// Assemble rebuilds a day from its stored pieces. The day is allocated
// against its baseline so a saved schedule redisplays exactly as it was
// generated.
func Assemble(st Stored) *DayState {
	s := &DayState{
		Date:              st.Date,
		Overrides:         st.Progress.Overrides,
		Allocations:       st.Allocations,
		ActivePrograms:    st.Progress.ActivePrograms,
		BedCountOverrides: st.BedCountOverrides,
		BedNotes:          st.BedNotes,
		Pending:           st.Progress.Pending,
		Targets:           st.Progress.Targets,
		CurrentStep:       st.Progress.CurrentStep,
		Status:            st.Progress.Status,
		Initialized:       st.Progress.Initialized,
		Warnings:          st.Progress.Warnings,
		Tracker:           st.Progress.Tracker,
		TieBreakDecisions: st.Progress.TieBreakDecisions,
		TeamOrder:         st.Progress.TeamOrder,
		Baseline:          st.Baseline,
	}
	s.setConfig(st.Baseline.Config())
	return s.Clone()
}
