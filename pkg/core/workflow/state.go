package workflow

import (
	"maps"
	"slices"
	"time"

	"github.com/jakechorley/rehab-roster/pkg/core/allocator"
	"github.com/jakechorley/rehab-roster/pkg/core/baseline"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/overrides"
)

// StepStatus is the progress of a single workflow step
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusCompleted StepStatus = "completed"
	// StatusModified means the step's output was edited by hand after it
	// completed
	StatusModified StepStatus = "modified"
)

// DayState is everything the workflow knows about one schedule day
type DayState struct {
	Date time.Time `json:"date"`

	// Live configuration the day is allocated against
	Staff          []model.Staff          `json:"staff"`
	Wards          []model.Ward           `json:"wards"`
	Programs       []model.SpecialProgram `json:"programs"`
	Preferences    []model.PCAPreference  `json:"preferences"`
	SPTAllocations []model.SPTAllocation  `json:"sptAllocations"`

	Overrides         overrides.Overrides                   `json:"overrides"`
	Allocations       model.Allocations                     `json:"allocations"`
	ActivePrograms    []model.SpecialProgram                `json:"activePrograms"`
	BedCountOverrides map[model.Team]model.BedCountOverride `json:"bedCountOverrides"`
	BedNotes          map[model.Team]string                 `json:"bedNotes"`

	// Pending is each team's unmet PCA need in FTE. Slot edits adjust it
	// directly rather than recomputing it.
	Pending map[model.Team]float64 `json:"pending"`
	Targets map[model.Team]float64 `json:"targets"`

	CurrentStep model.StepID                `json:"currentStep"`
	Status      map[model.StepID]StepStatus `json:"status"`
	Initialized map[model.StepID]bool       `json:"initialized"`

	// Warnings holds the computation warnings of each step
	Warnings          map[model.StepID][]model.Warning `json:"warnings"`
	Tracker           []allocator.TrackerEntry         `json:"tracker"`
	TieBreakDecisions []model.Team                     `json:"tieBreakDecisions"`
	TeamOrder         []model.Team                     `json:"teamOrder"`

	Baseline baseline.Snapshot `json:"baseline"`
}

// NewDay starts a day at the leave step with a baseline captured from the
// live configuration
func NewDay(date time.Time, cfg baseline.Config, capturedAt time.Time) *DayState {
	snap := baseline.Capture(cfg, capturedAt)
	s := &DayState{Date: date, Baseline: snap}
	s.setConfig(snap.Config())
	s.normalize()
	return s
}

func (s *DayState) setConfig(cfg baseline.Config) {
	s.Staff = cfg.Staff
	s.Wards = cfg.Wards
	s.Programs = cfg.Programs
	s.Preferences = cfg.Preferences
	s.SPTAllocations = cfg.SPTAllocations
}

// normalize fills nil maps and an empty current step so a state read back
// from storage can be used directly
func (s *DayState) normalize() {
	if s.CurrentStep == "" {
		s.CurrentStep = model.StepLeaveFTE
	}
	if s.Status == nil {
		s.Status = make(map[model.StepID]StepStatus, len(model.Steps))
	}
	for _, step := range model.Steps {
		if s.Status[step] == "" {
			s.Status[step] = StatusPending
		}
	}
	if s.Initialized == nil {
		s.Initialized = make(map[model.StepID]bool)
	}
	if s.Warnings == nil {
		s.Warnings = make(map[model.StepID][]model.Warning)
	}
	if s.Overrides == nil {
		s.Overrides = overrides.Overrides{}
	}
	if s.BedCountOverrides == nil {
		s.BedCountOverrides = make(map[model.Team]model.BedCountOverride)
	}
	if s.BedNotes == nil {
		s.BedNotes = make(map[model.Team]string)
	}
	if s.Pending == nil {
		s.Pending = make(map[model.Team]float64)
	}
	if s.Targets == nil {
		s.Targets = make(map[model.Team]float64)
	}
}

// Clone returns a deep copy
func (s *DayState) Clone() *DayState {
	cfg := baseline.Capture(baseline.Config{
		Staff:          s.Staff,
		Wards:          s.Wards,
		Programs:       s.Programs,
		Preferences:    s.Preferences,
		SPTAllocations: s.SPTAllocations,
	}, time.Time{}).Config()

	out := *s
	out.setConfig(cfg)
	out.Overrides = maps.Clone(s.Overrides)
	out.Allocations = s.Allocations.Clone()
	out.ActivePrograms = slices.Clone(s.ActivePrograms)
	out.BedCountOverrides = maps.Clone(s.BedCountOverrides)
	out.BedNotes = maps.Clone(s.BedNotes)
	out.Pending = maps.Clone(s.Pending)
	out.Targets = maps.Clone(s.Targets)
	out.Status = maps.Clone(s.Status)
	out.Initialized = maps.Clone(s.Initialized)
	out.Warnings = make(map[model.StepID][]model.Warning, len(s.Warnings))
	for step, ws := range s.Warnings {
		out.Warnings[step] = slices.Clone(ws)
	}
	out.Tracker = slices.Clone(s.Tracker)
	out.TieBreakDecisions = slices.Clone(s.TieBreakDecisions)
	out.TeamOrder = slices.Clone(s.TeamOrder)
	out.normalize()
	return &out
}

// AllWarnings returns the warnings of every step in workflow order
func (s *DayState) AllWarnings() []model.Warning {
	var out []model.Warning
	for _, step := range model.Steps {
		out = append(out, s.Warnings[step]...)
	}
	return out
}

// LastCompletedStep returns the furthest step that is not pending, or ""
func (s *DayState) LastCompletedStep() model.StepID {
	var last model.StepID
	for _, step := range model.Steps {
		if s.Status[step] == StatusPending {
			break
		}
		last = step
	}
	return last
}

func (s *DayState) staffByID(id string) (model.Staff, bool) {
	i := slices.IndexFunc(s.Staff, func(st model.Staff) bool { return st.ID == id })
	if i < 0 {
		return model.Staff{}, false
	}
	return s.Staff[i], true
}

func (s *DayState) isFloating(staffID string) bool {
	st, ok := s.staffByID(staffID)
	return ok && st.IsFloatingPCA()
}

// markModified flags a completed step as hand-edited
func (s *DayState) markModified(step model.StepID) {
	if s.Status[step] == StatusCompleted {
		s.Status[step] = StatusModified
	}
}
