package api

import (
	"github.com/jakechorley/rehab-roster/pkg/core/baseline"
	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// DayResponse is a day as held by the server, saved or not
type DayResponse struct {
	Date        string               `json:"date"`
	ScheduleID  string               `json:"scheduleId,omitempty"`
	State       *workflow.DayState   `json:"state"`
	Capacities  []TeamCapacityDTO    `json:"capacities"`
	Drift       *baseline.Drift      `json:"drift,omitempty"`
	RosterError string               `json:"rosterError,omitempty"`
	Undo        []string             `json:"undo"`
	Redo        []string             `json:"redo"`
	Escalations *EscalationsDTO      `json:"escalations,omitempty"`
	Copy        *workflow.CopyReport `json:"copy,omitempty"`
}

// TeamCapacityDTO is one row of the capacity summary
type TeamCapacityDTO struct {
	Team             model.Team `json:"team"`
	DesignatedBeds   int        `json:"designatedBeds"`
	PTFTE            float64    `json:"ptFte"`
	BedsPerPT        float64    `json:"bedsPerPt"`
	RequiredPCA      float64    `json:"requiredPca"`
	AverageTarget    float64    `json:"averageTarget"`
	AssignedPCA      float64    `json:"assignedPca"`
	Balance          float64    `json:"balance"`
	BedsForRelieving float64    `json:"bedsForRelieving"`
}

func toCapacityDTOs(res capacity.Result) []TeamCapacityDTO {
	out := make([]TeamCapacityDTO, len(res.Teams))
	for i, tc := range res.Teams {
		out[i] = TeamCapacityDTO{
			Team:             tc.Team,
			DesignatedBeds:   tc.DesignatedBeds,
			PTFTE:            tc.PTFTE,
			BedsPerPT:        tc.BedsPerPT,
			RequiredPCA:      tc.RequiredPCA,
			AverageTarget:    tc.AverageTarget,
			AssignedPCA:      tc.AssignedPCA,
			Balance:          tc.Balance,
			BedsForRelieving: tc.BedsForRelieving,
		}
	}
	return out
}

// EscalationsDTO lists the escalations a run raised. Those without a
// supplied answer were settled by the automatic best match; the caller can
// re-run with answers.
type EscalationsDTO struct {
	Programs      int           `json:"programs"`
	Substitutions [][]NeedDTO   `json:"substitutions,omitempty"`
	SPT           int           `json:"spt"`
	TieBreaks     []TieBreakDTO `json:"tieBreaks,omitempty"`
}

// NeedDTO is a non-floating PCA gap offered for cover
type NeedDTO struct {
	Key              string         `json:"key"`
	Team             model.Team     `json:"team"`
	NonFloatingPCAID string         `json:"nonFloatingPcaId"`
	MissingSlots     []model.Slot   `json:"missingSlots"`
	Candidates       []CandidateDTO `json:"candidates"`
}

// CandidateDTO is a floating PCA able to cover a gap
type CandidateDTO struct {
	StaffID    string       `json:"staffId"`
	Name       string       `json:"name"`
	Preferred  bool         `json:"preferred"`
	FloorMatch bool         `json:"floorMatch"`
	CoverSlots []model.Slot `json:"coverSlots"`
}

// TieBreakDTO is a tie between teams for scarce floating PCA
type TieBreakDTO struct {
	Tied       []model.Team `json:"tied"`
	PendingFTE float64      `json:"pendingFte"`
}

func toEscalationsDTO(s *resolvers.Scripted) *EscalationsDTO {
	out := &EscalationsDTO{
		Programs: len(s.ProgramCalls),
		SPT:      len(s.SPTCalls),
	}
	for _, needs := range s.SubstitutionCalls {
		round := make([]NeedDTO, len(needs))
		for i, n := range needs {
			round[i] = NeedDTO{
				Key:              n.Key,
				Team:             n.Team,
				NonFloatingPCAID: n.NonFloatingPCAID,
				MissingSlots:     n.MissingSlots,
			}
			for _, c := range n.Candidates {
				round[i].Candidates = append(round[i].Candidates, CandidateDTO{
					StaffID:    c.StaffID,
					Name:       c.Name,
					Preferred:  c.Preferred,
					FloorMatch: c.FloorMatch,
					CoverSlots: c.CoverSlots,
				})
			}
		}
		out.Substitutions = append(out.Substitutions, round)
	}
	for _, call := range s.TieBreakCalls {
		out.TieBreaks = append(out.TieBreaks, TieBreakDTO{Tied: call.Tied, PendingFTE: call.PendingFTE})
	}
	return out
}

// SelectionDTO assigns a floating PCA to some of a gap's slots
type SelectionDTO struct {
	FloatingPCAID string       `json:"floatingPcaId" validate:"required"`
	Slots         []model.Slot `json:"slots" validate:"required,dive,min=1,max=4"`
}

// AnswersDTO carries answers to the escalations of a run, consumed in the
// order the escalations are raised. Escalations left unanswered take the
// automatic best match.
type AnswersDTO struct {
	Programs      []map[string][]model.SpecialProgramOverride `json:"programs,omitempty"`
	Substitutions []map[string][]SelectionDTO                 `json:"substitutions,omitempty" validate:"dive,dive,dive"`
	SPT           []map[string]map[model.Team]float64         `json:"spt,omitempty"`
	TieBreaks     []model.Team                                `json:"tieBreaks,omitempty" validate:"dive,oneof=FO SMM SFM CPPC MC GMC NSM DRO"`
}

func (a AnswersDTO) script() *resolvers.Scripted {
	s := &resolvers.Scripted{}
	for _, overrides := range a.Programs {
		s.ProgramAnswers = append(s.ProgramAnswers, resolvers.ProgramResolution{Outcome: resolvers.Resolved, Overrides: overrides})
	}
	for _, round := range a.Substitutions {
		selections := make(map[string][]resolvers.Selection, len(round))
		for key, picks := range round {
			for _, p := range picks {
				selections[key] = append(selections[key], resolvers.Selection{FloatingPCAID: p.FloatingPCAID, Slots: p.Slots})
			}
		}
		s.SubstitutionAnswers = append(s.SubstitutionAnswers, resolvers.SubstitutionResolution{Outcome: resolvers.Resolved, Selections: selections})
	}
	for _, round := range a.SPT {
		updates := make(map[string]resolvers.SPTUpdate, len(round))
		for staffID, fte := range round {
			updates[staffID] = resolvers.SPTUpdate{FTEByTeam: fte}
		}
		s.SPTAnswers = append(s.SPTAnswers, resolvers.SPTResolution{Outcome: resolvers.Resolved, Updates: updates})
	}
	for _, team := range a.TieBreaks {
		s.TieBreakAnswers = append(s.TieBreakAnswers, resolvers.TieBreakResolution{Outcome: resolvers.Resolved, Team: team})
	}
	return s
}

// RunStepRequest runs one step
type RunStepRequest struct {
	// Confirm discards later steps that already hold results
	Confirm bool       `json:"confirm"`
	Answers AnswersDTO `json:"answers"`
}

// ConfirmRequest is the body of actions that may discard later results
type ConfirmRequest struct {
	Confirm bool `json:"confirm"`
}

// GoToRequest moves the current step
type GoToRequest struct {
	Step model.StepID `json:"step" validate:"required"`
}

// MoveSlotsRequest moves a PCA's slots from one team to another
type MoveSlotsRequest struct {
	StaffID string       `json:"staffId" validate:"required"`
	From    model.Team   `json:"from" validate:"required"`
	To      model.Team   `json:"to" validate:"required,nefield=From"`
	Slots   []model.Slot `json:"slots" validate:"required,min=1,dive,min=1,max=4"`
}

// DiscardSlotsRequest returns a PCA's slots to the pool
type DiscardSlotsRequest struct {
	StaffID string       `json:"staffId" validate:"required"`
	Team    model.Team   `json:"team" validate:"required"`
	Slots   []model.Slot `json:"slots" validate:"required,min=1,dive,min=1,max=4"`
}

// AssignSlotRequest gives one free slot of a floating PCA to a team
type AssignSlotRequest struct {
	StaffID string     `json:"staffId" validate:"required"`
	Team    model.Team `json:"team" validate:"required"`
	Slot    model.Slot `json:"slot" validate:"min=1,max=4"`
}

// LeaveRequest records leave against a staff member. Omitted fields are
// left alone.
type LeaveRequest struct {
	StaffID        string           `json:"staffId" validate:"required"`
	LeaveType      *model.LeaveType `json:"leaveType,omitempty"`
	FTERemaining   *float64         `json:"fteRemaining,omitempty" validate:"omitempty,min=0,max=1"`
	FTESubtraction *float64         `json:"fteSubtraction,omitempty" validate:"omitempty,min=0,max=1"`
	AvailableSlots []model.Slot     `json:"availableSlots,omitempty" validate:"dive,min=1,max=4"`
	InvalidSlots   []model.Slot     `json:"invalidSlots,omitempty" validate:"dive,min=1,max=4"`
}

// SplitTherapistRequest spreads a therapist's FTE across teams
type SplitTherapistRequest struct {
	StaffID   string                 `json:"staffId" validate:"required"`
	FTEByTeam map[model.Team]float64 `json:"fteByTeam" validate:"required,min=2"`
}

// MergeTherapistRequest puts all of a therapist's FTE back on one team
type MergeTherapistRequest struct {
	StaffID string     `json:"staffId" validate:"required"`
	Team    model.Team `json:"team" validate:"required"`
}

// CardColorRequest sets the display colour of a staff card within a team
type CardColorRequest struct {
	StaffID string     `json:"staffId" validate:"required"`
	Team    model.Team `json:"team" validate:"required"`
	Color   string     `json:"color" validate:"omitempty,hexcolor"`
}

// BedCountRequest sets a team's bed deductions
type BedCountRequest struct {
	Team             model.Team `json:"team" validate:"required"`
	SHS              int        `json:"shs" validate:"min=0"`
	StudentPlacement int        `json:"studentPlacement" validate:"min=0"`
}

// BedNoteRequest sets a team's relieving note
type BedNoteRequest struct {
	Team model.Team `json:"team" validate:"required"`
	Note string     `json:"note" validate:"max=500"`
}

// CopyRequest copies a saved day onto another date
type CopyRequest struct {
	To                 string            `json:"to" validate:"required,datetime=2006-01-02"`
	Mode               workflow.CopyMode `json:"mode" validate:"required,oneof=full hybrid"`
	IncludeBufferStaff bool              `json:"includeBufferStaff"`
}

// ScheduleDTO is a saved schedule in a listing
type ScheduleDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// StaffDTO is a roster staff member
type StaffDTO struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Rank     model.Rank        `json:"rank"`
	Team     model.Team        `json:"team,omitempty"`
	Floating bool              `json:"floating"`
	Status   model.StaffStatus `json:"status"`
}
