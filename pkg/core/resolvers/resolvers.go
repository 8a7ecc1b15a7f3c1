// Package resolvers defines the human-interaction callbacks the allocation
// engines suspend on. Callers implement them as a dialog, a CLI prompt or a
// scripted test double; the engines only depend on the return shapes below.
package resolvers

import (
	"context"
	"errors"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// ErrCancelled is returned by an engine when a resolver cancelled the
// invocation. Nothing the invocation computed may be committed.
var ErrCancelled = errors.New("allocation cancelled by user")

// Outcome is the shape of a resolver's answer
type Outcome int

const (
	// Resolved carries a selection the engine must apply
	Resolved Outcome = iota
	// Skipped asks the engine to apply its automatic best match
	Skipped
	// Cancelled aborts the whole engine invocation
	Cancelled
	// Back re-opens the previous escalation point of the same invocation
	Back
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	case Back:
		return "back"
	}
	return "unknown"
}

// ProgramRequest lists the special programs running today and the staff
// who could run them
type ProgramRequest struct {
	Programs  []model.SpecialProgram
	StaffPool []model.Staff
}

// ProgramResolution maps staff id to that staff member's program overrides
type ProgramResolution struct {
	Outcome   Outcome
	Overrides map[string][]model.SpecialProgramOverride
}

// SpecialProgramResolver confirms or changes who runs today's programs
type SpecialProgramResolver func(ctx context.Context, req ProgramRequest) (ProgramResolution, error)

// Candidate is a floating PCA able to cover part of a gap
type Candidate struct {
	StaffID    string
	Name       string
	Preferred  bool
	FloorMatch bool
	// CoverSlots are the gap's missing slots this PCA can work
	CoverSlots []model.Slot
}

// SubstitutionNeed is a non-floating PCA gap and its ranked candidates
type SubstitutionNeed struct {
	Key              string
	Team             model.Team
	NonFloatingPCAID string
	MissingSlots     []model.Slot
	Candidates       []Candidate
}

// Selection assigns a floating PCA to some of a gap's missing slots
type Selection struct {
	FloatingPCAID string
	Slots         []model.Slot
}

// SubstitutionResolution maps gap key to the chosen cover. Gaps without an
// entry fall back to the automatic best match.
type SubstitutionResolution struct {
	Outcome    Outcome
	Selections map[string][]Selection
}

// SubstitutionResolver picks floating cover for non-floating PCA gaps
type SubstitutionResolver func(ctx context.Context, needs []SubstitutionNeed) (SubstitutionResolution, error)

// SPTUpdate replaces a senior therapist's placement for the day
type SPTUpdate struct {
	FTEByTeam map[model.Team]float64
}

// SPTResolution maps staff id to the final placement of that therapist
type SPTResolution struct {
	Outcome Outcome
	Updates map[string]SPTUpdate
}

// SPTFinalEditResolver reviews senior therapist placement before Step 2
// finishes
type SPTFinalEditResolver func(ctx context.Context, spts []model.Staff, current []model.TherapistAllocation) (SPTResolution, error)

// TieBreakResolution names the team to serve first
type TieBreakResolution struct {
	Outcome Outcome
	Team    model.Team
}

// TieBreakResolver chooses between teams with equal claim on scarce
// floating PCA capacity
type TieBreakResolver func(ctx context.Context, tied []model.Team, pendingFTE float64) (TieBreakResolution, error)

// Set bundles the resolvers an invocation may use. A nil resolver behaves as
// if it always answered Skipped.
type Set struct {
	SpecialProgram SpecialProgramResolver
	Substitution   SubstitutionResolver
	SPTFinalEdit   SPTFinalEditResolver
	TieBreak       TieBreakResolver
}

// IsCancel reports whether a resolver answer aborts the invocation
func IsCancel(outcome Outcome, err error) bool {
	return outcome == Cancelled || errors.Is(err, ErrCancelled)
}
