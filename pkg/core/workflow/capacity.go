package workflow

import (
	"github.com/jakechorley/rehab-roster/pkg/core/beds"
	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// Settings tune the allocation for every day a controller runs
type Settings struct {
	// AddOnTeam receives AddOnFTE of PCA capacity on top of its therapist
	// share
	AddOnTeam model.Team
	AddOnFTE  float64

	BufferPreassignRatio float64
	ExtraCoverage        bool
	// TeamOrder overrides the Step 3 processing order for the teams it names
	TeamOrder []model.Team
	// Criteria are Step 3 scoring criterion names; empty means the defaults
	Criteria []string
}

// DefaultSettings returns the settings used when none are configured
func DefaultSettings() Settings {
	return Settings{AddOnTeam: model.TeamDRO, AddOnFTE: 0.4}
}

// pcaOnDuty sums the quarter-rounded on-duty capacity of every active PCA
func pcaOnDuty(s *DayState) float64 {
	var quarters int64
	for _, st := range s.Staff {
		if !st.IsActive() || st.Rank != model.RankPCA {
			continue
		}
		rec := s.Overrides[st.ID]
		quarters += capacity.ToQuarters(rec.EffectiveFTE(st.BaseCapacity()))
	}
	return capacity.QuarterFTE(quarters)
}

func reservedProgramFTE(s *DayState) float64 {
	total := 0.0
	for _, p := range s.ActivePrograms {
		total = capacity.Sum(total, p.ReservedFTE())
	}
	return total
}

// teamCapacities runs the capacity calculation over the day's current
// allocations
func teamCapacities(s *DayState, settings Settings) capacity.Result {
	return capacity.ComputeTeamCapacities(capacity.CapacityInput{
		Teams:             model.AllTeams,
		Wards:             s.Wards,
		BedOverrides:      s.BedCountOverrides,
		PTByTeam:          s.Allocations.TherapistFTEByTeam(),
		AssignedPCAByTeam: s.Allocations.PCAFTEByTeam(),
		TotalPCAOnDuty:    pcaOnDuty(s),
		ReservedFTE:       reservedProgramFTE(s),
		AddOnTeam:         settings.AddOnTeam,
		AddOnFTE:          settings.AddOnFTE,
	})
}

// refreshCapacity recomputes targets after an upstream change. Pending is
// derived from targets only until Step 3 has run; afterwards it is tracked.
// Bed transfers follow automatically while the bed step is initialised and
// the day has not moved on to review.
func refreshCapacity(s *DayState, settings Settings) {
	res := teamCapacities(s, settings)
	s.Targets = res.Targets
	if !s.Initialized[model.StepFloatingPCA] {
		s.Pending = capacity.PendingFTE(model.AllTeams, res.Targets, s.Allocations.PCAFTEByTeam())
	}
	if s.Initialized[model.StepBedRelieving] && s.CurrentStep != model.StepReview {
		s.Allocations.Beds = computeBeds(s, res).Transfers
	}
}

func computeBeds(s *DayState, res capacity.Result) beds.Result {
	return beds.Allocate(beds.Input{
		Teams:     model.AllTeams,
		Relieving: res.BedsForRelieving,
		Wards:     s.Wards,
	}, nil)
}
