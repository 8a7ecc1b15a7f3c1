package capacity

import (
	"github.com/shopspring/decimal"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// DesignatedBeds is the per-team bed count after ward assignment and
// deductions
type DesignatedBeds struct {
	ByTeam map[model.Team]int
	// TotalEffective is the sum of designated beds across teams
	TotalEffective int
}

// ComputeBedsDesignatedByTeam sums the ward beds assigned to each team and
// subtracts the day's SHS and student-placement deductions. A team's count is
// floored at zero.
func ComputeBedsDesignatedByTeam(teams []model.Team, wards []model.Ward, overridesByTeam map[model.Team]model.BedCountOverride) DesignatedBeds {
	out := DesignatedBeds{ByTeam: make(map[model.Team]int, len(teams))}

	for _, team := range teams {
		beds := 0
		for _, ward := range wards {
			beds += ward.TeamBeds[team]
		}

		if o, ok := overridesByTeam[team]; ok {
			beds -= o.SHS + o.StudentPlacement
		}
		if beds < 0 {
			beds = 0
		}

		out.ByTeam[team] = beds
		out.TotalEffective += beds
	}

	return out
}

// ComputeBedsForRelieving returns, per team, the difference between the beds
// its therapist share entitles it to and the beds designated to it.
//
// Positive values mean the team needs beds from elsewhere; negative values
// mean it can give beds away. With no therapists on duty nobody has a claim
// and every team gets zero.
func ComputeBedsForRelieving(teams []model.Team, designatedByTeam map[model.Team]int, totalEffectiveBeds int, totalPTByTeam map[model.Team]float64) map[model.Team]float64 {
	out := make(map[model.Team]float64, len(teams))

	totalPT := decimal.Zero
	for _, team := range teams {
		totalPT = totalPT.Add(decimal.NewFromFloat(totalPTByTeam[team]))
	}

	if totalPT.IsZero() {
		for _, team := range teams {
			out[team] = 0
		}
		return out
	}

	total := decimal.NewFromInt(int64(totalEffectiveBeds))
	for _, team := range teams {
		share := decimal.NewFromFloat(totalPTByTeam[team]).Div(totalPT)
		expected := total.Mul(share)
		relieving := expected.Sub(decimal.NewFromInt(int64(designatedByTeam[team])))
		out[team], _ = relieving.Round(4).Float64()
	}

	return out
}

// TargetInput feeds the average PCA target calculation
type TargetInput struct {
	Teams          []model.Team
	PTByTeam       map[model.Team]float64
	TotalPCAOnDuty float64
	// ReservedSpecialProgramFTE is taken out of the pool before averaging
	ReservedSpecialProgramFTE float64
	// AddOnTeam receives AddOnFTE on top of its therapist share
	AddOnTeam model.Team
	AddOnFTE  float64
}

// AveragePCATargets distributes the effective PCA pool across teams in
// proportion to therapist FTE. The designated add-on team receives a fixed
// earmark independent of its therapist share.
func AveragePCATargets(in TargetInput) map[model.Team]float64 {
	out := make(map[model.Team]float64, len(in.Teams))

	addOn := decimal.Zero
	if in.AddOnTeam != "" {
		addOn = decimal.NewFromFloat(in.AddOnFTE)
	}

	pool := decimal.NewFromFloat(in.TotalPCAOnDuty).
		Sub(decimal.NewFromFloat(in.ReservedSpecialProgramFTE)).
		Sub(addOn)
	if pool.IsNegative() {
		pool = decimal.Zero
	}

	totalPT := decimal.Zero
	for _, team := range in.Teams {
		totalPT = totalPT.Add(decimal.NewFromFloat(in.PTByTeam[team]))
	}

	for _, team := range in.Teams {
		avg := decimal.Zero
		if !totalPT.IsZero() {
			avg = decimal.NewFromFloat(in.PTByTeam[team]).Div(totalPT).Mul(pool)
		}
		if team == in.AddOnTeam {
			avg = avg.Add(addOn)
		}
		out[team], _ = avg.Round(4).Float64()
	}

	return out
}

// PendingFTE is the quarter-rounded shortfall of each team against its
// target. Teams already at or above target have nothing pending.
func PendingFTE(teams []model.Team, targets, assigned map[model.Team]float64) map[model.Team]float64 {
	out := make(map[model.Team]float64, len(teams))
	for _, team := range teams {
		gap := decimal.NewFromFloat(targets[team]).Sub(decimal.NewFromFloat(assigned[team]))
		if gap.IsNegative() {
			out[team] = 0
			continue
		}
		f, _ := gap.Float64()
		out[team] = RoundToQuarter(f)
	}
	return out
}

// Drift returns sum(assigned - target) over the teams. A fully allocated day
// drifts by no more than Tolerance.
func Drift(teams []model.Team, assigned, targets map[model.Team]float64) float64 {
	total := decimal.Zero
	for _, team := range teams {
		total = total.Add(decimal.NewFromFloat(assigned[team])).Sub(decimal.NewFromFloat(targets[team]))
	}
	f, _ := total.Float64()
	return f
}

// Conserved reports whether the drift is within Tolerance
func Conserved(teams []model.Team, assigned, targets map[model.Team]float64) bool {
	return Equal(Drift(teams, assigned, targets), 0)
}
