package capacity

import (
	"github.com/shopspring/decimal"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// TeamCapacity is the per-team, per-day capacity summary
type TeamCapacity struct {
	Team             model.Team
	DesignatedBeds   int
	PTFTE            float64
	BedsPerPT        float64
	RequiredPCA      float64 // bed-share of the on-duty PCA pool
	AverageTarget    float64
	AssignedPCA      float64
	Balance          float64 // AssignedPCA - AverageTarget
	BedsForRelieving float64
}

// CapacityInput feeds ComputeTeamCapacities
type CapacityInput struct {
	Teams             []model.Team
	Wards             []model.Ward
	BedOverrides      map[model.Team]model.BedCountOverride
	PTByTeam          map[model.Team]float64
	AssignedPCAByTeam map[model.Team]float64
	TotalPCAOnDuty    float64
	ReservedFTE       float64
	AddOnTeam         model.Team
	AddOnFTE          float64
}

// Result bundles the team rows with the intermediate values other steps need
type Result struct {
	Teams            []TeamCapacity
	Designated       DesignatedBeds
	Targets          map[model.Team]float64
	BedsForRelieving map[model.Team]float64
}

// ComputeTeamCapacities runs the full capacity calculation for a day. It is
// pure and cheap enough to re-run after every edit.
func ComputeTeamCapacities(in CapacityInput) Result {
	designated := ComputeBedsDesignatedByTeam(in.Teams, in.Wards, in.BedOverrides)
	relieving := ComputeBedsForRelieving(in.Teams, designated.ByTeam, designated.TotalEffective, in.PTByTeam)
	targets := AveragePCATargets(TargetInput{
		Teams:                     in.Teams,
		PTByTeam:                  in.PTByTeam,
		TotalPCAOnDuty:            in.TotalPCAOnDuty,
		ReservedSpecialProgramFTE: in.ReservedFTE,
		AddOnTeam:                 in.AddOnTeam,
		AddOnFTE:                  in.AddOnFTE,
	})

	totalBeds := decimal.NewFromInt(int64(designated.TotalEffective))
	pool := decimal.NewFromFloat(in.TotalPCAOnDuty)

	rows := make([]TeamCapacity, 0, len(in.Teams))
	for _, team := range in.Teams {
		beds := designated.ByTeam[team]
		pt := in.PTByTeam[team]

		row := TeamCapacity{
			Team:             team,
			DesignatedBeds:   beds,
			PTFTE:            pt,
			AverageTarget:    targets[team],
			AssignedPCA:      in.AssignedPCAByTeam[team],
			BedsForRelieving: relieving[team],
		}

		if pt > 0 {
			row.BedsPerPT, _ = decimal.NewFromInt(int64(beds)).Div(decimal.NewFromFloat(pt)).Round(2).Float64()
		}
		if !totalBeds.IsZero() {
			row.RequiredPCA, _ = decimal.NewFromInt(int64(beds)).Div(totalBeds).Mul(pool).Round(4).Float64()
		}
		row.Balance, _ = decimal.NewFromFloat(row.AssignedPCA).Sub(decimal.NewFromFloat(row.AverageTarget)).Round(4).Float64()

		rows = append(rows, row)
	}

	return Result{
		Teams:            rows,
		Designated:       designated,
		Targets:          targets,
		BedsForRelieving: relieving,
	}
}
