// Package beds turns each team's relieving need into bed transfers between
// teams.
package beds

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// Input is everything the bed relieving step reads
type Input struct {
	Teams []model.Team
	// Relieving is each team's beds-for-relieving value. Positive values
	// need beds, negative values can give beds away.
	Relieving map[model.Team]float64
	Wards     []model.Ward
}

// Result is the computed transfers and the whole-bed needs they settle
type Result struct {
	Transfers []model.BedAllocation
	// Needs is the relieving value of each team rounded to whole beds
	Needs map[model.Team]int
}

// Allocate matches teams that need beds against teams with a surplus. The
// neediest taker is served first from the largest surplus, and beds are
// drawn from the giver's largest ward first.
func Allocate(in Input, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	teams := in.Teams
	if len(teams) == 0 {
		teams = model.AllTeams
	}

	needs := RoundNeeds(teams, in.Relieving)
	logger.Debug("Rounded bed relieving needs", zap.Any("needs", needs))

	var takers, givers []model.Team
	surplus := make(map[model.Team]int)
	need := make(map[model.Team]int)
	for _, team := range teams {
		switch n := needs[team]; {
		case n > 0:
			takers = append(takers, team)
			need[team] = n
		case n < 0:
			givers = append(givers, team)
			surplus[team] = -n
		}
	}
	byAmountDesc := func(amounts map[model.Team]int) func(a, b model.Team) int {
		return func(a, b model.Team) int {
			if c := cmp.Compare(amounts[b], amounts[a]); c != 0 {
				return c
			}
			return a.Index() - b.Index()
		}
	}
	slices.SortFunc(takers, byAmountDesc(need))
	slices.SortFunc(givers, byAmountDesc(surplus))

	wards := newWardStock(in.Wards, givers)

	var transfers []model.BedAllocation
	for _, taker := range takers {
		for _, giver := range givers {
			if need[taker] == 0 {
				break
			}
			n := min(need[taker], surplus[giver])
			if n == 0 {
				continue
			}
			need[taker] -= n
			surplus[giver] -= n
			transfers = append(transfers, wards.draw(giver, taker, n)...)
		}
		if need[taker] > 0 {
			logger.Debug("Bed need left unmet", zap.String("team", string(taker)), zap.Int("beds", need[taker]))
		}
	}

	return Result{Transfers: transfers, Needs: needs}
}

// RoundNeeds rounds relieving values to whole beds with the largest
// remainder method, so the rounded values sum to the rounded total. Equal
// remainders go to the earlier team in the fixed order.
func RoundNeeds(teams []model.Team, relieving map[model.Team]float64) map[model.Team]int {
	out := make(map[model.Team]int, len(teams))
	remainders := make(map[model.Team]decimal.Decimal, len(teams))

	total := decimal.Zero
	floors := int64(0)
	for _, team := range teams {
		v := decimal.NewFromFloat(relieving[team])
		floor := v.Floor()
		out[team] = int(floor.IntPart())
		remainders[team] = v.Sub(floor)
		total = total.Add(v)
		floors += floor.IntPart()
	}

	extra := total.Round(0).IntPart() - floors
	if extra <= 0 {
		return out
	}

	order := slices.Clone(teams)
	slices.SortStableFunc(order, func(a, b model.Team) int {
		if c := remainders[b].Cmp(remainders[a]); c != 0 {
			return c
		}
		return a.Index() - b.Index()
	})
	for _, team := range order[:min(int(extra), len(order))] {
		out[team]++
	}
	return out
}

type wardBeds struct {
	name string
	left int
}

// wardStock tracks how many of each giver's designated ward beds have not
// been handed out yet
type wardStock map[model.Team][]*wardBeds

func newWardStock(wards []model.Ward, givers []model.Team) wardStock {
	stock := make(wardStock, len(givers))
	for _, giver := range givers {
		var list []*wardBeds
		for _, w := range wards {
			if n := w.TeamBeds[giver]; n > 0 {
				list = append(list, &wardBeds{name: w.Name, left: n})
			}
		}
		slices.SortStableFunc(list, func(a, b *wardBeds) int {
			if c := cmp.Compare(b.left, a.left); c != 0 {
				return c
			}
			return cmp.Compare(a.name, b.name)
		})
		stock[giver] = list
	}
	return stock
}

// draw takes n beds from the giver's wards, largest ward first. Beds beyond
// the giver's ward stock are transferred without a ward.
func (s wardStock) draw(giver, taker model.Team, n int) []model.BedAllocation {
	var out []model.BedAllocation
	for _, w := range s[giver] {
		if n == 0 {
			break
		}
		k := min(n, w.left)
		if k == 0 {
			continue
		}
		w.left -= k
		n -= k
		out = append(out, model.BedAllocation{FromTeam: giver, ToTeam: taker, Beds: k, Ward: w.name})
	}
	if n > 0 {
		out = append(out, model.BedAllocation{FromTeam: giver, ToTeam: taker, Beds: n})
	}
	return out
}

// TotalsByTeam returns the beds each team receives (positive) or gives away
// (negative) across the transfers
func TotalsByTeam(transfers []model.BedAllocation) map[model.Team]int {
	out := make(map[model.Team]int)
	for _, t := range transfers {
		out[t.ToTeam] += t.Beds
		out[t.FromTeam] -= t.Beds
	}
	return out
}
