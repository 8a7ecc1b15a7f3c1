package criteria

import (
	"slices"

	"github.com/jakechorley/rehab-roster/pkg/core/allocator"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// CoverageCriterion keeps a team's cover continuous.
//
// Scoring:
//   - 1.0 for a PCA already covering the team
//   - Otherwise favours PCAs with more free slots, at half weight
//
// Affinity:
//   - 1.0 for a slot next to one the PCA already gives the team
type CoverageCriterion struct {
	pcaWeight      float64
	affinityWeight float64
}

// NewCoverageCriterion creates a new CoverageCriterion with the given weights
func NewCoverageCriterion(pcaWeight, affinityWeight float64) *CoverageCriterion {
	return &CoverageCriterion{
		pcaWeight:      pcaWeight,
		affinityWeight: affinityWeight,
	}
}

func (c *CoverageCriterion) Name() string {
	return "Coverage"
}

func (c *CoverageCriterion) IsSlotValid(state *allocator.State, pca *allocator.PoolPCA, team model.Team, slot model.Slot) bool {
	return true
}

func (c *CoverageCriterion) ScorePCA(state *allocator.State, pca *allocator.PoolPCA, team model.Team) float64 {
	if len(pca.Slots.SlotsFor(team)) > 0 {
		return 1
	}
	return 0.5 * float64(len(pca.FreeSlots())) / model.SlotsPerDay
}

func (c *CoverageCriterion) SlotAffinity(state *allocator.State, pca *allocator.PoolPCA, team model.Team, slot model.Slot) float64 {
	held := pca.Slots.SlotsFor(team)
	for _, adj := range slot.Adjacent() {
		if slices.Contains(held, adj) {
			return 1
		}
	}
	return 0
}

func (c *CoverageCriterion) PCAWeight() float64 {
	return c.pcaWeight
}

func (c *CoverageCriterion) AffinityWeight() float64 {
	return c.affinityWeight
}
