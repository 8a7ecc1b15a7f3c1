package criteria

import (
	"github.com/jakechorley/rehab-roster/pkg/core/allocator"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// FloorCriterion favours PCAs who know the team's floor
type FloorCriterion struct {
	pcaWeight      float64
	affinityWeight float64
}

// NewFloorCriterion creates a new FloorCriterion with the given weights
func NewFloorCriterion(pcaWeight, affinityWeight float64) *FloorCriterion {
	return &FloorCriterion{
		pcaWeight:      pcaWeight,
		affinityWeight: affinityWeight,
	}
}

func (c *FloorCriterion) Name() string {
	return "Floor"
}

func (c *FloorCriterion) IsSlotValid(state *allocator.State, pca *allocator.PoolPCA, team model.Team, slot model.Slot) bool {
	return true
}

func (c *FloorCriterion) ScorePCA(state *allocator.State, pca *allocator.PoolPCA, team model.Team) float64 {
	if pca.Staff.HasFloor(state.Preference(team).Floor) {
		return 1
	}
	return 0
}

func (c *FloorCriterion) SlotAffinity(state *allocator.State, pca *allocator.PoolPCA, team model.Team, slot model.Slot) float64 {
	// No slot preference for this criterion
	return 0
}

func (c *FloorCriterion) PCAWeight() float64 {
	return c.pcaWeight
}

func (c *FloorCriterion) AffinityWeight() float64 {
	return c.affinityWeight
}
