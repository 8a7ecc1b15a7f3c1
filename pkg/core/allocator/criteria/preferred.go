package criteria

import (
	"slices"

	"github.com/jakechorley/rehab-roster/pkg/core/allocator"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// PreferredPCACriterion favours the PCAs and slots a team asked for.
//
// Validity:
//   - Never vetoes a slot
//
// Scoring:
//   - 1.0 when the PCA is on the team's preferred list
//
// Affinity:
//   - 1.0 for the team's preferred slots
type PreferredPCACriterion struct {
	pcaWeight      float64
	affinityWeight float64
}

// NewPreferredPCACriterion creates a new PreferredPCACriterion with the given weights
func NewPreferredPCACriterion(pcaWeight, affinityWeight float64) *PreferredPCACriterion {
	return &PreferredPCACriterion{
		pcaWeight:      pcaWeight,
		affinityWeight: affinityWeight,
	}
}

func (c *PreferredPCACriterion) Name() string {
	return "PreferredPCA"
}

func (c *PreferredPCACriterion) IsSlotValid(state *allocator.State, pca *allocator.PoolPCA, team model.Team, slot model.Slot) bool {
	return true
}

func (c *PreferredPCACriterion) ScorePCA(state *allocator.State, pca *allocator.PoolPCA, team model.Team) float64 {
	if state.Preference(team).PrefersPCA(pca.Staff.ID) {
		return 1
	}
	return 0
}

func (c *PreferredPCACriterion) SlotAffinity(state *allocator.State, pca *allocator.PoolPCA, team model.Team, slot model.Slot) float64 {
	if slices.Contains(state.Preference(team).PreferredSlots, slot) {
		return 1
	}
	return 0
}

func (c *PreferredPCACriterion) PCAWeight() float64 {
	return c.pcaWeight
}

func (c *PreferredPCACriterion) AffinityWeight() float64 {
	return c.affinityWeight
}
