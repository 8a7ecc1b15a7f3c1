package allocator

import "github.com/jakechorley/rehab-roster/pkg/core/model"

// Criterion defines the interface for floating PCA selection criteria.
// Criteria influence both which PCA serves a team and which of the PCA's
// slots the team receives.
type Criterion interface {
	// Name returns a human-readable identifier for this criterion
	Name() string

	// IsSlotValid determines if the PCA's slot may be given to the team.
	// This acts as a veto: if ANY criterion returns false the slot is skipped.
	IsSlotValid(state *State, pca *PoolPCA, team model.Team, slot model.Slot) bool

	// ScorePCA rates how well the PCA suits the team.
	// Returns a score between 0.0 and 1.0 that is multiplied by PCAWeight.
	ScorePCA(state *State, pca *PoolPCA, team model.Team) float64

	// SlotAffinity rates how well one of the PCA's slots suits the team.
	// Returns a score between 0.0 and 1.0 that is multiplied by AffinityWeight.
	SlotAffinity(state *State, pca *PoolPCA, team model.Team, slot model.Slot) float64

	// PCAWeight returns the weight for PCA scoring
	PCAWeight() float64

	// AffinityWeight returns the weight for slot affinity
	AffinityWeight() float64
}

// isSlotValid checks the slot against every criterion
func isSlotValid(state *State, pca *PoolPCA, team model.Team, slot model.Slot, criteria []Criterion) bool {
	if !pca.CanTake(slot) {
		return false
	}
	for _, c := range criteria {
		if !c.IsSlotValid(state, pca, team, slot) {
			return false
		}
	}
	return true
}

func scorePCA(state *State, pca *PoolPCA, team model.Team, criteria []Criterion) float64 {
	score := 0.0
	for _, c := range criteria {
		score += c.ScorePCA(state, pca, team) * c.PCAWeight()
	}
	return score
}

func slotAffinity(state *State, pca *PoolPCA, team model.Team, slot model.Slot, criteria []Criterion) float64 {
	score := 0.0
	for _, c := range criteria {
		score += c.SlotAffinity(state, pca, team, slot) * c.AffinityWeight()
	}
	return score
}

// bestPCA returns the highest scoring PCA with a valid slot for the team.
// PCAs are held in name order, so equal scores resolve by name.
func bestPCA(state *State, team model.Team, criteria []Criterion) *PoolPCA {
	var best *PoolPCA
	bestScore := 0.0
	for _, p := range state.PCAs {
		if bestSlot(state, p, team, criteria) == 0 {
			continue
		}
		score := scorePCA(state, p, team, criteria)
		if best == nil || score > bestScore {
			best = p
			bestScore = score
		}
	}
	return best
}

// bestSlot returns the PCA's valid slot with the highest affinity for the
// team, lowest slot first on equal affinity. Zero means no valid slot.
func bestSlot(state *State, pca *PoolPCA, team model.Team, criteria []Criterion) model.Slot {
	var best model.Slot
	bestAffinity := 0.0
	for _, slot := range pca.FreeSlots() {
		if !isSlotValid(state, pca, team, slot, criteria) {
			continue
		}
		affinity := slotAffinity(state, pca, team, slot, criteria)
		if best == 0 || affinity > bestAffinity {
			best = slot
			bestAffinity = affinity
		}
	}
	return best
}
