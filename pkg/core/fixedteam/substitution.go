package fixedteam

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/overrides"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
)

type pcaSlot struct {
	staffID string
	slot    model.Slot
}

// coverPool tracks the floating PCA capacity used by substitutions so that
// no (PCA, slot) pair covers more than one gap
type coverPool struct {
	slots map[string][]model.Slot
	left  map[string]int64
	used  map[pcaSlot]string
}

func (d *draft) floatingPool() *coverPool {
	pool := &coverPool{
		slots: make(map[string][]model.Slot),
		left:  make(map[string]int64),
		used:  make(map[pcaSlot]string),
	}
	for _, s := range d.in.Staff {
		if !s.IsActive() || !s.IsFloatingPCA() {
			continue
		}
		fte := d.onDutyFTE(s)
		if fte <= 0 {
			continue
		}
		rec := d.overrides[s.ID]
		pool.slots[s.ID] = rec.EffectiveSlots()
		pool.left[s.ID] = capacity.ToQuarters(fte)
	}
	return pool
}

func (p *coverPool) canCover(staffID string, slot model.Slot) bool {
	if p.left[staffID] <= 0 {
		return false
	}
	if _, taken := p.used[pcaSlot{staffID, slot}]; taken {
		return false
	}
	return slices.Contains(p.slots[staffID], slot)
}

func (p *coverPool) take(staffID string, slot model.Slot, key string) {
	p.used[pcaSlot{staffID, slot}] = key
	p.left[staffID]--
}

// rankCandidates lists the floating PCAs able to cover part of the gap:
// preferred for the team first, then floor match, then the widest overlap
// with the missing slots, then name
func (d *draft) rankCandidates(need resolvers.SubstitutionNeed, pool *coverPool) []resolvers.Candidate {
	pref := d.preferences[need.Team]

	var out []resolvers.Candidate
	for id, slots := range pool.slots {
		var cover []model.Slot
		for _, slot := range need.MissingSlots {
			if slices.Contains(slots, slot) {
				cover = append(cover, slot)
			}
		}
		if len(cover) == 0 {
			continue
		}
		s := d.staffByID[id]
		out = append(out, resolvers.Candidate{
			StaffID:    id,
			Name:       s.Name,
			Preferred:  pref.PrefersPCA(id),
			FloorMatch: s.HasFloor(pref.Floor),
			CoverSlots: cover,
		})
	}

	slices.SortFunc(out, func(a, b resolvers.Candidate) int {
		if a.Preferred != b.Preferred {
			if a.Preferred {
				return -1
			}
			return 1
		}
		if a.FloorMatch != b.FloorMatch {
			if a.FloorMatch {
				return -1
			}
			return 1
		}
		if len(a.CoverSlots) != len(b.CoverSlots) {
			return len(b.CoverSlots) - len(a.CoverSlots)
		}
		return compareNames(a.Name, b.Name, a.StaffID, b.StaffID)
	})
	return out
}

// ambiguous reports whether a human must choose: one (PCA, slot) pair could
// cover the gaps of more than one non-floating PCA. A lone gap with several
// candidates takes the top-ranked one.
func ambiguous(needs []resolvers.SubstitutionNeed) bool {
	claims := make(map[pcaSlot]string)
	for _, n := range needs {
		for _, c := range n.Candidates {
			for _, slot := range c.CoverSlots {
				key := pcaSlot{c.StaffID, slot}
				if other, ok := claims[key]; ok && other != n.Key {
					return true
				}
				claims[key] = n.Key
			}
		}
	}
	return false
}

func (d *draft) resolveSubstitutions(ctx context.Context, resolve resolvers.SubstitutionResolver, cached *cachedAnswers) (bool, resolvers.Outcome, error) {
	if len(d.needs) == 0 {
		d.overrides = d.overrides.RemoveSubstitutionsTargeting(d.staleStepTwoKeys())
		return false, resolvers.Skipped, nil
	}

	pool := d.floatingPool()
	for i := range d.needs {
		d.needs[i].Candidates = d.rankCandidates(d.needs[i], pool)
	}

	asked := false
	answer := &resolvers.SubstitutionResolution{Outcome: resolvers.Skipped}
	if resolve != nil && ambiguous(d.needs) {
		asked = true
		if cached.subs != nil {
			answer = cached.subs
		} else {
			d.logger.Debug("Escalating substitution selection", zap.Int("gaps", len(d.needs)))
			got, err := resolve(ctx, d.needs)
			if resolvers.IsCancel(got.Outcome, err) {
				return true, resolvers.Cancelled, resolvers.ErrCancelled
			}
			if err != nil {
				return true, resolvers.Cancelled, fmt.Errorf("substitution resolver failed: %w", err)
			}
			if got.Outcome == resolvers.Back {
				return true, resolvers.Back, nil
			}
			cached.subs = &got
			answer = &got
		}
	}

	covered := make(map[string]map[string][]model.Slot) // need key -> pca -> slots
	assign := func(need resolvers.SubstitutionNeed, staffID string, slot model.Slot) {
		pool.take(staffID, slot, need.Key)
		if covered[need.Key] == nil {
			covered[need.Key] = make(map[string][]model.Slot)
		}
		covered[need.Key][staffID] = append(covered[need.Key][staffID], slot)
	}
	isCovered := func(key string, slot model.Slot) bool {
		for _, slots := range covered[key] {
			if slices.Contains(slots, slot) {
				return true
			}
		}
		return false
	}

	var auto []resolvers.SubstitutionNeed
	for _, need := range d.needs {
		selections, ok := answer.Selections[need.Key]
		if answer.Outcome != resolvers.Resolved || !ok {
			auto = append(auto, need)
			continue
		}
		for _, sel := range selections {
			idx := slices.IndexFunc(need.Candidates, func(c resolvers.Candidate) bool { return c.StaffID == sel.FloatingPCAID })
			if idx < 0 {
				d.warn(model.Warning{Code: model.WarnInvalidSelection, Team: need.Team, StaffID: sel.FloatingPCAID,
					Message: fmt.Sprintf("%s is not a candidate to cover %s", sel.FloatingPCAID, need.NonFloatingPCAID)})
				continue
			}
			for _, slot := range model.NormalizeSlots(sel.Slots) {
				if !slices.Contains(need.Candidates[idx].CoverSlots, slot) || isCovered(need.Key, slot) || !pool.canCover(sel.FloatingPCAID, slot) {
					d.warn(model.Warning{Code: model.WarnInvalidSelection, Team: need.Team, StaffID: sel.FloatingPCAID,
						Message: fmt.Sprintf("slot %d cannot be covered by %s", slot, sel.FloatingPCAID)})
					continue
				}
				assign(need, sel.FloatingPCAID, slot)
			}
		}
	}

	for _, need := range auto {
		for _, c := range need.Candidates {
			for _, slot := range c.CoverSlots {
				if !isCovered(need.Key, slot) && pool.canCover(c.StaffID, slot) {
					assign(need, c.StaffID, slot)
				}
			}
		}
	}

	d.unresolved = nil
	for _, need := range d.needs {
		var left []model.Slot
		for _, slot := range need.MissingSlots {
			if !isCovered(need.Key, slot) {
				left = append(left, slot)
			}
		}
		if len(left) > 0 {
			d.unresolved = append(d.unresolved, need)
			d.warn(model.Warning{Code: model.WarnUnresolvedSubstitution, Team: need.Team, StaffID: need.NonFloatingPCAID,
				Message: fmt.Sprintf("no floating cover for slots %v", left)})
		}
	}

	if err := d.writeLinks(covered); err != nil {
		return asked, answer.Outcome, err
	}
	return asked, answer.Outcome, nil
}

// staleStepTwoKeys lists the gaps covered by links a previous Step 2 run wrote
func (d *draft) staleStepTwoKeys() []string {
	var keys []string
	for _, rec := range d.overrides {
		for _, l := range rec.Substitutions {
			if l.Owner == model.StepTherapistPCA && !slices.Contains(keys, l.Key()) {
				keys = append(keys, l.Key())
			}
		}
	}
	return keys
}

func (d *draft) writeLinks(covered map[string]map[string][]model.Slot) error {
	keys := d.staleStepTwoKeys()
	for _, need := range d.needs {
		if !slices.Contains(keys, need.Key) {
			keys = append(keys, need.Key)
		}
	}
	d.overrides = d.overrides.RemoveSubstitutionsTargeting(keys)

	for _, need := range d.needs {
		byPCA := covered[need.Key]
		ids := make([]string, 0, len(byPCA))
		for id := range byPCA {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			next, err := d.overrides.Apply(id, overrides.Patch{AddSubstitutions: []model.SubstitutionLink{{
				NonFloatingPCAID: need.NonFloatingPCAID,
				Team:             need.Team,
				Slots:            byPCA[id],
				Owner:            model.StepTherapistPCA,
			}}})
			if err != nil {
				return fmt.Errorf("failed to record substitution: %w", err)
			}
			d.overrides = next
		}
	}
	return nil
}
