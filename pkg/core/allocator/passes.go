package allocator

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
)

// seedManual applies slot assignments a human pinned during Step 3
func (r *run) seedManual() {
	for _, p := range r.state.PCAs {
		rec := r.cfg.Overrides[p.Staff.ID]
		if len(rec.SlotOverrides) == 0 {
			continue
		}
		slots := make([]model.Slot, 0, len(rec.SlotOverrides))
		for slot := range rec.SlotOverrides {
			slots = append(slots, slot)
		}
		slices.Sort(slots)

		for _, slot := range slots {
			team := rec.SlotOverrides[slot]
			if !slices.Contains(r.state.Teams, team) || !p.CanTake(slot) {
				r.warn(model.Warning{Code: model.WarnInvalidSelection, Team: team, StaffID: p.Staff.ID,
					Message: fmt.Sprintf("pinned slot %d cannot be kept", slot)})
				continue
			}
			r.assign(p, team, slot, PassManual, true, true)
		}
	}
}

// seedSubstitutions gives the slots of every substitution link to the team
// of the gap it covers
func (r *run) seedSubstitutions() {
	for _, p := range r.state.PCAs {
		for _, link := range r.cfg.Overrides[p.Staff.ID].Substitutions {
			for _, slot := range link.Slots {
				if p.Slots.Get(slot) == link.Team {
					continue
				}
				if !slices.Contains(r.state.Teams, link.Team) || !p.CanTake(slot) {
					r.warn(model.Warning{Code: model.WarnUnresolvedSubstitution, Team: link.Team, StaffID: p.Staff.ID,
						Message: fmt.Sprintf("slot %d can no longer cover %s", slot, link.NonFloatingPCAID)})
					continue
				}
				r.assign(p, link.Team, slot, PassSubstitution, true, false)
			}
		}
	}
}

// reservePrograms books the slots of today's special programs. Program slots
// belong to the program's team but do not reduce its pending need, since
// their capacity was taken out of the pool before averaging.
func (r *run) reservePrograms() {
	for _, program := range r.cfg.Programs {
		if !program.Team.IsValid() || len(program.Slots) == 0 {
			continue
		}
		slots := model.NormalizeSlots(program.Slots)
		candidates := r.programCandidates(program)

		takesAll := func(p *PoolPCA) bool {
			if p.Remaining() < int64(len(slots)) {
				return false
			}
			for _, slot := range slots {
				if !p.CanTake(slot) {
					return false
				}
			}
			return true
		}

		if idx := slices.IndexFunc(candidates, takesAll); idx >= 0 {
			for _, slot := range slots {
				r.assignProgram(candidates[idx], program, slot)
			}
			continue
		}

		for _, slot := range slots {
			idx := slices.IndexFunc(candidates, func(p *PoolPCA) bool { return p.CanTake(slot) })
			if idx < 0 {
				r.warn(model.Warning{Code: model.WarnProgramUnstaffed, Team: program.Team,
					Message: fmt.Sprintf("no floating PCA free for %s slot %d", program.Name, slot)})
				continue
			}
			r.assignProgram(candidates[idx], program, slot)
		}
	}
}

// programCandidates lists the program's preferred PCAs first, then the rest
// of the pool by score for the program's team
func (r *run) programCandidates(program model.SpecialProgram) []*PoolPCA {
	var out []*PoolPCA
	for _, id := range program.PreferredPCAIDs {
		if p := r.state.Find(id); p != nil && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}

	rest := slices.DeleteFunc(slices.Clone(r.state.PCAs), func(p *PoolPCA) bool { return slices.Contains(out, p) })
	slices.SortStableFunc(rest, func(a, b *PoolPCA) int {
		sa := scorePCA(r.state, a, program.Team, r.criteria)
		sb := scorePCA(r.state, b, program.Team, r.criteria)
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return 0
	})
	return append(out, rest...)
}

func (r *run) assignProgram(p *PoolPCA, program model.SpecialProgram, slot model.Slot) {
	r.assign(p, program.Team, slot, PassSpecialProgram, false, false)
	p.ProgramSlots = append(p.ProgramSlots, slot)
	p.anchors = append(p.anchors, slot)
	if !slices.Contains(p.ProgramIDs, program.ID) {
		p.ProgramIDs = append(p.ProgramIDs, program.ID)
	}
}

// preassignBuffer hands a share of each buffer PCA's free slots to the
// neediest teams before the priority passes run
func (r *run) preassignBuffer() {
	ratio := r.cfg.BufferPreassignRatio
	if ratio <= 0 {
		return
	}
	for _, p := range r.state.PCAs {
		if !p.Staff.IsBuffer() {
			continue
		}
		n := min(int64(float64(len(p.FreeSlots()))*ratio), p.Remaining())
		for range n {
			team := r.neediestTeam()
			if team == "" {
				return
			}
			slot := bestSlot(r.state, p, team, r.criteria)
			if slot == 0 {
				break
			}
			r.assign(p, team, slot, PassBuffer, true, false)
		}
	}
}

// reservePreferred books each team's preferred PCAs on its preferred slots
func (r *run) reservePreferred() {
	for _, team := range r.state.Teams {
		pref := r.state.Preference(team)
		if len(pref.PreferredSlots) == 0 {
			continue
		}
		for _, id := range pref.PreferredPCAIDs {
			p := r.state.Find(id)
			if p == nil {
				continue
			}
			for _, slot := range pref.PreferredSlots {
				if r.state.Pending[team] <= 0 {
					break
				}
				if isSlotValid(r.state, p, team, slot, r.criteria) {
					r.assign(p, team, slot, PassPreferred, true, false)
				}
			}
		}
	}
}

// extendAdjacent grows program slots into the neighbouring slot for the same
// team, repeating until nothing more can be added
func (r *run) extendAdjacent() {
	for changed := true; changed; {
		changed = false
		for _, p := range r.state.PCAs {
			for _, anchor := range slices.Clone(p.anchors) {
				team := p.Slots.Get(anchor)
				if team == "" {
					continue
				}
				for _, adj := range anchor.Adjacent() {
					if r.state.Pending[team] <= 0 || !isSlotValid(r.state, p, team, adj, r.criteria) {
						continue
					}
					r.assign(p, team, adj, PassAdjacent, true, false)
					p.anchors = append(p.anchors, adj)
					changed = true
				}
			}
		}
	}
}

// neediestTeam returns the first team in processing order with the largest
// pending need, or "" when nothing is pending
func (r *run) neediestTeam() model.Team {
	tied := r.neediestTeams(nil)
	if len(tied) == 0 {
		return ""
	}
	return tied[0]
}

// neediestTeams returns every team sharing the largest pending need, in
// processing order
func (r *run) neediestTeams(blocked map[model.Team]bool) []model.Team {
	var most int64
	var tied []model.Team
	for _, team := range r.state.Teams {
		pending := r.state.Pending[team]
		if pending <= 0 || blocked[team] {
			continue
		}
		switch {
		case pending > most:
			most = pending
			tied = []model.Team{team}
		case pending == most:
			tied = append(tied, team)
		}
	}
	return tied
}

// fill serves the neediest team one slot at a time. When several teams tie
// on the largest need and the pool cannot give each of them a slot, the
// tie-break resolver decides who goes first.
func (r *run) fill(ctx context.Context) error {
	blocked := make(map[model.Team]bool)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		free := r.state.FreeUnits()
		if free == 0 {
			return nil
		}
		tied := r.neediestTeams(blocked)
		if len(tied) == 0 {
			return nil
		}

		team, user := tied[0], false
		if len(tied) > 1 && free < int64(len(tied)) {
			var err error
			team, user, err = r.breakTie(ctx, tied)
			if err != nil {
				return err
			}
		}

		p := bestPCA(r.state, team, r.criteria)
		if p == nil {
			blocked[team] = true
			continue
		}
		r.assign(p, team, bestSlot(r.state, p, team, r.criteria), PassFill, true, user)
	}
}

func (r *run) breakTie(ctx context.Context, tied []model.Team) (model.Team, bool, error) {
	idx := len(r.decisions)
	if idx < len(r.replay) && slices.Contains(tied, r.replay[idx].team) {
		d := r.replay[idx]
		r.decisions = append(r.decisions, d)
		return d.team, d.user, nil
	}

	d := decision{team: tied[0]}
	if r.tieBreak == nil {
		r.decisions = append(r.decisions, d)
		return d.team, false, nil
	}

	pendingFTE := r.state.PendingFTE(tied[0])
	r.logger.Debug("Escalating tie-break", zap.Any("tied", tied), zap.Float64("pendingFTE", pendingFTE))

	r.onWait(&TieBreakRequest{Tied: slices.Clone(tied), PendingFTE: pendingFTE})
	got, err := r.tieBreak(ctx, slices.Clone(tied), pendingFTE)
	r.onWait(nil)

	if resolvers.IsCancel(got.Outcome, err) {
		return "", false, resolvers.ErrCancelled
	}
	if err != nil {
		return "", false, fmt.Errorf("tie-break resolver failed: %w", err)
	}

	switch got.Outcome {
	case resolvers.Back:
		return "", false, errBack
	case resolvers.Resolved:
		if slices.Contains(tied, got.Team) {
			d = decision{team: got.Team, user: true}
		} else {
			r.warn(model.Warning{Code: model.WarnInvalidSelection, Team: got.Team,
				Message: fmt.Sprintf("tie-break chose %q which is not tied; %s goes first", got.Team, tied[0])})
		}
	}

	r.decisions = append(r.decisions, d)
	return d.team, d.user, nil
}

// extraCoverage spreads slots left in the pool round-robin across teams once
// every pending need is met
func (r *run) extraCoverage() {
	for {
		progress := false
		for _, team := range r.state.Teams {
			if r.state.FreeUnits() == 0 {
				return
			}
			p := bestPCA(r.state, team, r.criteria)
			if p == nil {
				continue
			}
			r.assign(p, team, bestSlot(r.state, p, team, r.criteria), PassExtraCoverage, false, false)
			progress = true
		}
		if !progress {
			return
		}
	}
}
