package fixedteam

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/overrides"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
)

// resolveSPT lets a human adjust where senior therapists work before the
// step finishes. Accepted updates are written as therapist split overrides
// so re-runs keep them.
func (d *draft) resolveSPT(ctx context.Context, resolve resolvers.SPTFinalEditResolver, cached *cachedAnswers) (bool, resolvers.Outcome, error) {
	var spts []model.Staff
	for _, s := range d.in.Staff {
		if s.IsActive() && s.Rank == model.RankSPT && d.onDutyFTE(s) > 0 {
			spts = append(spts, s)
		}
	}
	if len(spts) == 0 || resolve == nil {
		return false, resolvers.Skipped, nil
	}

	answer := cached.spt
	if answer == nil {
		var current []model.TherapistAllocation
		for _, t := range d.therapists {
			if slices.ContainsFunc(spts, func(s model.Staff) bool { return s.ID == t.StaffID }) {
				current = append(current, t)
			}
		}

		d.logger.Debug("Escalating SPT final edit", zap.Int("spts", len(spts)))
		got, err := resolve(ctx, spts, current)
		if resolvers.IsCancel(got.Outcome, err) {
			return true, resolvers.Cancelled, resolvers.ErrCancelled
		}
		if err != nil {
			return true, resolvers.Cancelled, fmt.Errorf("SPT final edit resolver failed: %w", err)
		}
		if got.Outcome == resolvers.Back {
			return true, resolvers.Back, nil
		}
		cached.spt = &got
		answer = &got
	}

	if answer.Outcome != resolvers.Resolved {
		return true, answer.Outcome, nil
	}

	ids := make([]string, 0, len(answer.Updates))
	for id := range answer.Updates {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		update := answer.Updates[id]
		s, ok := d.staffByID[id]
		if !ok || s.Rank != model.RankSPT || len(update.FTEByTeam) == 0 {
			d.warn(model.Warning{Code: model.WarnInvalidSelection, StaffID: id, Message: "SPT update ignored: unknown senior therapist or empty placement"})
			continue
		}

		total := 0.0
		valid := true
		for team, fte := range update.FTEByTeam {
			if !team.IsValid() || fte < 0 {
				valid = false
			}
			total = capacity.Sum(total, fte)
		}
		onDuty := d.onDutyFTE(s)
		if !valid || (total > onDuty && !capacity.Equal(total, onDuty)) {
			d.warn(model.Warning{Code: model.WarnInvalidSelection, StaffID: id,
				Message: fmt.Sprintf("SPT update for %s exceeds on-duty FTE %.2f", s.Name, onDuty)})
			continue
		}

		next, err := d.overrides.Apply(id, overrides.Patch{TherapistTeamFTEByTeam: update.FTEByTeam})
		if err != nil {
			d.warn(model.Warning{Code: model.WarnInvalidSelection, StaffID: id, Message: err.Error()})
			continue
		}
		d.overrides = next

		rec := d.overrides[id]
		programIDs := d.programsFor(id, true)
		d.therapists = slices.DeleteFunc(d.therapists, func(t model.TherapistAllocation) bool { return t.StaffID == id })
		for _, team := range model.AllTeams {
			fte := update.FTEByTeam[team]
			if fte <= 0 {
				continue
			}
			d.therapists = append(d.therapists, model.TherapistAllocation{
				ID:                uuid.NewString(),
				StaffID:           id,
				Team:              team,
				FTE:               capacity.RoundToQuarter(fte),
				Slots:             rec.EffectiveSlots(),
				LeaveType:         rec.LeaveType,
				SpecialProgramIDs: programIDs,
			})
		}
		d.warnings = slices.DeleteFunc(d.warnings, func(w model.Warning) bool {
			return w.Code == model.WarnUnplacedStaff && w.StaffID == id
		})
	}

	return true, answer.Outcome, nil
}
