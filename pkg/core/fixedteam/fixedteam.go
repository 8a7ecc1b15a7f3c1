// Package fixedteam places therapists and non-floating PCAs on their teams
// for the day and finds floating cover for partial-leave gaps.
package fixedteam

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/overrides"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
)

// Input is everything Step 2 reads
type Input struct {
	Date           time.Time
	Staff          []model.Staff
	Overrides      overrides.Overrides
	Programs       []model.SpecialProgram
	SPTAllocations []model.SPTAllocation
	Preferences    []model.PCAPreference
}

// Result is the output of a completed Step 2 run. Overrides carries the
// Step 2 owned fields written by the run's escalations.
type Result struct {
	Therapists     []model.TherapistAllocation
	PCAs           []model.PCAAllocation
	Overrides      overrides.Overrides
	ActivePrograms []model.SpecialProgram
	Needs          []resolvers.SubstitutionNeed
	// Unresolved are gaps left with at least one uncovered slot
	Unresolved []resolvers.SubstitutionNeed
	Warnings   []model.Warning
}

type stage int

const (
	stagePrograms stage = iota
	stageSubstitution
	stageSPT
)

var errBack = errors.New("back")

// cachedAnswers keeps resolutions across a restart caused by Back so that
// earlier escalation points are not asked again
type cachedAnswers struct {
	programs *resolvers.ProgramResolution
	subs     *resolvers.SubstitutionResolution
	spt      *resolvers.SPTResolution
}

func (c *cachedAnswers) clearFrom(s stage) {
	if s <= stagePrograms {
		c.programs = nil
	}
	if s <= stageSubstitution {
		c.subs = nil
	}
	if s <= stageSPT {
		c.spt = nil
	}
}

// Allocate runs Step 2. It blocks on the resolvers when an escalation is
// needed. A Cancelled answer (or Back at the first escalation point) returns
// resolvers.ErrCancelled and no result.
func Allocate(ctx context.Context, in Input, res resolvers.Set, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var cached cachedAnswers
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d, err := newDraft(in, logger)
		if err != nil {
			return nil, err
		}

		err = d.run(ctx, res, &cached)
		if errors.Is(err, errBack) {
			logger.Debug("Re-opening previous escalation point")
			continue
		}
		if err != nil {
			return nil, err
		}

		logger.Debug("Step 2 allocation complete",
			zap.Int("therapists", len(d.therapists)),
			zap.Int("pcas", len(d.pcas)),
			zap.Int("needs", len(d.needs)),
			zap.Int("unresolved", len(d.unresolved)),
			zap.Int("warnings", len(d.warnings)))

		return &Result{
			Therapists:     d.therapists,
			PCAs:           d.pcas,
			Overrides:      d.overrides,
			ActivePrograms: d.active,
			Needs:          d.needs,
			Unresolved:     d.unresolved,
			Warnings:       d.warnings,
		}, nil
	}
}

// draft is the working state of one pass through the escalation stages
type draft struct {
	in          Input
	logger      *zap.Logger
	weekday     model.Weekday
	staffByID   map[string]model.Staff
	preferences map[model.Team]model.PCAPreference

	overrides  overrides.Overrides
	active     []model.SpecialProgram
	therapists []model.TherapistAllocation
	pcas       []model.PCAAllocation
	needs      []resolvers.SubstitutionNeed
	unresolved []resolvers.SubstitutionNeed
	warnings   []model.Warning
}

func newDraft(in Input, logger *zap.Logger) (*draft, error) {
	d := &draft{
		in:          in,
		logger:      logger,
		staffByID:   make(map[string]model.Staff, len(in.Staff)),
		preferences: make(map[model.Team]model.PCAPreference, len(in.Preferences)),
		overrides:   in.Overrides,
	}
	if d.overrides == nil {
		d.overrides = overrides.Overrides{}
	}
	d.weekday, _ = model.WeekdayOf(in.Date)

	for _, s := range in.Staff {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("invalid roster: %w", err)
		}
		d.staffByID[s.ID] = s
	}
	for _, p := range in.Preferences {
		d.preferences[p.Team] = p
	}
	return d, nil
}

func (d *draft) run(ctx context.Context, res resolvers.Set, cached *cachedAnswers) error {
	var escalated []stage

	back := func() error {
		if len(escalated) == 0 {
			return resolvers.ErrCancelled
		}
		cached.clearFrom(escalated[len(escalated)-1])
		return errBack
	}

	asked, outcome, err := d.resolvePrograms(ctx, res.SpecialProgram, cached)
	if err != nil {
		return err
	}
	if outcome == resolvers.Back {
		return back()
	}
	if asked {
		escalated = append(escalated, stagePrograms)
	}

	d.allocateTherapists()
	d.allocateNonFloatingPCAs()

	asked, outcome, err = d.resolveSubstitutions(ctx, res.Substitution, cached)
	if err != nil {
		return err
	}
	if outcome == resolvers.Back {
		return back()
	}
	if asked {
		escalated = append(escalated, stageSubstitution)
	}

	_, outcome, err = d.resolveSPT(ctx, res.SPTFinalEdit, cached)
	if err != nil {
		return err
	}
	if outcome == resolvers.Back {
		return back()
	}
	return nil
}

func (d *draft) warn(w model.Warning) {
	d.logger.Debug("Step 2 warning", zap.String("warning", w.String()))
	d.warnings = append(d.warnings, w)
}

func (d *draft) onDutyFTE(s model.Staff) float64 {
	rec := d.overrides[s.ID]
	return capacity.RoundToQuarter(rec.EffectiveFTE(s.BaseCapacity()))
}

func (d *draft) teamOf(s model.Staff) model.Team {
	if rec, ok := d.overrides[s.ID]; ok && rec.Team != "" {
		return rec.Team
	}
	return s.Team
}

// resolvePrograms confirms today's special programs and who runs them
func (d *draft) resolvePrograms(ctx context.Context, resolve resolvers.SpecialProgramResolver, cached *cachedAnswers) (bool, resolvers.Outcome, error) {
	var active []model.SpecialProgram
	for _, p := range d.in.Programs {
		ok, err := p.ActiveOn(d.in.Date)
		if err != nil {
			return false, resolvers.Resolved, fmt.Errorf("failed to evaluate program schedule: %w", err)
		}
		if ok {
			active = append(active, p)
		}
	}

	d.logger.Debug("Resolving special programs", zap.Int("active", len(active)))

	if len(active) == 0 || resolve == nil {
		d.active = EffectivePrograms(active, d.overrides)
		return false, resolvers.Skipped, nil
	}

	answer := cached.programs
	if answer == nil {
		var pool []model.Staff
		for _, s := range d.in.Staff {
			if s.IsActive() {
				pool = append(pool, s)
			}
		}
		got, err := resolve(ctx, resolvers.ProgramRequest{Programs: active, StaffPool: pool})
		if resolvers.IsCancel(got.Outcome, err) {
			return true, resolvers.Cancelled, resolvers.ErrCancelled
		}
		if err != nil {
			return true, resolvers.Cancelled, fmt.Errorf("special program resolver failed: %w", err)
		}
		if got.Outcome == resolvers.Back {
			return true, resolvers.Back, nil
		}
		cached.programs = &got
		answer = &got
	}

	if answer.Outcome == resolvers.Resolved {
		ids := make([]string, 0, len(answer.Overrides))
		for id := range answer.Overrides {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			next, err := d.overrides.Apply(id, overrides.Patch{SpecialProgramOverrides: answer.Overrides[id]})
			if err != nil {
				d.warn(model.Warning{Code: model.WarnInvalidSelection, StaffID: id, Message: err.Error()})
				continue
			}
			d.overrides = next
		}
	}

	d.active = EffectivePrograms(active, d.overrides)
	return true, answer.Outcome, nil
}

// EffectivePrograms applies the day's program overrides to the programs
func EffectivePrograms(programs []model.SpecialProgram, o overrides.Overrides) []model.SpecialProgram {
	ids := make([]string, 0, len(o))
	for id := range o {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]model.SpecialProgram, 0, len(programs))
	for _, p := range programs {
		p.Slots = slices.Clone(p.Slots)
		p.TherapistIDs = slices.Clone(p.TherapistIDs)
		p.PreferredPCAIDs = slices.Clone(p.PreferredPCAIDs)

		for _, id := range ids {
			for _, spo := range o[id].SpecialProgramOverrides {
				if spo.ProgramID != p.ID {
					continue
				}
				if spo.TherapistID != "" {
					p.TherapistIDs = []string{spo.TherapistID}
				}
				if spo.PCAID != "" {
					p.PreferredPCAIDs = append([]string{spo.PCAID}, slices.DeleteFunc(p.PreferredPCAIDs, func(s string) bool { return s == spo.PCAID })...)
				}
				if len(spo.Slots) > 0 {
					p.Slots = model.NormalizeSlots(spo.Slots)
				}
			}
		}
		out = append(out, p)
	}
	return out
}

func (d *draft) programsFor(staffID string, therapist bool) []string {
	var ids []string
	for _, p := range d.active {
		list := p.PreferredPCAIDs
		if therapist {
			list = p.TherapistIDs
		}
		if slices.Contains(list, staffID) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (d *draft) allocateTherapists() {
	d.therapists = nil
	for _, s := range d.in.Staff {
		if !s.IsActive() || !s.Rank.IsTherapist() {
			continue
		}
		fte := d.onDutyFTE(s)
		if fte <= 0 {
			continue
		}
		rec := d.overrides[s.ID]
		slots := rec.EffectiveSlots()
		programIDs := d.programsFor(s.ID, true)

		row := func(team model.Team, teamFTE float64, rowSlots []model.Slot) model.TherapistAllocation {
			return model.TherapistAllocation{
				ID:                uuid.NewString(),
				StaffID:           s.ID,
				Team:              team,
				FTE:               capacity.RoundToQuarter(teamFTE),
				Slots:             rowSlots,
				LeaveType:         rec.LeaveType,
				SpecialProgramIDs: programIDs,
			}
		}

		if len(rec.TherapistTeamFTEByTeam) > 0 {
			for _, team := range model.AllTeams {
				if share := rec.TherapistTeamFTEByTeam[team]; share > 0 {
					d.therapists = append(d.therapists, row(team, share, slots))
				}
			}
			continue
		}

		if team := d.teamOf(s); team != "" {
			d.therapists = append(d.therapists, row(team, fte, slots))
			continue
		}

		placed := false
		if s.Rank == model.RankSPT && d.weekday != "" {
			remaining := fte
			for _, a := range d.in.SPTAllocations {
				if a.StaffID != s.ID || !a.AppliesOn(d.weekday) {
					continue
				}
				rowSlots := slots
				if len(a.Slots) > 0 {
					rowSlots = model.NormalizeSlots(a.Slots)
				}
				for _, team := range a.Teams {
					share := min(a.FTE, remaining)
					if share <= 0 {
						break
					}
					d.therapists = append(d.therapists, row(team, share, rowSlots))
					remaining = capacity.Sum(remaining, -share)
					placed = true
				}
			}
		}
		if !placed {
			d.warn(model.Warning{Code: model.WarnUnplacedStaff, StaffID: s.ID, Message: fmt.Sprintf("%s has no team today", s.Name)})
		}
	}
	d.logger.Debug("Allocated therapists", zap.Int("rows", len(d.therapists)))
}

// workingSlots returns the slots a PCA works today. Without explicit
// availability a partial-leave PCA works the first slots of the day up to
// their on-duty FTE.
func workingSlots(rec model.StaffOverride, fte float64) []model.Slot {
	slots := rec.EffectiveSlots()
	q := int(capacity.ToQuarters(fte))
	if q < 0 {
		q = 0
	}
	if len(slots) > q {
		slots = slots[:q]
	}
	return slots
}

func (d *draft) allocateNonFloatingPCAs() {
	d.pcas = nil
	d.needs = nil
	for _, s := range d.in.Staff {
		if !s.IsActive() || !s.IsNonFloatingPCA() {
			continue
		}
		team := d.teamOf(s)
		if team == "" {
			d.warn(model.Warning{Code: model.WarnUnplacedStaff, StaffID: s.ID, Message: fmt.Sprintf("non-floating PCA %s has no team", s.Name)})
			continue
		}
		rec := d.overrides[s.ID]
		fte := d.onDutyFTE(s)
		slots := workingSlots(rec, fte)

		if fte > 0 {
			var assigned model.SlotAssignments
			for _, slot := range slots {
				assigned = assigned.With(slot, team)
			}
			alloc := model.PCAAllocation{
				ID:                uuid.NewString(),
				StaffID:           s.ID,
				Team:              team,
				FTEPCA:            fte,
				FTERemaining:      max(0, capacity.Sum(fte, -float64(len(slots))*model.SlotFTE)),
				Slots:             assigned,
				LeaveType:         rec.LeaveType,
				SpecialProgramIDs: d.programsFor(s.ID, false),
			}
			if len(rec.InvalidSlots) > 0 {
				alloc.InvalidSlot = model.NormalizeSlots(rec.InvalidSlots)[0]
			}
			d.pcas = append(d.pcas, alloc)
		}

		if missing := model.MissingSlots(slots); len(missing) > 0 {
			d.needs = append(d.needs, resolvers.SubstitutionNeed{
				Key:              model.SubstitutionKey(team, s.ID),
				Team:             team,
				NonFloatingPCAID: s.ID,
				MissingSlots:     missing,
			})
		}
	}

	slices.SortStableFunc(d.needs, func(a, b resolvers.SubstitutionNeed) int {
		if a.Team != b.Team {
			return a.Team.Index() - b.Team.Index()
		}
		return compareNames(d.staffByID[a.NonFloatingPCAID].Name, d.staffByID[b.NonFloatingPCAID].Name, a.NonFloatingPCAID, b.NonFloatingPCAID)
	})

	d.logger.Debug("Allocated non-floating PCAs", zap.Int("rows", len(d.pcas)), zap.Int("gaps", len(d.needs)))
}

func compareNames(nameA, nameB, idA, idB string) int {
	if nameA != nameB {
		if nameA < nameB {
			return -1
		}
		return 1
	}
	if idA < idB {
		return -1
	}
	if idA > idB {
		return 1
	}
	return 0
}
