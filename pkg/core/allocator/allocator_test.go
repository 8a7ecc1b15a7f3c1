package allocator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/rehab-roster/pkg/core/allocator"
	"github.com/jakechorley/rehab-roster/pkg/core/allocator/criteria"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/overrides"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
)

func floating(id, name string) model.Staff {
	return model.Staff{ID: id, Name: name, Rank: model.RankPCA, Floating: true, Status: model.StatusActive}
}

func fte(v float64) *float64 {
	return &v
}

func pcaFor(t *testing.T, out *allocator.Outcome, staffID string) model.PCAAllocation {
	t.Helper()
	for _, p := range out.PCAs {
		if p.StaffID == staffID {
			return p
		}
	}
	t.Fatalf("no allocation for %s", staffID)
	return model.PCAAllocation{}
}

func warningCodes(out *allocator.Outcome) []model.WarningCode {
	var codes []model.WarningCode
	for _, w := range out.Warnings {
		codes = append(codes, w.Code)
	}
	return codes
}

// oneSlotLeft has SMM and SFM each needing 0.5 FTE and a single quarter left
// in the pool
func oneSlotLeft() allocator.Config {
	return allocator.Config{
		Pending: map[model.Team]float64{model.TeamSMM: 0.5, model.TeamSFM: 0.5},
		Pool:    []model.Staff{floating("f1", "Alice")},
		Overrides: overrides.Overrides{
			"f1": {FTERemaining: fte(0.25), AvailableSlots: []model.Slot{1}},
		},
		Criteria: criteria.Default(),
	}
}

func TestAllocate_TieBreakEscalatesWhenPoolIsScarce(t *testing.T) {
	script := &resolvers.Scripted{
		TieBreakAnswers: []resolvers.TieBreakResolution{{Outcome: resolvers.Resolved, Team: model.TeamSMM}},
	}

	out, err := allocator.Allocate(context.Background(), oneSlotLeft(), script.Set().TieBreak, nil)
	require.NoError(t, err)

	require.Len(t, script.TieBreakCalls, 1)
	assert.Equal(t, []model.Team{model.TeamSMM, model.TeamSFM}, script.TieBreakCalls[0].Tied)
	assert.InDelta(t, 0.5, script.TieBreakCalls[0].PendingFTE, 1e-9)

	assert.InDelta(t, 0.25, out.Pending[model.TeamSMM], 1e-9)
	assert.InDelta(t, 0.5, out.Pending[model.TeamSFM], 1e-9)

	require.Len(t, out.Tracker, 1)
	entry := out.Tracker[0]
	assert.Equal(t, model.TeamSMM, entry.Team)
	assert.Equal(t, model.Slot(1), entry.Slot)
	assert.Equal(t, allocator.PassFill, entry.Pass)
	assert.True(t, entry.UserResolved)
	assert.Equal(t, []model.Team{model.TeamSMM}, out.Decisions)

	assert.Equal(t, []model.WarningCode{model.WarnUnmetPendingFTE, model.WarnUnmetPendingFTE}, warningCodes(out))
}

func TestAllocate_SkippedTieBreakTakesProcessingOrder(t *testing.T) {
	script := &resolvers.Scripted{}

	out, err := allocator.Allocate(context.Background(), oneSlotLeft(), script.Set().TieBreak, nil)
	require.NoError(t, err)

	require.Len(t, script.TieBreakCalls, 1)
	require.Len(t, out.Tracker, 1)
	assert.Equal(t, model.TeamSMM, out.Tracker[0].Team)
	assert.False(t, out.Tracker[0].UserResolved)
}

func TestAllocate_TieBreakOutsideTiedSetFallsBack(t *testing.T) {
	script := &resolvers.Scripted{
		TieBreakAnswers: []resolvers.TieBreakResolution{{Outcome: resolvers.Resolved, Team: model.TeamDRO}},
	}

	out, err := allocator.Allocate(context.Background(), oneSlotLeft(), script.Set().TieBreak, nil)
	require.NoError(t, err)

	assert.Equal(t, model.TeamSMM, out.Tracker[0].Team)
	assert.Contains(t, warningCodes(out), model.WarnInvalidSelection)
}

func TestAllocate_UserTeamOrderLeadsTies(t *testing.T) {
	cfg := oneSlotLeft()
	cfg.TeamOrder = []model.Team{model.TeamSFM}

	out, err := allocator.Allocate(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, model.TeamSFM, out.TeamOrder[0])
	assert.Equal(t, model.TeamSMM, out.TeamOrder[1])
	require.Len(t, out.Tracker, 1)
	assert.Equal(t, model.TeamSFM, out.Tracker[0].Team)
}

func TestEngine_CancelledTieBreakCommitsNothing(t *testing.T) {
	script := &resolvers.Scripted{
		TieBreakAnswers: []resolvers.TieBreakResolution{{Outcome: resolvers.Cancelled}},
	}
	engine := allocator.NewEngine(nil)
	require.NoError(t, engine.Configure(oneSlotLeft()))

	out, err := engine.Run(context.Background(), script.Set().TieBreak)

	assert.ErrorIs(t, err, resolvers.ErrCancelled)
	assert.Nil(t, out)
	assert.Equal(t, allocator.PhaseCancelled, engine.Phase())
}

func TestEngine_BackAtFirstTieBreakCancels(t *testing.T) {
	script := &resolvers.Scripted{
		TieBreakAnswers: []resolvers.TieBreakResolution{{Outcome: resolvers.Back}},
	}

	out, err := allocator.Allocate(context.Background(), oneSlotLeft(), script.Set().TieBreak, nil)

	assert.ErrorIs(t, err, resolvers.ErrCancelled)
	assert.Nil(t, out)
}

func TestEngine_BackReopensPreviousTieBreak(t *testing.T) {
	// Three teams tied on a quarter each and two quarters to share: the first
	// tie-break picks SFM, the second is answered Back and then SMM
	cfg := allocator.Config{
		Pending: map[model.Team]float64{model.TeamFO: 0.25, model.TeamSMM: 0.25, model.TeamSFM: 0.25},
		Pool:    []model.Staff{floating("f1", "Alice")},
		Overrides: overrides.Overrides{
			"f1": {FTERemaining: fte(0.5), AvailableSlots: []model.Slot{1, 2}},
		},
		Criteria: criteria.Default(),
	}
	script := &resolvers.Scripted{
		TieBreakAnswers: []resolvers.TieBreakResolution{
			{Outcome: resolvers.Resolved, Team: model.TeamSFM},
			{Outcome: resolvers.Back},
			{Outcome: resolvers.Resolved, Team: model.TeamSMM},
		},
	}

	out, err := allocator.Allocate(context.Background(), cfg, script.Set().TieBreak, nil)
	require.NoError(t, err)

	require.Len(t, script.TieBreakCalls, 3)
	assert.Equal(t, []model.Team{model.TeamFO, model.TeamSMM, model.TeamSFM}, script.TieBreakCalls[0].Tied)
	assert.Equal(t, []model.Team{model.TeamFO, model.TeamSMM}, script.TieBreakCalls[1].Tied)
	assert.Equal(t, []model.Team{model.TeamFO, model.TeamSMM}, script.TieBreakCalls[2].Tied)

	assert.Equal(t, []model.Team{model.TeamSFM, model.TeamSMM}, out.Decisions)
	assert.InDelta(t, 0.25, out.Pending[model.TeamFO], 1e-9)
	assert.Zero(t, out.Pending[model.TeamSMM])
	assert.Zero(t, out.Pending[model.TeamSFM])
	for _, e := range out.Tracker {
		assert.True(t, e.UserResolved)
	}
}

func TestEngine_ContextCancelWhileWaiting(t *testing.T) {
	engine := allocator.NewEngine(nil)
	require.NoError(t, engine.Configure(oneSlotLeft()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})

	type result struct {
		out *allocator.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := engine.Run(ctx, resolvers.Blocking(started))
		done <- result{out, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("tie-break was never escalated")
	}

	waiting := engine.Waiting()
	require.NotNil(t, waiting)
	assert.Equal(t, []model.Team{model.TeamSMM, model.TeamSFM}, waiting.Tied)
	assert.Equal(t, allocator.PhaseRunning, engine.Phase())

	cancel()

	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, resolvers.ErrCancelled)
		assert.Nil(t, res.out)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, allocator.PhaseCancelled, engine.Phase())
	assert.Nil(t, engine.Waiting())
}

func TestEngine_RunRequiresConfigure(t *testing.T) {
	engine := allocator.NewEngine(nil)

	_, err := engine.Run(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, allocator.PhaseIdle, engine.Phase())
}

func TestEngine_ConfigureRejectsBadConfig(t *testing.T) {
	engine := allocator.NewEngine(nil)

	assert.Error(t, engine.Configure(allocator.Config{BufferPreassignRatio: 1.5}))
	assert.Error(t, engine.Configure(allocator.Config{Teams: []model.Team{"ICU"}}))
	assert.Error(t, engine.Configure(allocator.Config{Pending: map[model.Team]float64{model.TeamFO: -0.25}}))
	assert.Equal(t, allocator.PhaseIdle, engine.Phase())
}

func TestAllocate_MeetsEveryNeedWhenPoolIsAmple(t *testing.T) {
	cfg := allocator.Config{
		Pending: map[model.Team]float64{model.TeamFO: 0.75, model.TeamSMM: 0.5, model.TeamSFM: 0.25},
		Pool:    []model.Staff{floating("f2", "Bob"), floating("f1", "Alice")},
		Criteria: criteria.Default(),
	}
	script := &resolvers.Scripted{}

	out, err := allocator.Allocate(context.Background(), cfg, script.Set().TieBreak, nil)
	require.NoError(t, err)

	assert.Empty(t, script.TieBreakCalls)
	assert.Empty(t, out.Warnings)
	for _, team := range model.AllTeams {
		assert.Zero(t, out.Pending[team], "team %s", team)
	}

	alice := pcaFor(t, out, "f1")
	assert.Equal(t, model.SlotAssignments{model.TeamFO, model.TeamFO, model.TeamFO, ""}, alice.Slots)
	assert.Equal(t, model.TeamFO, alice.Team)
	assert.InDelta(t, 0.25, alice.FTERemaining, 1e-9)

	bob := pcaFor(t, out, "f2")
	assert.Equal(t, model.SlotAssignments{model.TeamSMM, model.TeamSMM, model.TeamSFM, ""}, bob.Slots)
	assert.Equal(t, model.TeamSMM, bob.Team)

	// Every assignment counts toward exactly one quarter of need
	assert.Len(t, out.Tracker, 6)
}

func TestAllocate_ProgramSlotsDoNotReducePending(t *testing.T) {
	cfg := allocator.Config{
		Pending: map[model.Team]float64{model.TeamCPPC: 0.25},
		Pool:    []model.Staff{floating("f1", "Alice"), floating("f2", "Bob")},
		Programs: []model.SpecialProgram{{
			ID:              "crp",
			Name:            "CRP",
			Team:            model.TeamCPPC,
			Slots:           []model.Slot{1, 2},
			PreferredPCAIDs: []string{"f2"},
		}},
		Criteria: criteria.Default(),
	}

	out, err := allocator.Allocate(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	bob := pcaFor(t, out, "f2")
	assert.Equal(t, model.SlotAssignments{model.TeamCPPC, model.TeamCPPC, model.TeamCPPC, ""}, bob.Slots)
	assert.Equal(t, []model.Slot{1, 2}, bob.ProgramSlots)
	assert.Equal(t, []string{"crp"}, bob.SpecialProgramIDs)
	assert.Zero(t, out.Pending[model.TeamCPPC])

	var passes []allocator.Pass
	for _, e := range out.Tracker {
		passes = append(passes, e.Pass)
	}
	assert.Equal(t, []allocator.Pass{allocator.PassSpecialProgram, allocator.PassSpecialProgram, allocator.PassAdjacent}, passes)

	alice := pcaFor(t, out, "f1")
	assert.Zero(t, alice.Slots.AssignedCount())
}

func TestAllocate_ProgramUnstaffedWarns(t *testing.T) {
	cfg := allocator.Config{
		Pool: []model.Staff{floating("f1", "Alice")},
		Overrides: overrides.Overrides{
			"f1": {FTERemaining: fte(0.25), AvailableSlots: []model.Slot{1}},
		},
		Programs: []model.SpecialProgram{{ID: "crp", Name: "CRP", Team: model.TeamCPPC, Slots: []model.Slot{1, 2}}},
	}

	out, err := allocator.Allocate(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	alice := pcaFor(t, out, "f1")
	assert.Equal(t, model.TeamCPPC, alice.Slots.Get(1))
	assert.Equal(t, []model.WarningCode{model.WarnProgramUnstaffed}, warningCodes(out))
}

func TestAllocate_PreferredPCAOnPreferredSlot(t *testing.T) {
	cfg := allocator.Config{
		Pending: map[model.Team]float64{model.TeamFO: 0.25},
		Pool:    []model.Staff{floating("f1", "Alice"), floating("f2", "Bob")},
		Preferences: []model.PCAPreference{{
			Team:            model.TeamFO,
			PreferredPCAIDs: []string{"f2"},
			PreferredSlots:  []model.Slot{3},
		}},
		Criteria: criteria.Default(),
	}

	out, err := allocator.Allocate(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	require.Len(t, out.Tracker, 1)
	entry := out.Tracker[0]
	assert.Equal(t, "f2", entry.StaffID)
	assert.Equal(t, model.Slot(3), entry.Slot)
	assert.Equal(t, allocator.PassPreferred, entry.Pass)
	assert.True(t, entry.PreferredPCA)
	assert.True(t, entry.PreferredSlot)
	assert.Empty(t, out.Warnings)
}

func TestAllocate_PreferredSlotUnfilledWarns(t *testing.T) {
	cfg := allocator.Config{
		Pending: map[model.Team]float64{model.TeamFO: 0.25},
		Pool:    []model.Staff{floating("f1", "Alice")},
		Overrides: overrides.Overrides{
			"f1": {FTERemaining: fte(0.5), AvailableSlots: []model.Slot{1, 2}},
		},
		Preferences: []model.PCAPreference{{Team: model.TeamFO, PreferredSlots: []model.Slot{4}}},
		Criteria:    criteria.Default(),
	}

	out, err := allocator.Allocate(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, model.TeamFO, pcaFor(t, out, "f1").Slots.Get(1))
	assert.Equal(t, []model.WarningCode{model.WarnPreferredSlotUnfilled}, warningCodes(out))
}

func TestAllocate_ManualPinsSeedFirst(t *testing.T) {
	cfg := allocator.Config{
		Pending: map[model.Team]float64{model.TeamGMC: 0.25},
		Pool:    []model.Staff{floating("f1", "Alice")},
		Overrides: overrides.Overrides{
			"f1": {
				AvailableSlots: []model.Slot{1, 2, 4},
				FTERemaining:   fte(0.75),
				SlotOverrides:  map[model.Slot]model.Team{4: model.TeamGMC, 3: model.TeamNSM},
			},
		},
		Criteria: criteria.Default(),
	}

	out, err := allocator.Allocate(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	alice := pcaFor(t, out, "f1")
	assert.Equal(t, model.TeamGMC, alice.Slots.Get(4))
	assert.Equal(t, model.Team(""), alice.Slots.Get(3))
	assert.Zero(t, out.Pending[model.TeamGMC])

	require.Len(t, out.Tracker, 1)
	assert.Equal(t, allocator.PassManual, out.Tracker[0].Pass)
	assert.True(t, out.Tracker[0].UserResolved)
	assert.Equal(t, []model.WarningCode{model.WarnInvalidSelection}, warningCodes(out))
}

func TestAllocate_SubstitutionLinksSeedTheirTeam(t *testing.T) {
	cfg := allocator.Config{
		Pending: map[model.Team]float64{model.TeamFO: 0.5},
		Pool:    []model.Staff{floating("f1", "Alice")},
		Overrides: overrides.Overrides{
			"f1": {Substitutions: []model.SubstitutionLink{{
				NonFloatingPCAID: "p1",
				Team:             model.TeamFO,
				Slots:            []model.Slot{3, 4},
				Owner:            model.StepTherapistPCA,
			}}},
		},
		Criteria: criteria.Default(),
	}

	out, err := allocator.Allocate(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	alice := pcaFor(t, out, "f1")
	assert.Equal(t, model.SlotAssignments{"", "", model.TeamFO, model.TeamFO}, alice.Slots)
	assert.Zero(t, out.Pending[model.TeamFO])
	for _, e := range out.Tracker {
		assert.Equal(t, allocator.PassSubstitution, e.Pass)
	}
}

func TestAllocate_BufferPreassign(t *testing.T) {
	bob := floating("f2", "Bob")
	bob.Status = model.StatusBuffer
	cfg := allocator.Config{
		Pending:              map[model.Team]float64{model.TeamFO: 0.5, model.TeamSMM: 0.25},
		Pool:                 []model.Staff{floating("f1", "Alice"), bob},
		BufferPreassignRatio: 0.5,
		Criteria:             criteria.Default(),
	}

	out, err := allocator.Allocate(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(out.Tracker), 2)
	for _, e := range out.Tracker[:2] {
		assert.Equal(t, allocator.PassBuffer, e.Pass)
		assert.Equal(t, "f2", e.StaffID)
		assert.Equal(t, model.TeamFO, e.Team)
	}
	for _, team := range model.AllTeams {
		assert.Zero(t, out.Pending[team])
	}
}

func TestAllocate_ExtraCoverageDoesNotTouchPending(t *testing.T) {
	cfg := allocator.Config{
		Pending:       map[model.Team]float64{model.TeamFO: 0.25},
		Pool:          []model.Staff{floating("f1", "Alice")},
		ExtraCoverage: true,
		Criteria:      criteria.Default(),
	}

	out, err := allocator.Allocate(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	alice := pcaFor(t, out, "f1")
	assert.Equal(t, model.SlotAssignments{model.TeamFO, model.TeamFO, model.TeamSMM, model.TeamSFM}, alice.Slots)
	assert.Zero(t, alice.FTERemaining)

	extra := 0
	for _, e := range out.Tracker {
		if e.Pass == allocator.PassExtraCoverage {
			extra++
		}
	}
	assert.Equal(t, 3, extra)
}

func TestAllocate_InvalidPoolEntriesAreSkipped(t *testing.T) {
	broken := floating("f3", "Cara")
	broken.Status = model.StatusBuffer
	broken.BufferFTE = fte(1.5)

	cfg := allocator.Config{
		Pending: map[model.Team]float64{model.TeamFO: 0.25},
		Pool:    []model.Staff{floating("f1", "Alice"), floating("f2", "Bob"), broken},
		Overrides: overrides.Overrides{
			"f1": {FTERemaining: fte(0.5), AvailableSlots: []model.Slot{}},
		},
		Criteria: criteria.Default(),
	}

	out, err := allocator.Allocate(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	require.Len(t, out.PCAs, 1)
	assert.Equal(t, "f2", out.PCAs[0].StaffID)
	assert.Equal(t, []model.WarningCode{model.WarnInvalidPoolEntry, model.WarnInvalidPoolEntry}, warningCodes(out))
}

func TestDefaultTeamOrder(t *testing.T) {
	order := allocator.DefaultTeamOrder(map[model.Team]float64{model.TeamDRO: 0.5, model.TeamSFM: 0.5, model.TeamFO: 0.25})

	assert.Equal(t, []model.Team{
		model.TeamSFM, model.TeamDRO, model.TeamFO,
		model.TeamSMM, model.TeamCPPC, model.TeamMC, model.TeamGMC, model.TeamNSM,
	}, order)
}
