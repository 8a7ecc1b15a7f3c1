package workflow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jakechorley/rehab-roster/pkg/core/baseline"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
)

var monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func therapist(id, name string, team model.Team) model.Staff {
	return model.Staff{ID: id, Name: name, Rank: model.RankRPT, Team: team, Status: model.StatusActive}
}

func floating(id, name string) model.Staff {
	return model.Staff{ID: id, Name: name, Rank: model.RankPCA, Floating: true, Status: model.StatusActive}
}

// twoTeamConfig has two full-time therapists on FO and SMM and two floating
// PCAs, so each team's target is exactly 1.0
func twoTeamConfig() baseline.Config {
	return baseline.Config{
		Staff: []model.Staff{
			therapist("t1", "Ann", model.TeamFO),
			therapist("t2", "Ben", model.TeamSMM),
			floating("f1", "Alice"),
			floating("f2", "Bob"),
		},
		Wards: []model.Ward{
			{Name: "R1", TotalBeds: 20, TeamBeds: map[model.Team]int{model.TeamFO: 10, model.TeamSMM: 10}},
		},
	}
}

// threeTeamConfig shares two floating PCAs between three teams, leaving
// each team 0.75 pending against a pool of eight slots
func threeTeamConfig() baseline.Config {
	return baseline.Config{
		Staff: []model.Staff{
			therapist("t1", "Ann", model.TeamFO),
			therapist("t2", "Ben", model.TeamSMM),
			therapist("t3", "Cat", model.TeamSFM),
			floating("f1", "Alice"),
			floating("f2", "Bob"),
		},
	}
}

func newController(t *testing.T, cfg baseline.Config, res resolvers.Set) *Controller {
	t.Helper()
	return NewController(NewDay(monday, cfg, monday), Settings{}, res, nil)
}

func runThrough(t *testing.T, c *Controller, last model.StepID) {
	t.Helper()
	for _, step := range model.Steps[:last.Index()+1] {
		require.NoError(t, c.RunStep(context.Background(), step, false), "running %s", step)
	}
}

func TestRunStep_AllStepsBalanceTwoTeams(t *testing.T) {
	c := newController(t, twoTeamConfig(), resolvers.Set{})

	runThrough(t, c, model.StepBedRelieving)

	s := c.State()
	for _, step := range model.Steps[:4] {
		assert.Equal(t, StatusCompleted, s.Status[step], step)
	}
	assert.Equal(t, model.StepBedRelieving, s.CurrentStep)
	assert.Equal(t, 1.0, s.Targets[model.TeamFO])
	assert.Equal(t, 1.0, s.Targets[model.TeamSMM])

	byTeam := s.Allocations.PCAFTEByTeam()
	assert.Equal(t, 1.0, byTeam[model.TeamFO])
	assert.Equal(t, 1.0, byTeam[model.TeamSMM])
	assert.Equal(t, 0.0, s.Pending[model.TeamFO])
	assert.Equal(t, 0.0, s.Pending[model.TeamSMM])
	assert.Empty(t, s.Allocations.Beds, "equal beds per therapist need no relieving")
	assert.NotEmpty(t, s.Tracker)
}

func TestRunStep_RequiresEarlierSteps(t *testing.T) {
	c := newController(t, twoTeamConfig(), resolvers.Set{})

	err := c.RunStep(context.Background(), model.StepFloatingPCA, false)
	assert.ErrorIs(t, err, ErrStepNotReady)

	err = c.RunStep(context.Background(), model.StepReview, false)
	assert.ErrorIs(t, err, ErrStepNotReady)
}

func TestRunStep_EarlierStepNeedsConfirmation(t *testing.T) {
	c := newController(t, twoTeamConfig(), resolvers.Set{})
	runThrough(t, c, model.StepFloatingPCA)

	err := c.RunStep(context.Background(), model.StepTherapistPCA, false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, StatusCompleted, c.State().Status[model.StepFloatingPCA], "nothing changes without confirmation")

	require.NoError(t, c.RunStep(context.Background(), model.StepTherapistPCA, true))
	s := c.State()
	assert.Equal(t, StatusCompleted, s.Status[model.StepTherapistPCA])
	assert.Equal(t, StatusPending, s.Status[model.StepFloatingPCA])
	assert.Empty(t, s.Tracker)
	assert.Equal(t, 1.0, s.Pending[model.TeamFO], "pending is recomputed from targets")
}

func TestRunStep_TieBreakEscalatesWhenPoolIsShort(t *testing.T) {
	script := &resolvers.Scripted{TieBreakAnswers: []resolvers.TieBreakResolution{
		{Outcome: resolvers.Resolved, Team: model.TeamSFM},
	}}
	c := newController(t, threeTeamConfig(), script.Set())
	runThrough(t, c, model.StepFloatingPCA)

	require.Len(t, script.TieBreakCalls, 2)
	assert.Equal(t, []model.Team{model.TeamFO, model.TeamSMM, model.TeamSFM}, script.TieBreakCalls[0].Tied)
	assert.Equal(t, 0.25, script.TieBreakCalls[0].PendingFTE)
	assert.Equal(t, []model.Team{model.TeamFO, model.TeamSMM}, script.TieBreakCalls[1].Tied)

	s := c.State()
	assert.Equal(t, []model.Team{model.TeamSFM, model.TeamFO}, s.TieBreakDecisions)
	assert.Equal(t, 0.0, s.Pending[model.TeamFO])
	assert.Equal(t, 0.25, s.Pending[model.TeamSMM])
	assert.Equal(t, 0.0, s.Pending[model.TeamSFM])

	codes := []model.WarningCode{}
	for _, w := range s.Warnings[model.StepFloatingPCA] {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, model.WarnUnmetPendingFTE)
}

func TestRunStep_CancelCommitsNothing(t *testing.T) {
	script := &resolvers.Scripted{TieBreakAnswers: []resolvers.TieBreakResolution{{Outcome: resolvers.Cancelled}}}
	c := newController(t, threeTeamConfig(), script.Set())
	runThrough(t, c, model.StepTherapistPCA)
	before := c.State()

	err := c.RunStep(context.Background(), model.StepFloatingPCA, false)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, before, c.State())
}

func TestRunStep_NewInvocationCancelsTheOneInFlight(t *testing.T) {
	started := make(chan struct{})
	var calls atomic.Int32
	blocking := resolvers.Blocking(started)
	tieBreak := func(ctx context.Context, tied []model.Team, pendingFTE float64) (resolvers.TieBreakResolution, error) {
		if calls.Add(1) == 1 {
			return blocking(ctx, tied, pendingFTE)
		}
		return resolvers.TieBreakResolution{Outcome: resolvers.Skipped}, nil
	}
	c := newController(t, threeTeamConfig(), resolvers.Set{TieBreak: tieBreak})
	runThrough(t, c, model.StepTherapistPCA)

	first := make(chan error, 1)
	go func() { first <- c.RunStep(context.Background(), model.StepFloatingPCA, false) }()

	<-started
	waiting := c.Waiting()
	require.NotNil(t, waiting)
	assert.Len(t, waiting.Tied, 3)

	require.NoError(t, c.RunStep(context.Background(), model.StepFloatingPCA, false))
	assert.ErrorIs(t, <-first, ErrCancelled)

	s := c.State()
	assert.Equal(t, StatusCompleted, s.Status[model.StepFloatingPCA])
	assert.Equal(t, []model.Team{model.TeamFO, model.TeamSMM}, s.TieBreakDecisions)
	assert.Nil(t, c.Waiting())
}

func TestRunStep_ContextCancelWhileWaiting(t *testing.T) {
	started := make(chan struct{})
	c := newController(t, threeTeamConfig(), resolvers.Set{TieBreak: resolvers.Blocking(started)})
	runThrough(t, c, model.StepTherapistPCA)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.RunStep(ctx, model.StepFloatingPCA, false) }()

	<-started
	cancel()
	assert.ErrorIs(t, <-done, ErrCancelled)
	assert.Equal(t, StatusPending, c.State().Status[model.StepFloatingPCA])
}

func TestClearStep_CascadesToLaterSteps(t *testing.T) {
	c := newController(t, twoTeamConfig(), resolvers.Set{})
	runThrough(t, c, model.StepBedRelieving)
	pinFirstSlot(t, c)

	assert.ErrorIs(t, c.ClearStep(model.StepTherapistPCA, false), ErrConfirmationRequired)
	require.NoError(t, c.ClearStep(model.StepTherapistPCA, true))

	s := c.State()
	assert.Equal(t, StatusCompleted, s.Status[model.StepLeaveFTE])
	for _, step := range model.Steps[1:] {
		assert.Equal(t, StatusPending, s.Status[step], step)
	}
	assert.Empty(t, s.Allocations.PCAs)
	assert.Empty(t, s.Allocations.Therapists)
	assert.Empty(t, s.Overrides["f1"].SlotOverrides, "pins owned by Step 3 are cleared")
	assert.Equal(t, model.StepTherapistPCA, s.CurrentStep)

	undo, _ := c.History()
	assert.Empty(t, undo)
}

// pinFirstSlot moves Alice's first slot to the other team so the day carries
// a Step 3 pin
func pinFirstSlot(t *testing.T, c *Controller) {
	t.Helper()
	s := c.State()
	i := s.Allocations.FindPCA("f1")
	require.GreaterOrEqual(t, i, 0)
	p := s.Allocations.PCAs[i]
	from := p.Slots.Get(1)
	require.NotEmpty(t, from)
	to := model.TeamSMM
	if from == to {
		to = model.TeamFO
	}
	require.NoError(t, c.MoveSlots("f1", from, to, []model.Slot{1}))
	require.NotEmpty(t, c.State().Overrides["f1"].SlotOverrides)
}

func TestResetToBaseline_DropsOverridesAndAllocations(t *testing.T) {
	cfg := twoTeamConfig()
	c := newController(t, cfg, resolvers.Set{})
	require.NoError(t, c.EditLeave("f1", LeaveEdit{LeaveType: ptr(model.LeaveSick)}))
	runThrough(t, c, model.StepFloatingPCA)

	require.NoError(t, c.ResetToBaseline())

	s := c.State()
	assert.Empty(t, s.Overrides)
	assert.Empty(t, s.Allocations.PCAs)
	assert.Equal(t, model.StepLeaveFTE, s.CurrentStep)
	for _, step := range model.Steps {
		assert.Equal(t, StatusPending, s.Status[step])
	}
	assert.Equal(t, cfg.Staff, s.Staff)
}

func TestRepair_RunsOnce(t *testing.T) {
	day := NewDay(monday, twoTeamConfig(), monday)
	day.Targets[model.TeamFO] = 3.0
	c := NewController(day, Settings{}, resolvers.Set{}, nil)

	repaired, err := c.Repair()
	require.NoError(t, err)
	assert.True(t, repaired)

	s := c.State()
	assert.Equal(t, 1.0, s.Targets[model.TeamFO])
	require.Len(t, s.Warnings[model.StepReview], 1)
	assert.Equal(t, model.WarnConservationDrift, s.Warnings[model.StepReview][0].Code)

	repaired, err = c.Repair()
	require.NoError(t, err)
	assert.False(t, repaired)
}

func TestRunStep_LogsCarryDateAndStep(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewController(NewDay(monday, twoTeamConfig(), monday), Settings{}, resolvers.Set{}, zap.New(core))

	require.NoError(t, c.RunStep(context.Background(), model.StepLeaveFTE, false))

	done := logs.FilterMessage("Step completed").All()
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	assert.Equal(t, "2026-10-19", fields["date"])
	assert.Equal(t, string(model.StepLeaveFTE), fields["step"])
}

func TestRepair_ClearsHistory(t *testing.T) {
	day := NewDay(monday, twoTeamConfig(), monday)
	c := NewController(day, Settings{}, resolvers.Set{}, nil)
	require.NoError(t, c.SetBedNote(model.TeamFO, "side room closed"))
	c.state.Targets[model.TeamFO] = 3.0

	repaired, err := c.Repair()
	require.NoError(t, err)
	require.True(t, repaired)

	_, err = c.Undo()
	assert.ErrorIs(t, err, ErrNothingToUndo)
	assert.Equal(t, 1.0, c.State().Targets[model.TeamFO])
	assert.Equal(t, "side room closed", c.State().BedNotes[model.TeamFO])
}

func TestRepair_NothingStale(t *testing.T) {
	c := newController(t, twoTeamConfig(), resolvers.Set{})
	runThrough(t, c, model.StepBedRelieving)

	repaired, err := c.Repair()
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Empty(t, c.State().Warnings[model.StepReview])
}

func TestGoTo(t *testing.T) {
	c := newController(t, twoTeamConfig(), resolvers.Set{})

	assert.ErrorIs(t, c.GoTo(model.StepFloatingPCA), ErrStepNotReady)
	assert.ErrorIs(t, c.GoTo("nowhere"), ErrStepNotReady)

	runThrough(t, c, model.StepTherapistPCA)
	require.NoError(t, c.GoTo(model.StepFloatingPCA))
	assert.Equal(t, model.StepFloatingPCA, c.State().CurrentStep)

	require.NoError(t, c.GoTo(model.StepLeaveFTE), "moving back is always allowed")
	assert.Equal(t, model.StepLeaveFTE, c.State().CurrentStep)
}

func TestNewController_CopiesState(t *testing.T) {
	day := NewDay(monday, twoTeamConfig(), monday)
	c := NewController(day, Settings{}, resolvers.Set{}, nil)

	day.Staff[0].Name = "Changed"
	assert.Equal(t, "Ann", c.State().Staff[0].Name)
}
