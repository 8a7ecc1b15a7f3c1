package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
)

func TestRunDay_RunsEveryStepAndSaves(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}

	result, err := RunDay(ctx, store, roster, nil, zap.NewNop(), resolvers.Set{}, RunDayOptions{Date: monday})
	require.NoError(t, err)

	assert.Equal(t, model.Steps[:4], result.Ran)
	assert.Equal(t, model.StepReview, result.State.CurrentStep)
	for _, step := range model.Steps[:4] {
		assert.Equal(t, workflow.StatusCompleted, result.State.Status[step], step)
	}
	assert.NotEmpty(t, result.Capacities.Teams)
	assert.Contains(t, store.schedules, "2026-10-19")
	assert.NotEmpty(t, store.allocations[result.ScheduleID])
}

func TestRunDay_SecondRunHasNothingToDo(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}

	first, err := RunDay(ctx, store, roster, nil, zap.NewNop(), resolvers.Set{}, RunDayOptions{Date: monday})
	require.NoError(t, err)

	second, err := RunDay(ctx, store, roster, nil, zap.NewNop(), resolvers.Set{}, RunDayOptions{Date: monday})
	require.NoError(t, err)

	assert.Empty(t, second.Ran)
	assert.False(t, second.Repaired)
	assert.Equal(t, first.ScheduleID, second.ScheduleID)
	assert.Equal(t, first.State.Allocations.PCAs, second.State.Allocations.PCAs)
}

func TestRunDay_Rerun(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}

	_, err := RunDay(ctx, store, roster, nil, zap.NewNop(), resolvers.Set{}, RunDayOptions{Date: monday})
	require.NoError(t, err)

	again, err := RunDay(ctx, store, roster, nil, zap.NewNop(), resolvers.Set{}, RunDayOptions{Date: monday, Rerun: true})
	require.NoError(t, err)
	assert.Equal(t, model.Steps[:4], again.Ran)
}

func TestRunDay_StopsAtUntil(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()

	result, err := RunDay(ctx, store, &mockRosterStore{roster: twoTeamRoster()}, nil, zap.NewNop(), resolvers.Set{},
		RunDayOptions{Date: monday, Until: model.StepTherapistPCA})
	require.NoError(t, err)

	assert.Equal(t, []model.StepID{model.StepLeaveFTE, model.StepTherapistPCA}, result.Ran)
	assert.Equal(t, model.StepTherapistPCA, result.State.CurrentStep)
	assert.Equal(t, workflow.StatusPending, result.State.Status[model.StepFloatingPCA])
}

func TestRunDay_RepairsStaleTargets(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}

	day, err := OpenDay(ctx, store, roster, nil, zap.NewNop(), monday)
	require.NoError(t, err)
	day.State.Targets[model.TeamFO] = 7
	_, err = SaveDay(ctx, store, zap.NewNop(), day.State)
	require.NoError(t, err)

	result, err := RunDay(ctx, store, roster, nil, zap.NewNop(), resolvers.Set{}, RunDayOptions{Date: monday, Until: model.StepLeaveFTE})
	require.NoError(t, err)
	assert.True(t, result.Repaired)
}

func TestRunDay_UnknownStep(t *testing.T) {
	_, err := RunDay(context.Background(), newMockScheduleStore(), &mockRosterStore{}, nil, zap.NewNop(), resolvers.Set{},
		RunDayOptions{Date: monday, Until: "lunch"})
	assert.Error(t, err)
}
