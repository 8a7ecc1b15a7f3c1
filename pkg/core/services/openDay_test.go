package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/internal/config"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/db"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, monday, d)

	_, err = ParseDate("19/10/2026")
	assert.Error(t, err)
}

func TestLiveConfig_AppliesProgramScheduleOverrides(t *testing.T) {
	roster := twoTeamRoster()
	roster.Programs = []db.ProgramRow{
		{ID: "gym", Name: "Gym", Team: "FO", Schedule: "FREQ=WEEKLY;BYDAY=MO", Slots: "1"},
		{ID: "pool", Name: "Pool", Team: "SMM", Schedule: "FREQ=WEEKLY;BYDAY=TU", Slots: "2"},
	}
	cfg := &config.Config{
		ProgramSchedules: []config.ProgramSchedule{{ProgramID: "gym", RRule: "FREQ=WEEKLY;BYDAY=FR"}},
	}

	live, err := LiveConfig(context.Background(), &mockRosterStore{roster: roster}, cfg, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, live.Programs, 2)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=FR", live.Programs[0].Schedule)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=TU", live.Programs[1].Schedule)
}

func TestLiveConfig_InvalidRoster(t *testing.T) {
	roster := twoTeamRoster()
	roster.Staff = append(roster.Staff, db.StaffRow{ID: "x1", Rank: "Doctor"})

	_, err := LiveConfig(context.Background(), &mockRosterStore{roster: roster}, nil, zap.NewNop())
	assert.ErrorContains(t, err, "failed to convert roster")
}

func TestOpenDay_NewDayFromLiveRoster(t *testing.T) {
	store := newMockScheduleStore()

	day, err := OpenDay(context.Background(), store, &mockRosterStore{roster: twoTeamRoster()}, nil, zap.NewNop(), monday)
	require.NoError(t, err)

	assert.Empty(t, day.ScheduleID)
	assert.Len(t, day.State.Staff, 4)
	assert.Equal(t, model.StepLeaveFTE, day.State.CurrentStep)
	assert.False(t, day.State.Baseline.IsZero())
	assert.Zero(t, store.creates, "opening does not save")
}

func TestOpenDay_NewDayNeedsRoster(t *testing.T) {
	roster := &mockRosterStore{err: errors.New("sheet unavailable")}

	_, err := OpenDay(context.Background(), newMockScheduleStore(), roster, nil, zap.NewNop(), monday)
	assert.ErrorContains(t, err, "sheet unavailable")
}

func TestOpenDay_SavedDayReportsDrift(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}

	first, err := OpenDay(ctx, store, roster, nil, zap.NewNop(), monday)
	require.NoError(t, err)
	id, err := SaveDay(ctx, store, zap.NewNop(), first.State)
	require.NoError(t, err)

	roster.roster.Staff = append(roster.roster.Staff, db.StaffRow{ID: "t3", Name: "Cat", Rank: "RPT", Team: "SFM"})

	day, err := OpenDay(ctx, store, roster, nil, zap.NewNop(), monday)
	require.NoError(t, err)

	assert.Equal(t, id, day.ScheduleID)
	assert.Equal(t, []string{"t3"}, day.Drift.AddedStaff)
	assert.Len(t, day.State.Staff, 4, "a saved day keeps its baseline")
}

func TestOpenDay_SavedDayToleratesRosterFailure(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}

	first, err := OpenDay(ctx, store, roster, nil, zap.NewNop(), monday)
	require.NoError(t, err)
	_, err = SaveDay(ctx, store, zap.NewNop(), first.State)
	require.NoError(t, err)

	roster.err = errors.New("timeout")
	day, err := OpenDay(ctx, store, roster, nil, zap.NewNop(), monday)
	require.NoError(t, err)

	assert.Error(t, day.RosterErr)
	assert.False(t, day.Drift.HasDrift())
	assert.Len(t, day.State.Staff, 4)
}

func TestOpenDay_SavedDayWithoutBaselineCapturesOne(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	store.schedules["2026-10-19"] = &db.Schedule{ID: "s1", Date: "2026-10-19"}

	day, err := OpenDay(ctx, store, &mockRosterStore{roster: twoTeamRoster()}, nil, zap.NewNop(), monday)
	require.NoError(t, err)

	assert.Equal(t, "s1", day.ScheduleID)
	assert.False(t, day.State.Baseline.IsZero())
	assert.Len(t, day.State.Staff, 4)

	_, err = OpenDay(ctx, store, &mockRosterStore{err: errors.New("down")}, nil, zap.NewNop(), monday)
	assert.Error(t, err, "no baseline and no roster leaves nothing to allocate against")
}

func TestOpenDay_StoreError(t *testing.T) {
	store := newMockScheduleStore()
	store.getScheduleErr = errors.New("connection refused")

	_, err := OpenDay(context.Background(), store, &mockRosterStore{roster: twoTeamRoster()}, nil, zap.NewNop(), monday)
	assert.ErrorContains(t, err, "failed to fetch schedule")
}

func TestLoadDay_NotGenerated(t *testing.T) {
	day, err := LoadDay(context.Background(), newMockScheduleStore(), zap.NewNop(), monday)
	require.NoError(t, err)
	assert.Nil(t, day)
}
