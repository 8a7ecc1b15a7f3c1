package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
	"github.com/jakechorley/rehab-roster/pkg/db"
)

func savedMonday(t *testing.T, store *mockScheduleStore, roster *mockRosterStore) {
	t.Helper()
	_, err := RunDay(context.Background(), store, roster, nil, zap.NewNop(), resolvers.Set{}, RunDayOptions{Date: monday})
	require.NoError(t, err)
}

func TestCopySchedule_Full(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}
	savedMonday(t, store, roster)

	result, err := CopySchedule(ctx, store, roster, nil, zap.NewNop(), CopyRequest{From: monday, To: tuesday, Mode: workflow.CopyFull})
	require.NoError(t, err)

	assert.Equal(t, model.StepBedRelieving, result.Report.ReachedStep)
	assert.Empty(t, result.Report.RebaseWarning)
	assert.Equal(t, tuesday, result.State.Date)
	assert.Contains(t, store.schedules, "2026-10-20")
	assert.NotEqual(t, store.schedules["2026-10-19"].ID, result.ScheduleID)
}

func TestCopySchedule_HybridResetsFloating(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}
	savedMonday(t, store, roster)

	result, err := CopySchedule(ctx, store, roster, nil, zap.NewNop(), CopyRequest{From: monday, To: tuesday, Mode: workflow.CopyHybrid})
	require.NoError(t, err)

	assert.Equal(t, model.StepTherapistPCA, result.Report.ReachedStep)
	assert.Equal(t, workflow.StatusPending, result.State.Status[model.StepFloatingPCA])
}

func TestCopySchedule_DriftKeepsSourceBaseline(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}
	savedMonday(t, store, roster)

	roster.roster.Staff = append(roster.roster.Staff, db.StaffRow{ID: "t3", Name: "Cat", Rank: "RPT", Team: "SFM"})

	result, err := CopySchedule(ctx, store, roster, nil, zap.NewNop(), CopyRequest{From: monday, To: tuesday})
	require.NoError(t, err)

	assert.NotEmpty(t, result.Report.RebaseWarning)
	assert.Equal(t, []string{"t3"}, result.Report.Drift.AddedStaff)
	assert.Len(t, result.State.Staff, 4)
}

func TestCopySchedule_RosterUnavailableUsesSourceSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}
	savedMonday(t, store, roster)

	roster.err = errors.New("offline")
	result, err := CopySchedule(ctx, store, roster, nil, zap.NewNop(), CopyRequest{From: monday, To: tuesday})
	require.NoError(t, err)
	assert.Len(t, result.State.Staff, 4)
}

func TestCopySchedule_Errors(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	roster := &mockRosterStore{roster: twoTeamRoster()}

	_, err := CopySchedule(ctx, store, roster, nil, zap.NewNop(), CopyRequest{From: monday, To: tuesday})
	assert.ErrorContains(t, err, "no schedule saved")

	_, err = CopySchedule(ctx, store, roster, nil, zap.NewNop(), CopyRequest{From: monday, To: monday})
	assert.ErrorContains(t, err, "onto itself")

	savedMonday(t, store, roster)
	_, err = CopySchedule(ctx, store, roster, nil, zap.NewNop(), CopyRequest{From: monday, To: tuesday, Mode: "partial"})
	assert.Error(t, err)
}
