package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/baseline"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
)

func TestBuildPublishedDay_OrdersByTeamThenName(t *testing.T) {
	state := workflow.NewDay(monday, baseline.Config{
		Staff: []model.Staff{
			{ID: "t1", Name: "Zed", Rank: model.RankSPT, Team: model.TeamSMM},
			{ID: "t2", Name: "Amy", Rank: model.RankRPT, Team: model.TeamSMM},
			{ID: "t3", Name: "Max", Rank: model.RankAPPT, Team: model.TeamFO},
			{ID: "f1", Name: "Alice", Rank: model.RankPCA, Floating: true},
		},
	}, monday)
	state.Allocations = model.Allocations{
		Therapists: []model.TherapistAllocation{
			{StaffID: "t1", Team: model.TeamSMM, FTE: 0.5, Slots: []model.Slot{1, 2}},
			{StaffID: "t2", Team: model.TeamSMM, FTE: 1},
			{StaffID: "t3", Team: model.TeamFO, FTE: 1},
		},
		PCAs: []model.PCAAllocation{
			{StaffID: "f1", Team: model.TeamFO, FTEPCA: 0.75, Slots: model.SlotAssignments{model.TeamFO, "", model.TeamSMM, model.TeamSMM}},
		},
	}

	day := BuildPublishedDay(state)

	require.Len(t, day.Rows, 4)
	assert.Equal(t, monday, day.Date)
	assert.Equal(t, "Max", day.Rows[0].Staff)
	assert.Equal(t, "Amy", day.Rows[1].Staff)
	assert.Equal(t, "Zed", day.Rows[2].Staff)
	assert.Equal(t, [4]string{"SMM", "SMM", "", ""}, day.Rows[2].Slots)
	assert.Equal(t, "0.5", day.Rows[2].FTE)
	assert.Equal(t, "SPT", day.Rows[2].Role)

	pca := day.Rows[3]
	assert.Equal(t, "Alice", pca.Staff)
	assert.Equal(t, "PCA", pca.Role)
	assert.Equal(t, [4]string{"FO", "", "SMM", "SMM"}, pca.Slots)
	assert.Equal(t, "0.75", pca.FTE)
}

func TestPublishDay(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()
	savedMonday(t, store, &mockRosterStore{roster: twoTeamRoster()})
	publisher := &mockPublisher{}

	require.NoError(t, PublishDay(ctx, store, publisher, "sheet-1", zap.NewNop(), monday))

	assert.Equal(t, "sheet-1", publisher.spreadsheetID)
	require.NotNil(t, publisher.published)
	assert.NotEmpty(t, publisher.published.Rows)
}

func TestPublishDay_Errors(t *testing.T) {
	ctx := context.Background()
	store := newMockScheduleStore()

	err := PublishDay(ctx, store, &mockPublisher{}, "", zap.NewNop(), monday)
	assert.ErrorContains(t, err, "no publish spreadsheet")

	err = PublishDay(ctx, store, &mockPublisher{}, "sheet-1", zap.NewNop(), monday)
	assert.ErrorContains(t, err, "no schedule saved")

	savedMonday(t, store, &mockRosterStore{roster: twoTeamRoster()})
	err = PublishDay(ctx, store, &mockPublisher{err: errors.New("quota")}, "sheet-1", zap.NewNop(), monday)
	assert.ErrorContains(t, err, "failed to publish day")
}
