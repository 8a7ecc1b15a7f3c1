package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/rehab-roster/pkg/db"
)

var _ db.Database = (*DB)(nil)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestReplaceRoster_ReadsBack(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	half := 0.5

	roster := db.Roster{
		Staff: []db.StaffRow{
			{ID: "t1", Name: "Tom", Rank: "SPT", Team: "FO", Status: "active"},
			{ID: "f1", Name: "Alice", Rank: "PCA", Floating: true, FloorPCA: "upper", Status: "buffer", BufferFTE: &half},
		},
		Wards:       []db.WardRow{{Name: "R1", TotalBeds: 16, TeamBeds: "FO=10,SMM=6"}},
		Programs:    []db.ProgramRow{{ID: "gym", Name: "Gym", Team: "FO", Schedule: "FREQ=WEEKLY;BYDAY=MO", Slots: "1"}},
		Preferences: []db.PreferenceRow{{Team: "FO", PreferredPCAIDs: "f1", PreferredSlots: "1,2", Floor: "upper"}},
		SPT:         []db.SPTRow{{StaffID: "t1", Teams: "FO", Weekdays: "mon,tue", FTE: 0.5, Slots: "1,2"}},
	}
	require.NoError(t, d.ReplaceRoster(ctx, roster))

	staff, err := d.GetStaff(ctx)
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.Equal(t, "f1", staff[0].ID)
	assert.Equal(t, "", staff[0].Team)
	assert.Equal(t, 0.5, *staff[0].BufferFTE)
	assert.Nil(t, staff[1].BufferFTE)

	wards, err := d.GetWards(ctx)
	require.NoError(t, err)
	assert.Equal(t, roster.Wards, wards)

	programs, err := d.GetSpecialPrograms(ctx)
	require.NoError(t, err)
	assert.Equal(t, roster.Programs, programs)

	prefs, err := d.GetPCAPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, roster.Preferences, prefs)

	spt, err := d.GetSPTAllocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, roster.SPT, spt)

	// Replacing again leaves only the new roster
	require.NoError(t, d.ReplaceRoster(ctx, db.Roster{Staff: roster.Staff[:1]}))
	staff, err = d.GetStaff(ctx)
	require.NoError(t, err)
	assert.Len(t, staff, 1)
	wards, err = d.GetWards(ctx)
	require.NoError(t, err)
	assert.Empty(t, wards)
}

func TestGetStaff_LegacyTable(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	_, err := d.db.Exec(`
		DROP TABLE staff;
		CREATE TABLE staff (id TEXT PRIMARY KEY, name TEXT, rank TEXT, team TEXT, floating INTEGER, active INTEGER);
		INSERT INTO staff VALUES ('t1', 'Tom', 'SPT', 'FO', 0, 1), ('t2', 'Ann', 'RPT', 'SMM', 0, 0), ('t3', 'Sam', 'RPT', NULL, 0, NULL);
	`)
	require.NoError(t, err)

	staff, err := d.GetStaff(ctx)
	require.NoError(t, err)
	require.Len(t, staff, 3)
	assert.True(t, *staff[0].Active)
	assert.False(t, *staff[1].Active)
	assert.Nil(t, staff[2].Active)
	assert.Empty(t, staff[0].Status)
}

func TestSchedule_Lifecycle(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	missing, err := d.GetSchedule(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, d.CreateSchedule(ctx, &db.Schedule{ID: "s1", Date: "2026-10-19", State: []byte(`{"currentStep":"leave-fte"}`)}))
	require.NoError(t, d.CreateSchedule(ctx, &db.Schedule{ID: "s2", Date: "2026-10-20", State: []byte(`{}`)}))
	assert.Error(t, d.CreateSchedule(ctx, &db.Schedule{ID: "s3", Date: "2026-10-19", State: []byte(`{}`)}), "one schedule per date")

	require.NoError(t, d.UpdateScheduleState(ctx, "s1", []byte(`{"currentStep":"review"}`)))
	assert.Error(t, d.UpdateScheduleState(ctx, "nope", []byte(`{}`)))

	got, err := d.GetSchedule(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.JSONEq(t, `{"currentStep":"review"}`, string(got.State))
	assert.False(t, got.CreatedAt.IsZero())

	list, err := d.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].ID)
}

func TestScheduleTables_Replace(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	require.NoError(t, d.CreateSchedule(ctx, &db.Schedule{ID: "s1", Date: "2026-10-19", State: []byte(`{}`)}))

	rows := []db.AllocationRow{
		{ID: "b", Kind: db.KindPCA, StaffID: "f1", Team: "FO", Payload: []byte(`{"ID":"b"}`)},
		{ID: "a", Kind: db.KindBed, Team: "SMM", Payload: []byte(`{}`)},
	}
	require.NoError(t, d.ReplaceAllocations(ctx, "s1", rows))
	require.NoError(t, d.ReplaceAllocations(ctx, "s1", rows))

	got, err := d.GetAllocations(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID, "saved order is kept")
	assert.Equal(t, "", got[1].StaffID)
	assert.Equal(t, "s1", got[0].ScheduleID)

	assert.Error(t, d.ReplaceAllocations(ctx, "missing", rows), "foreign keys are enforced")

	captured := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	require.NoError(t, d.SaveBaseline(ctx, &db.BaselineRow{ScheduleID: "s1", CapturedAt: captured, Snapshot: []byte(`{"staff":[]}`)}))
	base, err := d.GetBaseline(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, captured.Equal(base.CapturedAt))

	none, err := d.GetBaseline(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, d.SaveBedCounts(ctx, "s1", []db.BedCountRow{{Team: "FO", SHS: 1, StudentPlacement: 2}}))
	counts, err := d.GetBedCounts(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []db.BedCountRow{{ScheduleID: "s1", Team: "FO", SHS: 1, StudentPlacement: 2}}, counts)

	require.NoError(t, d.SaveBedNotes(ctx, "s1", []db.BedNoteRow{{Team: "SMM", Note: "cover"}}))
	require.NoError(t, d.SaveBedNotes(ctx, "s1", nil))
	notes, err := d.GetBedNotes(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, notes)
}
