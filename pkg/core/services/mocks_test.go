package services

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/jakechorley/rehab-roster/pkg/clients/sheetsclient"
	"github.com/jakechorley/rehab-roster/pkg/db"
)

var (
	monday  = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	tuesday = monday.AddDate(0, 0, 1)
)

// mockScheduleStore implements db.ScheduleStore in memory
type mockScheduleStore struct {
	schedules   map[string]*db.Schedule // by date
	allocations map[string][]db.AllocationRow
	baselines   map[string]*db.BaselineRow
	bedCounts   map[string][]db.BedCountRow
	bedNotes    map[string][]db.BedNoteRow

	creates int
	updates int

	getScheduleErr        error
	replaceAllocationsErr error
}

func newMockScheduleStore() *mockScheduleStore {
	return &mockScheduleStore{
		schedules:   make(map[string]*db.Schedule),
		allocations: make(map[string][]db.AllocationRow),
		baselines:   make(map[string]*db.BaselineRow),
		bedCounts:   make(map[string][]db.BedCountRow),
		bedNotes:    make(map[string][]db.BedNoteRow),
	}
}

func (m *mockScheduleStore) GetSchedule(ctx context.Context, date string) (*db.Schedule, error) {
	if m.getScheduleErr != nil {
		return nil, m.getScheduleErr
	}
	s, ok := m.schedules[date]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockScheduleStore) ListSchedules(ctx context.Context) ([]db.Schedule, error) {
	var out []db.Schedule
	for _, s := range m.schedules {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (m *mockScheduleStore) CreateSchedule(ctx context.Context, schedule *db.Schedule) error {
	if _, ok := m.schedules[schedule.Date]; ok {
		return errors.New("duplicate date")
	}
	cp := *schedule
	m.schedules[schedule.Date] = &cp
	m.creates++
	return nil
}

func (m *mockScheduleStore) UpdateScheduleState(ctx context.Context, scheduleID string, state []byte) error {
	for _, s := range m.schedules {
		if s.ID == scheduleID {
			s.State = state
			m.updates++
			return nil
		}
	}
	return errors.New("schedule not found")
}

func (m *mockScheduleStore) GetAllocations(ctx context.Context, scheduleID string) ([]db.AllocationRow, error) {
	return slices.Clone(m.allocations[scheduleID]), nil
}

func (m *mockScheduleStore) ReplaceAllocations(ctx context.Context, scheduleID string, rows []db.AllocationRow) error {
	if m.replaceAllocationsErr != nil {
		return m.replaceAllocationsErr
	}
	m.allocations[scheduleID] = slices.Clone(rows)
	return nil
}

func (m *mockScheduleStore) GetBaseline(ctx context.Context, scheduleID string) (*db.BaselineRow, error) {
	return m.baselines[scheduleID], nil
}

func (m *mockScheduleStore) SaveBaseline(ctx context.Context, row *db.BaselineRow) error {
	cp := *row
	m.baselines[row.ScheduleID] = &cp
	return nil
}

func (m *mockScheduleStore) GetBedCounts(ctx context.Context, scheduleID string) ([]db.BedCountRow, error) {
	return slices.Clone(m.bedCounts[scheduleID]), nil
}

func (m *mockScheduleStore) SaveBedCounts(ctx context.Context, scheduleID string, rows []db.BedCountRow) error {
	m.bedCounts[scheduleID] = slices.Clone(rows)
	return nil
}

func (m *mockScheduleStore) GetBedNotes(ctx context.Context, scheduleID string) ([]db.BedNoteRow, error) {
	return slices.Clone(m.bedNotes[scheduleID]), nil
}

func (m *mockScheduleStore) SaveBedNotes(ctx context.Context, scheduleID string, rows []db.BedNoteRow) error {
	m.bedNotes[scheduleID] = slices.Clone(rows)
	return nil
}

// mockRosterStore implements db.RosterStore
type mockRosterStore struct {
	roster db.Roster
	err    error
}

func (m *mockRosterStore) GetStaff(ctx context.Context) ([]db.StaffRow, error) {
	if m.err != nil {
		return nil, m.err
	}
	return slices.Clone(m.roster.Staff), nil
}

func (m *mockRosterStore) GetWards(ctx context.Context) ([]db.WardRow, error) {
	return slices.Clone(m.roster.Wards), nil
}

func (m *mockRosterStore) GetSpecialPrograms(ctx context.Context) ([]db.ProgramRow, error) {
	return slices.Clone(m.roster.Programs), nil
}

func (m *mockRosterStore) GetPCAPreferences(ctx context.Context) ([]db.PreferenceRow, error) {
	return slices.Clone(m.roster.Preferences), nil
}

func (m *mockRosterStore) GetSPTAllocations(ctx context.Context) ([]db.SPTRow, error) {
	return slices.Clone(m.roster.SPT), nil
}

// mockRosterTarget implements RosterReplacer and RosterAppender
type mockRosterTarget struct {
	replaced *db.Roster
	appended *db.Roster
	err      error
}

func (m *mockRosterTarget) ReplaceRoster(ctx context.Context, roster db.Roster) error {
	if m.err != nil {
		return m.err
	}
	m.replaced = &roster
	return nil
}

func (m *mockRosterTarget) AppendRoster(roster db.Roster) error {
	if m.err != nil {
		return m.err
	}
	m.appended = &roster
	return nil
}

// mockPublisher implements DayPublisher
type mockPublisher struct {
	spreadsheetID string
	published     *sheetsclient.PublishedDay
	err           error
}

func (m *mockPublisher) PublishDay(spreadsheetID string, day *sheetsclient.PublishedDay) error {
	if m.err != nil {
		return m.err
	}
	m.spreadsheetID = spreadsheetID
	m.published = day
	return nil
}

// twoTeamRoster has a therapist on each of FO and SMM and two floating PCAs
func twoTeamRoster() db.Roster {
	return db.Roster{
		Staff: []db.StaffRow{
			{ID: "t1", Name: "Ann", Rank: "RPT", Team: "FO", Status: "active"},
			{ID: "t2", Name: "Ben", Rank: "RPT", Team: "SMM", Status: "active"},
			{ID: "f1", Name: "Alice", Rank: "PCA", Floating: true, Status: "active"},
			{ID: "f2", Name: "Bob", Rank: "PCA", Floating: true, Status: "active"},
		},
		Wards: []db.WardRow{{Name: "R1", TotalBeds: 20, TeamBeds: "FO=10,SMM=10"}},
	}
}
