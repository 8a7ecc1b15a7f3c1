package db

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/sheetssql"
)

type fakeSheets struct {
	tabs map[string][][]interface{}
}

func (f *fakeSheets) GetValues(spreadsheetID, sheetRange string) ([][]interface{}, error) {
	name, _, ranged := strings.Cut(sheetRange, "!")
	values := f.tabs[name]
	if ranged && len(values) > 2 {
		values = values[:2]
	}
	return values, nil
}

func (f *fakeSheets) AppendRows(spreadsheetID, sheetRange string, values [][]interface{}) error {
	f.tabs[sheetRange] = append(f.tabs[sheetRange], values...)
	return nil
}

func (f *fakeSheets) CreateSheet(spreadsheetID, sheetTitle string) (int64, error) {
	f.tabs[sheetTitle] = nil
	return 0, nil
}

func (f *fakeSheets) ListSheets(spreadsheetID string) ([]string, error) {
	var names []string
	for name := range f.tabs {
		names = append(names, name)
	}
	return names, nil
}

func newSheetsRoster(t *testing.T, tabs map[string][][]interface{}) (*SheetsRoster, *fakeSheets) {
	t.Helper()
	if tabs == nil {
		tabs = map[string][][]interface{}{}
	}
	client := &fakeSheets{tabs: tabs}
	schema, err := RosterSchema()
	require.NoError(t, err)
	ssql, err := sheetssql.NewDB(client, "roster", schema)
	require.NoError(t, err)
	return NewSheetsRoster(ssql), client
}

func TestRosterSchema_TabNames(t *testing.T) {
	schema, err := RosterSchema()
	require.NoError(t, err)

	var names []string
	for _, table := range schema.Tables {
		names = append(names, table.Name)
	}
	assert.Equal(t, []string{TableStaff, TableWard, TableProgram, TablePreference, TableSPT}, names)
}

func TestSheetsRoster_LegacyStaffTab(t *testing.T) {
	roster, _ := newSheetsRoster(t, map[string][][]interface{}{
		TableStaff: {
			{"id", "name", "rank", "team", "floating", "active"},
			{"text", "text", "text", "text", "bool", "bool"},
			{"t1", "Tom", "SPT", "FO", "FALSE", "TRUE"},
			{"p1", "Pat", "PCA", "", "TRUE", "FALSE"},
		},
	})

	rows, err := roster.GetStaff(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	s, err := rows[1].ToModel()
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, s.Status)
	assert.True(t, s.Floating)
}

func TestSheetsRoster_AppendAndReadBack(t *testing.T) {
	roster, client := newSheetsRoster(t, nil)
	half := 0.5

	in := Roster{
		Staff:       []StaffRow{{ID: "f1", Name: "Alice", Rank: "PCA", Floating: true, FloorPCA: "upper", Status: "buffer", BufferFTE: &half}},
		Wards:       []WardRow{{Name: "R1", TotalBeds: 10, TeamBeds: "FO=10"}},
		Programs:    []ProgramRow{{ID: "gym", Name: "Gym", Team: "FO", Schedule: "FREQ=WEEKLY;BYDAY=MO", Slots: "1"}},
		Preferences: []PreferenceRow{{Team: "FO", PreferredPCAIDs: "f1"}},
		SPT:         []SPTRow{{StaffID: "s1", Teams: "FO", Weekdays: "mon", FTE: 0.5}},
	}
	require.NoError(t, roster.AppendRoster(in))
	assert.Len(t, client.tabs[TableStaff], 3)

	// The fake keeps Go values; a real sheet hands back strings
	for name, rows := range client.tabs {
		for i := 2; i < len(rows); i++ {
			for j, cell := range rows[i] {
				rows[i][j] = fmt.Sprint(cell)
			}
		}
		client.tabs[name] = rows
	}

	out, err := ReadRoster(context.Background(), roster)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
