package db

import (
	"context"
	"fmt"

	"github.com/jakechorley/rehab-roster/pkg/sheetssql"
)

// Roster tabs
const (
	TableStaff      = "staff"
	TableWard       = "ward"
	TableProgram    = "program"
	TablePreference = "preference"
	TableSPT        = "spt"
)

// RosterSchema is the spreadsheet layout of a roster
func RosterSchema() (*sheetssql.Schema, error) {
	return sheetssql.SchemaFromModels(StaffRow{}, WardRow{}, ProgramRow{}, PreferenceRow{}, SPTRow{})
}

// SheetsRoster reads the roster from a spreadsheet kept by the rehab office
type SheetsRoster struct {
	ssql *sheetssql.DB
}

// NewSheetsRoster creates a roster backed by ssql
func NewSheetsRoster(ssql *sheetssql.DB) *SheetsRoster {
	return &SheetsRoster{
		ssql: ssql,
	}
}

// GetStaff retrieves all staff records
func (r *SheetsRoster) GetStaff(ctx context.Context) ([]StaffRow, error) {
	staff, err := sheetssql.GetTableAs[StaffRow](r.ssql, TableStaff)
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	return staff, nil
}

// GetWards retrieves all ward records
func (r *SheetsRoster) GetWards(ctx context.Context) ([]WardRow, error) {
	wards, err := sheetssql.GetTableAs[WardRow](r.ssql, TableWard)
	if err != nil {
		return nil, fmt.Errorf("failed to get wards: %w", err)
	}
	return wards, nil
}

// GetSpecialPrograms retrieves all special program records
func (r *SheetsRoster) GetSpecialPrograms(ctx context.Context) ([]ProgramRow, error) {
	programs, err := sheetssql.GetTableAs[ProgramRow](r.ssql, TableProgram)
	if err != nil {
		return nil, fmt.Errorf("failed to get special programs: %w", err)
	}
	return programs, nil
}

// GetPCAPreferences retrieves all team preference records
func (r *SheetsRoster) GetPCAPreferences(ctx context.Context) ([]PreferenceRow, error) {
	prefs, err := sheetssql.GetTableAs[PreferenceRow](r.ssql, TablePreference)
	if err != nil {
		return nil, fmt.Errorf("failed to get pca preferences: %w", err)
	}
	return prefs, nil
}

// GetSPTAllocations retrieves all senior therapist placements
func (r *SheetsRoster) GetSPTAllocations(ctx context.Context) ([]SPTRow, error) {
	spt, err := sheetssql.GetTableAs[SPTRow](r.ssql, TableSPT)
	if err != nil {
		return nil, fmt.Errorf("failed to get spt allocations: %w", err)
	}
	return spt, nil
}

// AppendRoster adds roster rows below whatever the tabs already hold. It is
// meant for filling a freshly created spreadsheet.
func (r *SheetsRoster) AppendRoster(roster Roster) error {
	if err := sheetssql.InsertModels(r.ssql, roster.Staff); err != nil {
		return fmt.Errorf("failed to insert staff: %w", err)
	}
	if err := sheetssql.InsertModels(r.ssql, roster.Wards); err != nil {
		return fmt.Errorf("failed to insert wards: %w", err)
	}
	if err := sheetssql.InsertModels(r.ssql, roster.Programs); err != nil {
		return fmt.Errorf("failed to insert special programs: %w", err)
	}
	if err := sheetssql.InsertModels(r.ssql, roster.Preferences); err != nil {
		return fmt.Errorf("failed to insert pca preferences: %w", err)
	}
	if err := sheetssql.InsertModels(r.ssql, roster.SPT); err != nil {
		return fmt.Errorf("failed to insert spt allocations: %w", err)
	}
	return nil
}

// ReadRoster reads every roster table from store
func ReadRoster(ctx context.Context, store RosterStore) (Roster, error) {
	var r Roster
	var err error
	if r.Staff, err = store.GetStaff(ctx); err != nil {
		return Roster{}, err
	}
	if r.Wards, err = store.GetWards(ctx); err != nil {
		return Roster{}, err
	}
	if r.Programs, err = store.GetSpecialPrograms(ctx); err != nil {
		return Roster{}, err
	}
	if r.Preferences, err = store.GetPCAPreferences(ctx); err != nil {
		return Roster{}, err
	}
	if r.SPT, err = store.GetSPTAllocations(ctx); err != nil {
		return Roster{}, err
	}
	return r, nil
}
