// Package export writes a schedule day to an Excel workbook with one sheet
// per kind of allocation.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
)

// Sheet names, in workbook order
const (
	SheetTherapists = "Therapists"
	SheetPCAs       = "PCA"
	SheetBeds       = "Beds"
	SheetCapacity   = "Capacity"
	SheetWarnings   = "Warnings"
)

// Exporter fills a workbook from one day
type Exporter struct {
	wb    *excelize.File
	day   *workflow.DayState
	caps  capacity.Result
	names map[string]string
	bold  int
}

// Workbook builds the workbook for a day. The caller owns the returned file
// and must close it.
func Workbook(day *workflow.DayState, caps capacity.Result) (*excelize.File, error) {
	wb := excelize.NewFile()
	e := &Exporter{wb: wb, day: day, caps: caps, names: make(map[string]string, len(day.Staff))}
	for _, st := range day.Staff {
		e.names[st.ID] = st.Name
	}

	if err := e.fill(); err != nil {
		wb.Close()
		return nil, err
	}
	return wb, nil
}

// Write streams the day's workbook to w
func Write(w io.Writer, day *workflow.DayState, caps capacity.Result) error {
	wb, err := Workbook(day, caps)
	if err != nil {
		return err
	}
	defer wb.Close()

	if err := wb.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (e *Exporter) fill() error {
	bold, err := e.wb.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	e.bold = bold

	// NewFile starts with Sheet1
	if err := e.wb.SetSheetName("Sheet1", SheetTherapists); err != nil {
		return fmt.Errorf("failed to rename first sheet: %w", err)
	}
	for _, name := range []string{SheetPCAs, SheetBeds, SheetCapacity, SheetWarnings} {
		if _, err := e.wb.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
	}

	writers := []func() error{e.writeTherapists, e.writePCAs, e.writeBeds, e.writeCapacity, e.writeWarnings}
	for _, write := range writers {
		if err := write(); err != nil {
			return err
		}
	}

	e.wb.SetActiveSheet(0)
	return nil
}

func (e *Exporter) name(staffID string) string {
	if n, ok := e.names[staffID]; ok && n != "" {
		return n
	}
	return staffID
}

// writeRows writes a bold header on row 1 followed by the data rows
func (e *Exporter) writeRows(sheet string, header []interface{}, rows [][]interface{}) error {
	if err := e.wb.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	if err := e.wb.SetRowStyle(sheet, 1, 1, e.bold); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := e.wb.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	return e.wb.SetColWidth(sheet, "A", last, 14)
}

func (e *Exporter) writeTherapists() error {
	header := []interface{}{"Staff", "Team", "FTE", "Slots", "Leave", "Programs"}
	var rows [][]interface{}
	for _, team := range model.AllTeams {
		for _, t := range e.day.Allocations.Therapists {
			if t.Team != team {
				continue
			}
			rows = append(rows, []interface{}{
				e.name(t.StaffID),
				string(t.Team),
				t.FTE,
				joinSlots(t.Slots),
				string(t.LeaveType),
				strings.Join(t.SpecialProgramIDs, ", "),
			})
		}
	}
	return e.writeRows(SheetTherapists, header, rows)
}

// writePCAs lays out the slot grid: one row per PCA and the team working each slot
func (e *Exporter) writePCAs() error {
	header := []interface{}{"Staff", "Team"}
	for s := 1; s <= model.SlotsPerDay; s++ {
		header = append(header, fmt.Sprintf("Slot %d", s))
	}
	header = append(header, "FTE", "Leave", "Program slots")

	var rows [][]interface{}
	for _, p := range e.day.Allocations.PCAs {
		row := []interface{}{e.name(p.StaffID), string(p.Team)}
		for i, team := range p.Slots {
			cell := string(team)
			if p.InvalidSlot == model.Slot(i+1) && cell != "" {
				cell += " (not counted)"
			}
			row = append(row, cell)
		}
		row = append(row, p.FTEPCA, string(p.LeaveType), joinSlots(p.ProgramSlots))
		rows = append(rows, row)
	}
	return e.writeRows(SheetPCAs, header, rows)
}

// writeBeds writes the transfers, then each team's bed deductions and relieving note
func (e *Exporter) writeBeds() error {
	header := []interface{}{"From", "To", "Beds", "Ward"}
	var rows [][]interface{}
	for _, b := range e.day.Allocations.Beds {
		rows = append(rows, []interface{}{string(b.FromTeam), string(b.ToTeam), b.Beds, b.Ward})
	}

	notesAt := len(rows) + 3
	if err := e.writeRows(SheetBeds, header, rows); err != nil {
		return err
	}

	noteHeader := []interface{}{"Team", "SHS", "Student placement", "Note"}
	cell, err := excelize.CoordinatesToCellName(1, notesAt)
	if err != nil {
		return err
	}
	if err := e.wb.SetSheetRow(SheetBeds, cell, &noteHeader); err != nil {
		return fmt.Errorf("failed to write bed notes header: %w", err)
	}
	if err := e.wb.SetRowStyle(SheetBeds, notesAt, notesAt, e.bold); err != nil {
		return fmt.Errorf("failed to style bed notes header: %w", err)
	}

	row := notesAt + 1
	for _, team := range model.AllTeams {
		o, hasOverride := e.day.BedCountOverrides[team]
		note := e.day.BedNotes[team]
		if !hasOverride && note == "" {
			continue
		}
		values := []interface{}{string(team), o.SHS, o.StudentPlacement, note}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := e.wb.SetSheetRow(SheetBeds, cell, &values); err != nil {
			return fmt.Errorf("failed to write bed note for %s: %w", team, err)
		}
		row++
	}
	return nil
}

func (e *Exporter) writeCapacity() error {
	header := []interface{}{
		"Team", "Designated beds", "PT FTE", "Beds per PT", "Required PCA",
		"Average target", "Assigned PCA", "Balance", "Beds for relieving", "Pending FTE",
	}
	var rows [][]interface{}
	for _, tc := range e.caps.Teams {
		rows = append(rows, []interface{}{
			string(tc.Team),
			tc.DesignatedBeds,
			tc.PTFTE,
			tc.BedsPerPT,
			tc.RequiredPCA,
			tc.AverageTarget,
			tc.AssignedPCA,
			tc.Balance,
			tc.BedsForRelieving,
			e.day.Pending[tc.Team],
		})
	}
	return e.writeRows(SheetCapacity, header, rows)
}

func (e *Exporter) writeWarnings() error {
	header := []interface{}{"Step", "Code", "Team", "Staff", "Message"}
	var rows [][]interface{}
	for _, step := range model.Steps {
		for _, w := range e.day.Warnings[step] {
			staff := ""
			if w.StaffID != "" {
				staff = e.name(w.StaffID)
			}
			rows = append(rows, []interface{}{string(step), string(w.Code), string(w.Team), staff, w.Message})
		}
	}
	return e.writeRows(SheetWarnings, header, rows)
}

func joinSlots(slots []model.Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = fmt.Sprint(int(s))
	}
	return strings.Join(parts, ",")
}
