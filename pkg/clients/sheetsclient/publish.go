package sheetsclient

import (
	"fmt"
	"slices"
	"time"
)

// PublishedRow represents one staff member's line in a published day
type PublishedRow struct {
	Staff string
	Role  string
	Team  string
	Slots [4]string // Team working each slot, blank when not working
	FTE   string
}

// PublishedDay represents the complete published allocation of a day
type PublishedDay struct {
	Date time.Time
	Rows []PublishedRow
}

// publishedColumns are the columns a publish owns and overwrites
var publishedColumns = []string{"Staff", "Role", "Team", "Slot 1", "Slot 2", "Slot 3", "Slot 4", "FTE"}

const (
	notesColumn = "Notes"
	headerRow   = 2 // zero-based; rows above hold the title and a gap
)

// PublishDay publishes a day's allocation to its own tab named like "Mon Jan 02 2006".
// If the tab doesn't exist it is created. If it exists, the published columns are
// overwritten while Notes and any other custom columns are kept against the same staff member.
func (c *Client) PublishDay(spreadsheetID string, day *PublishedDay) error {
	tabTitle := generateTabTitle(day.Date)

	titles, err := c.ListSheets(spreadsheetID)
	if err != nil {
		return err
	}

	var values [][]interface{}
	if !slices.Contains(titles, tabTitle) {
		if _, err := c.CreateSheet(spreadsheetID, tabTitle); err != nil {
			return fmt.Errorf("failed to create tab: %w", err)
		}
		values = newTabValues(day)
	} else {
		existing, err := c.GetValues(spreadsheetID, fmt.Sprintf("%s!A1:ZZ", tabTitle))
		if err != nil {
			return fmt.Errorf("failed to read existing tab data: %w", err)
		}
		values, err = mergeTabValues(existing, day)
		if err != nil {
			return err
		}
	}

	if err := c.UpdateValues(spreadsheetID, fmt.Sprintf("%s!A1", tabTitle), values); err != nil {
		return fmt.Errorf("failed to write day to tab: %w", err)
	}
	return nil
}

// generateTabTitle creates a tab title in the format "Mon Jan 02 2006"
func generateTabTitle(date time.Time) string {
	return date.Format("Mon Jan 02 2006")
}

func titleRow(day *PublishedDay) []interface{} {
	return []interface{}{fmt.Sprintf("Rehab allocation %s", generateTabTitle(day.Date))}
}

func publishedCells(row PublishedRow) []interface{} {
	cells := []interface{}{row.Staff, row.Role, row.Team}
	for _, team := range row.Slots {
		cells = append(cells, team)
	}
	return append(cells, row.FTE)
}

// newTabValues lays out a fresh tab: title, a blank row, the header and one row per staff member
func newTabValues(day *PublishedDay) [][]interface{} {
	header := make([]interface{}, 0, len(publishedColumns)+1)
	for _, col := range publishedColumns {
		header = append(header, col)
	}
	header = append(header, notesColumn)

	values := [][]interface{}{titleRow(day), {}, header}
	for _, row := range day.Rows {
		values = append(values, append(publishedCells(row), ""))
	}
	return values
}

// mergeTabValues rebuilds an existing tab with the day's rows, carrying every
// column it does not own across by staff name
func mergeTabValues(existing [][]interface{}, day *PublishedDay) ([][]interface{}, error) {
	if len(existing) <= headerRow {
		return nil, fmt.Errorf("existing tab has insufficient rows (expected a header on row %d)", headerRow+1)
	}

	oldHeader := existing[headerRow]
	staffCol := findColumnIndex(oldHeader, "Staff")
	if staffCol == -1 {
		return nil, fmt.Errorf("existing tab missing required column Staff")
	}

	// Columns the publish does not own, in their existing order
	var extraCols []int
	var extraNames []string
	for i, cell := range oldHeader {
		name, ok := cell.(string)
		if !ok || name == "" || slices.Contains(publishedColumns, name) {
			continue
		}
		extraCols = append(extraCols, i)
		extraNames = append(extraNames, name)
	}

	kept := make(map[string][]interface{})
	for _, old := range existing[headerRow+1:] {
		if staffCol >= len(old) {
			continue
		}
		name, ok := old[staffCol].(string)
		if !ok || name == "" {
			continue
		}
		cells := make([]interface{}, len(extraCols))
		for j, col := range extraCols {
			if col < len(old) {
				cells[j] = old[col]
			} else {
				cells[j] = ""
			}
		}
		kept[name] = cells
	}

	header := make([]interface{}, 0, len(publishedColumns)+len(extraNames)+1)
	for _, col := range publishedColumns {
		header = append(header, col)
	}
	for _, name := range extraNames {
		header = append(header, name)
	}
	if !slices.Contains(extraNames, notesColumn) {
		header = append(header, notesColumn)
		for name, cells := range kept {
			kept[name] = append(cells, "")
		}
	}
	extraWidth := len(header) - len(publishedColumns)

	values := [][]interface{}{titleRow(day), {}, header}
	for _, row := range day.Rows {
		cells := publishedCells(row)
		if extra, ok := kept[row.Staff]; ok {
			cells = append(cells, extra...)
		} else {
			cells = append(cells, blankCells(extraWidth)...)
		}
		values = append(values, cells)
	}

	// Blank out rows left over from a longer previous publish
	for i := len(values); i < len(existing); i++ {
		values = append(values, blankCells(len(header)))
	}

	return values, nil
}

func blankCells(n int) []interface{} {
	cells := make([]interface{}, n)
	for i := range cells {
		cells[i] = ""
	}
	return cells
}

// findColumnIndex finds the index of a column by its header name
func findColumnIndex(header []interface{}, columnName string) int {
	for i, cell := range header {
		if str, ok := cell.(string); ok && str == columnName {
			return i
		}
	}
	return -1
}
