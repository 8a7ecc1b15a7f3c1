package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/rehab-roster/pkg/core/services"
)

// ImportRosterCmd creates the importRoster command
func ImportRosterCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "importRoster",
		Short: "Replace the stored roster with the roster spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.SheetsRoster == nil {
				return fmt.Errorf("importRoster needs rosterSheetID in the %s config", app.Env)
			}

			counts, err := services.ImportRoster(app.Ctx, app.SheetsRoster, app.Database, app.Logger)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Roster imported\n\n")
			printRosterCounts(counts)
			return nil
		},
	}
}

// SeedRosterSheetCmd creates the seedRosterSheet command
func SeedRosterSheetCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seedRosterSheet",
		Short: "Fill an empty roster spreadsheet from the stored roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.SheetsRoster == nil {
				return fmt.Errorf("seedRosterSheet needs rosterSheetID in the %s config", app.Env)
			}

			counts, err := services.SeedRosterSheet(app.Ctx, app.Database, app.SheetsRoster, app.Logger)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Roster spreadsheet seeded\n\n")
			printRosterCounts(counts)
			return nil
		},
	}
}

func printRosterCounts(c services.RosterCounts) {
	fmt.Printf("Staff:            %d\n", c.Staff)
	fmt.Printf("Wards:            %d\n", c.Wards)
	fmt.Printf("Special Programs: %d\n", c.Programs)
	fmt.Printf("PCA Preferences:  %d\n", c.Preferences)
	fmt.Printf("SPT Placements:   %d\n\n", c.SPT)
}
