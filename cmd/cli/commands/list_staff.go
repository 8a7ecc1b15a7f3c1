package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/rehab-roster/pkg/core/services"
)

// ListStaffCmd creates the listStaff command
func ListStaffCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listStaff",
		Short: "List all staff on the live roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			live, err := services.LiveConfig(app.Ctx, app.Roster, app.Cfg, app.Logger)
			if err != nil {
				return err
			}

			fmt.Printf("\nFound %d staff:\n\n", len(live.Staff))
			for _, st := range live.Staff {
				team := string(st.Team)
				if st.Floating {
					team = "floating"
				}
				if team == "" {
					team = "no team"
				}
				fmt.Printf("- %s (%s) - %s - %s - %s\n", st.Name, st.ID, st.Rank, team, st.Status)
			}
			fmt.Printf("\n%d wards, %d special programs\n\n", len(live.Wards), len(live.Programs))
			return nil
		},
	}
}

// ListSchedulesCmd creates the listSchedules command
func ListSchedulesCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listSchedules",
		Short: "List the saved schedule days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := app.Database.ListSchedules(app.Ctx)
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			if len(schedules) == 0 {
				fmt.Printf("\nNo schedules saved\n\n")
				return nil
			}

			fmt.Printf("\nFound %d schedules:\n\n", len(schedules))
			for _, s := range schedules {
				fmt.Printf("  %s  %s  updated %s\n", s.Date, s.ID, s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			fmt.Println()
			return nil
		},
	}
}
