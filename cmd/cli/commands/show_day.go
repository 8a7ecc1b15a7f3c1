package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jakechorley/rehab-roster/pkg/core/services"
)

// ShowDayCmd creates the showDay command
func ShowDayCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "showDay <date>",
		Short: "Show the saved allocations for a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := services.ParseDate(args[0])
			if err != nil {
				return err
			}

			day, err := services.LoadDay(app.Ctx, app.Database, app.Logger, date)
			if err != nil {
				return err
			}
			if day == nil {
				fmt.Printf("\nNo schedule saved for %s\n\n", args[0])
				return nil
			}

			fmt.Printf("\n🏥 Day %s\n\n", args[0])
			fmt.Printf("Schedule ID: %s\n", day.ScheduleID)
			printStatus(os.Stdout, day.State)
			printAllocations(os.Stdout, day.State)
			for team, note := range day.State.BedNotes {
				fmt.Printf("📝 %s: %s\n", team, note)
			}
			printWarnings(os.Stdout, day.State.AllWarnings())
			return nil
		},
	}
}
