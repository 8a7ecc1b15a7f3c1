package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/rehab-roster/pkg/core/services"
)

// PublishCmd creates the publish command
func PublishCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <date>",
		Short: "Publish a saved day to the publish spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSheets("publish"); err != nil {
				return err
			}
			date, err := services.ParseDate(args[0])
			if err != nil {
				return err
			}

			if err := services.PublishDay(app.Ctx, app.Database, app.SheetsClient, app.Cfg.PublishSheetID, app.Logger, date); err != nil {
				return err
			}

			fmt.Printf("\n✓ Published %s\n", args[0])
			fmt.Printf("Spreadsheet: https://docs.google.com/spreadsheets/d/%s\n\n", app.Cfg.PublishSheetID)
			return nil
		},
	}
}
