package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
	"github.com/jakechorley/rehab-roster/pkg/core/services"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
)

// RunDayCmd creates the runDay command
func RunDayCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runDay <date>",
		Short: "Run the allocation steps for a day and save it",
		Long: `Open the day (YYYY-MM-DD), run every step still pending up to --until and save the result.
Escalations take their automatic best match unless --prompt is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := services.ParseDate(args[0])
			if err != nil {
				return err
			}
			until, _ := cmd.Flags().GetString("until")
			rerun, _ := cmd.Flags().GetBool("rerun")
			prompt, _ := cmd.Flags().GetBool("prompt")

			app.Logger.Debug("runDay command",
				zap.String("date", args[0]),
				zap.String("until", until),
				zap.Bool("rerun", rerun),
				zap.Bool("prompt", prompt))

			res := resolvers.Set{}
			if prompt {
				res = NewPrompter(app.Input, os.Stdout).Set()
			}

			result, err := services.RunDay(app.Ctx, app.Database, app.Roster, app.Cfg, app.Logger, res, services.RunDayOptions{
				Date:  date,
				Until: model.StepID(until),
				Rerun: rerun,
			})
			cancelled := errors.Is(err, workflow.ErrCancelled)
			if err != nil && !cancelled {
				return fmt.Errorf("run failed: %w", err)
			}

			fmt.Printf("\n🏥 Day %s\n\n", args[0])
			fmt.Printf("Schedule ID: %s\n", result.ScheduleID)
			if cancelled {
				fmt.Printf("Status:      ⚠️  CANCELLED (completed steps saved)\n")
			} else {
				fmt.Printf("Status:      ✅ SAVED\n")
			}
			if result.Repaired {
				fmt.Printf("Repaired:    stale values recomputed\n")
			}
			fmt.Println()

			if len(result.Ran) == 0 {
				fmt.Printf("No steps were pending\n\n")
			} else {
				fmt.Printf("Steps run:\n")
				for i, step := range result.Ran {
					fmt.Printf("  %d. %s\n", i+1, step)
				}
				fmt.Println()
			}

			printDrift(os.Stdout, result.Day.Drift)
			printCapacities(os.Stdout, result.Capacities)
			printWarnings(os.Stdout, result.State.AllWarnings())
			return nil
		},
	}

	cmd.Flags().String("until", string(model.StepReview), "Last step to run (leave-fte, therapist-pca, floating-pca, bed-relieving, review)")
	cmd.Flags().Bool("rerun", false, "Re-run steps that already completed")
	cmd.Flags().Bool("prompt", false, "Ask at each escalation instead of taking the best match")

	return cmd
}
