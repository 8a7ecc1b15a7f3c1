package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/services"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
)

// CopyScheduleCmd creates the copySchedule command
func CopyScheduleCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copySchedule <from> <to>",
		Short: "Copy a saved day onto another date",
		Long: `Copy a saved day onto another date, replacing anything saved there.
A full copy keeps every step; a hybrid copy keeps leave and fixed team placement only.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := services.ParseDate(args[0])
			if err != nil {
				return err
			}
			to, err := services.ParseDate(args[1])
			if err != nil {
				return err
			}
			mode, _ := cmd.Flags().GetString("mode")
			includeBuffer, _ := cmd.Flags().GetBool("include-buffer")

			copyMode := workflow.CopyMode(mode)
			if copyMode != workflow.CopyFull && copyMode != workflow.CopyHybrid {
				return fmt.Errorf("mode must be %q or %q", workflow.CopyFull, workflow.CopyHybrid)
			}

			app.Logger.Debug("copySchedule command",
				zap.String("from", args[0]),
				zap.String("to", args[1]),
				zap.String("mode", mode))

			result, err := services.CopySchedule(app.Ctx, app.Database, app.Roster, app.Cfg, app.Logger, services.CopyRequest{
				From:               from,
				To:                 to,
				Mode:               copyMode,
				IncludeBufferStaff: includeBuffer,
			})
			if err != nil {
				return fmt.Errorf("copy failed: %w", err)
			}

			fmt.Printf("\n✓ Copied %s to %s\n\n", args[0], args[1])
			fmt.Printf("Schedule ID:  %s\n", result.ScheduleID)
			fmt.Printf("Mode:         %s\n", result.Report.Mode)
			reached := string(result.Report.ReachedStep)
			if reached == "" {
				reached = "nothing carried over"
			}
			fmt.Printf("Reached Step: %s\n\n", reached)

			if len(result.Report.DroppedBuffer) > 0 {
				fmt.Printf("Buffer staff dropped: %v\n\n", result.Report.DroppedBuffer)
			}
			if result.Report.RebaseWarning != "" {
				fmt.Printf("⚠️  %s\n", result.Report.RebaseWarning)
			}
			printDrift(os.Stdout, result.Report.Drift)
			return nil
		},
	}

	cmd.Flags().String("mode", string(workflow.CopyFull), "Copy mode: full or hybrid")
	cmd.Flags().Bool("include-buffer", false, "Keep buffer staff on the copied day")

	return cmd
}
