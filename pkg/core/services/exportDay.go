package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/internal/config"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
	"github.com/jakechorley/rehab-roster/pkg/db"
	"github.com/jakechorley/rehab-roster/pkg/export"
	"github.com/jakechorley/rehab-roster/pkg/utils/logging"
)

// ExportDay writes a saved day to w as an Excel workbook
func ExportDay(
	ctx context.Context,
	schedules db.ScheduleStore,
	cfg *config.Config,
	logger *zap.Logger,
	date time.Time,
	w io.Writer,
) error {
	log := logging.ForDay(logger, date)
	log.Debug("Exporting day")

	day, err := LoadDay(ctx, schedules, logger, date)
	if err != nil {
		return err
	}
	if day == nil {
		return fmt.Errorf("no schedule saved for %s", date.Format(dateLayout))
	}

	controller := workflow.NewController(day.State, settingsFor(cfg), resolvers.Set{}, logger)
	if err := export.Write(w, day.State, controller.Capacities()); err != nil {
		return err
	}

	log.Info("Exported day")
	return nil
}
