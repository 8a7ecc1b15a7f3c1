package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/internal/config"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
	"github.com/jakechorley/rehab-roster/pkg/db"
	"github.com/jakechorley/rehab-roster/pkg/utils/logging"
)

// CopyRequest names the source and target dates of a copy
type CopyRequest struct {
	From               time.Time
	To                 time.Time
	Mode               workflow.CopyMode
	IncludeBufferStaff bool
}

// CopyResult represents the saved target day and how far the copy reached
type CopyResult struct {
	ScheduleID string
	State      *workflow.DayState
	Report     workflow.CopyReport
}

// CopySchedule copies a saved day onto another date and saves it, replacing
// anything already saved there. When the live roster cannot be read the copy
// keeps the source day's baseline.
func CopySchedule(
	ctx context.Context,
	schedules db.ScheduleStore,
	roster db.RosterStore,
	cfg *config.Config,
	logger *zap.Logger,
	req CopyRequest,
) (*CopyResult, error) {
	from := req.From.Format(dateLayout)
	to := req.To.Format(dateLayout)
	if from == to {
		return nil, fmt.Errorf("cannot copy %s onto itself", from)
	}

	log := logging.ForDay(logger, req.To).With(zap.String("from", from))
	log.Debug("Copying schedule",
		zap.String("mode", string(req.Mode)),
		zap.Bool("include_buffer_staff", req.IncludeBufferStaff))

	source, err := LoadDay(ctx, schedules, logger, req.From)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("no schedule saved for %s", from)
	}

	live, err := LiveConfig(ctx, roster, cfg, log)
	if err != nil {
		log.Warn("Could not read live roster, copying from the source snapshot", zap.Error(err))
		live = source.State.Baseline.Config()
	}

	state, report, err := workflow.CopyState(source.State, workflow.CopyOptions{
		ToDate:             req.To,
		Mode:               req.Mode,
		IncludeBufferStaff: req.IncludeBufferStaff,
		Live:               live,
		CapturedAt:         time.Now().UTC(),
		Settings:           settingsFor(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to copy schedule: %w", err)
	}

	if report.RebaseWarning != "" {
		log.Warn("Copy kept the source baseline", zap.String("warning", report.RebaseWarning))
	}

	id, err := SaveDay(ctx, schedules, logger, state)
	if err != nil {
		return nil, err
	}

	log.Info("Copied schedule",
		zap.String("reached_step", string(report.ReachedStep)),
		zap.Strings("dropped_buffer", report.DroppedBuffer))

	return &CopyResult{ScheduleID: id, State: state, Report: report}, nil
}
