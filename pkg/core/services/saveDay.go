package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
	"github.com/jakechorley/rehab-roster/pkg/db"
	"github.com/jakechorley/rehab-roster/pkg/utils/logging"
)

// SaveDay writes a day to storage, creating its schedule record on first save.
// Every stored piece is replaced, so the last save wins.
func SaveDay(ctx context.Context, schedules db.ScheduleStore, logger *zap.Logger, state *workflow.DayState) (string, error) {
	stored := state.Split()
	date := stored.Date.Format(dateLayout)
	log := logging.ForDay(logger, stored.Date)
	log.Debug("Saving day")

	doc, err := json.Marshal(stored.Progress)
	if err != nil {
		return "", fmt.Errorf("failed to encode schedule state: %w", err)
	}

	sched, err := schedules.GetSchedule(ctx, date)
	if err != nil {
		return "", fmt.Errorf("failed to fetch schedule: %w", err)
	}

	if sched == nil {
		sched = &db.Schedule{
			ID:    uuid.New().String(),
			Date:  date,
			State: doc,
		}
		log.Debug("Creating schedule", zap.String("schedule_id", sched.ID))
		if err := schedules.CreateSchedule(ctx, sched); err != nil {
			return "", fmt.Errorf("failed to create schedule: %w", err)
		}
	} else {
		log.Debug("Updating schedule", zap.String("schedule_id", sched.ID))
		if err := schedules.UpdateScheduleState(ctx, sched.ID, doc); err != nil {
			return "", fmt.Errorf("failed to update schedule: %w", err)
		}
	}

	rows, err := db.AllocationRowsFrom(sched.ID, stored.Allocations)
	if err != nil {
		return "", err
	}
	if err := schedules.ReplaceAllocations(ctx, sched.ID, rows); err != nil {
		return "", fmt.Errorf("failed to save allocations: %w", err)
	}

	snapshot, err := json.Marshal(stored.Baseline)
	if err != nil {
		return "", fmt.Errorf("failed to encode baseline: %w", err)
	}
	if err := schedules.SaveBaseline(ctx, &db.BaselineRow{
		ScheduleID: sched.ID,
		CapturedAt: stored.Baseline.CapturedAt,
		Snapshot:   snapshot,
	}); err != nil {
		return "", fmt.Errorf("failed to save baseline: %w", err)
	}

	if err := schedules.SaveBedCounts(ctx, sched.ID, db.SortedBedCounts(sched.ID, stored.BedCountOverrides)); err != nil {
		return "", fmt.Errorf("failed to save bed counts: %w", err)
	}
	if err := schedules.SaveBedNotes(ctx, sched.ID, db.SortedBedNotes(sched.ID, stored.BedNotes)); err != nil {
		return "", fmt.Errorf("failed to save bed notes: %w", err)
	}

	log.Info("Saved day",
		zap.String("schedule_id", sched.ID),
		zap.Int("allocations", len(rows)))

	return sched.ID, nil
}
