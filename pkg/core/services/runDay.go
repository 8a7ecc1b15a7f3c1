package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/internal/config"
	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
	"github.com/jakechorley/rehab-roster/pkg/db"
	"github.com/jakechorley/rehab-roster/pkg/utils/logging"
)

// RunDayOptions control how far a day is run
type RunDayOptions struct {
	Date time.Time
	// Until is the last step to run. Review is reached by completing bed relieving.
	Until model.StepID
	// Rerun runs steps that already completed, discarding their results
	Rerun bool
}

// RunDayResult represents the saved day after running
type RunDayResult struct {
	ScheduleID string
	State      *workflow.DayState
	Day        *DayResult
	Ran        []model.StepID
	Repaired   bool
	Capacities capacity.Result
}

// RunDay opens a day, repairs stale values of a saved day, runs every step that is
// still pending up to Until and saves the result. A cancelled escalation
// stops the run; the steps completed before it are still saved.
func RunDay(
	ctx context.Context,
	schedules db.ScheduleStore,
	roster db.RosterStore,
	cfg *config.Config,
	logger *zap.Logger,
	res resolvers.Set,
	opts RunDayOptions,
) (*RunDayResult, error) {
	until := opts.Until
	if until == "" || until == model.StepReview {
		until = model.StepBedRelieving
	}
	if !until.IsValid() {
		return nil, fmt.Errorf("unknown step %q", opts.Until)
	}

	log := logging.ForDay(logger, opts.Date)

	day, err := OpenDay(ctx, schedules, roster, cfg, logger, opts.Date)
	if err != nil {
		return nil, err
	}

	controller := workflow.NewController(day.State, settingsFor(cfg), res, logger)
	result := &RunDayResult{Day: day}
	if day.ScheduleID != "" {
		if result.Repaired, err = controller.Repair(); err != nil {
			return nil, fmt.Errorf("failed to repair day: %w", err)
		}
	}

	var runErr error
	for _, step := range model.Steps[:until.Index()+1] {
		state := controller.State()
		if state.Status[step] != workflow.StatusPending && !opts.Rerun {
			logging.ForStep(log, string(step)).Debug("Step already done")
			continue
		}

		logging.ForStep(log, string(step)).Debug("Running step")
		if runErr = controller.RunStep(ctx, step, true); runErr != nil {
			break
		}
		result.Ran = append(result.Ran, step)
	}

	if runErr != nil && !errors.Is(runErr, workflow.ErrCancelled) {
		return nil, runErr
	}

	state := controller.State()
	if runErr == nil && until == model.StepBedRelieving && state.Status[model.StepBedRelieving] != workflow.StatusPending {
		if err := controller.GoTo(model.StepReview); err != nil {
			return nil, err
		}
		state = controller.State()
	}

	id, err := SaveDay(ctx, schedules, logger, state)
	if err != nil {
		return nil, err
	}

	result.ScheduleID = id
	result.State = state
	result.Capacities = controller.Capacities()

	if runErr != nil {
		log.Info("Run cancelled, completed steps saved", zap.Int("steps_run", len(result.Ran)))
		return result, runErr
	}

	log.Info("Day run",
		zap.Int("steps_run", len(result.Ran)),
		zap.Int("warnings", len(state.AllWarnings())))

	return result, nil
}
