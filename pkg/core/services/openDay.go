package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/internal/config"
	"github.com/jakechorley/rehab-roster/pkg/core/baseline"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
	"github.com/jakechorley/rehab-roster/pkg/db"
	"github.com/jakechorley/rehab-roster/pkg/utils/logging"
)

const dateLayout = "2006-01-02"

// DayResult is a day read from storage or started fresh
type DayResult struct {
	State *workflow.DayState
	// ScheduleID is empty when the day has never been saved
	ScheduleID string
	// Drift compares the day's baseline with the live roster. It is empty
	// when the roster could not be read.
	Drift baseline.Drift
	// RosterErr is set when the live roster could not be read for a saved day
	RosterErr error
}

// ParseDate parses a schedule date in the YYYY-MM-DD form used throughout storage
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}

// LiveConfig reads the roster and applies any program schedule overrides from config
func LiveConfig(ctx context.Context, roster db.RosterStore, cfg *config.Config, logger *zap.Logger) (baseline.Config, error) {
	logger.Debug("Reading live roster")
	rows, err := db.ReadRoster(ctx, roster)
	if err != nil {
		return baseline.Config{}, fmt.Errorf("failed to read roster: %w", err)
	}

	live, err := rows.Config()
	if err != nil {
		return baseline.Config{}, fmt.Errorf("failed to convert roster: %w", err)
	}

	if cfg != nil {
		overrides := cfg.ScheduleOverrides()
		for i, p := range live.Programs {
			if rule, ok := overrides[p.ID]; ok {
				logger.Debug("Overriding program schedule", zap.String("program_id", p.ID), zap.String("rrule", rule))
				live.Programs[i].Schedule = rule
			}
		}
	}

	logger.Debug("Live roster read",
		zap.Int("staff", len(live.Staff)),
		zap.Int("wards", len(live.Wards)),
		zap.Int("programs", len(live.Programs)))

	return live, nil
}

// loadStored reads every stored piece of a day. It returns nil when the date
// has not been generated.
func loadStored(ctx context.Context, schedules db.ScheduleStore, date time.Time, logger *zap.Logger) (*db.Schedule, *workflow.Stored, error) {
	key := date.Format(dateLayout)
	logger.Debug("Fetching schedule")

	sched, err := schedules.GetSchedule(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch schedule: %w", err)
	}
	if sched == nil {
		return nil, nil, nil
	}

	st := &workflow.Stored{Date: date}
	if len(sched.State) > 0 {
		if err := json.Unmarshal(sched.State, &st.Progress); err != nil {
			return nil, nil, fmt.Errorf("failed to decode schedule state: %w", err)
		}
	}

	rows, err := schedules.GetAllocations(ctx, sched.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch allocations: %w", err)
	}
	if st.Allocations, err = db.AllocationsFrom(rows); err != nil {
		return nil, nil, err
	}

	base, err := schedules.GetBaseline(ctx, sched.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch baseline: %w", err)
	}
	if base != nil {
		if err := json.Unmarshal(base.Snapshot, &st.Baseline); err != nil {
			return nil, nil, fmt.Errorf("failed to decode baseline: %w", err)
		}
	}

	counts, err := schedules.GetBedCounts(ctx, sched.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch bed counts: %w", err)
	}
	st.BedCountOverrides = make(map[model.Team]model.BedCountOverride, len(counts))
	for _, c := range counts {
		team, err := model.ParseTeam(c.Team)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid bed count row: %w", err)
		}
		st.BedCountOverrides[team] = model.BedCountOverride{SHS: c.SHS, StudentPlacement: c.StudentPlacement}
	}

	notes, err := schedules.GetBedNotes(ctx, sched.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch bed notes: %w", err)
	}
	st.BedNotes = make(map[model.Team]string, len(notes))
	for _, n := range notes {
		team, err := model.ParseTeam(n.Team)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid bed note row: %w", err)
		}
		st.BedNotes[team] = n.Note
	}

	logger.Debug("Schedule loaded",
		zap.String("schedule_id", sched.ID),
		zap.Int("allocations", len(rows)),
		zap.Bool("has_baseline", base != nil))

	return sched, st, nil
}

// LoadDay reads a saved day. It returns nil when the date has not been generated.
func LoadDay(ctx context.Context, schedules db.ScheduleStore, logger *zap.Logger, date time.Time) (*DayResult, error) {
	sched, st, err := loadStored(ctx, schedules, date, logging.ForDay(logger, date))
	if err != nil || sched == nil {
		return nil, err
	}
	return &DayResult{State: workflow.Assemble(*st), ScheduleID: sched.ID}, nil
}

// OpenDay loads a saved day or starts a new one from the live roster.
// A saved day keeps its baseline; the live roster is only read to report
// drift, and failing to read it is not an error. A saved day with no
// baseline is given one from the live roster.
func OpenDay(
	ctx context.Context,
	schedules db.ScheduleStore,
	roster db.RosterStore,
	cfg *config.Config,
	logger *zap.Logger,
	date time.Time,
) (*DayResult, error) {
	log := logging.ForDay(logger, date)
	log.Debug("Opening day")

	sched, st, err := loadStored(ctx, schedules, date, log)
	if err != nil {
		return nil, err
	}

	if sched == nil {
		live, err := LiveConfig(ctx, roster, cfg, log)
		if err != nil {
			return nil, err
		}
		log.Info("Starting new day")
		return &DayResult{State: workflow.NewDay(date, live, time.Now().UTC())}, nil
	}

	result := &DayResult{ScheduleID: sched.ID}
	live, rosterErr := LiveConfig(ctx, roster, cfg, log)
	if rosterErr != nil {
		result.RosterErr = rosterErr
		log.Warn("Could not read live roster, drift not checked", zap.Error(rosterErr))
	}

	if st.Baseline.IsZero() {
		if rosterErr != nil {
			return nil, fmt.Errorf("schedule has no baseline and the roster is unavailable: %w", rosterErr)
		}
		log.Info("Schedule has no baseline, capturing one from the live roster", zap.String("schedule_id", sched.ID))
		st.Baseline = baseline.Capture(live, time.Now().UTC())
	} else if rosterErr == nil {
		result.Drift = baseline.Diff(st.Baseline, live)
		if result.Drift.HasDrift() {
			log.Info("Live roster has drifted from the day's baseline",
				zap.Strings("added", result.Drift.AddedStaff),
				zap.Strings("removed", result.Drift.RemovedStaff),
				zap.Strings("changed", result.Drift.ChangedStaff))
		}
	}

	result.State = workflow.Assemble(*st)
	log.Info("Opened saved day", zap.String("current_step", string(result.State.CurrentStep)))

	return result, nil
}
