package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jakechorley/rehab-roster/internal/config"
	"github.com/jakechorley/rehab-roster/pkg/core/baseline"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
	"github.com/jakechorley/rehab-roster/pkg/core/services"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
	"github.com/jakechorley/rehab-roster/pkg/db"
)

// session is one open day. Its resolvers answer from the script of the run
// in progress.
type session struct {
	controller *workflow.Controller

	mu         sync.Mutex
	scheduleID string
	drift      baseline.Drift
	rosterErr  string
	script     *resolvers.Scripted
}

func (s *session) currentScript() *resolvers.Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script == nil {
		s.script = &resolvers.Scripted{}
	}
	return s.script
}

// useScript installs the answers for the next run
func (s *session) useScript(script *resolvers.Scripted) {
	s.mu.Lock()
	s.script = script
	s.mu.Unlock()
}

func (s *session) resolvers() resolvers.Set {
	return resolvers.Set{
		SpecialProgram: func(ctx context.Context, req resolvers.ProgramRequest) (resolvers.ProgramResolution, error) {
			return s.currentScript().Set().SpecialProgram(ctx, req)
		},
		Substitution: func(ctx context.Context, needs []resolvers.SubstitutionNeed) (resolvers.SubstitutionResolution, error) {
			return s.currentScript().Set().Substitution(ctx, needs)
		},
		SPTFinalEdit: func(ctx context.Context, spts []model.Staff, current []model.TherapistAllocation) (resolvers.SPTResolution, error) {
			return s.currentScript().Set().SPTFinalEdit(ctx, spts, current)
		},
		TieBreak: func(ctx context.Context, tied []model.Team, pendingFTE float64) (resolvers.TieBreakResolution, error) {
			return s.currentScript().Set().TieBreak(ctx, tied, pendingFTE)
		},
	}
}

// Registry holds one controller per open date. Dates share nothing, so
// work on one never blocks another, including while a day is loading.
type Registry struct {
	schedules db.ScheduleStore
	roster    db.RosterStore
	cfg       *config.Config
	logger    *zap.Logger

	loads singleflight.Group

	mu   sync.Mutex
	days map[string]*session
}

// NewRegistry creates an empty registry
func NewRegistry(schedules db.ScheduleStore, roster db.RosterStore, cfg *config.Config, logger *zap.Logger) *Registry {
	return &Registry{
		schedules: schedules,
		roster:    roster,
		cfg:       cfg,
		logger:    logger,
		days:      make(map[string]*session),
	}
}

func (r *Registry) settings() workflow.Settings {
	if r.cfg == nil {
		return workflow.DefaultSettings()
	}
	return r.cfg.Settings()
}

func (r *Registry) lookup(key string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.days[key]
	return s, ok
}

// Open returns the session for a date, loading the day on first use.
// Concurrent opens of the same date share one load.
func (r *Registry) Open(ctx context.Context, date time.Time) (*session, error) {
	key := date.Format("2006-01-02")

	if s, ok := r.lookup(key); ok {
		return s, nil
	}

	v, err, _ := r.loads.Do(key, func() (any, error) {
		// A load that finished between lookup and Do has already stored it
		if s, ok := r.lookup(key); ok {
			return s, nil
		}

		// Every waiter shares this load, so one caller going away must not
		// fail the rest
		s, err := r.load(context.WithoutCancel(ctx), date)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.days[key] = s
		open := len(r.days)
		r.mu.Unlock()

		r.logger.Debug("Opened day in registry", zap.String("date", key), zap.Int("open_days", open))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

// load reads a day from the stores and builds its session. It runs without
// the registry lock.
func (r *Registry) load(ctx context.Context, date time.Time) (*session, error) {
	day, err := services.OpenDay(ctx, r.schedules, r.roster, r.cfg, r.logger, date)
	if err != nil {
		return nil, err
	}

	s := &session{scheduleID: day.ScheduleID, drift: day.Drift}
	if day.RosterErr != nil {
		s.rosterErr = day.RosterErr.Error()
	}
	s.controller = workflow.NewController(day.State, r.settings(), s.resolvers(), r.logger)

	if day.ScheduleID != "" {
		if repaired, err := s.controller.Repair(); err != nil {
			return nil, err
		} else if repaired {
			r.logger.Info("Repaired stale values on open", zap.String("date", date.Format("2006-01-02")))
		}
	}
	return s, nil
}

// Close drops a date's session, discarding unsaved edits
func (r *Registry) Close(date time.Time) bool {
	key := date.Format("2006-01-02")

	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.days[key]
	delete(r.days, key)
	return ok
}

// OpenDates lists the dates currently held
func (r *Registry) OpenDates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.days))
	for key := range r.days {
		out = append(out, key)
	}
	return out
}
