package allocator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
)

var errBack = errors.New("back")

// Engine runs the floating PCA allocation and exposes its lifecycle:
// idle -> configuring -> running -> completed | cancelled. A run suspended
// at a tie-break stays in the running phase until the resolver answers.
type Engine struct {
	mu      sync.Mutex
	phase   Phase
	cfg     Config
	waiting *TieBreakRequest
	logger  *zap.Logger
}

// NewEngine creates an idle engine
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{phase: PhaseIdle, logger: logger}
}

// Phase returns the current lifecycle phase
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Waiting returns the tie-break the run is suspended on, or nil
func (e *Engine) Waiting() *TieBreakRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.waiting == nil {
		return nil
	}
	w := *e.waiting
	w.Tied = slices.Clone(w.Tied)
	return &w
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = p
	e.waiting = nil
}

func (e *Engine) setWaiting(req *TieBreakRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waiting = req
}

// Configure validates and stores the run configuration
func (e *Engine) Configure(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseRunning {
		return fmt.Errorf("engine is already running")
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	e.cfg = cfg
	e.phase = PhaseConfiguring
	return nil
}

func validateConfig(cfg Config) error {
	for _, team := range cfg.Teams {
		if !team.IsValid() {
			return fmt.Errorf("invalid team %q", team)
		}
	}
	for _, team := range cfg.TeamOrder {
		if !team.IsValid() {
			return fmt.Errorf("invalid team %q in team order", team)
		}
	}
	for team, pending := range cfg.Pending {
		if pending < 0 {
			return fmt.Errorf("pending FTE for %s is negative", team)
		}
	}
	if cfg.BufferPreassignRatio < 0 || cfg.BufferPreassignRatio > 1 {
		return fmt.Errorf("buffer pre-assign ratio %.2f out of range", cfg.BufferPreassignRatio)
	}
	return nil
}

// Run executes the configured allocation. It blocks on the tie-break
// resolver when competing teams have equal claim on a scarce pool. When the
// resolver cancels, or the context is done, Run returns an error and no
// outcome, so nothing partial can be committed.
func (e *Engine) Run(ctx context.Context, tieBreak resolvers.TieBreakResolver) (*Outcome, error) {
	e.mu.Lock()
	if e.phase != PhaseConfiguring {
		phase := e.phase
		e.mu.Unlock()
		return nil, fmt.Errorf("engine must be configured before running (phase %s)", phase)
	}
	e.phase = PhaseRunning
	cfg := e.cfg
	e.mu.Unlock()

	var replay []decision
	for _, team := range cfg.Decisions {
		replay = append(replay, decision{team: team, user: true})
	}

	for {
		r := newRun(cfg, tieBreak, replay, e.logger, e.setWaiting)
		outcome, err := r.execute(ctx)
		if errors.Is(err, errBack) {
			if len(r.decisions) == 0 {
				e.setPhase(PhaseCancelled)
				return nil, resolvers.ErrCancelled
			}
			replay = slices.Clone(r.decisions[:len(r.decisions)-1])
			e.logger.Debug("Re-opening previous tie-break", zap.Int("decision", len(replay)+1))
			continue
		}
		if err != nil {
			e.setPhase(PhaseCancelled)
			return nil, err
		}
		e.setPhase(PhaseCompleted)
		return outcome, nil
	}
}

// Allocate configures and runs a fresh engine
func Allocate(ctx context.Context, cfg Config, tieBreak resolvers.TieBreakResolver, logger *zap.Logger) (*Outcome, error) {
	e := NewEngine(logger)
	if err := e.Configure(cfg); err != nil {
		return nil, err
	}
	return e.Run(ctx, tieBreak)
}

type decision struct {
	team model.Team
	user bool
}

// run is one pass through the allocation from a fresh state
type run struct {
	cfg       Config
	state     *State
	criteria  []Criterion
	tieBreak  resolvers.TieBreakResolver
	logger    *zap.Logger
	onWait    func(*TieBreakRequest)
	replay    []decision
	decisions []decision
	initial   map[model.Team]int64
	warnings  []model.Warning
}

func newRun(cfg Config, tieBreak resolvers.TieBreakResolver, replay []decision, logger *zap.Logger, onWait func(*TieBreakRequest)) *run {
	return &run{
		cfg:      cfg,
		criteria: cfg.Criteria,
		tieBreak: tieBreak,
		logger:   logger,
		onWait:   onWait,
		replay:   replay,
	}
}

func (r *run) warn(w model.Warning) {
	r.logger.Debug("Step 3 warning", zap.String("warning", w.String()))
	r.warnings = append(r.warnings, w)
}

func (r *run) execute(ctx context.Context) (*Outcome, error) {
	r.initState()
	r.logger.Debug("Initialised floating PCA pool",
		zap.Int("pcas", len(r.state.PCAs)),
		zap.Int64("freeUnits", r.state.FreeUnits()),
		zap.Any("teamOrder", r.state.Teams))

	r.seedManual()
	r.seedSubstitutions()
	r.reservePrograms()
	r.preassignBuffer()
	r.reservePreferred()
	r.extendAdjacent()
	r.logger.Debug("Priority passes complete", zap.Int64("freeUnits", r.state.FreeUnits()))

	if err := r.fill(ctx); err != nil {
		return nil, err
	}
	if r.cfg.ExtraCoverage {
		r.extraCoverage()
	}

	return r.buildOutcome(), nil
}

// initState builds the pool and pending quarters and fixes the team order
func (r *run) initState() {
	teams := r.cfg.Teams
	if len(teams) == 0 {
		teams = model.AllTeams
	}

	pending := make(map[model.Team]int64, len(teams))
	for _, team := range teams {
		pending[team] = capacity.ToQuarters(r.cfg.Pending[team])
	}
	r.initial = make(map[model.Team]int64, len(pending))
	for team, q := range pending {
		r.initial[team] = q
	}

	prefs := make(map[model.Team]model.PCAPreference, len(r.cfg.Preferences))
	for _, p := range r.cfg.Preferences {
		prefs[p.Team] = p
	}

	r.state = &State{
		Teams:       processingOrder(teams, pending, r.cfg.TeamOrder),
		Pending:     pending,
		PCAs:        r.buildPool(),
		Preferences: prefs,
		Tracker:     &Tracker{},
	}
}

// processingOrder sorts teams by descending pending need, ties broken by the
// fixed team order. A user order takes precedence for the teams it names.
func processingOrder(teams []model.Team, pending map[model.Team]int64, userOrder []model.Team) []model.Team {
	def := slices.Clone(teams)
	slices.SortStableFunc(def, func(a, b model.Team) int {
		if pending[a] != pending[b] {
			if pending[a] > pending[b] {
				return -1
			}
			return 1
		}
		return a.Index() - b.Index()
	})
	if len(userOrder) == 0 {
		return def
	}

	var out []model.Team
	for _, team := range userOrder {
		if slices.Contains(teams, team) && !slices.Contains(out, team) {
			out = append(out, team)
		}
	}
	for _, team := range def {
		if !slices.Contains(out, team) {
			out = append(out, team)
		}
	}
	return out
}

// DefaultTeamOrder returns the processing order used without a user order
func DefaultTeamOrder(pending map[model.Team]float64) []model.Team {
	q := make(map[model.Team]int64, len(pending))
	for team, fte := range pending {
		q[team] = capacity.ToQuarters(fte)
	}
	return processingOrder(model.AllTeams, q, nil)
}

func (r *run) buildPool() []*PoolPCA {
	var pool []*PoolPCA
	for _, s := range r.cfg.Pool {
		if !s.IsActive() || !s.IsFloatingPCA() {
			continue
		}
		if err := s.Validate(); err != nil {
			r.warn(model.Warning{Code: model.WarnInvalidPoolEntry, StaffID: s.ID, Message: err.Error()})
			continue
		}
		rec := r.cfg.Overrides[s.ID]
		fte := capacity.RoundToQuarter(rec.EffectiveFTE(s.BaseCapacity()))
		if fte <= 0 {
			continue
		}
		available := rec.EffectiveSlots()
		if len(available) == 0 {
			r.warn(model.Warning{Code: model.WarnInvalidPoolEntry, StaffID: s.ID, Message: "on duty but no working slots"})
			continue
		}
		p := &PoolPCA{
			Staff:     s,
			Available: available,
			Capacity:  min(capacity.ToQuarters(fte), int64(len(available))),
			LeaveType: rec.LeaveType,
		}
		if len(rec.InvalidSlots) > 0 {
			p.InvalidSlot = model.NormalizeSlots(rec.InvalidSlots)[0]
		}
		pool = append(pool, p)
	}
	slices.SortStableFunc(pool, func(a, b *PoolPCA) int {
		if a.Staff.Name != b.Staff.Name {
			if a.Staff.Name < b.Staff.Name {
				return -1
			}
			return 1
		}
		if a.Staff.ID < b.Staff.ID {
			return -1
		}
		if a.Staff.ID > b.Staff.ID {
			return 1
		}
		return 0
	})
	return pool
}

// assign hands the slot to the team and logs the decision
func (r *run) assign(p *PoolPCA, team model.Team, slot model.Slot, pass Pass, countsTowardPending, userResolved bool) {
	p.Slots = p.Slots.With(slot, team)
	if countsTowardPending && r.state.Pending[team] > 0 {
		r.state.Pending[team]--
	}

	pref := r.state.Preference(team)
	r.state.Tracker.add(TrackerEntry{
		StaffID:       p.Staff.ID,
		Team:          team,
		Slot:          slot,
		Pass:          pass,
		PreferredPCA:  pref.PrefersPCA(p.Staff.ID),
		PreferredSlot: slices.Contains(pref.PreferredSlots, slot),
		FloorMatch:    p.Staff.HasFloor(pref.Floor),
		UserResolved:  userResolved,
	})
	r.logger.Debug("Assigned slot",
		zap.String("pca", p.Staff.ID),
		zap.String("team", string(team)),
		zap.Int("slot", int(slot)),
		zap.String("pass", string(pass)))
}

func (r *run) buildOutcome() *Outcome {
	out := &Outcome{
		Pending:   make(map[model.Team]float64, len(r.state.Pending)),
		Tracker:   r.state.Tracker.Entries(),
		TeamOrder: slices.Clone(r.state.Teams),
	}

	for _, team := range r.state.Teams {
		out.Pending[team] = r.state.PendingFTE(team)

		pref := r.state.Preference(team)
		if r.initial[team] > 0 {
			for _, slot := range pref.PreferredSlots {
				if !r.teamHoldsSlot(team, slot) {
					r.warn(model.Warning{Code: model.WarnPreferredSlotUnfilled, Team: team,
						Message: fmt.Sprintf("preferred slot %d could not be filled", slot)})
				}
			}
		}
		if r.state.Pending[team] > 0 {
			r.warn(model.Warning{Code: model.WarnUnmetPendingFTE, Team: team,
				Message: fmt.Sprintf("%.2f FTE still pending", r.state.PendingFTE(team))})
		}
	}

	for _, p := range r.state.PCAs {
		out.PCAs = append(out.PCAs, model.PCAAllocation{
			ID:                uuid.NewString(),
			StaffID:           p.Staff.ID,
			Team:              primaryTeam(p.Slots),
			FTEPCA:            capacity.QuarterFTE(p.Capacity),
			FTERemaining:      capacity.QuarterFTE(p.Remaining()),
			Slots:             p.Slots,
			InvalidSlot:       p.InvalidSlot,
			LeaveType:         p.LeaveType,
			SpecialProgramIDs: slices.Clone(p.ProgramIDs),
			ProgramSlots:      slices.Clone(p.ProgramSlots),
		})
	}

	for _, d := range r.decisions {
		out.Decisions = append(out.Decisions, d.team)
	}
	out.Warnings = r.warnings
	return out
}

func (r *run) teamHoldsSlot(team model.Team, slot model.Slot) bool {
	for _, p := range r.state.PCAs {
		if p.Slots.Get(slot) == team {
			return true
		}
	}
	return false
}

// primaryTeam is the team owning most of the slots, earliest slot first on a
// tie
func primaryTeam(slots model.SlotAssignments) model.Team {
	var best model.Team
	bestCount := 0
	for _, team := range slots.Teams() {
		if n := len(slots.SlotsFor(team)); n > bestCount {
			best = team
			bestCount = n
		}
	}
	return best
}
