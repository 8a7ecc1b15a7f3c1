// Package workflow drives one schedule day through the allocation steps and
// keeps the history of hand edits made along the way.
package workflow

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/allocator"
	"github.com/jakechorley/rehab-roster/pkg/core/allocator/criteria"
	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/fixedteam"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/overrides"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
	"github.com/jakechorley/rehab-roster/pkg/utils/logging"
)

// Controller owns the state of a single schedule day. Create one per date;
// controllers for different dates share nothing.
type Controller struct {
	mu        sync.Mutex
	state     *DayState
	settings  Settings
	resolvers resolvers.Set
	logger    *zap.Logger

	history history

	// gate serialises engine invocations. A new invocation cancels and
	// awaits the one in flight before starting.
	gate     sync.Mutex
	inflight *invocation
	engine   *allocator.Engine

	repaired bool
}

type invocation struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController takes ownership of the day state
func NewController(state *DayState, settings Settings, res resolvers.Set, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	state = state.Clone()
	return &Controller{
		state:     state,
		settings:  settings,
		resolvers: res,
		logger:    logging.ForDay(logger, state.Date),
	}
}

// State returns a copy of the current day state
func (c *Controller) State() *DayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Settings returns the controller's settings
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Capacities returns the per-team capacity summary of the current state
func (c *Controller) Capacities() capacity.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return teamCapacities(c.state, c.settings)
}

// Waiting returns the tie-break a Step 3 run is suspended on, or nil
func (c *Controller) Waiting() *allocator.TieBreakRequest {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()
	if engine == nil {
		return nil
	}
	return engine.Waiting()
}

// guard turns a panic inside a controller action into ErrUnexpected. No
// state is committed because actions only swap in a finished working copy.
func (c *Controller) guard(action string, err *error) {
	if r := recover(); r != nil {
		c.logger.Error("Controller action panicked", zap.String("action", action), zap.Any("panic", r))
		*err = fmt.Errorf("%w: %s: %v", ErrUnexpected, action, r)
	}
}

// begin cancels any invocation in flight, waits for it to finish and
// registers a new one
func (c *Controller) begin(ctx context.Context) (context.Context, *invocation) {
	c.gate.Lock()
	defer c.gate.Unlock()

	c.mu.Lock()
	prev := c.inflight
	c.mu.Unlock()
	if prev != nil {
		c.logger.Debug("Cancelling in-flight invocation")
		prev.cancel()
		<-prev.done
	}

	runCtx, cancel := context.WithCancel(ctx)
	inv := &invocation{cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.inflight = inv
	c.mu.Unlock()
	return runCtx, inv
}

func (c *Controller) finish(inv *invocation) {
	inv.cancel()
	c.mu.Lock()
	if c.inflight == inv {
		c.inflight = nil
	}
	c.engine = nil
	c.mu.Unlock()
	close(inv.done)
}

// GoTo moves the current step. Moving forward is only allowed past steps
// that are no longer pending; moving back is always allowed.
func (c *Controller) GoTo(step model.StepID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !step.IsValid() {
		return fmt.Errorf("%w: unknown step %q", ErrStepNotReady, step)
	}
	from := c.state.CurrentStep.Index()
	for i := from; i < step.Index(); i++ {
		if c.state.Status[model.Steps[i]] == StatusPending {
			return fmt.Errorf("%w: %s is still pending", ErrStepNotReady, model.Steps[i])
		}
	}
	c.state.CurrentStep = step
	logging.ForStep(c.logger, string(step)).Debug("Moved to step")
	return nil
}

// checkRunnable verifies earlier steps are done and, unless confirmed, that
// no later step holds results the run would discard
func (c *Controller) checkRunnable(step model.StepID, confirm bool) error {
	idx := step.Index()
	if idx < 0 || step == model.StepReview {
		return fmt.Errorf("%w: %q cannot be run", ErrStepNotReady, step)
	}
	for _, earlier := range model.Steps[:idx] {
		if c.state.Status[earlier] == StatusPending {
			return fmt.Errorf("%w: %s is still pending", ErrStepNotReady, earlier)
		}
	}
	if !confirm && c.laterStepsHoldResults(step) {
		return ErrConfirmationRequired
	}
	return nil
}

func (c *Controller) laterStepsHoldResults(step model.StepID) bool {
	for _, later := range model.Steps[step.Index()+1:] {
		if c.state.Status[later] != StatusPending {
			return true
		}
	}
	return false
}

// RunStep runs the step's engine against a working copy of the day and
// commits the result in one swap. Later steps are reset. Cancelling an
// escalation returns ErrCancelled with the state untouched.
func (c *Controller) RunStep(ctx context.Context, step model.StepID, confirm bool) (err error) {
	defer c.guard("run "+string(step), &err)

	runCtx, inv := c.begin(ctx)
	defer c.finish(inv)

	c.mu.Lock()
	if err := c.checkRunnable(step, confirm); err != nil {
		c.mu.Unlock()
		return err
	}
	w := c.state.Clone()
	settings := c.settings
	c.mu.Unlock()

	if next := step.Index() + 1; next < len(model.Steps) {
		resetFrom(w, model.Steps[next], settings)
	}
	clearOutput(w, step)
	refreshCapacity(w, settings)

	log := logging.ForStep(c.logger, string(step))
	log.Debug("Running step")
	switch step {
	case model.StepLeaveFTE:
		err = completeLeave(w)
	case model.StepTherapistPCA:
		err = c.runFixedTeam(runCtx, w, settings, log)
	case model.StepFloatingPCA:
		err = c.runFloating(runCtx, w, settings, log)
	case model.StepBedRelieving:
		res := teamCapacities(w, settings)
		w.Allocations.Beds = computeBeds(w, res).Transfers
	}
	if err != nil {
		if isCancellation(err) {
			log.Debug("Step cancelled, nothing committed")
			return ErrCancelled
		}
		log.Error("Step failed", zap.Error(err))
		return fmt.Errorf("failed to run %s: %w", step, err)
	}

	w.Status[step] = StatusCompleted
	w.Initialized[step] = true
	w.CurrentStep = step

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != inv {
		return ErrCancelled
	}
	c.state = w
	c.history.reset()

	for _, warning := range w.Warnings[step] {
		log.Warn("Allocation warning", zap.String("warning", warning.String()))
	}
	log.Info("Step completed", zap.Int("warnings", len(w.Warnings[step])))
	return nil
}

// completeLeave checks every leave record fits the staff member's capacity
func completeLeave(w *DayState) error {
	for id, rec := range w.Overrides {
		st, ok := w.staffByID(id)
		if !ok {
			continue
		}
		if err := overrides.CheckCapacity(rec, st.BaseCapacity()); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidEdit, st.Name, err)
		}
	}
	return nil
}

func (c *Controller) runFixedTeam(ctx context.Context, w *DayState, settings Settings, logger *zap.Logger) error {
	res, err := fixedteam.Allocate(ctx, fixedteam.Input{
		Date:           w.Date,
		Staff:          w.Staff,
		Overrides:      w.Overrides,
		Programs:       w.Programs,
		SPTAllocations: w.SPTAllocations,
		Preferences:    w.Preferences,
	}, c.resolvers, logger)
	if err != nil {
		return err
	}

	w.Overrides = res.Overrides
	w.Allocations.Therapists = res.Therapists
	w.Allocations.PCAs = res.PCAs
	w.ActivePrograms = res.ActivePrograms
	w.Warnings[model.StepTherapistPCA] = res.Warnings
	refreshCapacity(w, settings)
	return nil
}

func (c *Controller) runFloating(ctx context.Context, w *DayState, settings Settings, logger *zap.Logger) error {
	crit := criteria.Default()
	if len(settings.Criteria) > 0 {
		named, unknown := criteria.ByName(settings.Criteria)
		if len(unknown) > 0 {
			return fmt.Errorf("unknown criteria: %v", unknown)
		}
		crit = named
	}

	engine := allocator.NewEngine(logger)
	err := engine.Configure(allocator.Config{
		TeamOrder:            settings.TeamOrder,
		Pending:              w.Pending,
		Pool:                 w.Staff,
		Overrides:            w.Overrides,
		Preferences:          w.Preferences,
		Programs:             w.ActivePrograms,
		BufferPreassignRatio: settings.BufferPreassignRatio,
		ExtraCoverage:        settings.ExtraCoverage,
		Criteria:             crit,
	})
	if err != nil {
		return fmt.Errorf("failed to configure floating PCA allocation: %w", err)
	}

	c.mu.Lock()
	c.engine = engine
	c.mu.Unlock()

	out, err := engine.Run(ctx, c.resolvers.TieBreak)
	if err != nil {
		return err
	}

	pcas := slices.DeleteFunc(w.Allocations.PCAs, func(p model.PCAAllocation) bool { return w.isFloating(p.StaffID) })
	w.Allocations.PCAs = append(pcas, out.PCAs...)
	w.Pending = out.Pending
	w.Tracker = out.Tracker
	w.TieBreakDecisions = out.Decisions
	w.TeamOrder = out.TeamOrder
	w.Warnings[model.StepFloatingPCA] = out.Warnings
	return nil
}

// resetFrom clears the output of the step and every later step, together
// with the override fields those steps own
func resetFrom(w *DayState, from model.StepID, settings Settings) {
	idx := from.Index()
	if idx < 0 {
		return
	}
	w.Overrides = w.Overrides.ClearOwnedFrom(from)
	for _, step := range model.Steps[idx:] {
		clearOutput(w, step)
	}
	if w.CurrentStep.Index() > idx {
		w.CurrentStep = from
	}
	refreshCapacity(w, settings)
}

// clearOutput drops the step's algorithmic output and marks it pending.
// Override fields are left alone.
func clearOutput(w *DayState, step model.StepID) {
	switch step {
	case model.StepTherapistPCA:
		w.Allocations.Therapists = nil
		w.Allocations.PCAs = nil
		w.ActivePrograms = nil
	case model.StepFloatingPCA:
		w.Allocations.PCAs = slices.DeleteFunc(w.Allocations.PCAs, func(p model.PCAAllocation) bool {
			return w.isFloating(p.StaffID)
		})
		w.Tracker = nil
		w.TieBreakDecisions = nil
		w.TeamOrder = nil
	case model.StepBedRelieving:
		w.Allocations.Beds = nil
	}
	w.Status[step] = StatusPending
	delete(w.Initialized, step)
	delete(w.Warnings, step)
}

// ClearStep discards the step's output and everything built on it. When a
// later step holds results the caller must confirm.
func (c *Controller) ClearStep(step model.StepID, confirm bool) (err error) {
	defer c.guard("clear "+string(step), &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !step.IsValid() {
		return fmt.Errorf("%w: unknown step %q", ErrStepNotReady, step)
	}
	if !confirm && c.laterStepsHoldResults(step) {
		return ErrConfirmationRequired
	}

	w := c.state.Clone()
	resetFrom(w, step, c.settings)
	c.state = w
	c.history.reset()
	logging.ForStep(c.logger, string(step)).Info("Cleared step")
	return nil
}

// ResetToBaseline discards every override and allocation and restores the
// configuration captured in the baseline snapshot. The snapshot itself is
// kept as is.
func (c *Controller) ResetToBaseline() (err error) {
	defer c.guard("reset to baseline", &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Baseline.IsZero() {
		return fmt.Errorf("%w: day has no baseline snapshot", ErrStepNotReady)
	}

	w := &DayState{
		Date:     c.state.Date,
		Baseline: c.state.Baseline,
	}
	w.setConfig(c.state.Baseline.Config())
	w.normalize()
	refreshCapacity(w, c.settings)

	c.state = w
	c.history.reset()
	c.logger.Info("Reset day to baseline")
	return nil
}

// Repair recomputes derived values that were persisted and may have gone
// stale. It runs at most once per controller; later calls do nothing and
// report false.
func (c *Controller) Repair() (repaired bool, err error) {
	defer c.guard("repair", &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.repaired {
		return false, nil
	}
	c.repaired = true

	w := c.state.Clone()
	res := teamCapacities(w, c.settings)

	var drift []string
	for _, team := range model.AllTeams {
		if !capacity.Equal(w.Targets[team], res.Targets[team]) {
			drift = append(drift, fmt.Sprintf("target %s %.2f != %.2f", team, w.Targets[team], res.Targets[team]))
		}
	}
	w.Targets = res.Targets

	for _, team := range model.AllTeams {
		p := w.Pending[team]
		if p < 0 || !capacity.Equal(p, capacity.RoundToQuarter(p)) {
			drift = append(drift, fmt.Sprintf("pending %s %.4f", team, p))
			w.Pending = capacity.PendingFTE(model.AllTeams, res.Targets, w.Allocations.PCAFTEByTeam())
			break
		}
	}

	if w.Initialized[model.StepBedRelieving] {
		transfers := computeBeds(w, res).Transfers
		if !slices.Equal(transfers, w.Allocations.Beds) {
			drift = append(drift, "bed transfers")
			w.Allocations.Beds = transfers
		}
	}

	if len(drift) == 0 {
		return false, nil
	}

	w.Warnings[model.StepReview] = append(w.Warnings[model.StepReview], model.Warning{
		Code:    model.WarnConservationDrift,
		Message: fmt.Sprintf("recomputed stale values: %v", drift),
	})
	c.state = w
	// Checkpoints hold the stale values
	c.history.reset()
	c.logger.Warn("Repaired stale calculations", zap.Strings("drift", drift))
	return true, nil
}
