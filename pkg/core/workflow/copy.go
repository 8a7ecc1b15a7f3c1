package workflow

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jakechorley/rehab-roster/pkg/core/baseline"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// CopyMode selects how much of a day is carried to another date
type CopyMode string

const (
	// CopyFull carries every completed step
	CopyFull CopyMode = "full"
	// CopyHybrid carries leave and fixed-team allocation only. Floating PCA
	// and bed steps start over on the new date.
	CopyHybrid CopyMode = "hybrid"
)

func (m CopyMode) IsValid() bool {
	return m == CopyFull || m == CopyHybrid
}

type CopyOptions struct {
	ToDate time.Time
	Mode   CopyMode
	// IncludeBufferStaff keeps temporarily activated staff on the new date.
	// Otherwise they are made inactive and everything they were allocated to
	// is recomputed.
	IncludeBufferStaff bool
	// Live is the configuration in force now. The copy is rebased onto it
	// when it still matches the source day's baseline.
	Live       baseline.Config
	CapturedAt time.Time
	Settings   Settings
}

// CopyReport describes the outcome of a copy
type CopyReport struct {
	Mode CopyMode `json:"mode"`
	// ReachedStep is the furthest step carried over, or "" when nothing was
	ReachedStep model.StepID `json:"reachedStep,omitempty"`
	// RebaseWarning is set when the copy kept the source baseline because
	// live configuration has drifted from it
	RebaseWarning string         `json:"rebaseWarning,omitempty"`
	Drift         baseline.Drift `json:"drift"`
	DroppedBuffer []string       `json:"droppedBuffer,omitempty"`
}

// CopyState builds the state of another date from an existing day. The
// source is not modified.
func CopyState(from *DayState, opts CopyOptions) (*DayState, CopyReport, error) {
	mode := opts.Mode
	if mode == "" {
		mode = CopyFull
	}
	if !mode.IsValid() {
		return nil, CopyReport{}, fmt.Errorf("unknown copy mode %q", opts.Mode)
	}
	if opts.ToDate.IsZero() {
		return nil, CopyReport{}, fmt.Errorf("copy needs a target date")
	}

	w := from.Clone()
	w.Date = opts.ToDate
	report := CopyReport{Mode: mode}

	report.Drift = baseline.Diff(from.Baseline, opts.Live)
	switch {
	case from.Baseline.IsZero():
		w.Baseline = baseline.Capture(opts.Live, opts.CapturedAt)
	case report.Drift.HasDrift():
		report.RebaseWarning = describeDrift(report.Drift)
	default:
		w.Baseline = baseline.Capture(opts.Live, opts.CapturedAt)
		w.setConfig(w.Baseline.Config())
	}

	// A step that was never completed has nothing to carry
	if last := from.LastCompletedStep(); last == "" {
		resetFrom(w, model.StepLeaveFTE, opts.Settings)
	} else if next := last.Index() + 1; next < len(model.Steps) {
		resetFrom(w, model.Steps[next], opts.Settings)
	}

	if mode == CopyHybrid && w.Status[model.StepFloatingPCA] != StatusPending {
		resetFrom(w, model.StepFloatingPCA, opts.Settings)
	}

	if !opts.IncludeBufferStaff {
		report.DroppedBuffer = dropBufferStaff(w, opts.Settings)
	}

	if programsChanged(from, w.Date) && w.Status[model.StepTherapistPCA] != StatusPending {
		resetFrom(w, model.StepTherapistPCA, opts.Settings)
	}

	delete(w.Warnings, model.StepReview)
	w.Status[model.StepReview] = StatusPending
	report.ReachedStep = w.LastCompletedStep()
	if report.ReachedStep != "" {
		w.CurrentStep = report.ReachedStep
	} else {
		w.CurrentStep = model.StepLeaveFTE
	}
	refreshCapacity(w, opts.Settings)
	return w, report, nil
}

// dropBufferStaff makes buffer staff inactive with no overrides. Steps that
// allocated them are reset. It returns the ids of the dropped staff.
func dropBufferStaff(w *DayState, settings Settings) []string {
	var dropped []string
	resetAt := -1
	resetTo := func(step model.StepID) {
		if resetAt < 0 || step.Index() < resetAt {
			resetAt = step.Index()
		}
	}

	for i, st := range w.Staff {
		if !st.IsBuffer() {
			continue
		}
		dropped = append(dropped, st.ID)
		st.Status = model.StatusInactive
		w.Staff[i] = st
		delete(w.Overrides, st.ID)

		if slices.ContainsFunc(w.Allocations.Therapists, func(t model.TherapistAllocation) bool { return t.StaffID == st.ID }) {
			resetTo(model.StepTherapistPCA)
		}
		if w.Allocations.FindPCA(st.ID) >= 0 {
			if st.IsFloatingPCA() {
				resetTo(model.StepFloatingPCA)
			} else {
				resetTo(model.StepTherapistPCA)
			}
		}
	}

	if resetAt >= 0 {
		resetFrom(w, model.Steps[resetAt], settings)
	}
	return dropped
}

// programsChanged reports whether a different set of special programs runs
// on date than ran on the source day
func programsChanged(from *DayState, date time.Time) bool {
	var was []string
	for _, p := range from.ActivePrograms {
		was = append(was, p.ID)
	}
	var now []string
	for _, p := range from.Programs {
		active, err := p.ActiveOn(date)
		if err != nil || !active {
			continue
		}
		now = append(now, p.ID)
	}
	slices.Sort(was)
	slices.Sort(now)
	return !slices.Equal(was, now)
}

func describeDrift(d baseline.Drift) string {
	var parts []string
	add := func(label string, ids []string) {
		if len(ids) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", label, strings.Join(ids, ", ")))
		}
	}
	add("staff added", d.AddedStaff)
	add("staff removed", d.RemovedStaff)
	add("staff changed", d.ChangedStaff)
	add("wards changed", d.ChangedWards)
	add("programs changed", d.ChangedPrograms)
	return "configuration changed since the source day was generated; copied from its snapshot (" + strings.Join(parts, "; ") + ")"
}
