// Package baseline captures the configuration a day was first generated
// against and reports how live configuration has drifted from it.
package baseline

import (
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// Snapshot is the staff, ward and program configuration at the time a day's
// schedule was first generated. It is never modified after capture.
type Snapshot struct {
	CapturedAt     time.Time              `json:"capturedAt"`
	Staff          []model.Staff          `json:"staff"`
	Wards          []model.Ward           `json:"wards"`
	Programs       []model.SpecialProgram `json:"programs"`
	Preferences    []model.PCAPreference  `json:"preferences"`
	SPTAllocations []model.SPTAllocation  `json:"sptAllocations"`
}

// Config is the live configuration a snapshot is taken from and compared
// against
type Config struct {
	Staff          []model.Staff
	Wards          []model.Ward
	Programs       []model.SpecialProgram
	Preferences    []model.PCAPreference
	SPTAllocations []model.SPTAllocation
}

// Capture deep-copies the configuration into a new snapshot
func Capture(cfg Config, at time.Time) Snapshot {
	return Snapshot{
		CapturedAt:     at,
		Staff:          cloneStaff(cfg.Staff),
		Wards:          cloneWards(cfg.Wards),
		Programs:       clonePrograms(cfg.Programs),
		Preferences:    clonePreferences(cfg.Preferences),
		SPTAllocations: cloneSPT(cfg.SPTAllocations),
	}
}

// Config returns a deep copy of the snapshot's configuration
func (s Snapshot) Config() Config {
	return Config{
		Staff:          cloneStaff(s.Staff),
		Wards:          cloneWards(s.Wards),
		Programs:       clonePrograms(s.Programs),
		Preferences:    clonePreferences(s.Preferences),
		SPTAllocations: cloneSPT(s.SPTAllocations),
	}
}

// IsZero reports whether nothing was captured
func (s Snapshot) IsZero() bool {
	return s.CapturedAt.IsZero() && len(s.Staff) == 0 && len(s.Wards) == 0
}

// Drift lists the differences between a snapshot and live configuration
type Drift struct {
	AddedStaff      []string `json:"addedStaff,omitempty"`
	RemovedStaff    []string `json:"removedStaff,omitempty"`
	ChangedStaff    []string `json:"changedStaff,omitempty"`
	ChangedWards    []string `json:"changedWards,omitempty"`
	ChangedPrograms []string `json:"changedPrograms,omitempty"`
}

// HasDrift reports whether anything differs
func (d Drift) HasDrift() bool {
	return len(d.AddedStaff)+len(d.RemovedStaff)+len(d.ChangedStaff)+len(d.ChangedWards)+len(d.ChangedPrograms) > 0
}

// Diff compares the snapshot against live configuration. Staff, wards and
// programs are matched by id (wards by name); results are sorted.
func Diff(s Snapshot, live Config) Drift {
	var d Drift

	then := indexBy(s.Staff, func(st model.Staff) string { return st.ID })
	now := indexBy(live.Staff, func(st model.Staff) string { return st.ID })
	for id, st := range now {
		old, ok := then[id]
		switch {
		case !ok:
			d.AddedStaff = append(d.AddedStaff, id)
		case !reflect.DeepEqual(old, st):
			d.ChangedStaff = append(d.ChangedStaff, id)
		}
	}
	for id := range then {
		if _, ok := now[id]; !ok {
			d.RemovedStaff = append(d.RemovedStaff, id)
		}
	}

	d.ChangedWards = changedKeys(
		indexBy(s.Wards, func(w model.Ward) string { return w.Name }),
		indexBy(live.Wards, func(w model.Ward) string { return w.Name }),
	)
	d.ChangedPrograms = changedKeys(
		indexBy(s.Programs, func(p model.SpecialProgram) string { return p.ID }),
		indexBy(live.Programs, func(p model.SpecialProgram) string { return p.ID }),
	)

	slices.Sort(d.AddedStaff)
	slices.Sort(d.RemovedStaff)
	slices.Sort(d.ChangedStaff)
	return d
}

func indexBy[T any](items []T, key func(T) string) map[string]T {
	out := make(map[string]T, len(items))
	for _, item := range items {
		out[key(item)] = item
	}
	return out
}

// changedKeys returns the sorted keys that were added, removed or changed
func changedKeys[T any](then, now map[string]T) []string {
	var out []string
	for k, v := range now {
		if old, ok := then[k]; !ok || !reflect.DeepEqual(old, v) {
			out = append(out, k)
		}
	}
	for k := range then {
		if _, ok := now[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func cloneStaff(in []model.Staff) []model.Staff {
	if in == nil {
		return nil
	}
	out := make([]model.Staff, len(in))
	for i, s := range in {
		s.FloorPCA = slices.Clone(s.FloorPCA)
		if s.BufferFTE != nil {
			v := *s.BufferFTE
			s.BufferFTE = &v
		}
		out[i] = s
	}
	return out
}

func cloneWards(in []model.Ward) []model.Ward {
	if in == nil {
		return nil
	}
	out := make([]model.Ward, len(in))
	for i, w := range in {
		w.TeamBeds = maps.Clone(w.TeamBeds)
		out[i] = w
	}
	return out
}

func clonePrograms(in []model.SpecialProgram) []model.SpecialProgram {
	if in == nil {
		return nil
	}
	out := make([]model.SpecialProgram, len(in))
	for i, p := range in {
		p.Slots = slices.Clone(p.Slots)
		p.TherapistIDs = slices.Clone(p.TherapistIDs)
		p.PreferredPCAIDs = slices.Clone(p.PreferredPCAIDs)
		out[i] = p
	}
	return out
}

func clonePreferences(in []model.PCAPreference) []model.PCAPreference {
	if in == nil {
		return nil
	}
	out := make([]model.PCAPreference, len(in))
	for i, p := range in {
		p.PreferredPCAIDs = slices.Clone(p.PreferredPCAIDs)
		p.PreferredSlots = slices.Clone(p.PreferredSlots)
		out[i] = p
	}
	return out
}

func cloneSPT(in []model.SPTAllocation) []model.SPTAllocation {
	if in == nil {
		return nil
	}
	out := make([]model.SPTAllocation, len(in))
	for i, a := range in {
		a.Teams = slices.Clone(a.Teams)
		a.Weekdays = slices.Clone(a.Weekdays)
		a.Slots = slices.Clone(a.Slots)
		out[i] = a
	}
	return out
}
