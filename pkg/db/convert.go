package db

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jakechorley/rehab-roster/pkg/core/baseline"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// ToModel converts a roster row into a staff member, mapping the legacy
// active flag onto a status
func (r StaffRow) ToModel() (model.Staff, error) {
	s := model.Staff{
		ID:        strings.TrimSpace(r.ID),
		Name:      strings.TrimSpace(r.Name),
		Rank:      model.Rank(strings.ToUpper(strings.TrimSpace(r.Rank))),
		Team:      model.Team(strings.ToUpper(strings.TrimSpace(r.Team))),
		Floating:  r.Floating,
		Status:    model.StaffStatus(strings.ToLower(strings.TrimSpace(r.Status))),
		BufferFTE: r.BufferFTE,
	}
	for _, f := range splitList(r.FloorPCA) {
		s.FloorPCA = append(s.FloorPCA, model.Floor(strings.ToLower(f)))
	}
	if s.Status == "" {
		s.Status = model.StatusActive
		if r.Active != nil && !*r.Active {
			s.Status = model.StatusInactive
		}
	}
	if err := s.Validate(); err != nil {
		return model.Staff{}, err
	}
	return s, nil
}

// StaffRowFrom converts a staff member into a roster row
func StaffRowFrom(s model.Staff) StaffRow {
	floors := make([]string, len(s.FloorPCA))
	for i, f := range s.FloorPCA {
		floors[i] = string(f)
	}
	return StaffRow{
		ID:        s.ID,
		Name:      s.Name,
		Rank:      string(s.Rank),
		Team:      string(s.Team),
		Floating:  s.Floating,
		FloorPCA:  strings.Join(floors, ","),
		Status:    string(s.Status),
		BufferFTE: s.BufferFTE,
	}
}

func (r WardRow) ToModel() (model.Ward, error) {
	beds, err := parseTeamInts(r.TeamBeds)
	if err != nil {
		return model.Ward{}, fmt.Errorf("ward %s: %w", r.Name, err)
	}
	return model.Ward{Name: r.Name, TotalBeds: r.TotalBeds, TeamBeds: beds}, nil
}

func WardRowFrom(w model.Ward) WardRow {
	return WardRow{Name: w.Name, TotalBeds: w.TotalBeds, TeamBeds: formatTeamInts(w.TeamBeds)}
}

func (r ProgramRow) ToModel() (model.SpecialProgram, error) {
	slots, err := parseSlots(r.Slots)
	if err != nil {
		return model.SpecialProgram{}, fmt.Errorf("program %s: %w", r.ID, err)
	}
	team := model.Team(strings.ToUpper(strings.TrimSpace(r.Team)))
	if !team.IsValid() {
		return model.SpecialProgram{}, fmt.Errorf("program %s: unknown team %q", r.ID, r.Team)
	}
	return model.SpecialProgram{
		ID:              r.ID,
		Name:            r.Name,
		Team:            team,
		Schedule:        strings.TrimSpace(r.Schedule),
		Slots:           slots,
		TherapistIDs:    splitList(r.TherapistIDs),
		PreferredPCAIDs: splitList(r.PreferredPCAIDs),
	}, nil
}

func ProgramRowFrom(p model.SpecialProgram) ProgramRow {
	return ProgramRow{
		ID:              p.ID,
		Name:            p.Name,
		Team:            string(p.Team),
		Schedule:        p.Schedule,
		Slots:           formatSlots(p.Slots),
		TherapistIDs:    strings.Join(p.TherapistIDs, ","),
		PreferredPCAIDs: strings.Join(p.PreferredPCAIDs, ","),
	}
}

func (r PreferenceRow) ToModel() (model.PCAPreference, error) {
	team, err := model.ParseTeam(strings.ToUpper(strings.TrimSpace(r.Team)))
	if err != nil {
		return model.PCAPreference{}, err
	}
	slots, err := parseSlots(r.PreferredSlots)
	if err != nil {
		return model.PCAPreference{}, fmt.Errorf("preference %s: %w", r.Team, err)
	}
	return model.PCAPreference{
		Team:            team,
		PreferredPCAIDs: splitList(r.PreferredPCAIDs),
		PreferredSlots:  slots,
		Floor:           model.Floor(strings.ToLower(strings.TrimSpace(r.Floor))),
	}, nil
}

func PreferenceRowFrom(p model.PCAPreference) PreferenceRow {
	return PreferenceRow{
		Team:            string(p.Team),
		PreferredPCAIDs: strings.Join(p.PreferredPCAIDs, ","),
		PreferredSlots:  formatSlots(p.PreferredSlots),
		Floor:           string(p.Floor),
	}
}

func (r SPTRow) ToModel() (model.SPTAllocation, error) {
	slots, err := parseSlots(r.Slots)
	if err != nil {
		return model.SPTAllocation{}, fmt.Errorf("spt %s: %w", r.StaffID, err)
	}
	a := model.SPTAllocation{StaffID: r.StaffID, FTE: r.FTE, Slots: slots}
	for _, t := range splitList(r.Teams) {
		team, err := model.ParseTeam(strings.ToUpper(t))
		if err != nil {
			return model.SPTAllocation{}, fmt.Errorf("spt %s: %w", r.StaffID, err)
		}
		a.Teams = append(a.Teams, team)
	}
	for _, d := range splitList(r.Weekdays) {
		day := model.Weekday(strings.ToLower(d))
		if !day.IsValid() {
			return model.SPTAllocation{}, fmt.Errorf("spt %s: unknown weekday %q", r.StaffID, d)
		}
		a.Weekdays = append(a.Weekdays, day)
	}
	return a, nil
}

func SPTRowFrom(a model.SPTAllocation) SPTRow {
	teams := make([]string, len(a.Teams))
	for i, t := range a.Teams {
		teams[i] = string(t)
	}
	days := make([]string, len(a.Weekdays))
	for i, d := range a.Weekdays {
		days[i] = string(d)
	}
	return SPTRow{
		StaffID:  a.StaffID,
		Teams:    strings.Join(teams, ","),
		Weekdays: strings.Join(days, ","),
		FTE:      a.FTE,
		Slots:    formatSlots(a.Slots),
	}
}

// AllocationRowsFrom flattens a day's allocations into rows. Bed transfers
// have no id of their own and get one derived from their position.
func AllocationRowsFrom(scheduleID string, a model.Allocations) ([]AllocationRow, error) {
	rows := make([]AllocationRow, 0, len(a.Therapists)+len(a.PCAs)+len(a.Beds))
	add := func(id, kind, staffID string, team model.Team, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s allocation %s: %w", kind, id, err)
		}
		rows = append(rows, AllocationRow{
			ID:         id,
			ScheduleID: scheduleID,
			Kind:       kind,
			StaffID:    staffID,
			Team:       string(team),
			Payload:    payload,
		})
		return nil
	}

	for _, t := range a.Therapists {
		if err := add(t.ID, KindTherapist, t.StaffID, t.Team, t); err != nil {
			return nil, err
		}
	}
	for _, p := range a.PCAs {
		if err := add(p.ID, KindPCA, p.StaffID, p.Team, p); err != nil {
			return nil, err
		}
	}
	for i, b := range a.Beds {
		id := fmt.Sprintf("%s-bed-%d", scheduleID, i)
		if err := add(id, KindBed, "", b.FromTeam, b); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// AllocationsFrom rebuilds a day's allocations from rows. Rows keep the
// order they were saved in within each kind.
func AllocationsFrom(rows []AllocationRow) (model.Allocations, error) {
	var a model.Allocations
	for _, r := range rows {
		var err error
		switch r.Kind {
		case KindTherapist:
			var t model.TherapistAllocation
			if err = json.Unmarshal(r.Payload, &t); err == nil {
				a.Therapists = append(a.Therapists, t)
			}
		case KindPCA:
			var p model.PCAAllocation
			if err = json.Unmarshal(r.Payload, &p); err == nil {
				a.PCAs = append(a.PCAs, p)
			}
		case KindBed:
			var b model.BedAllocation
			if err = json.Unmarshal(r.Payload, &b); err == nil {
				a.Beds = append(a.Beds, b)
			}
		default:
			err = fmt.Errorf("unknown kind %q", r.Kind)
		}
		if err != nil {
			return model.Allocations{}, fmt.Errorf("failed to decode allocation %s: %w", r.ID, err)
		}
	}
	return a, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSlots(s string) ([]model.Slot, error) {
	var slots []model.Slot
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid slot %q", part)
		}
		slots = append(slots, model.Slot(n))
	}
	if err := model.ValidateSlots(slots); err != nil {
		return nil, err
	}
	return model.NormalizeSlots(slots), nil
}

func formatSlots(slots []model.Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = strconv.Itoa(int(s))
	}
	return strings.Join(parts, ",")
}

func parseTeamInts(s string) (map[model.Team]int, error) {
	out := make(map[model.Team]int)
	for _, part := range splitList(s) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("expected TEAM=count, got %q", part)
		}
		team, err := model.ParseTeam(strings.ToUpper(strings.TrimSpace(key)))
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid bed count %q for %s", value, team)
		}
		out[team] = n
	}
	return out, nil
}

// formatTeamInts writes the map in fixed team order
func formatTeamInts(m map[model.Team]int) string {
	var parts []string
	for _, team := range model.AllTeams {
		if n, ok := m[team]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", team, n))
		}
	}
	return strings.Join(parts, ",")
}

// SortedBedCounts returns bed count rows in fixed team order
func SortedBedCounts(scheduleID string, counts map[model.Team]model.BedCountOverride) []BedCountRow {
	var rows []BedCountRow
	for _, team := range model.AllTeams {
		if c, ok := counts[team]; ok {
			rows = append(rows, BedCountRow{ScheduleID: scheduleID, Team: string(team), SHS: c.SHS, StudentPlacement: c.StudentPlacement})
		}
	}
	return rows
}

// SortedBedNotes returns bed note rows in fixed team order
func SortedBedNotes(scheduleID string, notes map[model.Team]string) []BedNoteRow {
	var rows []BedNoteRow
	for _, team := range model.AllTeams {
		if n, ok := notes[team]; ok && n != "" {
			rows = append(rows, BedNoteRow{ScheduleID: scheduleID, Team: string(team), Note: n})
		}
	}
	return rows
}

// Config converts a whole roster into live configuration, returning the
// first invalid row
func (r Roster) Config() (baseline.Config, error) {
	var out baseline.Config
	for _, row := range r.Staff {
		s, err := row.ToModel()
		if err != nil {
			return baseline.Config{}, fmt.Errorf("invalid staff row: %w", err)
		}
		out.Staff = append(out.Staff, s)
	}
	for _, row := range r.Wards {
		w, err := row.ToModel()
		if err != nil {
			return baseline.Config{}, err
		}
		out.Wards = append(out.Wards, w)
	}
	for _, row := range r.Programs {
		p, err := row.ToModel()
		if err != nil {
			return baseline.Config{}, err
		}
		out.Programs = append(out.Programs, p)
	}
	for _, row := range r.Preferences {
		p, err := row.ToModel()
		if err != nil {
			return baseline.Config{}, err
		}
		out.Preferences = append(out.Preferences, p)
	}
	for _, row := range r.SPT {
		a, err := row.ToModel()
		if err != nil {
			return baseline.Config{}, err
		}
		out.SPTAllocations = append(out.SPTAllocations, a)
	}
	slices.SortStableFunc(out.Staff, func(a, b model.Staff) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// RosterFrom converts configuration back into roster rows
func RosterFrom(m baseline.Config) Roster {
	var r Roster
	for _, s := range m.Staff {
		r.Staff = append(r.Staff, StaffRowFrom(s))
	}
	for _, w := range m.Wards {
		r.Wards = append(r.Wards, WardRowFrom(w))
	}
	for _, p := range m.Programs {
		r.Programs = append(r.Programs, ProgramRowFrom(p))
	}
	for _, p := range m.Preferences {
		r.Preferences = append(r.Preferences, PreferenceRowFrom(p))
	}
	for _, a := range m.SPTAllocations {
		r.SPT = append(r.SPT, SPTRowFrom(a))
	}
	return r
}
