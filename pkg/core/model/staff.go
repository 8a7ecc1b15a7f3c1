package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/teambition/rrule-go"
)

// Staff is a rehabilitation staff member from the roster
type Staff struct {
	ID       string
	Name     string
	Rank     Rank
	Team     Team // Empty when the staff member has no fixed team
	Floating bool // PCA only: may serve any team
	FloorPCA []Floor
	Status   StaffStatus
	// BufferFTE caps the capacity of buffer-status staff. Nil means the
	// default capacity of 1.0.
	BufferFTE *float64
}

// Validate checks the roster invariants for a single staff member
func (s Staff) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("staff id is required")
	}
	if !s.Rank.IsValid() {
		return fmt.Errorf("staff %s has invalid rank %q", s.ID, s.Rank)
	}
	if s.Floating && s.Rank != RankPCA {
		return fmt.Errorf("staff %s: only PCA rank may be floating", s.ID)
	}
	if s.Team != "" && !s.Team.IsValid() {
		return fmt.Errorf("staff %s has invalid team %q", s.ID, s.Team)
	}
	if s.Status != "" && !s.Status.IsValid() {
		return fmt.Errorf("staff %s has invalid status %q", s.ID, s.Status)
	}
	if s.BufferFTE != nil && (*s.BufferFTE < 0 || *s.BufferFTE > 1) {
		return fmt.Errorf("staff %s buffer fte %.2f out of range", s.ID, *s.BufferFTE)
	}
	return nil
}

// IsActive reports whether the staff member takes part in today's allocation.
// Buffer staff are temporarily activated and count as active.
func (s Staff) IsActive() bool {
	return s.Status == "" || s.Status == StatusActive || s.Status == StatusBuffer
}

// IsBuffer reports whether the staff member is temporarily activated
func (s Staff) IsBuffer() bool {
	return s.Status == StatusBuffer
}

// BaseCapacity is the on-duty capacity before any leave is deducted
func (s Staff) BaseCapacity() float64 {
	if s.Status == StatusBuffer && s.BufferFTE != nil {
		return *s.BufferFTE
	}
	return 1.0
}

// IsFloatingPCA reports whether the staff member belongs to the floating pool
func (s Staff) IsFloatingPCA() bool {
	return s.Rank == RankPCA && s.Floating
}

// IsNonFloatingPCA reports whether the staff member is a PCA with a home team
func (s Staff) IsNonFloatingPCA() bool {
	return s.Rank == RankPCA && !s.Floating
}

// HasFloor reports whether the staff member has an affinity with the floor
func (s Staff) HasFloor(f Floor) bool {
	return f != "" && slices.Contains(s.FloorPCA, f)
}

// Ward is a physical ward whose beds are split between teams
type Ward struct {
	Name      string
	TotalBeds int
	// TeamBeds is the number of the ward's beds designated to each team
	TeamBeds map[Team]int
}

// BedCountOverride deducts beds from a team's designated count for the day
type BedCountOverride struct {
	SHS              int `json:"shs" validate:"min=0"`
	StudentPlacement int `json:"studentPlacement" validate:"min=0"`
}

// SpecialProgram is a recurring clinical program that needs dedicated PCA
// slots on the days it runs
type SpecialProgram struct {
	ID   string
	Name string
	// Team receives the program's PCA slots
	Team Team
	// Schedule is an RRULE describing the days the program runs
	Schedule        string
	Slots           []Slot
	TherapistIDs    []string
	PreferredPCAIDs []string
}

// ReservedFTE is the PCA capacity the program consumes when active
func (p SpecialProgram) ReservedFTE() float64 {
	return float64(len(p.Slots)) * SlotFTE
}

// ActiveOn reports whether the program runs on the given date. A program
// without a schedule runs every day.
func (p SpecialProgram) ActiveOn(date time.Time) (bool, error) {
	if p.Schedule == "" {
		return true, nil
	}
	opt, err := rrule.StrToROption(p.Schedule)
	if err != nil {
		return false, fmt.Errorf("invalid schedule for program %s: %w", p.ID, err)
	}
	if opt.Dtstart.IsZero() {
		// Anchor far enough back that weekly and monthly rules cover the date
		opt.Dtstart = date.AddDate(-1, 0, 0)
	}
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return false, fmt.Errorf("invalid schedule for program %s: %w", p.ID, err)
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return len(rule.Between(dayStart, dayEnd, true)) > 0, nil
}

// PCAPreference is a team's standing preference for floating PCA cover
type PCAPreference struct {
	Team            Team
	PreferredPCAIDs []string
	PreferredSlots  []Slot
	Floor           Floor
}

// PrefersPCA reports whether the PCA is on the team's preferred list
func (p PCAPreference) PrefersPCA(staffID string) bool {
	return slices.Contains(p.PreferredPCAIDs, staffID)
}

// SPTAllocation places a senior therapist without a home team on given weekdays
type SPTAllocation struct {
	StaffID  string
	Teams    []Team
	Weekdays []Weekday
	FTE      float64
	Slots    []Slot
}

// AppliesOn reports whether the row applies to the weekday
func (a SPTAllocation) AppliesOn(day Weekday) bool {
	return slices.Contains(a.Weekdays, day)
}

// WeekdayOf maps a date onto a working weekday. Weekends return false.
func WeekdayOf(date time.Time) (Weekday, bool) {
	switch date.Weekday() {
	case time.Monday:
		return Monday, true
	case time.Tuesday:
		return Tuesday, true
	case time.Wednesday:
		return Wednesday, true
	case time.Thursday:
		return Thursday, true
	case time.Friday:
		return Friday, true
	}
	return "", false
}
