package db

import "time"

// Roster rows use a compact text encoding for list and map columns so the
// same shape can be typed into a sheet and stored in a TEXT column:
// lists are comma separated ("1,2", "FO,SMM") and maps are comma separated
// key=value pairs ("FO=10,SMM=6").

// StaffRow represents a roster staff record. Older rosters have an active
// flag instead of status and no floor or buffer columns.
type StaffRow struct {
	ID        string   `ssql_header:"id" ssql_type:"text"`
	Name      string   `ssql_header:"name" ssql_type:"text"`
	Rank      string   `ssql_header:"rank" ssql_type:"text"`
	Team      string   `ssql_header:"team" ssql_type:"text"`
	Floating  bool     `ssql_header:"floating" ssql_type:"bool"`
	FloorPCA  string   `ssql_header:"floor_pca" ssql_type:"list"`
	Status    string   `ssql_header:"status" ssql_type:"text"`
	Active    *bool    `ssql_header:"active" ssql_type:"readonly"`
	BufferFTE *float64 `ssql_header:"buffer_fte" ssql_type:"float"`
}

// WardRow represents a ward and its per-team bed split
type WardRow struct {
	Name      string `ssql_header:"name" ssql_type:"text"`
	TotalBeds int    `ssql_header:"total_beds" ssql_type:"int"`
	TeamBeds  string `ssql_header:"team_beds" ssql_type:"map"`
}

// ProgramRow represents a recurring special program
type ProgramRow struct {
	ID              string `ssql_header:"id" ssql_type:"text"`
	Name            string `ssql_header:"name" ssql_type:"text"`
	Team            string `ssql_header:"team" ssql_type:"text"`
	Schedule        string `ssql_header:"schedule" ssql_type:"rrule"`
	Slots           string `ssql_header:"slots" ssql_type:"list"`
	TherapistIDs    string `ssql_header:"therapist_ids" ssql_type:"list"`
	PreferredPCAIDs string `ssql_header:"preferred_pca_ids" ssql_type:"list"`
}

// PreferenceRow represents a team's floating PCA preference
type PreferenceRow struct {
	Team            string `ssql_header:"team" ssql_type:"text"`
	PreferredPCAIDs string `ssql_header:"preferred_pca_ids" ssql_type:"list"`
	PreferredSlots  string `ssql_header:"preferred_slots" ssql_type:"list"`
	Floor           string `ssql_header:"floor" ssql_type:"text"`
}

// SPTRow represents a weekday placement of a senior therapist
type SPTRow struct {
	StaffID  string  `ssql_header:"staff_id" ssql_type:"text"`
	Teams    string  `ssql_header:"teams" ssql_type:"list"`
	Weekdays string  `ssql_header:"weekdays" ssql_type:"list"`
	FTE      float64 `ssql_header:"fte" ssql_type:"float"`
	Slots    string  `ssql_header:"slots" ssql_type:"list"`
}

// Roster bundles every roster table
type Roster struct {
	Staff       []StaffRow
	Wards       []WardRow
	Programs    []ProgramRow
	Preferences []PreferenceRow
	SPT         []SPTRow
}

// Schedule represents the record of one generated day. State holds the
// workflow progress as JSON.
type Schedule struct {
	ID        string
	Date      string
	State     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Allocation kinds
const (
	KindTherapist = "therapist"
	KindPCA       = "pca"
	KindBed       = "bed"
)

// AllocationRow represents one allocation of a schedule. Payload holds the
// full allocation as JSON; Team and StaffID are kept as columns for lookup.
type AllocationRow struct {
	ID         string
	ScheduleID string
	Kind       string
	StaffID    string
	Team       string
	Payload    []byte
}

// BaselineRow represents the configuration snapshot taken when a schedule
// was first generated
type BaselineRow struct {
	ScheduleID string
	CapturedAt time.Time
	Snapshot   []byte
}

// BedCountRow represents a day's bed deductions for a team
type BedCountRow struct {
	ScheduleID       string
	Team             string
	SHS              int
	StudentPlacement int
}

// BedNoteRow represents a free-text relieving note for a team
type BedNoteRow struct {
	ScheduleID string
	Team       string
	Note       string
}
