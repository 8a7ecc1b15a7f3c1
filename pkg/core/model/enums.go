package model

import "fmt"

// Team is one of the eight fixed clinical teams
type Team string

const (
	TeamFO   Team = "FO"
	TeamSMM  Team = "SMM"
	TeamSFM  Team = "SFM"
	TeamCPPC Team = "CPPC"
	TeamMC   Team = "MC"
	TeamGMC  Team = "GMC"
	TeamNSM  Team = "NSM"
	TeamDRO  Team = "DRO"
)

// AllTeams is the fixed team enumeration order. It is the final tie-break
// whenever teams are ordered by any other measure.
var AllTeams = []Team{TeamFO, TeamSMM, TeamSFM, TeamCPPC, TeamMC, TeamGMC, TeamNSM, TeamDRO}

// IsValid reports whether t is one of the fixed teams
func (t Team) IsValid() bool {
	return t.Index() >= 0
}

// Index returns the position of t in AllTeams, or -1 for unknown teams
func (t Team) Index() int {
	for i, team := range AllTeams {
		if team == t {
			return i
		}
	}
	return -1
}

// ParseTeam converts a string into a Team, rejecting unknown values
func ParseTeam(s string) (Team, error) {
	t := Team(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown team %q", s)
	}
	return t, nil
}

// Weekday is a working day of the week
type Weekday string

const (
	Monday    Weekday = "mon"
	Tuesday   Weekday = "tue"
	Wednesday Weekday = "wed"
	Thursday  Weekday = "thu"
	Friday    Weekday = "fri"
)

var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

// IsValid reports whether w is a working weekday
func (w Weekday) IsValid() bool {
	for _, d := range AllWeekdays {
		if d == w {
			return true
		}
	}
	return false
}

// Rank is a staff grade
type Rank string

const (
	RankSPT  Rank = "SPT"
	RankAPPT Rank = "APPT"
	RankRPT  Rank = "RPT"
	RankPCA  Rank = "PCA"
)

func (r Rank) IsValid() bool {
	return r == RankSPT || r == RankAPPT || r == RankRPT || r == RankPCA
}

// IsTherapist reports whether the rank is one of the therapist grades
func (r Rank) IsTherapist() bool {
	return r == RankSPT || r == RankAPPT || r == RankRPT
}

// StaffStatus controls whether a staff member takes part in allocation
type StaffStatus string

const (
	StatusActive   StaffStatus = "active"
	StatusBuffer   StaffStatus = "buffer"
	StatusInactive StaffStatus = "inactive"
)

func (s StaffStatus) IsValid() bool {
	return s == StatusActive || s == StatusBuffer || s == StatusInactive
}

// LeaveType is the kind of leave recorded against a staff member for the day
type LeaveType string

const (
	LeaveNone            LeaveType = ""
	LeaveVL              LeaveType = "VL"
	LeaveHalfDayVL       LeaveType = "half day VL"
	LeaveTIL             LeaveType = "TIL"
	LeaveSDO             LeaveType = "SDO"
	LeaveSick            LeaveType = "sick leave"
	LeaveStudy           LeaveType = "study leave"
	LeaveMedicalFollowUp LeaveType = "medical follow-up"
	LeaveOthers          LeaveType = "others"
)

func (l LeaveType) IsValid() bool {
	switch l {
	case LeaveNone, LeaveVL, LeaveHalfDayVL, LeaveTIL, LeaveSDO, LeaveSick,
		LeaveStudy, LeaveMedicalFollowUp, LeaveOthers:
		return true
	}
	return false
}

// DefaultFTESubtraction is the leave cost suggested when a leave type is first
// picked. Types with a variable cost return 0 and must be entered by hand.
func (l LeaveType) DefaultFTESubtraction() float64 {
	switch l {
	case LeaveVL, LeaveSick, LeaveSDO:
		return 1.0
	case LeaveHalfDayVL:
		return 0.5
	}
	return 0
}

// Floor is a physical floor a PCA or team is associated with
type Floor string

const (
	FloorUpper Floor = "upper"
	FloorLower Floor = "lower"
)

// StepID names a workflow step. Override fields are tagged with the step that
// owns them so that clearing a step can remove exactly its own intent.
type StepID string

const (
	StepLeaveFTE     StepID = "leave-fte"
	StepTherapistPCA StepID = "therapist-pca"
	StepFloatingPCA  StepID = "floating-pca"
	StepBedRelieving StepID = "bed-relieving"
	StepReview       StepID = "review"
)

// Steps lists the workflow steps in order
var Steps = []StepID{StepLeaveFTE, StepTherapistPCA, StepFloatingPCA, StepBedRelieving, StepReview}

// Index returns the position of the step in the workflow, or -1 if unknown
func (s StepID) Index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

func (s StepID) IsValid() bool {
	return s.Index() >= 0
}
