package model

import "fmt"

// WarningCode classifies a non-fatal computation warning
type WarningCode string

const (
	WarnUnmetPendingFTE        WarningCode = "unmet-pending-fte"
	WarnPreferredSlotUnfilled  WarningCode = "preferred-slot-unfilled"
	WarnUnresolvedSubstitution WarningCode = "unresolved-substitution"
	WarnInvalidSelection       WarningCode = "invalid-selection"
	WarnInvalidPoolEntry       WarningCode = "invalid-pool-entry"
	WarnUnplacedStaff          WarningCode = "unplaced-staff"
	WarnProgramUnstaffed       WarningCode = "program-unstaffed"
	WarnConservationDrift      WarningCode = "conservation-drift"
)

// Warning is a computation warning surfaced alongside an otherwise
// successful step. Warnings never block forward progress.
type Warning struct {
	Code    WarningCode `json:"code"`
	Team    Team        `json:"team,omitempty"`
	StaffID string      `json:"staffId,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	switch {
	case w.Team != "" && w.StaffID != "":
		return fmt.Sprintf("[%s] %s/%s: %s", w.Code, w.Team, w.StaffID, w.Message)
	case w.Team != "":
		return fmt.Sprintf("[%s] %s: %s", w.Code, w.Team, w.Message)
	case w.StaffID != "":
		return fmt.Sprintf("[%s] %s: %s", w.Code, w.StaffID, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Code, w.Message)
}
