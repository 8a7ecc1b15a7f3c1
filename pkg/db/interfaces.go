package db

import "context"

// RosterStore defines the interface for reading live configuration
type RosterStore interface {
	GetStaff(ctx context.Context) ([]StaffRow, error)
	GetWards(ctx context.Context) ([]WardRow, error)
	GetSpecialPrograms(ctx context.Context) ([]ProgramRow, error)
	GetPCAPreferences(ctx context.Context) ([]PreferenceRow, error)
	GetSPTAllocations(ctx context.Context) ([]SPTRow, error)
}

// ScheduleStore defines the interface for schedule day persistence.
// GetSchedule returns nil and no error when the date has not been generated.
type ScheduleStore interface {
	GetSchedule(ctx context.Context, date string) (*Schedule, error)
	ListSchedules(ctx context.Context) ([]Schedule, error)
	CreateSchedule(ctx context.Context, schedule *Schedule) error
	UpdateScheduleState(ctx context.Context, scheduleID string, state []byte) error

	GetAllocations(ctx context.Context, scheduleID string) ([]AllocationRow, error)
	ReplaceAllocations(ctx context.Context, scheduleID string, rows []AllocationRow) error

	GetBaseline(ctx context.Context, scheduleID string) (*BaselineRow, error)
	SaveBaseline(ctx context.Context, row *BaselineRow) error

	GetBedCounts(ctx context.Context, scheduleID string) ([]BedCountRow, error)
	SaveBedCounts(ctx context.Context, scheduleID string, rows []BedCountRow) error
	GetBedNotes(ctx context.Context, scheduleID string) ([]BedNoteRow, error)
	SaveBedNotes(ctx context.Context, scheduleID string, rows []BedNoteRow) error
}

// Database defines the interface for all database operations.
// Both postgres.DB and sqlite.DB implement this interface.
type Database interface {
	RosterStore
	ScheduleStore
	// ReplaceRoster swaps the whole stored roster for the given one
	ReplaceRoster(ctx context.Context, roster Roster) error
	Close() error
}
