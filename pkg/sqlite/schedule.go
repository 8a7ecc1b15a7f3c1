package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jakechorley/rehab-roster/pkg/db"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (db.Schedule, error) {
	var s db.Schedule
	var state, createdAt, updatedAt string
	if err := row.Scan(&s.ID, &s.Date, &state, &createdAt, &updatedAt); err != nil {
		return db.Schedule{}, err
	}
	s.State = []byte(state)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return s, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// GetSchedule retrieves the schedule of a date, or nil if none exists
func (d *DB) GetSchedule(ctx context.Context, date string) (*db.Schedule, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, err := scanSchedule(d.db.QueryRowContext(ctx,
		"SELECT id, date, state, created_at, updated_at FROM schedule WHERE date = ?", date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule %s: %w", date, err)
	}
	return &s, nil
}

// ListSchedules retrieves every schedule, most recent date first
func (d *DB) ListSchedules(ctx context.Context) ([]db.Schedule, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx,
		"SELECT id, date, state, created_at, updated_at FROM schedule ORDER BY date DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []db.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// CreateSchedule inserts a new schedule record
func (d *DB) CreateSchedule(ctx context.Context, schedule *db.Schedule) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ts := now()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO schedule (id, date, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, schedule.ID, schedule.Date, string(schedule.State), ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// UpdateScheduleState replaces the stored workflow progress of a schedule
func (d *DB) UpdateScheduleState(ctx context.Context, scheduleID string, state []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.ExecContext(ctx,
		"UPDATE schedule SET state = ?, updated_at = ? WHERE id = ?", string(state), now(), scheduleID)
	if err != nil {
		return fmt.Errorf("failed to update schedule state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("schedule %s not found", scheduleID)
	}
	return nil
}

// GetAllocations retrieves the allocation records of a schedule in the order
// they were saved
func (d *DB) GetAllocations(ctx context.Context, scheduleID string) ([]db.AllocationRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, schedule_id, kind, staff_id, team, payload
		FROM allocation
		WHERE schedule_id = ?
		ORDER BY position
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []db.AllocationRow
	for rows.Next() {
		var a db.AllocationRow
		var staffID sql.NullString
		var payload string
		if err := rows.Scan(&a.ID, &a.ScheduleID, &a.Kind, &staffID, &a.Team, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.StaffID = staffID.String
		a.Payload = []byte(payload)
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// ReplaceAllocations swaps a schedule's allocation records for rows
func (d *DB) ReplaceAllocations(ctx context.Context, scheduleID string, rows []db.AllocationRow) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM allocation WHERE schedule_id = ?", scheduleID); err != nil {
			return fmt.Errorf("failed to clear allocations: %w", err)
		}
		for i, a := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO allocation (schedule_id, id, position, kind, staff_id, team, payload)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, scheduleID, a.ID, i, a.Kind, nullString(a.StaffID), a.Team, string(a.Payload))
			if err != nil {
				return fmt.Errorf("failed to insert allocation: %w", err)
			}
		}
		return nil
	})
}

// GetBaseline retrieves the configuration snapshot of a schedule, or nil
func (d *DB) GetBaseline(ctx context.Context, scheduleID string) (*db.BaselineRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b db.BaselineRow
	var capturedAt, snapshot string
	err := d.db.QueryRowContext(ctx,
		"SELECT schedule_id, captured_at, snapshot FROM baseline_snapshot WHERE schedule_id = ?", scheduleID,
	).Scan(&b.ScheduleID, &capturedAt, &snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}
	b.CapturedAt, _ = time.Parse(time.RFC3339Nano, capturedAt)
	b.Snapshot = []byte(snapshot)
	return &b, nil
}

// SaveBaseline inserts or replaces the configuration snapshot of a schedule
func (d *DB) SaveBaseline(ctx context.Context, row *db.BaselineRow) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO baseline_snapshot (schedule_id, captured_at, snapshot)
		VALUES (?, ?, ?)
		ON CONFLICT(schedule_id) DO UPDATE SET
			captured_at = excluded.captured_at,
			snapshot = excluded.snapshot
	`, row.ScheduleID, row.CapturedAt.UTC().Format(time.RFC3339Nano), string(row.Snapshot))
	if err != nil {
		return fmt.Errorf("failed to save baseline: %w", err)
	}
	return nil
}

// GetBedCounts retrieves a schedule's bed count overrides
func (d *DB) GetBedCounts(ctx context.Context, scheduleID string) ([]db.BedCountRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx,
		"SELECT schedule_id, team, shs, student_placement FROM bed_count_override WHERE schedule_id = ?", scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bed counts: %w", err)
	}
	defer rows.Close()

	var counts []db.BedCountRow
	for rows.Next() {
		var c db.BedCountRow
		if err := rows.Scan(&c.ScheduleID, &c.Team, &c.SHS, &c.StudentPlacement); err != nil {
			return nil, fmt.Errorf("failed to scan bed count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// SaveBedCounts swaps a schedule's bed count overrides for rows
func (d *DB) SaveBedCounts(ctx context.Context, scheduleID string, rows []db.BedCountRow) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM bed_count_override WHERE schedule_id = ?", scheduleID); err != nil {
			return fmt.Errorf("failed to clear bed counts: %w", err)
		}
		for _, c := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO bed_count_override (schedule_id, team, shs, student_placement)
				VALUES (?, ?, ?, ?)
			`, scheduleID, c.Team, c.SHS, c.StudentPlacement)
			if err != nil {
				return fmt.Errorf("failed to insert bed count: %w", err)
			}
		}
		return nil
	})
}

// GetBedNotes retrieves a schedule's bed relieving notes
func (d *DB) GetBedNotes(ctx context.Context, scheduleID string) ([]db.BedNoteRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx,
		"SELECT schedule_id, team, note FROM bed_note WHERE schedule_id = ?", scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bed notes: %w", err)
	}
	defer rows.Close()

	var notes []db.BedNoteRow
	for rows.Next() {
		var n db.BedNoteRow
		if err := rows.Scan(&n.ScheduleID, &n.Team, &n.Note); err != nil {
			return nil, fmt.Errorf("failed to scan bed note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// SaveBedNotes swaps a schedule's bed relieving notes for rows
func (d *DB) SaveBedNotes(ctx context.Context, scheduleID string, rows []db.BedNoteRow) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM bed_note WHERE schedule_id = ?", scheduleID); err != nil {
			return fmt.Errorf("failed to clear bed notes: %w", err)
		}
		for _, n := range rows {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO bed_note (schedule_id, team, note) VALUES (?, ?, ?)", scheduleID, n.Team, n.Note)
			if err != nil {
				return fmt.Errorf("failed to insert bed note: %w", err)
			}
		}
		return nil
	})
}
