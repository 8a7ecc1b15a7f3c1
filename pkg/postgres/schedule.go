package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/rehab-roster/pkg/db"
)

const dateLayout = "2006-01-02"

func scanSchedule(row pgx.Row) (db.Schedule, error) {
	var s db.Schedule
	var date time.Time
	if err := row.Scan(&s.ID, &date, &s.State, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return db.Schedule{}, err
	}
	s.Date = date.Format(dateLayout)
	return s, nil
}

// GetSchedule retrieves the schedule of a date, or nil if none exists
func (d *DB) GetSchedule(ctx context.Context, date string) (*db.Schedule, error) {
	s, err := scanSchedule(d.pool.QueryRow(ctx, `
		SELECT id, date, state, created_at, updated_at
		FROM schedule
		WHERE date = $1
	`, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule %s: %w", date, err)
	}
	return &s, nil
}

// ListSchedules retrieves every schedule, most recent date first
func (d *DB) ListSchedules(ctx context.Context) ([]db.Schedule, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, date, state, created_at, updated_at
		FROM schedule
		ORDER BY date DESC
	`)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return schedules, nil
}

// CreateSchedule inserts a new schedule record
func (d *DB) CreateSchedule(ctx context.Context, schedule *db.Schedule) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO schedule (id, date, state)
		VALUES ($1, $2, $3)
	`, schedule.ID, schedule.Date, schedule.State)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// UpdateScheduleState replaces the stored workflow progress of a schedule
func (d *DB) UpdateScheduleState(ctx context.Context, scheduleID string, state []byte) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE schedule SET state = $2, updated_at = NOW() WHERE id = $1
	`, scheduleID, state)
	if err != nil {
		return fmt.Errorf("failed to update schedule state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s not found", scheduleID)
	}
	return nil
}

// GetBaseline retrieves the configuration snapshot of a schedule, or nil
func (d *DB) GetBaseline(ctx context.Context, scheduleID string) (*db.BaselineRow, error) {
	var b db.BaselineRow
	err := d.pool.QueryRow(ctx, `
		SELECT schedule_id, captured_at, snapshot
		FROM baseline_snapshot
		WHERE schedule_id = $1
	`, scheduleID).Scan(&b.ScheduleID, &b.CapturedAt, &b.Snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}
	return &b, nil
}

// SaveBaseline inserts or replaces the configuration snapshot of a schedule
func (d *DB) SaveBaseline(ctx context.Context, row *db.BaselineRow) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO baseline_snapshot (schedule_id, captured_at, snapshot)
		VALUES ($1, $2, $3)
		ON CONFLICT (schedule_id) DO UPDATE
		SET captured_at = EXCLUDED.captured_at, snapshot = EXCLUDED.snapshot
	`, row.ScheduleID, row.CapturedAt.UTC(), row.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to save baseline: %w", err)
	}
	return nil
}

// GetBedCounts retrieves a schedule's bed count overrides
func (d *DB) GetBedCounts(ctx context.Context, scheduleID string) ([]db.BedCountRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT schedule_id, team, shs, student_placement
		FROM bed_count_override
		WHERE schedule_id = $1
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bed counts: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.BedCountRow, error) {
		var c db.BedCountRow
		err := row.Scan(&c.ScheduleID, &c.Team, &c.SHS, &c.StudentPlacement)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan bed count: %w", err)
	}
	return counts, nil
}

// SaveBedCounts swaps a schedule's bed count overrides for rows
func (d *DB) SaveBedCounts(ctx context.Context, scheduleID string, rows []db.BedCountRow) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM bed_count_override WHERE schedule_id = $1`, scheduleID)
	for _, c := range rows {
		batch.Queue(`
			INSERT INTO bed_count_override (schedule_id, team, shs, student_placement)
			VALUES ($1, $2, $3, $4)
		`, scheduleID, c.Team, c.SHS, c.StudentPlacement)
	}
	return d.replaceIn(ctx, "bed counts", batch)
}

// GetBedNotes retrieves a schedule's bed relieving notes
func (d *DB) GetBedNotes(ctx context.Context, scheduleID string) ([]db.BedNoteRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT schedule_id, team, note
		FROM bed_note
		WHERE schedule_id = $1
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bed notes: %w", err)
	}
	notes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.BedNoteRow, error) {
		var n db.BedNoteRow
		err := row.Scan(&n.ScheduleID, &n.Team, &n.Note)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan bed note: %w", err)
	}
	return notes, nil
}

// SaveBedNotes swaps a schedule's bed relieving notes for rows
func (d *DB) SaveBedNotes(ctx context.Context, scheduleID string, rows []db.BedNoteRow) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM bed_note WHERE schedule_id = $1`, scheduleID)
	for _, n := range rows {
		batch.Queue(`INSERT INTO bed_note (schedule_id, team, note) VALUES ($1, $2, $3)`,
			scheduleID, n.Team, n.Note)
	}
	return d.replaceIn(ctx, "bed notes", batch)
}

// replaceIn runs a delete-then-insert batch in one transaction
func (d *DB) replaceIn(ctx context.Context, what string, batch *pgx.Batch) error {
	return d.withTx(ctx, what, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}
