package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/rehab-roster/pkg/db"
)

// GetAllocations retrieves the allocation records of a schedule in the order
// they were saved
func (d *DB) GetAllocations(ctx context.Context, scheduleID string) ([]db.AllocationRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, schedule_id, kind, staff_id, team, payload
		FROM allocation
		WHERE schedule_id = $1
		ORDER BY position
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []db.AllocationRow
	for rows.Next() {
		var a db.AllocationRow
		var staffID *string
		if err := rows.Scan(&a.ID, &a.ScheduleID, &a.Kind, &staffID, &a.Team, &a.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		if staffID != nil {
			a.StaffID = *staffID
		}
		allocations = append(allocations, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}

	return allocations, nil
}

// ReplaceAllocations swaps a schedule's allocation records for rows
func (d *DB) ReplaceAllocations(ctx context.Context, scheduleID string, rows []db.AllocationRow) error {
	return d.withTx(ctx, "allocations", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM allocation WHERE schedule_id = $1`, scheduleID); err != nil {
			return fmt.Errorf("failed to clear allocations: %w", err)
		}

		batch := &pgx.Batch{}
		for i, a := range rows {
			var staffID *string
			if a.StaffID != "" {
				staffID = &a.StaffID
			}
			batch.Queue(`
				INSERT INTO allocation (schedule_id, id, position, kind, staff_id, team, payload)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, scheduleID, a.ID, i, a.Kind, staffID, a.Team, a.Payload)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert allocation: %w", err)
		}
		return nil
	})
}
