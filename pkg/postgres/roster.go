package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jakechorley/rehab-roster/pkg/db"
)

// undefinedColumn is the SQLSTATE for a missing column
const undefinedColumn = "42703"

// GetStaff retrieves all staff records. A staff table from before status,
// floor and buffer columns were added is read through its active flag.
func (d *DB) GetStaff(ctx context.Context) ([]db.StaffRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, name, rank, team, floating, floor_pca, status, buffer_fte
		FROM staff
		ORDER BY id
	`)
	if isUndefinedColumn(err) {
		return d.getLegacyStaff(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	staff, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.StaffRow, error) {
		var s db.StaffRow
		var team *string
		err := row.Scan(&s.ID, &s.Name, &s.Rank, &team, &s.Floating, &s.FloorPCA, &s.Status, &s.BufferFTE)
		if team != nil {
			s.Team = *team
		}
		return s, err
	})
	if isUndefinedColumn(err) {
		return d.getLegacyStaff(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan staff: %w", err)
	}
	return staff, nil
}

func isUndefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedColumn
}

func (d *DB) getLegacyStaff(ctx context.Context) ([]db.StaffRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, name, rank, team, floating, active
		FROM staff
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query legacy staff: %w", err)
	}
	staff, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.StaffRow, error) {
		var s db.StaffRow
		var team *string
		err := row.Scan(&s.ID, &s.Name, &s.Rank, &team, &s.Floating, &s.Active)
		if team != nil {
			s.Team = *team
		}
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan legacy staff: %w", err)
	}
	return staff, nil
}

// GetWards retrieves all ward records
func (d *DB) GetWards(ctx context.Context) ([]db.WardRow, error) {
	rows, err := d.pool.Query(ctx, `SELECT name, total_beds, team_beds FROM ward ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query wards: %w", err)
	}
	wards, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.WardRow, error) {
		var w db.WardRow
		err := row.Scan(&w.Name, &w.TotalBeds, &w.TeamBeds)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan ward: %w", err)
	}
	return wards, nil
}

// GetSpecialPrograms retrieves all special program records
func (d *DB) GetSpecialPrograms(ctx context.Context) ([]db.ProgramRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, name, team, schedule, slots, therapist_ids, preferred_pca_ids
		FROM special_program
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query special programs: %w", err)
	}
	programs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.ProgramRow, error) {
		var p db.ProgramRow
		err := row.Scan(&p.ID, &p.Name, &p.Team, &p.Schedule, &p.Slots, &p.TherapistIDs, &p.PreferredPCAIDs)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan special program: %w", err)
	}
	return programs, nil
}

// GetPCAPreferences retrieves all team preference records
func (d *DB) GetPCAPreferences(ctx context.Context) ([]db.PreferenceRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT team, preferred_pca_ids, preferred_slots, floor
		FROM pca_preference
		ORDER BY team
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pca preferences: %w", err)
	}
	prefs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.PreferenceRow, error) {
		var p db.PreferenceRow
		err := row.Scan(&p.Team, &p.PreferredPCAIDs, &p.PreferredSlots, &p.Floor)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan pca preference: %w", err)
	}
	return prefs, nil
}

// GetSPTAllocations retrieves all senior therapist placements
func (d *DB) GetSPTAllocations(ctx context.Context) ([]db.SPTRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT staff_id, teams, weekdays, fte, slots
		FROM spt_allocation
		ORDER BY staff_id, weekdays
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query spt allocations: %w", err)
	}
	spt, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.SPTRow, error) {
		var a db.SPTRow
		err := row.Scan(&a.StaffID, &a.Teams, &a.Weekdays, &a.FTE, &a.Slots)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan spt allocation: %w", err)
	}
	return spt, nil
}

// ReplaceRoster swaps every roster table for the given rows in one transaction
func (d *DB) ReplaceRoster(ctx context.Context, roster db.Roster) error {
	return d.withTx(ctx, "roster", func(tx pgx.Tx) error {
		for _, table := range []string{"staff", "ward", "special_program", "pca_preference", "spt_allocation"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		if err := tx.SendBatch(ctx, rosterBatch(roster)).Close(); err != nil {
			return fmt.Errorf("failed to insert roster: %w", err)
		}
		return nil
	})
}

func rosterBatch(roster db.Roster) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, s := range roster.Staff {
		var team *string
		if s.Team != "" {
			team = &s.Team
		}
		status := s.Status
		if status == "" {
			status = "active"
		}
		batch.Queue(`
			INSERT INTO staff (id, name, rank, team, floating, floor_pca, status, buffer_fte)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, s.ID, s.Name, s.Rank, team, s.Floating, s.FloorPCA, status, s.BufferFTE)
	}
	for _, w := range roster.Wards {
		batch.Queue(`INSERT INTO ward (name, total_beds, team_beds) VALUES ($1, $2, $3)`,
			w.Name, w.TotalBeds, w.TeamBeds)
	}
	for _, p := range roster.Programs {
		batch.Queue(`
			INSERT INTO special_program (id, name, team, schedule, slots, therapist_ids, preferred_pca_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, p.ID, p.Name, p.Team, p.Schedule, p.Slots, p.TherapistIDs, p.PreferredPCAIDs)
	}
	for _, p := range roster.Preferences {
		batch.Queue(`
			INSERT INTO pca_preference (team, preferred_pca_ids, preferred_slots, floor)
			VALUES ($1, $2, $3, $4)
		`, p.Team, p.PreferredPCAIDs, p.PreferredSlots, p.Floor)
	}
	for _, a := range roster.SPT {
		batch.Queue(`
			INSERT INTO spt_allocation (staff_id, teams, weekdays, fte, slots)
			VALUES ($1, $2, $3, $4, $5)
		`, a.StaffID, a.Teams, a.Weekdays, a.FTE, a.Slots)
	}
	return batch
}
