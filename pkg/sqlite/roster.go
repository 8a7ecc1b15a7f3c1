package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jakechorley/rehab-roster/pkg/db"
)

// GetStaff retrieves all staff records. A staff table from before status,
// floor and buffer columns were added is read through its active flag.
func (d *DB) GetStaff(ctx context.Context) ([]db.StaffRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, rank, team, floating, floor_pca, status, buffer_fte
		FROM staff
		ORDER BY id
	`)
	if isNoSuchColumn(err) {
		return d.getLegacyStaff(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	defer rows.Close()

	var staff []db.StaffRow
	for rows.Next() {
		var s db.StaffRow
		var team sql.NullString
		var buffer sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.Name, &s.Rank, &team, &s.Floating, &s.FloorPCA, &s.Status, &buffer); err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		s.Team = team.String
		if buffer.Valid {
			s.BufferFTE = &buffer.Float64
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}

func (d *DB) getLegacyStaff(ctx context.Context) ([]db.StaffRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, rank, team, floating, active
		FROM staff
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query legacy staff: %w", err)
	}
	defer rows.Close()

	var staff []db.StaffRow
	for rows.Next() {
		var s db.StaffRow
		var team sql.NullString
		var active sql.NullBool
		if err := rows.Scan(&s.ID, &s.Name, &s.Rank, &team, &s.Floating, &active); err != nil {
			return nil, fmt.Errorf("failed to scan legacy staff: %w", err)
		}
		s.Team = team.String
		if active.Valid {
			s.Active = &active.Bool
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}

// GetWards retrieves all ward records
func (d *DB) GetWards(ctx context.Context) ([]db.WardRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `SELECT name, total_beds, team_beds FROM ward ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query wards: %w", err)
	}
	defer rows.Close()

	var wards []db.WardRow
	for rows.Next() {
		var w db.WardRow
		if err := rows.Scan(&w.Name, &w.TotalBeds, &w.TeamBeds); err != nil {
			return nil, fmt.Errorf("failed to scan ward: %w", err)
		}
		wards = append(wards, w)
	}
	return wards, rows.Err()
}

// GetSpecialPrograms retrieves all special program records
func (d *DB) GetSpecialPrograms(ctx context.Context) ([]db.ProgramRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, team, schedule, slots, therapist_ids, preferred_pca_ids
		FROM special_program
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query special programs: %w", err)
	}
	defer rows.Close()

	var programs []db.ProgramRow
	for rows.Next() {
		var p db.ProgramRow
		if err := rows.Scan(&p.ID, &p.Name, &p.Team, &p.Schedule, &p.Slots, &p.TherapistIDs, &p.PreferredPCAIDs); err != nil {
			return nil, fmt.Errorf("failed to scan special program: %w", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// GetPCAPreferences retrieves all team preference records
func (d *DB) GetPCAPreferences(ctx context.Context) ([]db.PreferenceRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT team, preferred_pca_ids, preferred_slots, floor
		FROM pca_preference
		ORDER BY team
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pca preferences: %w", err)
	}
	defer rows.Close()

	var prefs []db.PreferenceRow
	for rows.Next() {
		var p db.PreferenceRow
		if err := rows.Scan(&p.Team, &p.PreferredPCAIDs, &p.PreferredSlots, &p.Floor); err != nil {
			return nil, fmt.Errorf("failed to scan pca preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// GetSPTAllocations retrieves all senior therapist placements
func (d *DB) GetSPTAllocations(ctx context.Context) ([]db.SPTRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT staff_id, teams, weekdays, fte, slots
		FROM spt_allocation
		ORDER BY staff_id, weekdays
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query spt allocations: %w", err)
	}
	defer rows.Close()

	var spt []db.SPTRow
	for rows.Next() {
		var a db.SPTRow
		if err := rows.Scan(&a.StaffID, &a.Teams, &a.Weekdays, &a.FTE, &a.Slots); err != nil {
			return nil, fmt.Errorf("failed to scan spt allocation: %w", err)
		}
		spt = append(spt, a)
	}
	return spt, rows.Err()
}

// ReplaceRoster swaps every roster table for the given rows in one transaction
func (d *DB) ReplaceRoster(ctx context.Context, roster db.Roster) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"staff", "ward", "special_program", "pca_preference", "spt_allocation"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for _, s := range roster.Staff {
			status := s.Status
			if status == "" {
				status = "active"
			}
			var buffer sql.NullFloat64
			if s.BufferFTE != nil {
				buffer = sql.NullFloat64{Float64: *s.BufferFTE, Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO staff (id, name, rank, team, floating, floor_pca, status, buffer_fte)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, s.ID, s.Name, s.Rank, nullString(s.Team), s.Floating, s.FloorPCA, status, buffer)
			if err != nil {
				return fmt.Errorf("failed to insert staff %s: %w", s.ID, err)
			}
		}
		for _, w := range roster.Wards {
			_, err := tx.ExecContext(ctx, `INSERT INTO ward (name, total_beds, team_beds) VALUES (?, ?, ?)`,
				w.Name, w.TotalBeds, w.TeamBeds)
			if err != nil {
				return fmt.Errorf("failed to insert ward %s: %w", w.Name, err)
			}
		}
		for _, p := range roster.Programs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO special_program (id, name, team, schedule, slots, therapist_ids, preferred_pca_ids)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, p.ID, p.Name, p.Team, p.Schedule, p.Slots, p.TherapistIDs, p.PreferredPCAIDs)
			if err != nil {
				return fmt.Errorf("failed to insert special program %s: %w", p.ID, err)
			}
		}
		for _, p := range roster.Preferences {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO pca_preference (team, preferred_pca_ids, preferred_slots, floor)
				VALUES (?, ?, ?, ?)
			`, p.Team, p.PreferredPCAIDs, p.PreferredSlots, p.Floor)
			if err != nil {
				return fmt.Errorf("failed to insert pca preference %s: %w", p.Team, err)
			}
		}
		for _, a := range roster.SPT {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO spt_allocation (staff_id, teams, weekdays, fte, slots)
				VALUES (?, ?, ?, ?, ?)
			`, a.StaffID, a.Teams, a.Weekdays, a.FTE, a.Slots)
			if err != nil {
				return fmt.Errorf("failed to insert spt allocation %s: %w", a.StaffID, err)
			}
		}
		return nil
	})
}
