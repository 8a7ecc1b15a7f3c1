package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/db"
)

// RosterReplacer defines the store operation needed to import a roster
type RosterReplacer interface {
	ReplaceRoster(ctx context.Context, roster db.Roster) error
}

// RosterAppender defines the sheet operation needed to seed a roster spreadsheet
type RosterAppender interface {
	AppendRoster(roster db.Roster) error
}

// RosterCounts summarises a copied roster
type RosterCounts struct {
	Staff       int
	Wards       int
	Programs    int
	Preferences int
	SPT         int
}

func countRoster(r db.Roster) RosterCounts {
	return RosterCounts{
		Staff:       len(r.Staff),
		Wards:       len(r.Wards),
		Programs:    len(r.Programs),
		Preferences: len(r.Preferences),
		SPT:         len(r.SPT),
	}
}

// readValidRoster reads a roster and rejects it if any row is invalid
func readValidRoster(ctx context.Context, source db.RosterStore, logger *zap.Logger) (db.Roster, error) {
	logger.Debug("Reading roster")
	roster, err := db.ReadRoster(ctx, source)
	if err != nil {
		return db.Roster{}, fmt.Errorf("failed to read roster: %w", err)
	}

	logger.Debug("Validating roster", zap.Int("staff", len(roster.Staff)))
	if _, err := roster.Config(); err != nil {
		return db.Roster{}, fmt.Errorf("roster is invalid: %w", err)
	}
	return roster, nil
}

// ImportRoster replaces the stored roster with the one read from source.
// Nothing is replaced if any source row is invalid.
func ImportRoster(ctx context.Context, source db.RosterStore, target RosterReplacer, logger *zap.Logger) (RosterCounts, error) {
	roster, err := readValidRoster(ctx, source, logger)
	if err != nil {
		return RosterCounts{}, err
	}

	if err := target.ReplaceRoster(ctx, roster); err != nil {
		return RosterCounts{}, fmt.Errorf("failed to replace roster: %w", err)
	}

	counts := countRoster(roster)
	logger.Info("Imported roster",
		zap.Int("staff", counts.Staff),
		zap.Int("wards", counts.Wards),
		zap.Int("programs", counts.Programs))

	return counts, nil
}

// SeedRosterSheet appends the stored roster to a roster spreadsheet
func SeedRosterSheet(ctx context.Context, source db.RosterStore, sheet RosterAppender, logger *zap.Logger) (RosterCounts, error) {
	roster, err := readValidRoster(ctx, source, logger)
	if err != nil {
		return RosterCounts{}, err
	}

	if err := sheet.AppendRoster(roster); err != nil {
		return RosterCounts{}, fmt.Errorf("failed to append roster to sheet: %w", err)
	}

	counts := countRoster(roster)
	logger.Info("Seeded roster sheet", zap.Int("staff", counts.Staff), zap.Int("wards", counts.Wards))
	return counts, nil
}
