package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	applicationName = "rehab-roster"

	// migrationLockKey is the advisory lock held while migrating, so a CLI
	// run and the API server starting together apply each migration once
	migrationLockKey int64 = 0x72656861627273
)

// DB provides roster and schedule storage on PostgreSQL
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewDB connects to PostgreSQL. Call RunMigrations before first use.
func NewDB(ctx context.Context, connString string, logger *zap.Logger) (*DB, error) {
	cfg, err := poolConfig(connString)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Debug("Connected to postgres",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database))

	return &DB{pool: pool, logger: logger}, nil
}

// poolConfig parses connString and names the connections after the
// application unless the string already names them
func poolConfig(connString string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.ConnConfig.RuntimeParams["application_name"] == "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return cfg, nil
}

// Close closes the database connection pool
func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// withTx runs fn in a transaction that is committed when fn returns nil
func (d *DB) withTx(ctx context.Context, what string, fn func(pgx.Tx) error) error {
	if err := pgx.BeginFunc(ctx, d.pool, fn); err != nil {
		return fmt.Errorf("failed to save %s: %w", what, err)
	}
	return nil
}

// migration is one numbered file under migrations/
type migration struct {
	version int
	name    string
	sql     string
}

var migrationFile = regexp.MustCompile(`^(\d{3})_([a-z0-9_]+)\.sql$`)

// loadMigrations reads NNN_name.sql files from fsys in version order.
// Versions must run 1, 2, 3... with no gaps or repeats.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		m := migrationFile.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, fmt.Errorf("migration %s is not named NNN_name.sql", entry.Name())
		}
		version, _ := strconv.Atoi(m[1])

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, migration{version: version, name: m[2], sql: string(content)})
	}

	slices.SortFunc(migrations, func(a, b migration) int { return a.version - b.version })
	for i, m := range migrations {
		if m.version != i+1 {
			return nil, fmt.Errorf("migration %03d_%s is out of sequence, expected version %d", m.version, m.name, i+1)
		}
	}
	return migrations, nil
}

// RunMigrations applies every embedded migration the database has not seen,
// each in its own transaction. Applied versions are kept in
// rehab_schema_migrations.
func (d *DB) RunMigrations(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	migrations, err := loadMigrations(sub)
	if err != nil {
		return err
	}

	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	// Session level lock, released before the connection goes back to the pool
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rehab_schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create rehab_schema_migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM rehab_schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return fmt.Errorf("failed to scan applied migrations: %w", err)
	}

	if newest := slices.Max(append(applied, 0)); newest > len(migrations) {
		d.logger.Warn("Database schema is newer than this build",
			zap.Int("database_version", newest),
			zap.Int("known_version", len(migrations)))
	}

	for _, m := range migrations {
		if slices.Contains(applied, m.version) {
			continue
		}

		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO rehab_schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %03d_%s: %w", m.version, m.name, err)
		}
		d.logger.Info("Applied migration", zap.Int("version", m.version), zap.String("name", m.name))
	}

	d.logger.Debug("Schema up to date", zap.Int("version", len(migrations)))
	return nil
}
