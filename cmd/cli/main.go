package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/cmd/cli/commands"
	"github.com/jakechorley/rehab-roster/internal/config"
	"github.com/jakechorley/rehab-roster/pkg/clients/sheetsclient"
	"github.com/jakechorley/rehab-roster/pkg/db"
	"github.com/jakechorley/rehab-roster/pkg/postgres"
	"github.com/jakechorley/rehab-roster/pkg/sheetssql"
	"github.com/jakechorley/rehab-roster/pkg/sqlite"
	"github.com/jakechorley/rehab-roster/pkg/utils/logging"
)

var env string

func main() {
	app := &commands.AppContext{
		Ctx:   context.Background(),
		Input: bufio.NewReader(os.Stdin),
	}

	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "Rehab Roster CLI - Allocate rehab staff to teams for a day",
		Long:  `A CLI tool for running the daily rehab staff allocation: leave, therapist and PCA placement, floating PCA and bed relieving.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(app)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.Logger != nil {
				app.Logger.Sync()
			}
			if app.Database != nil {
				app.Database.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")

	rootCmd.AddCommand(commands.RunDayCmd(app))
	rootCmd.AddCommand(commands.ShowDayCmd(app))
	rootCmd.AddCommand(commands.CopyScheduleCmd(app))
	rootCmd.AddCommand(commands.ExportCmd(app))
	rootCmd.AddCommand(commands.PublishCmd(app))
	rootCmd.AddCommand(commands.ListStaffCmd(app))
	rootCmd.AddCommand(commands.ListSchedulesCmd(app))
	rootCmd.AddCommand(commands.ImportRosterCmd(app))
	rootCmd.AddCommand(commands.SeedRosterSheetCmd(app))
	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, database and, when a spreadsheet is
// configured, the sheets client
func initApp(app *commands.AppContext) error {
	var err error
	app.Env = env

	app.Logger, err = logging.InitLogger(env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Info("Starting application", zap.String("environment", env))

	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully", zap.String("driver", app.Cfg.DatabaseDriver))

	app.Logger.Info("Connecting to database")
	app.Database, err = openDatabase(app.Ctx, app.Cfg, app.Logger)
	if err != nil {
		return err
	}
	app.Roster = app.Database
	app.Logger.Info("Database initialized successfully")

	if app.Cfg.RosterSheetID == "" && app.Cfg.PublishSheetID == "" {
		app.Logger.Debug("No spreadsheets configured, skipping sheets client")
		return nil
	}

	app.Logger.Info("Loading OAuth client configuration")
	oauthCfg, err := config.LoadOAuthClient(app.Cfg, env)
	if err != nil {
		return fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	app.Logger.Info("Initializing sheets client")
	app.SheetsClient, err = sheetsclient.NewClient(app.Ctx, oauthCfg, env, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to create sheets client: %w", err)
	}
	app.Logger.Debug("Sheets client initialized successfully")

	if app.Cfg.RosterSheetID != "" {
		schema, err := db.RosterSchema()
		if err != nil {
			return fmt.Errorf("failed to create roster schema: %w", err)
		}
		app.Logger.Debug("Roster schema created", zap.Int("tables", len(schema.Tables)))

		app.Logger.Info("Connecting to roster sheet", zap.String("spreadsheet_id", app.Cfg.RosterSheetID))
		ssqlDB, err := sheetssql.NewDB(app.SheetsClient, app.Cfg.RosterSheetID, schema)
		if err != nil {
			return fmt.Errorf("failed to initialize roster sheet: %w", err)
		}
		app.SheetsRoster = db.NewSheetsRoster(ssqlDB)
		app.Roster = app.SheetsRoster
		app.Logger.Info("Roster sheet initialized successfully")
	}

	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (db.Database, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		pg, err := postgres.NewDB(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return pg, nil
	case config.DriverSQLite:
		lite, err := sqlite.NewDB(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return lite, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
}
