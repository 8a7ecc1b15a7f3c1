package commands

import (
	"bufio"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/internal/config"
	"github.com/jakechorley/rehab-roster/pkg/clients/sheetsclient"
	"github.com/jakechorley/rehab-roster/pkg/db"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg      *config.Config
	Env      string
	Database db.Database
	// Roster is the live roster: the roster sheet when one is configured,
	// otherwise the database
	Roster       db.RosterStore
	SheetsRoster *db.SheetsRoster
	// SheetsClient is nil when no spreadsheet is configured
	SheetsClient *sheetsclient.Client
	Logger       *zap.Logger
	Ctx          context.Context
	// Input is shared by the interactive session and escalation prompts
	Input *bufio.Reader
}

func (app *AppContext) requireSheets(what string) error {
	if app.SheetsClient == nil {
		return fmt.Errorf("%s needs a spreadsheet in the %s config", what, app.Env)
	}
	return nil
}
