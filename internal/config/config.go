package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ProgramSchedule replaces the recurrence of a special program from the roster
type ProgramSchedule struct {
	ProgramID string `yaml:"programID" validate:"required"`
	RRule     string `yaml:"rrule" validate:"required"`
}

// Config represents the application configuration
type Config struct {
	DatabaseDriver string `yaml:"databaseDriver" validate:"required,oneof=postgres sqlite"`
	DatabaseURL    string `yaml:"databaseURL,omitempty" validate:"required_if=DatabaseDriver postgres"`
	SQLitePath     string `yaml:"sqlitePath,omitempty" validate:"required_if=DatabaseDriver sqlite"`

	// RosterSheetID reads the roster from a spreadsheet instead of the database
	RosterSheetID string `yaml:"rosterSheetID,omitempty"`
	// PublishSheetID receives a tab per published day
	PublishSheetID string `yaml:"publishSheetID,omitempty"`
	// OAuthClientFile overrides the oauthClient.<env>.json lookup
	OAuthClientFile string `yaml:"oauthClientFile,omitempty"`

	AddOnTeam            string            `yaml:"addOnTeam,omitempty" validate:"omitempty,oneof=FO SMM SFM CPPC MC GMC NSM DRO"`
	AddOnFTE             *float64          `yaml:"addOnFTE,omitempty" validate:"omitempty,min=0,max=1"`
	BufferPreassignRatio float64           `yaml:"bufferPreassignRatio,omitempty" validate:"min=0,max=1"`
	ExtraCoverage        bool              `yaml:"extraCoverage,omitempty"`
	TeamOrder            []string          `yaml:"teamOrder,omitempty" validate:"unique,dive,oneof=FO SMM SFM CPPC MC GMC NSM DRO"`
	Criteria             []string          `yaml:"criteria,omitempty" validate:"dive,oneof=PreferredPCA Floor Coverage"`
	ProgramSchedules     []ProgramSchedule `yaml:"programSchedules,omitempty" validate:"dive"`

	APIAddr           string   `yaml:"apiAddr,omitempty"`
	APIAllowedOrigins []string `yaml:"apiAllowedOrigins,omitempty" validate:"dive,url"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// LoadWithEnv loads rehab_config.<env>.yaml after reading any .env file.
// DATABASE_URL in the environment takes precedence over the file.
func LoadWithEnv(env string) (*Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	name := "rehab_config.yaml"
	if env != "" {
		name = "rehab_config." + env + ".yaml"
	}
	configPath, err := findFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	for i, s := range cfg.ProgramSchedules {
		if _, err := rrule.StrToRRule(s.RRule); err != nil {
			return fmt.Errorf("invalid rrule in programSchedules[%d]: %w", i, err)
		}
	}

	return nil
}

// Settings converts the allocation options into workflow settings, falling
// back to the defaults for anything not configured
func (c *Config) Settings() workflow.Settings {
	s := workflow.DefaultSettings()
	if c.AddOnTeam != "" {
		s.AddOnTeam = model.Team(c.AddOnTeam)
	}
	if c.AddOnFTE != nil {
		s.AddOnFTE = *c.AddOnFTE
	}
	s.BufferPreassignRatio = c.BufferPreassignRatio
	s.ExtraCoverage = c.ExtraCoverage
	for _, t := range c.TeamOrder {
		s.TeamOrder = append(s.TeamOrder, model.Team(t))
	}
	s.Criteria = c.Criteria
	return s
}

// ScheduleOverrides maps program ids to their configured recurrence
func (c *Config) ScheduleOverrides() map[string]string {
	out := make(map[string]string, len(c.ProgramSchedules))
	for _, s := range c.ProgramSchedules {
		out[s.ProgramID] = s.RRule
	}
	return out
}

// findFile looks for name in the current directory and then the home
// directory
func findFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homePath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homePath); err == nil {
		return homePath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", name)
}
