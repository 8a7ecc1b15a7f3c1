package services

import (
	"github.com/jakechorley/rehab-roster/internal/config"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
)

// settingsFor returns the workflow settings of cfg, or the defaults when there is no config
func settingsFor(cfg *config.Config) workflow.Settings {
	if cfg == nil {
		return workflow.DefaultSettings()
	}
	return cfg.Settings()
}
