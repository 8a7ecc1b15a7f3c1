package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jakechorley/rehab-roster/pkg/api"
)

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the day editor API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Cfg.APIAddr
			}

			registry := api.NewRegistry(app.Database, app.Roster, app.Cfg, app.Logger)
			router := api.NewRouter(api.NewHandler(registry, app.Logger), app.Cfg.APIAllowedOrigins)

			ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return api.Serve(ctx, addr, router, app.Logger)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, then "+api.DefaultAddr+")")

	return cmd
}
