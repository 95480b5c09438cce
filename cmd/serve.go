package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket service",
		Long: `Starts the control API, the progress WebSocket, and any configured
schedules. Runs left "running" by a previous process are marked failed on
startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
