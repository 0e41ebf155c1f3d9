package main

import (
	"fmt"

	"github.com/artpar/actionkit/bootstrap"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the actionkit HTTP server.

The server will:
  - Load configuration from actionkit.yaml (or --config)
  - Or load configuration from ACTIONKIT_* environment variables
  - Reload logging and throttle settings when the file changes or on SIGHUP
  - Shut down gracefully on SIGINT or SIGTERM

Environment variables (for Docker deployments):
  ACTIONKIT_SERVER_PORT       - Server port (default: 8080)
  ACTIONKIT_LOG_LEVEL         - Log level: debug, info, warn, error
  ACTIONKIT_JWT_SECRET        - Secret for signing bearer tokens
  ACTIONKIT_THROTTLE_ENABLED  - Enable the global throttle
  ACTIONKIT_METRICS_ENABLED   - Enable the metrics endpoint

Examples:
  actionkit serve
  actionkit serve --config /etc/actionkit/config.yaml

  # Docker (env vars only):
  ACTIONKIT_JWT_SECRET=change-me actionkit serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	path := configPath()
	if path == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Running with environment variables (no config file)")
	}

	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: path,
		Build:      buildInfo(),
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
