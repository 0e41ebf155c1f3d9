package main

import (
	"fmt"
	"strings"

	"github.com/artpar/actionkit/config"
	"github.com/artpar/actionkit/core/formatter"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the actionkit configuration.

Checks:
  - YAML syntax is valid
  - Values are in range and user password hashes are bcrypt hashes
  - Every configured parser and renderer exists

Without a config file the environment configuration is validated.

Examples:
  actionkit validate
  actionkit validate --config /etc/actionkit/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := configPath()

	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		fmt.Fprintf(out, "Validating environment configuration (%s not found)...\n\n", cfgFile)
		cfg, err = config.LoadFromEnv()
	} else {
		fmt.Fprintf(out, "Validating %s...\n\n", path)
		cfg, err = config.Load(path)
	}
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	if _, err := formatter.Parsers(cfg.Negotiation.Parsers...); err != nil {
		fmt.Fprintf(out, "  %s Parsers\n", crossMark)
		return fmt.Errorf("negotiation.parsers: %w", err)
	}
	if _, err := formatter.Renderers(cfg.Negotiation.Renderers...); err != nil {
		fmt.Fprintf(out, "  %s Renderers\n", crossMark)
		return fmt.Errorf("negotiation.renderers: %w", err)
	}

	// Show config summary
	fmt.Fprintf(out, "  %s Listen: %s\n", checkMark, cfg.Server.Addr())
	fmt.Fprintf(out, "  %s Parsers: %s\n", checkMark, strings.Join(cfg.Negotiation.Parsers, ", "))
	fmt.Fprintf(out, "  %s Renderers: %s\n", checkMark, strings.Join(cfg.Negotiation.Renderers, ", "))
	fmt.Fprintf(out, "  %s Users: %d\n", checkMark, len(cfg.Auth.Users))
	if cfg.Throttle.Enabled {
		fmt.Fprintf(out, "  %s Throttle: %d per %s (burst %d)\n", checkMark, cfg.Throttle.Limit, cfg.Throttle.Window, cfg.Throttle.Burst)
	} else {
		fmt.Fprintf(out, "  %s Throttle: disabled\n", checkMark)
	}
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  %s Metrics: %s\n", checkMark, cfg.Metrics.Path)
	}
	if cfg.Auth.JWT.Secret == "" {
		fmt.Fprintf(out, "  %s JWT secret not set; tokens will not survive a restart\n", warnMark)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
	warnMark  = "\033[33m!\033[0m"
)
