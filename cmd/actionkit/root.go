package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "actionkit",
	Short: "HTTP action pipeline with schemas, filters and content negotiation",
	Long: `actionkit serves HTTP actions through an ordered filter pipeline.

Every request passes authentication, authorization, resource, action,
exception and result filters around its handler. Request bodies are
parsed and validated by schemas, and responses are rendered in the
format the client accepts.

Quick start:
  actionkit hash-password        # Create a password hash for a user
  actionkit gen-secret           # Create a JWT signing secret
  actionkit validate             # Check the configuration
  actionkit serve                # Start the server

Inspection:
  actionkit routes               # List registered routes and their filters
  actionkit version              # Print version information`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "actionkit.yaml", "config file path")
}

// configPath returns the config file to load, or "" when it does not
// exist and the environment alone configures the server.
func configPath() string {
	if _, err := os.Stat(cfgFile); err != nil {
		return ""
	}
	return cfgFile
}
