package main

import (
	"fmt"

	"github.com/artpar/actionkit/adapters/auth"
	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "gen-secret",
	Short: "Print a random secret for auth.jwt.secret",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), auth.GenerateSecret())
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
}
