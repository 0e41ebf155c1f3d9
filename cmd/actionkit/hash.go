package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/actionkit/adapters/hasher"
	"github.com/spf13/cobra"
)

var hashCost int

var hashCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for auth.users",
	Long: `Print a bcrypt hash to use as auth.users.<name>.password_hash.

The password is read from the first argument, or from the first line of
stdin when no argument is given.

Examples:
  actionkit hash-password s3cret
  echo s3cret | actionkit hash-password --cost 12`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHash,
}

func init() {
	rootCmd.AddCommand(hashCmd)

	hashCmd.Flags().IntVar(&hashCost, "cost", 0, "bcrypt cost (default 10)")
}

func runHash(cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := hasher.NewBcrypt(hashCost).Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(hash))
	return nil
}
