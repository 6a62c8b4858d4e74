package main

import (
	"fmt"
	"os"
	"path/filepath"

	"shipyard/internal/security"

	"github.com/spf13/cobra"
)

var tokenOutputFile string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a deploy token",
	Long: `Generate a cryptographically random deploy token.

By default the token is printed to stdout. With --output it is written to a
file with owner-only permissions, ready to be referenced as a token_file in
the configuration.

Example:
  shipyard token
  shipyard token --output /etc/shipyard/keywords.token`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenOutputFile, "output", "o", "", "Write the token to a file instead of stdout")
}

func runToken(cmd *cobra.Command, args []string) error {
	tok, err := security.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	if tokenOutputFile == "" {
		fmt.Println(tok)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(tokenOutputFile), 0750); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(tokenOutputFile, []byte(tok+"\n"), security.PermSecretFile); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	fmt.Printf("Token written to %s\n", tokenOutputFile)
	return nil
}
