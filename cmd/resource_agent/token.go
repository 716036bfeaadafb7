package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/resource-pipeline/internal/auth"
	"github.com/jonathan/resource-pipeline/internal/config"
	"github.com/jonathan/resource-pipeline/internal/server"
)

var (
	tokenUser string
	tokenRole string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token",
	Long: `Signs a bearer token for the HTTP API with JWT_SECRET.

Roles: viewer (read jobs), moderator (also trigger and review), admin.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User ID recorded as the reviewer (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleModerator, "Role: viewer, moderator or admin")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(_ *cobra.Command, _ []string) error {
	if !auth.ValidRole(tokenRole) {
		return fmt.Errorf("unknown role %q", tokenRole)
	}
	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to load JWT config: %w", err)
	}
	token, err := server.NewJWTService(jwtCfg).GenerateToken(tokenUser, tokenRole)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(os.Stdout, token)
	return nil
}
