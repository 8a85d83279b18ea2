package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"laptop-lending/internal/auth"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token signed with AUTH_JWT_SECRET",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is required")
		}
		role, ok := auth.NormalizeRole(tokenRole)
		if !ok {
			return fmt.Errorf("invalid role %q", tokenRole)
		}
		token, err := auth.IssueJWT([]byte(cfg.Auth.JWTSecret), tokenSubject, role, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject, usually a staff id")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleOperator), "Role: viewer, operator or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")
}
