package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		subject string
		id      string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a signed token for a client or staff member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(id); err != nil {
				return fmt.Errorf("--id must be a uuid: %w", err)
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			subjectType := domain.SubjectType(strings.ToUpper(subject))
			var staffRole *domain.StaffRole
			if subjectType == domain.SubjectTypeStaff {
				parsed, ok := auth.ParseRole(role)
				if !ok {
					return fmt.Errorf("--role must be agent, team_lead or admin for staff tokens")
				}
				staffRole = &parsed
			}

			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expiresAt, err := tokens.GenerateToken(id, subjectType, staffRole)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token=%s\n", token)
			fmt.Fprintf(out, "expires_at=%s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "client", "client or staff")
	cmd.Flags().StringVar(&id, "id", "", "subject uuid")
	cmd.Flags().StringVar(&role, "role", "", "staff role: agent, team_lead or admin")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
