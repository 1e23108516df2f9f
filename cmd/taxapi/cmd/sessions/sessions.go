package sessions

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/cmd/taxapi/cmd/cmdutil"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
)

var (
	emailFlag string
	ttlFlag   time.Duration
)

// SessionsCmd is the parent command for server-side session maintenance.
var SessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage server-side sessions",
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a session for an account and print its cookie",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		env, err := cmdutil.EnvFrom(cmd.Context())
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		stores, err := cmdutil.OpenStores(ctx, env.Config)
		if err != nil {
			return err
		}
		defer stores.Close()

		user, err := stores.Users.GetByEmail(ctx, emailFlag)
		if err != nil {
			return fmt.Errorf("failed to look up %q: %w", emailFlag, err)
		}

		token, tokenHash, err := auth.GenerateSessionToken()
		if err != nil {
			return err
		}
		ttl := ttlFlag
		if ttl <= 0 {
			ttl = env.Config.Auth.SessionTTL
		}
		session := &models.Session{
			UserID:    user.ID,
			TokenHash: tokenHash,
			ExpiresAt: time.Now().UTC().Add(ttl),
		}
		if err := stores.Sessions.Create(ctx, session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", auth.SessionCookie(env.Config.Auth.SecureCookies), token)
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke every session of an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		env, err := cmdutil.EnvFrom(cmd.Context())
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		stores, err := cmdutil.OpenStores(ctx, env.Config)
		if err != nil {
			return err
		}
		defer stores.Close()

		user, err := stores.Users.GetByEmail(ctx, emailFlag)
		if err != nil {
			return fmt.Errorf("failed to look up %q: %w", emailFlag, err)
		}
		if err := stores.Sessions.RevokeByUserID(ctx, user.ID); err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		env.Logger.WithField("user_id", user.ID).Info("sessions revoked")
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := cmdutil.EnvFrom(cmd.Context())
		if err != nil {
			return err
		}

		stores, err := cmdutil.OpenStores(cmd.Context(), env.Config)
		if err != nil {
			return err
		}
		defer stores.Close()

		n, err := stores.Sessions.DeleteExpired(cmd.Context(), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to prune sessions: %w", err)
		}
		env.Logger.WithField("deleted", n).Info("sessions pruned")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{createCmd, revokeCmd} {
		c.Flags().StringVar(&emailFlag, "email", "", "Email of the account")
	}
	createCmd.Flags().DurationVar(&ttlFlag, "ttl", 0, "Session lifetime (defaults to auth.session_ttl)")

	SessionsCmd.AddCommand(createCmd)
	SessionsCmd.AddCommand(revokeCmd)
	SessionsCmd.AddCommand(pruneCmd)
}
