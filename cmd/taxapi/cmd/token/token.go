package token

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/cmd/taxapi/cmd/cmdutil"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

// Token kinds accepted by --kind.
const (
	kindCustom    = "custom"
	kindFramework = "framework"
)

var (
	emailFlag string
	kindFlag  string
	ttlFlag   time.Duration
)

// TokenCmd is the parent command for credential minting.
var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint credentials for support and testing",
}

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Issue a token for an existing account",
	Long: `Issues a "token" cookie value (--kind custom, signed with auth.custom_token_secret)
or a framework session token (--kind framework, encrypted with auth.session_secret) for
the account with the given email. Role and region are read from the account.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}

		env, err := cmdutil.EnvFrom(cmd.Context())
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		cfg := env.Config

		stores, err := cmdutil.OpenStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer stores.Close()

		user, err := stores.Users.GetByEmail(ctx, emailFlag)
		if err != nil {
			return fmt.Errorf("failed to look up %q: %w", emailFlag, err)
		}
		if user.Disabled() {
			return fmt.Errorf("account %q is disabled", user.Email)
		}
		role, err := iam.ParseRole(user.Role)
		if err != nil {
			return fmt.Errorf("account %q: %w", user.Email, err)
		}

		ttl := ttlFlag
		var signed string
		switch kindFlag {
		case kindCustom:
			if ttl <= 0 {
				ttl = cfg.Auth.CustomTokenTTL
			}
			codec, err := auth.NewCustomTokenCodec(cfg.Auth.CustomTokenSecret)
			if err != nil {
				return err
			}
			signed, err = codec.Issue(auth.CustomTokenClaims{
				UserID: user.ID,
				Role:   role.String(),
				Region: user.RegionValue(),
				Email:  user.Email,
			}, ttl)
			if err != nil {
				return err
			}
		case kindFramework:
			if ttl <= 0 {
				ttl = cfg.Auth.SessionTTL
			}
			codec, err := auth.NewFrameworkTokenCodec(cfg.Auth.SessionSecret)
			if err != nil {
				return err
			}
			signed, err = codec.Encode(auth.FrameworkTokenClaims{
				Subject: user.ID,
				Role:    role.String(),
				Email:   user.Email,
				Name:    user.Name,
			}, ttl)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("--kind must be %q or %q", kindCustom, kindFramework)
		}

		env.Logger.WithFields(logrus.Fields{
			"user_id": user.ID,
			"kind":    kindFlag,
			"ttl":     ttl.String(),
		}).Info("minted token")

		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

func init() {
	mintCmd.Flags().StringVar(&emailFlag, "email", "", "Email of the account to mint a token for")
	mintCmd.Flags().StringVar(&kindFlag, "kind", kindCustom, "Token kind: custom or framework")
	mintCmd.Flags().DurationVar(&ttlFlag, "ttl", 0, "Token lifetime (defaults from configuration)")

	TokenCmd.AddCommand(mintCmd)
}
