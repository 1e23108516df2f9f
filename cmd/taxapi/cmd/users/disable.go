package users

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/cmd/taxapi/cmd/cmdutil"
)

var enableFlag bool

var disableCmd = &cobra.Command{
	Use:   "disable <email>",
	Short: "Disable an account and revoke its sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		user, err := stores.Users.GetByEmail(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to look up %q: %w", args[0], err)
		}

		if err := stores.Users.SetDisabled(ctx, user.ID, !enableFlag); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		if enableFlag {
			fmt.Fprintf(cmd.OutOrStdout(), "Enabled %s\n", user.Email)
			return nil
		}

		if err := stores.Sessions.RevokeByUserID(ctx, user.ID); err != nil {
			return fmt.Errorf("user disabled but session revocation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Disabled %s and revoked its sessions\n", user.Email)
		return nil
	},
}
