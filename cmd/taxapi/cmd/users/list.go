package users

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/cmd/taxapi/cmd/cmdutil"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/repository"
)

var (
	listRoleFlag   string
	listRegionFlag string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
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

		users, err := stores.Users.List(cmd.Context(), repository.UserFilter{
			Role:   listRoleFlag,
			Region: listRegionFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tROLE\tREGION\tDISABLED")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", u.ID, u.Email, u.Role, u.RegionValue(), u.Disabled())
		}
		return w.Flush()
	},
}
