package users

import "github.com/spf13/cobra"

// UsersCmd is the parent command for account management operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage taxdesk accounts",
	Long:  `Commands for managing taxdesk accounts directly from the server.`,
}

func init() {
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the user")
	createCmd.Flags().StringVar(&nameFlag, "name", "", "Display name of the user")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the user (use --stdin to avoid shell history)")
	createCmd.Flags().StringVar(&roleFlag, "role", "user", "Role: user, admin or regionAdmin")
	createCmd.Flags().StringVar(&regionFlag, "region", "", "Region assigned to a regionAdmin")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")

	listCmd.Flags().StringVar(&listRoleFlag, "role", "", "Only list users with this role")
	listCmd.Flags().StringVar(&listRegionFlag, "region", "", "Only list users in this region")

	disableCmd.Flags().BoolVar(&enableFlag, "enable", false, "Re-enable the account instead of disabling it")

	UsersCmd.AddCommand(createCmd)
	UsersCmd.AddCommand(listCmd)
	UsersCmd.AddCommand(disableCmd)
}
