package users

import (
	"bufio"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/cmd/taxapi/cmd/cmdutil"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/repository"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

var (
	emailFlag    string
	nameFlag     string
	passwordFlag string
	roleFlag     string
	regionFlag   string
	stdinFlag    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		if _, err := mail.ParseAddress(emailFlag); err != nil {
			return fmt.Errorf("invalid email format: %w", err)
		}

		role, err := iam.ParseRole(roleFlag)
		if err != nil {
			return fmt.Errorf("invalid --role %q: valid roles are %s, %s, %s",
				roleFlag, iam.RoleUser, iam.RoleAdmin, iam.RoleRegionAdmin)
		}
		region := strings.TrimSpace(regionFlag)
		if region != "" && role != iam.RoleRegionAdmin {
			return fmt.Errorf("--region only applies to role %s", iam.RoleRegionAdmin)
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
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

		// Check if email already exists
		existing, err := stores.Users.GetByEmail(ctx, emailFlag)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to check email uniqueness: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("user with email %q already exists", emailFlag)
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

		user := &models.User{
			Email:        emailFlag,
			Name:         nameFlag,
			Role:         role.String(),
			PasswordHash: &hash,
		}
		if region != "" {
			user.Region = &region
		}
		if err := stores.Users.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		if role == iam.RoleRegionAdmin && region == "" {
			env.Logger.WithField("user_id", user.ID).
				Warn("regionAdmin created without a region; region-scoped requests will be refused until one is set")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "User created successfully!")
		fmt.Fprintln(out, "----------------------------------------")
		fmt.Fprintf(out, "User ID: %s\n", user.ID)
		fmt.Fprintf(out, "Email: %s\n", user.Email)
		fmt.Fprintf(out, "Role: %s\n", role)
		if region != "" {
			fmt.Fprintf(out, "Region: %s\n", region)
		}
		fmt.Fprintln(out, "----------------------------------------")
		return nil
	},
}
