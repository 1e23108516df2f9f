package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taxdesk/taxdesk/cmd/taxapi/cmd/cmdutil"
	"github.com/taxdesk/taxdesk/cmd/taxapi/cmd/sessions"
	"github.com/taxdesk/taxdesk/cmd/taxapi/cmd/token"
	"github.com/taxdesk/taxdesk/cmd/taxapi/cmd/users"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/config"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taxapi",
	Short: "taxdesk API server",
	Long: `taxapi serves the taxdesk HTTP API. Requests are authenticated from a
server-side session, the framework session token or the "token" cookie, in that order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logger, err = logging.New(cfg.Logging, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to configure logging: %w", err)
		}

		cmd.SetContext(cmdutil.WithEnv(cmd.Context(), &cmdutil.Env{Config: cfg, Logger: logger}))
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: TAXAPI_DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: TAXAPI_SERVER_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: TAXAPI_DEBUG)")

	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("db-url"))
	_ = viper.BindPFlag("server_addr", rootCmd.PersistentFlags().Lookup("server-addr"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	// Add subcommands
	rootCmd.AddCommand(users.UsersCmd)
	rootCmd.AddCommand(token.TokenCmd)
	rootCmd.AddCommand(sessions.SessionsCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
