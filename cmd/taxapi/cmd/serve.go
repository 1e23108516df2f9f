package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/cmd/taxapi/cmd/cmdutil"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/bunx"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/middleware"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/migrations"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/server"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/telemetry"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taxapi server",
	Long:  `Starts the HTTP server with the authentication, account and admin endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(flushCtx); err != nil {
				logger.WithError(err).Warn("telemetry shutdown failed")
			}
		}()

		dbMetrics, err := telemetry.NewDatabaseMetrics()
		if err != nil {
			return fmt.Errorf("failed to create database metrics: %w", err)
		}
		authMetrics, err := telemetry.NewAuthMetrics()
		if err != nil {
			return fmt.Errorf("failed to create auth metrics: %w", err)
		}

		stores, err := cmdutil.OpenStores(ctx, cfg, bunx.WithQueryHook(dbMetrics))
		if err != nil {
			return err
		}
		defer stores.Close()

		logger.WithFields(logrus.Fields{
			"database": string(bunx.DetectDatabaseType(cfg.DatabaseURL)),
			"sessions": cfg.Sessions.Backend,
		}).Info("connected to stores")

		if serveMigrate {
			group, err := migrations.Apply(ctx, stores.DB)
			if err != nil {
				return err
			}
			logger.WithField("group", group.ID).Info("migrations applied")
		}

		directory := iam.NewCachedUserDirectory(stores.Users, cfg.Directory.CacheSize, cfg.Directory.CacheTTL)

		iamService, err := iam.NewIAMService(
			iam.ServiceDependencies{
				Users:     stores.Users,
				Sessions:  stores.Sessions,
				Directory: directory,
				Metrics:   authMetrics,
				Logger:    logger,
			},
			iam.NewAuthenticatorConfig(cfg),
		)
		if err != nil {
			return fmt.Errorf("create IAM service: %w", err)
		}
		logger.Info("IAM service initialized with authenticators")

		healthHandler := func(w http.ResponseWriter, r *http.Request) {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := stores.DB.PingContext(pingCtx); err != nil {
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
			middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}

		// Wrap router with h2c for HTTP/2 cleartext support behind proxies
		handler := server.NewH2CHandler(server.RouterOptions{
			IAMService:    iamService,
			Logger:        logger,
			SecureCookies: cfg.Auth.SecureCookies,
			Diagnostics:   cfg.Diagnostics.Enabled,
			HealthHandler: healthHandler,
		})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			logger.WithFields(logrus.Fields{
				"addr": cfg.ServerAddr,
				"url":  cfg.ServerURL,
			}).Info("starting server")
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.WithField("signal", sig.String()).Info("shutting down gracefully")

			// Graceful shutdown with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logger.Info("server stopped")
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply pending database migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
