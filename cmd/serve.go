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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jalal-stack/cyberaudit/internal/api"
	"github.com/jalal-stack/cyberaudit/internal/certificate"
	infraapi "github.com/jalal-stack/cyberaudit/internal/infrastructure/api"
	jsonstore "github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/json"
	"github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/memory"
	"github.com/jalal-stack/cyberaudit/internal/orchestrator"
	"github.com/jalal-stack/cyberaudit/internal/probe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan engine as a REST API service",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		authToken := viper.GetString("auth_token")
		shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
		corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origins")
		rateLimit, _ := cmd.Flags().GetInt("rate-limit")
		rateBurst, _ := cmd.Flags().GetInt("rate-burst")

		defer func() {
			_ = logger.Sync()
		}()

		archive, err := jsonstore.NewArchive(resultsDir)
		if err != nil {
			return fmt.Errorf("open results archive: %w", err)
		}
		store := memory.NewStore()
		orch := orchestrator.New(engineSettings(nil), store, probe.NewDefaultRegistry(logger), archive, logger)

		issuer, err := certificate.NewIssuer(signingSecret(), verifyBaseURL())
		if err != nil {
			return fmt.Errorf("configure certificate issuer: %w", err)
		}

		server := api.NewServer(api.Config{
			Scans:       infraapi.NewScanManager(orch, store, issuer, archive, logger),
			AuthToken:   authToken,
			Logger:      logger,
			CORSOrigins: corsOrigins,
			RateLimit:   rateLimit,
			RateBurst:   rateBurst,
		})

		httpServer := &http.Server{
			Addr:         addr,
			Handler:      server,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		// Channel to listen for errors from the server
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("%s API server listening on %s (results dir: %s)\n", colorInfo("→"), addr, resultsDir)
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Block until we receive a signal or an error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				// Force close if graceful shutdown fails
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}

			// Let accepted scans finalize and archive before the process
			// exits. Jobs are deadline-bounded, so this returns.
			if err := orch.Drain(ctx); err != nil {
				fmt.Printf("%s Shutdown budget spent with scans still in flight\n", colorWarn("!"))
			} else {
				fmt.Printf("%s Server shutdown complete\n", colorInfo("✓"))
			}
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Address for the API server")
	serveCmd.Flags().String("auth-token", "", "Optional shared secret for API requests")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", 10, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", 20, "Rate limit burst size")
	_ = viper.BindPFlag("auth_token", serveCmd.Flags().Lookup("auth-token"))
}
