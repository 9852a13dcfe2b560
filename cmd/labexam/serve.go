package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/labexam/internal/cli"
	httpAdapter "github.com/aretw0/labexam/pkg/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control API",
	Long: `Starts the workbench as an HTTP server: a JSON API over the catalog, the
active run, grading and submission, a server-sent event stream of grading
progress and the Prometheus metrics endpoint.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		ctx := cmd.Context()
		addr, _ := cmd.Flags().GetString("addr")
		if !cmd.Flags().Changed("addr") {
			addr = settings.ServeAddr
		}
		app.Quiet = true

		if _, err := app.Bench.Resume(ctx); err != nil {
			app.Logger.Debug("no saved run to resume", "err", err)
		}

		api := httpAdapter.New(app.Bench,
			httpAdapter.WithLogger(app.Logger),
			httpAdapter.WithTracker(app.Tracker),
			httpAdapter.WithObserver(app.Metrics),
			httpAdapter.WithMetricsHandler(app.Metrics.Handler()),
			httpAdapter.WithBaseContext(ctx),
		)
		defer api.Close()

		srv := &http.Server{
			Addr:              addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			app.Logger.Info("labexam server listening", "address", srv.Addr, "api", settings.APIURL)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-ctx.Done():
			app.Logger.Info("shutting down")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
				if err := srv.Close(); err != nil {
					app.Logger.Error("could not close server", "err", err)
				}
			}
			// A running submission keeps its in-flight grade calls.
			api.Wait()
			app.Logger.Info("labexam server stopped gracefully")
			return nil
		}
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "address to listen on (default from serve_addr)")
}
