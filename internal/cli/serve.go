package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/datallboy/gofichier/internal/api"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind the HTTP control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, svc, err := bootstrap(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.Store.Close()

			if err := svc.Start(ctx); err != nil {
				return fmt.Errorf("service failed to start: %w", err)
			}

			e := echo.New()
			api.RegisterRoutes(e, a, svc)

			server := &http.Server{
				Addr:              ":" + a.Config.Port,
				Handler:           e,
				ReadHeaderTimeout: 10 * time.Second,
				ErrorLog:          log.New(a.Logger, "http: ", 0),
			}

			// Use an error channel to capture Serve() issues
			errChan := make(chan error, 1)
			go func() {
				a.Logger.Info("Listening on %s", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errChan <- fmt.Errorf("http server error: %w", err)
				}
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				a.Logger.Info("Shutting down gracefully...")
			case serveErr = <-errChan:
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			// Snapshot first; it also ends open event streams
			snapErr := svc.Shutdown(shutdownCtx)
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.Logger.Warn("HTTP shutdown: %v", err)
			}

			return errors.Join(serveErr, snapErr)
		},
	}
}
