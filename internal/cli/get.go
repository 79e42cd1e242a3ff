package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datallboy/gofichier/internal/domain"
)

func newGetCmd(opts *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "get <link>...",
		Short: "Download links in the foreground, showing progress",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Progress owns stdout in this mode
			a, svc, err := bootstrap(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Store.Close()

			if err := svc.Start(ctx); err != nil {
				return err
			}

			events, cancel := svc.Subscribe(0)
			defer cancel()

			if _, err := svc.AddLinks(strings.Join(args, "\n"), password); err != nil {
				return err
			}

			bar := newProgressRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr())
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()

		loop:
			for {
				select {
				case <-ctx.Done():
					bar.Newline()
					fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted, saving unfinished transfers...")
					break loop
				case e, ok := <-events:
					if !ok {
						break loop
					}
					bar.Render(e)
				case <-ticker.C:
					if svc.Idle() {
						break loop
					}
				}
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancelShutdown()
			if err := svc.Shutdown(shutdownCtx); err != nil {
				return err
			}

			return summarize(svc.Tasks())
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password for protected links")

	return cmd
}

func summarize(tasks []domain.TransferState) error {
	failed := 0
	for _, t := range tasks {
		if t.Status == domain.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d transfer(s) failed", failed)
	}
	return nil
}
