package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/datallboy/gofichier/internal/app"
	"github.com/datallboy/gofichier/internal/downloader"
	"github.com/datallboy/gofichier/internal/infra/config"
	"github.com/datallboy/gofichier/internal/infra/logger"
	"github.com/datallboy/gofichier/internal/resolver/onefichier"
	"github.com/datallboy/gofichier/internal/store"
)

type rootOptions struct {
	configPath string
}

// Execute runs the gofichier command line.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "gofichier",
		Short:         "Resumable downloader for file-hosting links",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default ./config.yaml if present)")

	cmd.AddCommand(
		newServeCmd(opts),
		newGetCmd(opts),
		newSettingsCmd(opts),
	)

	return cmd
}

// openStore opens the sqlite store. A corrupt database is set aside and
// replaced by a fresh one; only when no file can be used at all does the
// session fall back to memory.
func openStore(cfg *config.Config, log *logger.Logger) app.Store {
	st, _, err := store.OpenOrRecover(cfg.Store.SQLitePath, log.Named("store"))
	if err != nil {
		log.Warn("Store unavailable, this session will not be saved: %v", err)
		return store.NewMemoryStore()
	}
	return st
}

// bootstrap builds the application context and the orchestrator on top of it.
func bootstrap(ctx context.Context, opts *rootOptions, includeStdout bool) (*app.Context, *downloader.Service, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), includeStdout && cfg.Log.IncludeStdout)
	if err != nil {
		return nil, nil, err
	}

	a := app.NewContext(cfg, log)
	a.Store = openStore(cfg, log)

	settings, err := a.Store.LoadSettings(ctx, cfg.DefaultSettings())
	if err != nil {
		log.Warn("Using default settings: %v", err)
		settings = cfg.DefaultSettings()
	}

	svc := downloader.NewService(a, settings)
	a.Resolver = onefichier.New(svc.Settings, cfg.Resolver.UserAgent, log.Named("resolver"))

	return a, svc, nil
}
