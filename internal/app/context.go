package app

import (
	"context"

	"github.com/datallboy/gofichier/internal/domain"
	"github.com/datallboy/gofichier/internal/infra/config"
	"github.com/datallboy/gofichier/internal/infra/logger"
	"github.com/datallboy/gofichier/internal/resolver"
)

// Store lets the orchestrator persist snapshots and settings without
// importing the store package.
type Store interface {
	Snapshot(ctx context.Context, tasks []domain.TransferState) error
	Restore(ctx context.Context) ([]domain.TransferState, error)
	SaveSettings(ctx context.Context, s domain.Settings) error
	LoadSettings(ctx context.Context, defaults domain.Settings) (domain.Settings, error)
	Close() error
}

// Context hold the core environment and shared resources for gofichier.
// It acts as the "Single Source of Truth" for the application state.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	// High-level interfaces for services to use
	Store    Store
	Resolver resolver.Resolver
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
