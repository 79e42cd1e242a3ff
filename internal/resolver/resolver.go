package resolver

import (
	"context"

	"github.com/datallboy/gofichier/internal/domain"
)

// Resolver is the contract any link source must fulfill: turn a user-supplied
// link into something a transfer can fetch. Failures are *domain.ResolutionError.
type Resolver interface {
	Resolve(ctx context.Context, req domain.LinkRequest) (domain.DownloadDescriptor, error)
}

// Func adapts a plain function to Resolver.
type Func func(ctx context.Context, req domain.LinkRequest) (domain.DownloadDescriptor, error)

func (f Func) Resolve(ctx context.Context, req domain.LinkRequest) (domain.DownloadDescriptor, error) {
	return f(ctx, req)
}
