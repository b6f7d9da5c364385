package ports

import (
	"context"

	"gaproadmap/internal/domain"
	"gaproadmap/internal/milestones"
)

// Roadmap serves a project's normalized, ordered and filtered milestones.
type Roadmap interface {
	Roadmap(ctx context.Context, projectUID string, filters []milestones.Filter) ([]domain.UnifiedMilestone, error)
	Refresh(ctx context.Context, projectUID string) (jobID string, err error)
	RefreshNow(ctx context.Context, projectUID string) error
}

// Permissions answers permission checks on behalf of a caller token.
type Permissions interface {
	Check(ctx context.Context, token string, reqs []domain.PermissionRequest) ([]domain.PermissionDecision, error)
}

// ChainSync checks that a chain's RPC endpoint reports the expected chain id.
type ChainSync interface {
	Validate(ctx context.Context, chainID int64) error
	WaitForChain(ctx context.Context, chainID int64) error
}
