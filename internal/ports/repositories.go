package ports

import (
	"context"
	"time"

	"gaproadmap/internal/domain"
)

// UpdatesSource fetches a project's raw roadmap collections.
type UpdatesSource interface {
	ProjectUpdates(ctx context.Context, projectUID string) (domain.UpdatesResponse, error)
}

// UpdatesCache holds raw indexer responses for a short time.
type UpdatesCache interface {
	Get(ctx context.Context, projectUID string) (resp domain.UpdatesResponse, found bool, err error)
	Set(ctx context.Context, projectUID string, resp domain.UpdatesResponse) error
	Invalidate(ctx context.Context, projectUID string) error
}

// SnapshotRepository keeps the last good indexer response per project.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, projectUID string, resp domain.UpdatesResponse) error
	LatestSnapshot(ctx context.Context, projectUID string) (resp domain.UpdatesResponse, fetchedAt time.Time, found bool, err error)
}

// PermissionAPI is the indexer's permission endpoint pair.
type PermissionAPI interface {
	CheckPermission(ctx context.Context, token string, req domain.PermissionRequest) (domain.PermissionDecision, error)
	CheckPermissions(ctx context.Context, token string, reqs []domain.PermissionRequest) ([]domain.PermissionDecision, error)
}

// ChainReader reports the chain id an RPC endpoint is connected to.
type ChainReader interface {
	ChainID(ctx context.Context) (int64, error)
}
