package ports

import "context"

type RefreshJob struct {
	ID         string
	ProjectUID string
}

// JobRepository supports queueing and claiming roadmap refresh jobs.
type JobRepository interface {
	EnqueueRefresh(ctx context.Context, projectUID string) (jobID string, err error)
	ClaimNext(ctx context.Context) (job RefreshJob, found bool, err error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
	StartJobForProject(ctx context.Context, projectUID string) (jobID string, err error)
}
