// Package refresher keeps project snapshots current: workers claim refresh
// jobs, pull the project from the indexer and store the result.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gaproadmap/internal/metrics"
	"gaproadmap/internal/ports"
)

// Processor performs the refresh work for a project.
type Processor interface {
	Process(ctx context.Context, projectUID string) error
}

// SnapshotProcessor fetches a project from the indexer, stores it as the
// project's snapshot and drops the cached copy.
type SnapshotProcessor struct {
	Source    ports.UpdatesSource
	Snapshots ports.SnapshotRepository
	Cache     ports.UpdatesCache // optional
	Logger    *zap.Logger
}

func (p SnapshotProcessor) Process(ctx context.Context, projectUID string) error {
	resp, err := p.Source.ProjectUpdates(ctx, projectUID)
	if err != nil {
		return fmt.Errorf("fetch project %s: %w", projectUID, err)
	}
	if err := p.Snapshots.SaveSnapshot(ctx, projectUID, resp); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if p.Cache != nil {
		if err := p.Cache.Invalidate(ctx, projectUID); err != nil {
			p.Logger.Warn("Cache invalidation failed",
				zap.String("project_uid", projectUID),
				zap.Error(err),
			)
		}
	}
	p.Logger.Debug("Snapshot refreshed",
		zap.String("project_uid", projectUID),
		zap.Int("records", resp.Len()),
	)
	return nil
}

// Run starts worker goroutines that claim jobs and process them. It returns
// immediately; workers stop when ctx is cancelled.
func Run(ctx context.Context, repo ports.JobRepository, processor Processor, concurrency int, pollInterval time.Duration, logger *zap.Logger) {
	if concurrency < 1 {
		return
	}
	jobsCh := make(chan ports.RefreshJob, concurrency)

	// dispatcher loop
	go func() {
		defer close(jobsCh)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					job, found, err := repo.ClaimNext(ctx)
					if err != nil {
						if ctx.Err() == nil {
							logger.Error("Job claim failed", zap.Error(err))
						}
						break
					}
					if !found {
						break
					}
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			for job := range jobsCh {
				log := logger.With(
					zap.Int("worker", idx),
					zap.String("job_id", job.ID),
					zap.String("project_uid", job.ProjectUID),
				)
				if err := processor.Process(ctx, job.ProjectUID); err != nil {
					metrics.IncrementRefreshJob("failed")
					log.Warn("Refresh job failed", zap.Error(err))
					if err := markFailed(ctx, repo, job.ID, err); err != nil {
						log.Error("Refresh job failure not recorded", zap.Error(err))
					}
					continue
				}
				metrics.IncrementRefreshJob("completed")
				if err := markCompleted(ctx, repo, job.ID); err != nil {
					log.Error("Refresh job completion failed", zap.Error(err))
				}
			}
		}(i)
	}
}

// ProcessInline refreshes a specific project synchronously using the same
// processor logic as the background workers. It marks the job as running,
// calls processor.Process, and completes or fails it.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor Processor, projectUID string) error {
	jobID, err := repo.StartJobForProject(ctx, projectUID)
	if err != nil {
		return fmt.Errorf("start refresh job: %w", err)
	}
	if err := processor.Process(ctx, projectUID); err != nil {
		metrics.IncrementRefreshJob("failed")
		if markErr := markFailed(ctx, repo, jobID, err); markErr != nil {
			return errors.Join(err, fmt.Errorf("record job failure: %w", markErr))
		}
		return err
	}
	metrics.IncrementRefreshJob("completed")
	return markCompleted(ctx, repo, jobID)
}

// settleTimeout bounds the job bookkeeping that runs after ctx may have ended.
const settleTimeout = 5 * time.Second

// markFailed and markCompleted record a job outcome even after ctx is cancelled.
func markFailed(ctx context.Context, repo ports.JobRepository, jobID string, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	return repo.MarkFailed(ctx, jobID, cause.Error())
}

func markCompleted(ctx context.Context, repo ports.JobRepository, jobID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	return repo.MarkCompleted(ctx, jobID)
}
