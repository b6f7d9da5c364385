package roadmap

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"gaproadmap/internal/domain"
	"gaproadmap/internal/logging"
	"gaproadmap/internal/metrics"
	"gaproadmap/internal/milestones"
	"gaproadmap/internal/ports"
	"gaproadmap/internal/workers/refresher"
)

// ErrRefreshUnavailable is returned by refresh operations when no job store is configured.
var ErrRefreshUnavailable = errors.New("refresh jobs are not configured")

// Service fetches a project's raw collections and turns them into its roadmap.
// The cache, snapshot store and job store are optional.
type Service struct {
	source    ports.UpdatesSource
	cache     ports.UpdatesCache
	snapshots ports.SnapshotRepository
	jobs      ports.JobRepository
	processor refresher.Processor
	logger    *zap.Logger
}

type Option func(*Service)

func WithCache(c ports.UpdatesCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithSnapshots(r ports.SnapshotRepository) Option {
	return func(s *Service) { s.snapshots = r }
}

func WithJobs(j ports.JobRepository, p refresher.Processor) Option {
	return func(s *Service) {
		s.jobs = j
		s.processor = p
	}
}

func New(source ports.UpdatesSource, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{source: source, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Roadmap returns the project's unified milestones, most recent first,
// restricted to filters.
func (s *Service) Roadmap(ctx context.Context, projectUID string, filters []milestones.Filter) ([]domain.UnifiedMilestone, error) {
	projectUID = strings.TrimSpace(projectUID)
	if projectUID == "" {
		return nil, domain.ErrInvalidProjectUID
	}
	resp, err := s.fetch(ctx, projectUID)
	if err != nil {
		return nil, err
	}
	items := milestones.Build(resp, filters)
	metrics.ObserveRoadmapItems(len(items))
	return items, nil
}

func (s *Service) fetch(ctx context.Context, projectUID string) (domain.UpdatesResponse, error) {
	log := logging.WithRequest(ctx, s.logger).With(zap.String("project_uid", projectUID))

	if s.cache != nil {
		resp, found, err := s.cache.Get(ctx, projectUID)
		switch {
		case err != nil:
			log.Warn("Cache read failed, going to indexer", zap.Error(err))
		case found:
			metrics.IncrementRoadmapSource("cache")
			return resp, nil
		}
	}

	resp, err := s.source.ProjectUpdates(ctx, projectUID)
	if err == nil {
		metrics.IncrementRoadmapSource("indexer")
		if s.cache != nil {
			if err := s.cache.Set(ctx, projectUID, resp); err != nil {
				log.Warn("Cache write failed", zap.Error(err))
			}
		}
		return resp, nil
	}
	if errors.Is(err, domain.ErrProjectNotFound) || errors.Is(err, domain.ErrInvalidProjectUID) || s.snapshots == nil {
		return resp, err
	}

	snap, fetchedAt, found, snapErr := s.snapshots.LatestSnapshot(ctx, projectUID)
	if snapErr != nil {
		log.Error("Snapshot read failed", zap.Error(snapErr))
		return resp, err
	}
	if !found {
		return resp, err
	}
	log.Warn("Indexer unavailable, serving snapshot",
		zap.Error(err),
		zap.Duration("snapshot_age", time.Since(fetchedAt)),
	)
	metrics.IncrementRoadmapSource("snapshot")
	return snap, nil
}

// Refresh queues a background refresh of the project's snapshot.
func (s *Service) Refresh(ctx context.Context, projectUID string) (string, error) {
	if s.jobs == nil {
		return "", ErrRefreshUnavailable
	}
	projectUID = strings.TrimSpace(projectUID)
	if projectUID == "" {
		return "", domain.ErrInvalidProjectUID
	}
	return s.jobs.EnqueueRefresh(ctx, projectUID)
}

// RefreshNow refreshes the project synchronously with the same processor the
// background workers use.
func (s *Service) RefreshNow(ctx context.Context, projectUID string) error {
	if s.jobs == nil || s.processor == nil {
		return ErrRefreshUnavailable
	}
	projectUID = strings.TrimSpace(projectUID)
	if projectUID == "" {
		return domain.ErrInvalidProjectUID
	}
	return refresher.ProcessInline(ctx, s.jobs, s.processor, projectUID)
}
