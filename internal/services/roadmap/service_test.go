package roadmap

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gaproadmap/internal/domain"
	"gaproadmap/internal/milestones"
	"gaproadmap/internal/ports"
)

type fakeSource struct {
	resp  domain.UpdatesResponse
	err   error
	calls int
}

func (f *fakeSource) ProjectUpdates(_ context.Context, _ string) (domain.UpdatesResponse, error) {
	f.calls++
	return f.resp, f.err
}

type fakeCache struct {
	items       map[string]domain.UpdatesResponse
	getErr      error
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string]domain.UpdatesResponse{}}
}

func (c *fakeCache) Get(_ context.Context, uid string) (domain.UpdatesResponse, bool, error) {
	if c.getErr != nil {
		return domain.UpdatesResponse{}, false, c.getErr
	}
	resp, ok := c.items[uid]
	return resp, ok, nil
}

func (c *fakeCache) Set(_ context.Context, uid string, resp domain.UpdatesResponse) error {
	c.items[uid] = resp
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, uid string) error {
	c.invalidated = append(c.invalidated, uid)
	delete(c.items, uid)
	return nil
}

type fakeSnapshots struct {
	items map[string]domain.UpdatesResponse
}

func (s *fakeSnapshots) SaveSnapshot(_ context.Context, uid string, resp domain.UpdatesResponse) error {
	s.items[uid] = resp
	return nil
}

func (s *fakeSnapshots) LatestSnapshot(_ context.Context, uid string) (domain.UpdatesResponse, time.Time, bool, error) {
	resp, ok := s.items[uid]
	return resp, time.Now().Add(-time.Hour), ok, nil
}

type fakeJobs struct {
	enqueued  []string
	started   []string
	completed []string
	failed    map[string]string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{failed: map[string]string{}}
}

func (j *fakeJobs) EnqueueRefresh(_ context.Context, uid string) (string, error) {
	j.enqueued = append(j.enqueued, uid)
	return fmt.Sprintf("job-%d", len(j.enqueued)), nil
}

func (j *fakeJobs) ClaimNext(context.Context) (ports.RefreshJob, bool, error) {
	return ports.RefreshJob{}, false, nil
}

func (j *fakeJobs) MarkCompleted(_ context.Context, id string) error {
	j.completed = append(j.completed, id)
	return nil
}

func (j *fakeJobs) MarkFailed(_ context.Context, id, reason string) error {
	j.failed[id] = reason
	return nil
}

func (j *fakeJobs) StartJobForProject(_ context.Context, uid string) (string, error) {
	j.started = append(j.started, uid)
	return "inline-" + uid, nil
}

type processorFunc func(ctx context.Context, projectUID string) error

func (f processorFunc) Process(ctx context.Context, projectUID string) error { return f(ctx, projectUID) }

func sampleResponse() domain.UpdatesResponse {
	return domain.UpdatesResponse{
		ProjectUpdates: []domain.ProjectUpdate{
			{UID: "u-old", Title: "kickoff", CreatedAt: "2024-01-01T00:00:00Z"},
			{UID: "u-new", Title: "progress", CreatedAt: "2024-03-01T00:00:00Z"},
		},
		GrantMilestones: []domain.GrantMilestone{
			{UID: "gm", ChainID: "10", Title: "deliver", Status: domain.StatusPending, CreatedAt: "2024-02-01T00:00:00Z",
				Grant: &domain.GrantRef{UID: "grant-1"}},
		},
	}
}

func uids(items []domain.UnifiedMilestone) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.UID
	}
	return out
}

func TestRoadmap_FromIndexerWritesCache(t *testing.T) {
	src := &fakeSource{resp: sampleResponse()}
	cache := newFakeCache()
	svc := New(src, zap.NewNop(), WithCache(cache))

	items, err := svc.Roadmap(t.Context(), "0xp", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-new", "gm", "u-old"}, uids(items))
	assert.Contains(t, cache.items, "0xp")
	assert.Equal(t, 1, src.calls)
}

func TestRoadmap_CacheHitSkipsIndexer(t *testing.T) {
	src := &fakeSource{err: errors.New("must not be called")}
	cache := newFakeCache()
	cache.items["0xp"] = sampleResponse()
	svc := New(src, zap.NewNop(), WithCache(cache))

	items, err := svc.Roadmap(t.Context(), "0xp", []milestones.Filter{milestones.FilterPending})
	require.NoError(t, err)
	assert.Equal(t, []string{"gm"}, uids(items))
	assert.Zero(t, src.calls)
}

func TestRoadmap_CacheErrorFallsThrough(t *testing.T) {
	src := &fakeSource{resp: sampleResponse()}
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	svc := New(src, zap.NewNop(), WithCache(cache))

	items, err := svc.Roadmap(t.Context(), "0xp", nil)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 1, src.calls)
}

func TestRoadmap_SnapshotFallback(t *testing.T) {
	src := &fakeSource{err: errors.New("indexer: 503")}
	snaps := &fakeSnapshots{items: map[string]domain.UpdatesResponse{"0xp": sampleResponse()}}
	svc := New(src, zap.NewNop(), WithSnapshots(snaps))

	items, err := svc.Roadmap(t.Context(), "0xp", nil)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestRoadmap_NoSnapshotReturnsIndexerError(t *testing.T) {
	upstream := errors.New("indexer: 503")
	src := &fakeSource{err: upstream}
	snaps := &fakeSnapshots{items: map[string]domain.UpdatesResponse{}}
	svc := New(src, zap.NewNop(), WithSnapshots(snaps))

	_, err := svc.Roadmap(t.Context(), "0xp", nil)
	assert.ErrorIs(t, err, upstream)
}

func TestRoadmap_NotFoundSkipsSnapshot(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("lookup: %w", domain.ErrProjectNotFound)}
	snaps := &fakeSnapshots{items: map[string]domain.UpdatesResponse{"0xp": sampleResponse()}}
	svc := New(src, zap.NewNop(), WithSnapshots(snaps))

	_, err := svc.Roadmap(t.Context(), "0xp", nil)
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestRoadmap_InvalidUID(t *testing.T) {
	src := &fakeSource{}
	svc := New(src, zap.NewNop())

	_, err := svc.Roadmap(t.Context(), "   ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidProjectUID)
	assert.Zero(t, src.calls)
}

func TestRoadmap_EmptyProject(t *testing.T) {
	svc := New(&fakeSource{}, zap.NewNop())

	items, err := svc.Roadmap(t.Context(), "0xp", nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRefresh_WithoutJobs(t *testing.T) {
	svc := New(&fakeSource{}, zap.NewNop())

	_, err := svc.Refresh(t.Context(), "0xp")
	assert.ErrorIs(t, err, ErrRefreshUnavailable)
	assert.ErrorIs(t, svc.RefreshNow(t.Context(), "0xp"), ErrRefreshUnavailable)
}

func TestRefresh_Enqueues(t *testing.T) {
	jobs := newFakeJobs()
	svc := New(&fakeSource{}, zap.NewNop(), WithJobs(jobs, processorFunc(func(context.Context, string) error { return nil })))

	id, err := svc.Refresh(t.Context(), " 0xp ")
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, []string{"0xp"}, jobs.enqueued)
}

func TestRefreshNow(t *testing.T) {
	jobs := newFakeJobs()
	var processed []string
	svc := New(&fakeSource{}, zap.NewNop(), WithJobs(jobs, processorFunc(func(_ context.Context, uid string) error {
		processed = append(processed, uid)
		return nil
	})))

	require.NoError(t, svc.RefreshNow(t.Context(), "0xp"))
	assert.Equal(t, []string{"0xp"}, processed)
	assert.Equal(t, []string{"inline-0xp"}, jobs.completed)
}

func TestRefreshNow_ProcessorFailureMarksJobFailed(t *testing.T) {
	jobs := newFakeJobs()
	boom := errors.New("boom")
	svc := New(&fakeSource{}, zap.NewNop(), WithJobs(jobs, processorFunc(func(context.Context, string) error { return boom })))

	err := svc.RefreshNow(t.Context(), "0xp")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "boom", jobs.failed["inline-0xp"])
	assert.Empty(t, jobs.completed)
}
