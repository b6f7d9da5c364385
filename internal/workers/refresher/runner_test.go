package refresher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gaproadmap/internal/domain"
	"gaproadmap/internal/ports"
)

type memJobs struct {
	mu        sync.Mutex
	queue     []ports.RefreshJob
	enqueued  []string
	completed []string
	failed    map[string]string
}

func newMemJobs(jobs ...ports.RefreshJob) *memJobs {
	return &memJobs{queue: jobs, failed: map[string]string{}}
}

func (m *memJobs) EnqueueRefresh(_ context.Context, uid string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, uid)
	return "job-" + uid, nil
}

func (m *memJobs) ClaimNext(context.Context) (ports.RefreshJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return ports.RefreshJob{}, false, nil
	}
	job := m.queue[0]
	m.queue = m.queue[1:]
	return job, true, nil
}

func (m *memJobs) MarkCompleted(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, id)
	return nil
}

func (m *memJobs) MarkFailed(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = reason
	return nil
}

func (m *memJobs) StartJobForProject(_ context.Context, uid string) (string, error) {
	return "inline-" + uid, nil
}

func (m *memJobs) done() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completed) + len(m.failed)
}

type stubSource struct {
	resp domain.UpdatesResponse
	err  error
}

func (s stubSource) ProjectUpdates(context.Context, string) (domain.UpdatesResponse, error) {
	return s.resp, s.err
}

type memSnapshots struct {
	saved map[string]domain.UpdatesResponse
}

func (m *memSnapshots) SaveSnapshot(_ context.Context, uid string, resp domain.UpdatesResponse) error {
	m.saved[uid] = resp
	return nil
}

func (m *memSnapshots) LatestSnapshot(_ context.Context, uid string) (domain.UpdatesResponse, time.Time, bool, error) {
	resp, ok := m.saved[uid]
	return resp, time.Now(), ok, nil
}

type memCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *memCache) Get(context.Context, string) (domain.UpdatesResponse, bool, error) {
	return domain.UpdatesResponse{}, false, nil
}

func (c *memCache) Set(context.Context, string, domain.UpdatesResponse) error { return nil }

func (c *memCache) Invalidate(_ context.Context, uid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, uid)
	return nil
}

type failFor map[string]bool

func (f failFor) Process(_ context.Context, uid string) error {
	if f[uid] {
		return errors.New("indexer unavailable")
	}
	return nil
}

func TestSnapshotProcessor(t *testing.T) {
	resp := domain.UpdatesResponse{ProjectUpdates: []domain.ProjectUpdate{{UID: "u1"}}}
	snaps := &memSnapshots{saved: map[string]domain.UpdatesResponse{}}
	cache := &memCache{}
	p := SnapshotProcessor{Source: stubSource{resp: resp}, Snapshots: snaps, Cache: cache, Logger: zap.NewNop()}

	require.NoError(t, p.Process(t.Context(), "0xp"))
	assert.Equal(t, resp, snaps.saved["0xp"])
	assert.Equal(t, []string{"0xp"}, cache.invalidated)
}

func TestSnapshotProcessor_SourceError(t *testing.T) {
	snaps := &memSnapshots{saved: map[string]domain.UpdatesResponse{}}
	p := SnapshotProcessor{Source: stubSource{err: domain.ErrProjectNotFound}, Snapshots: snaps, Logger: zap.NewNop()}

	err := p.Process(t.Context(), "0xp")
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	assert.Empty(t, snaps.saved)
}

func TestRun_ProcessesQueuedJobs(t *testing.T) {
	repo := newMemJobs(
		ports.RefreshJob{ID: "1", ProjectUID: "a"},
		ports.RefreshJob{ID: "2", ProjectUID: "b"},
		ports.RefreshJob{ID: "3", ProjectUID: "c"},
	)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	Run(ctx, repo, failFor{"b": true}, 2, 5*time.Millisecond, zap.NewNop())

	require.Eventually(t, func() bool { return repo.done() == 3 }, 2*time.Second, 5*time.Millisecond)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.ElementsMatch(t, []string{"1", "3"}, repo.completed)
	assert.Equal(t, "indexer unavailable", repo.failed["2"])
}

func TestProcessInline(t *testing.T) {
	repo := newMemJobs()
	require.NoError(t, ProcessInline(t.Context(), repo, failFor{}, "a"))
	assert.Equal(t, []string{"inline-a"}, repo.completed)

	err := ProcessInline(t.Context(), repo, failFor{"b": true}, "b")
	assert.Error(t, err)
	assert.Contains(t, repo.failed, "inline-b")
}

// cancelling cancels the worker context mid-job, as a shutdown would.
type cancelling struct{ cancel context.CancelFunc }

func (c cancelling) Process(ctx context.Context, _ string) error {
	c.cancel()
	<-ctx.Done()
	return ctx.Err()
}

func TestRun_RecordsFailureAfterShutdown(t *testing.T) {
	repo := newMemJobs(ports.RefreshJob{ID: "1", ProjectUID: "a"})
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	Run(ctx, repo, cancelling{cancel}, 1, 5*time.Millisecond, zap.NewNop())

	require.Eventually(t, func() bool { return repo.done() == 1 }, 2*time.Second, 5*time.Millisecond)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, context.Canceled.Error(), repo.failed["1"])
}

func TestProcessInline_RecordsFailureAfterCancel(t *testing.T) {
	repo := newMemJobs()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	err := ProcessInline(ctx, repo, cancelling{cancel}, "a")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, context.Canceled.Error(), repo.failed["inline-a"])
}

func TestIndexedEventHandler(t *testing.T) {
	cache := &memCache{}
	jobs := newMemJobs()
	h := NewIndexedEventHandler(cache, jobs, zap.NewNop())

	payload, err := json.Marshal(IndexedEvent{UID: "att", Type: "MilestoneCompleted", ChainID: 10, ProjectUID: "0xp"})
	require.NoError(t, err)
	require.NoError(t, h.Handle(t.Context(), payload))
	assert.Equal(t, []string{"0xp"}, cache.invalidated)
	assert.Equal(t, []string{"0xp"}, jobs.enqueued)
}

func TestIndexedEventHandler_IgnoresUnusableEvents(t *testing.T) {
	cache := &memCache{}
	jobs := newMemJobs()
	h := NewIndexedEventHandler(cache, jobs, zap.NewNop())

	assert.NoError(t, h.Handle(t.Context(), json.RawMessage(`{not json`)))
	assert.NoError(t, h.Handle(t.Context(), json.RawMessage(`{"uid":"att","type":"Community"}`)))
	assert.Empty(t, cache.invalidated)
	assert.Empty(t, jobs.enqueued)
}
