package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gaproadmap/internal/adapters/indexer"
	"gaproadmap/internal/domain"
	"gaproadmap/internal/milestones"
	"gaproadmap/internal/services/chainsync"
	"gaproadmap/internal/services/roadmap"
)

type fakeRoadmap struct {
	items      []domain.UnifiedMilestone
	err        error
	gotFilters []milestones.Filter
	refreshed  []string
	inline     []string
	refreshErr error
}

func (f *fakeRoadmap) Roadmap(_ context.Context, _ string, filters []milestones.Filter) ([]domain.UnifiedMilestone, error) {
	f.gotFilters = filters
	return f.items, f.err
}

func (f *fakeRoadmap) Refresh(_ context.Context, uid string) (string, error) {
	f.refreshed = append(f.refreshed, uid)
	return "job-1", f.refreshErr
}

func (f *fakeRoadmap) RefreshNow(_ context.Context, uid string) error {
	f.inline = append(f.inline, uid)
	return f.refreshErr
}

type fakePermissions struct {
	token string
}

func (f *fakePermissions) Check(_ context.Context, token string, reqs []domain.PermissionRequest) ([]domain.PermissionDecision, error) {
	f.token = token
	out := make([]domain.PermissionDecision, len(reqs))
	for i, r := range reqs {
		out[i] = domain.PermissionDecision{Request: r, Allowed: true}
	}
	return out, nil
}

type fakeChains struct {
	actual map[int64]int64
	waited bool
}

func (f *fakeChains) Validate(_ context.Context, id int64) error {
	actual, ok := f.actual[id]
	if !ok {
		return fmt.Errorf("%w: %d", chainsync.ErrUnknownChain, id)
	}
	if actual != id {
		return &chainsync.MismatchError{Expected: id, Actual: actual, Attempts: 1}
	}
	return nil
}

func (f *fakeChains) WaitForChain(ctx context.Context, id int64) error {
	f.waited = true
	return f.Validate(ctx, id)
}

func do(t *testing.T, s *Server, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(&fakeRoadmap{}, zap.NewNop())
	rec := do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	s := New(&fakeRoadmap{}, zap.NewNop(),
		WithReadinessCheck("postgres", func(context.Context) error { return nil }),
		WithReadinessCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
	)
	rec := do(t, s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"postgres":"ok","redis":"connection refused"}}`, rec.Body.String())
}

func TestGetRoadmap(t *testing.T) {
	rm := &fakeRoadmap{items: []domain.UnifiedMilestone{
		{UID: "gm", Type: domain.TypeGrant, Title: "deliver", CreatedAt: "2024-01-01T00:00:00Z"},
	}}
	s := New(rm, zap.NewNop())

	rec := do(t, s, http.MethodGet, "/v1/projects/0xp/roadmap?filter=pending,completed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []milestones.Filter{milestones.FilterPending, milestones.FilterCompleted}, rm.gotFilters)

	var body struct {
		ProjectUID string           `json:"projectUID"`
		Items      []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "0xp", body.ProjectUID)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "gm", body.Items[0]["uid"])
	assert.Equal(t, false, body.Items[0]["completed"])
}

func TestGetRoadmap_DefaultsToAll(t *testing.T) {
	rm := &fakeRoadmap{}
	s := New(rm, zap.NewNop())

	rec := do(t, s, http.MethodGet, "/v1/projects/0xp/roadmap", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []milestones.Filter{milestones.FilterAll}, rm.gotFilters)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestGetRoadmap_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"unknown filter", "/v1/projects/0xp/roadmap?filter=bogus", nil, http.StatusBadRequest},
		{"not found", "/v1/projects/0xp/roadmap", fmt.Errorf("x: %w", domain.ErrProjectNotFound), http.StatusNotFound},
		{"upstream", "/v1/projects/0xp/roadmap", &indexer.StatusError{Endpoint: "updates", Code: 503}, http.StatusBadGateway},
		{"transport", "/v1/projects/0xp/roadmap", fmt.Errorf("indexer project_updates: %w: %w", indexer.ErrUpstream, errors.New("dial tcp: connection refused")), http.StatusBadGateway},
		{"timeout", "/v1/projects/0xp/roadmap", fmt.Errorf("indexer project_updates: %w: %w", indexer.ErrUpstream, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"internal", "/v1/projects/0xp/roadmap", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeRoadmap{err: tt.err}, zap.NewNop())
			rec := do(t, s, http.MethodGet, tt.target, "", nil)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestGetRoadmap_ThroughIndexerClient(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"projectMilestones": [
			{"uid": "pm", "title": "Launch", "status": "pending", "data": {"endsAt": "1735689600"}, "createdAt": "2024-01-01T00:00:00Z"},
			{"uid": "pm2", "title": "Docs", "status": "pending", "endsAt": 1735689600.5, "createdAt": "2024-01-01T00:00:00Z"}
		]}`))
	}))
	defer up.Close()
	client := indexer.New(up.URL, zap.NewNop(), indexer.WithRetry(1, time.Millisecond))
	s := New(roadmap.New(client, zap.NewNop()), zap.NewNop())

	rec := do(t, s, http.MethodGet, "/v1/projects/0xp/roadmap", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []struct {
			UID    string `json:"uid"`
			EndsAt int64  `json:"endsAt"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	for _, it := range body.Items {
		assert.Equal(t, int64(1735689600), it.EndsAt, it.UID)
	}
}

func TestGetRoadmap_IndexerUnreachable(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	addr := up.URL
	up.Close()
	client := indexer.New(addr, zap.NewNop(), indexer.WithRetry(1, time.Millisecond))
	s := New(roadmap.New(client, zap.NewNop()), zap.NewNop())

	rec := do(t, s, http.MethodGet, "/v1/projects/0xp/roadmap", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "indexer unavailable")
}

func TestPostRefresh(t *testing.T) {
	rm := &fakeRoadmap{}
	s := New(rm, zap.NewNop())

	rec := do(t, s, http.MethodPost, "/v1/projects/0xp/refresh", "", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"jobId":"job-1"`)
	assert.Equal(t, []string{"0xp"}, rm.refreshed)

	rec = do(t, s, http.MethodPost, "/v1/projects/0xp/refresh?wait=true&timeout=5", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"0xp"}, rm.inline)

	rec = do(t, s, http.MethodPost, "/v1/projects/0xp/refresh?wait=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostRefresh_Unavailable(t *testing.T) {
	s := New(&fakeRoadmap{refreshErr: roadmap.ErrRefreshUnavailable}, zap.NewNop())
	rec := do(t, s, http.MethodPost, "/v1/projects/0xp/refresh", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPostPermissionsCheck(t *testing.T) {
	perms := &fakePermissions{}
	s := New(&fakeRoadmap{}, zap.NewNop(), WithPermissions(perms))

	body := `{"checks":[{"resourceType":"project","resourceId":"0xp","action":"edit"}]}`
	rec := do(t, s, http.MethodPost, "/v1/permissions/check", body, map[string]string{"Authorization": "Bearer tok"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", perms.token)
	assert.Contains(t, rec.Body.String(), `"allowed":true`)

	rec = do(t, s, http.MethodPost, "/v1/permissions/check", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/permissions/check", "{", map[string]string{"Authorization": "Bearer tok"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChainSync(t *testing.T) {
	chains := &fakeChains{actual: map[int64]int64{10: 10, 8453: 1}}
	s := New(&fakeRoadmap{}, zap.NewNop(), WithChainSync(chains))

	rec := do(t, s, http.MethodGet, "/v1/chains/10/sync", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chainId":10,"synced":true}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/v1/chains/8453/sync?wait=true", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.True(t, chains.waited)

	rec = do(t, s, http.MethodGet, "/v1/chains/42161/sync", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/chains/optimism/sync", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptionalRoutesNotMounted(t *testing.T) {
	s := New(&fakeRoadmap{}, zap.NewNop())
	rec := do(t, s, http.MethodGet, "/v1/chains/10/sync", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
