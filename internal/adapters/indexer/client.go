// Package indexer is the HTTP client for the GAP indexer API.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gaproadmap/internal/domain"
	"gaproadmap/internal/metrics"
)

const (
	maxResponseBytes = 16 << 20
	requestIDHeader  = "X-Request-ID"
)

// ErrUpstream marks failures to reach the indexer or to read its answer.
var ErrUpstream = errors.New("indexer unavailable")

// StatusError is a non-2xx indexer response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("indexer %s returned %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("indexer %s returned %d: %s", e.Endpoint, e.Code, e.Body)
}

// Temporary reports whether retrying the call may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.Config
	timeout    time.Duration
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(c *Client) {
		c.retryCfg.MaxAttempts = maxAttempts
		c.retryCfg.InitialDelay = initialDelay
	}
}

// WithTimeout bounds a whole call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		retryCfg: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  200 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		timeout: 10 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	status int
	body   []byte
}

// ProjectUpdates fetches the four roadmap collections of a project.
func (c *Client) ProjectUpdates(ctx context.Context, projectUID string) (domain.UpdatesResponse, error) {
	var out domain.UpdatesResponse
	projectUID = strings.TrimSpace(projectUID)
	if projectUID == "" {
		return out, domain.ErrInvalidProjectUID
	}
	path := "/v2/projects/" + url.PathEscape(projectUID) + "/updates"
	res, err := c.do(ctx, "project_updates", http.MethodGet, path, "", nil)
	if err != nil {
		return out, err
	}
	switch {
	case res.status == http.StatusNotFound:
		return out, fmt.Errorf("%w: %s", domain.ErrProjectNotFound, projectUID)
	case res.status != http.StatusOK:
		return out, &StatusError{Endpoint: "project_updates", Code: res.status, Body: snippet(res.body)}
	}
	if err := json.Unmarshal(res.body, &out); err != nil {
		return out, fmt.Errorf("decode project updates: %w: %w", ErrUpstream, err)
	}
	return out, nil
}

type permissionResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckPermission asks the indexer whether the token holder may perform req.
func (c *Client) CheckPermission(ctx context.Context, token string, req domain.PermissionRequest) (domain.PermissionDecision, error) {
	decision := domain.PermissionDecision{Request: req}
	res, err := c.do(ctx, "permission_check", http.MethodPost, "/v2/auth/permissions/check", token, req)
	if err != nil {
		return decision, err
	}
	if res.status != http.StatusOK {
		return decision, &StatusError{Endpoint: "permission_check", Code: res.status, Body: snippet(res.body)}
	}
	var pr permissionResult
	if err := json.Unmarshal(res.body, &pr); err != nil {
		return decision, fmt.Errorf("decode permission check: %w: %w", ErrUpstream, err)
	}
	decision.Allowed = pr.Allowed
	decision.Reason = pr.Reason
	return decision, nil
}

// CheckPermissions runs several checks in one request. Results are returned
// in request order.
func (c *Client) CheckPermissions(ctx context.Context, token string, reqs []domain.PermissionRequest) ([]domain.PermissionDecision, error) {
	body := struct {
		Checks []domain.PermissionRequest `json:"checks"`
	}{Checks: reqs}
	res, err := c.do(ctx, "permission_check_batch", http.MethodPost, "/v2/auth/permissions/check-batch", token, body)
	if err != nil {
		return nil, err
	}
	if res.status != http.StatusOK {
		return nil, &StatusError{Endpoint: "permission_check_batch", Code: res.status, Body: snippet(res.body)}
	}
	var batch struct {
		Results []permissionResult `json:"results"`
	}
	if err := json.Unmarshal(res.body, &batch); err != nil {
		return nil, fmt.Errorf("decode permission batch: %w: %w", ErrUpstream, err)
	}
	if len(batch.Results) != len(reqs) {
		return nil, fmt.Errorf("%w: permission batch returned %d results for %d checks", ErrUpstream, len(batch.Results), len(reqs))
	}
	out := make([]domain.PermissionDecision, len(reqs))
	for i, r := range batch.Results {
		out[i] = domain.PermissionDecision{Request: reqs[i], Allowed: r.Allowed, Reason: r.Reason}
	}
	return out, nil
}

// do sends one logical request. Transport failures and temporary statuses are
// retried; any other response is handed back for the caller to interpret.
// Errors are marked ErrUpstream unless the caller's context ended.
func (c *Client) do(ctx context.Context, endpoint, method, path, token string, body any) (*response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
		}
	}
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	r := retry.New[*response](c.retryCfg)
	t := timeout.New[*response](timeout.Config{DefaultTimeout: c.timeout})

	res, err := t.Execute(ctx, c.timeout, func(ctx context.Context) (*response, error) {
		return r.Do(ctx, func(ctx context.Context) (*response, error) {
			return c.once(ctx, endpoint, method, path, token, requestID, payload)
		})
	})
	if err != nil {
		c.logger.Warn("Indexer call failed",
			zap.String("endpoint", endpoint),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("indexer %s: %w", endpoint, err)
		}
		return nil, fmt.Errorf("indexer %s: %w: %w", endpoint, ErrUpstream, err)
	}
	return res, nil
}

func (c *Client) once(ctx context.Context, endpoint, method, path, token, requestID string, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordIndexerCall(endpoint, "error", time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	metrics.RecordIndexerCall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, err
	}

	statusErr := &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: snippet(data)}
	if statusErr.Temporary() {
		c.logger.Debug("Indexer returned a retryable status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil, statusErr
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max]
	}
	return s
}

