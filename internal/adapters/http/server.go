// Package httpadapter serves the roadmap, permission and chain sync APIs.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gaproadmap/internal/adapters/indexer"
	"gaproadmap/internal/domain"
	"gaproadmap/internal/logging"
	"gaproadmap/internal/milestones"
	"gaproadmap/internal/ports"
	"gaproadmap/internal/services/chainsync"
	"gaproadmap/internal/services/permissions"
	"gaproadmap/internal/services/roadmap"
)

const defaultWaitTimeout = 30 * time.Second

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	roadmap     ports.Roadmap
	permissions ports.Permissions
	chains      ports.ChainSync
	readiness   map[string]ReadinessCheck
	logger      *zap.Logger
}

type Option func(*Server)

func WithPermissions(p ports.Permissions) Option {
	return func(s *Server) { s.permissions = p }
}

func WithChainSync(c ports.ChainSync) Option {
	return func(s *Server) { s.chains = c }
}

// WithReadinessCheck adds a dependency to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.readiness[name] = check }
}

func New(rm ports.Roadmap, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{roadmap: rm, readiness: map[string]ReadinessCheck{}, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the chi router with all handlers mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	r.Get("/readyz", s.getReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/projects/{projectUID}/roadmap", s.getRoadmap)
		r.Post("/projects/{projectUID}/refresh", s.postRefresh)
		if s.permissions != nil {
			r.Post("/permissions/check", s.postPermissionsCheck)
		}
		if s.chains != nil {
			r.Get("/chains/{chainID}/sync", s.getChainSync)
		}
	})
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.readiness))
	code := http.StatusOK
	for name, check := range s.readiness {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	status := "ok"
	if code != http.StatusOK {
		status = "unavailable"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

type roadmapResponse struct {
	ProjectUID string                    `json:"projectUID"`
	Filters    []milestones.Filter       `json:"filters"`
	Items      []domain.UnifiedMilestone `json:"items"`
}

func (s *Server) getRoadmap(w http.ResponseWriter, r *http.Request) {
	projectUID := chi.URLParam(r, "projectUID")

	var tags *[]string
	if err := runtime.BindQueryParameter("form", false, false, "filter", r.URL.Query(), &tags); err != nil {
		s.writeError(w, r, &httpError{code: http.StatusBadRequest, msg: err.Error()})
		return
	}
	raw := ""
	if tags != nil {
		raw = strings.Join(*tags, ",")
	}
	filters, err := milestones.ParseFilters(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.roadmap.Roadmap(r.Context(), projectUID, filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.UnifiedMilestone{}
	}
	writeJSON(w, http.StatusOK, roadmapResponse{ProjectUID: projectUID, Filters: filters, Items: items})
}

type refreshParams struct {
	Wait    *bool
	Timeout *int
}

func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request) {
	projectUID := chi.URLParam(r, "projectUID")

	var params refreshParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "wait", q, &params.Wait); err != nil {
		s.writeError(w, r, &httpError{code: http.StatusBadRequest, msg: err.Error()})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "timeout", q, &params.Timeout); err != nil {
		s.writeError(w, r, &httpError{code: http.StatusBadRequest, msg: err.Error()})
		return
	}

	if params.Wait == nil || !*params.Wait {
		jobID, err := s.roadmap.Refresh(r.Context(), projectUID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"projectUID": projectUID, "jobId": jobID, "status": "queued"})
		return
	}

	timeout := defaultWaitTimeout
	if params.Timeout != nil && *params.Timeout > 0 {
		timeout = time.Duration(*params.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := s.roadmap.RefreshNow(ctx, projectUID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"projectUID": projectUID, "status": "completed"})
}

type permissionsRequest struct {
	Checks []domain.PermissionRequest `json:"checks"`
}

type permissionsResponse struct {
	Results []domain.PermissionDecision `json:"results"`
}

func (s *Server) postPermissionsCheck(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		s.writeError(w, r, &httpError{code: http.StatusUnauthorized, msg: "missing bearer token"})
		return
	}
	var body permissionsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		s.writeError(w, r, &httpError{code: http.StatusBadRequest, msg: "invalid body"})
		return
	}
	results, err := s.permissions.Check(r.Context(), token, body.Checks)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Results: results})
}

func (s *Server) getChainSync(w http.ResponseWriter, r *http.Request) {
	var chainID int64
	err := runtime.BindStyledParameterWithOptions("simple", "chainID", chi.URLParam(r, "chainID"), &chainID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		s.writeError(w, r, &httpError{code: http.StatusBadRequest, msg: err.Error()})
		return
	}
	var wait *bool
	if err := runtime.BindQueryParameter("form", true, false, "wait", r.URL.Query(), &wait); err != nil {
		s.writeError(w, r, &httpError{code: http.StatusBadRequest, msg: err.Error()})
		return
	}

	if wait != nil && *wait {
		err = s.chains.WaitForChain(r.Context(), chainID)
	} else {
		err = s.chains.Validate(r.Context(), chainID)
	}
	if err != nil {
		var mismatch *chainsync.MismatchError
		if errors.As(err, &mismatch) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"chainId":  chainID,
				"synced":   false,
				"actual":   mismatch.Actual,
				"attempts": mismatch.Attempts,
				"error":    mismatch.Error(),
			})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chainId": chainID, "synced": true})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// httpError carries an explicit status code.
type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

func statusFor(err error) int {
	var he *httpError
	var unknownFilter *milestones.UnknownFilterError
	var upstream *indexer.StatusError
	switch {
	case errors.As(err, &he):
		return he.code
	case errors.As(err, &unknownFilter),
		errors.Is(err, domain.ErrInvalidProjectUID),
		errors.Is(err, domain.ErrInvalidPermissionRequest):
		return http.StatusBadRequest
	case errors.Is(err, permissions.ErrMissingToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrProjectNotFound), errors.Is(err, chainsync.ErrUnknownChain):
		return http.StatusNotFound
	case errors.Is(err, chainsync.ErrChainMismatch):
		return http.StatusConflict
	case errors.Is(err, roadmap.ErrRefreshUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &upstream), errors.Is(err, indexer.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		logging.WithRequest(r.Context(), s.logger).Error("Request error", zap.Error(err))
		msg = http.StatusText(code)
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
