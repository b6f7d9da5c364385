// Package permissions answers batches of permission checks against the
// indexer's auth API.
package permissions

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gaproadmap/internal/domain"
	"gaproadmap/internal/logging"
	"gaproadmap/internal/metrics"
	"gaproadmap/internal/ports"
)

var ErrMissingToken = errors.New("missing bearer token")

// Service prefers the batch endpoint and falls back to one call per request.
// A request whose individual check fails is denied.
type Service struct {
	api         ports.PermissionAPI
	concurrency int
	logger      *zap.Logger
}

func New(api ports.PermissionAPI, concurrency int, logger *zap.Logger) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{api: api, concurrency: concurrency, logger: logger}
}

// Check returns one decision per request, in request order.
func (s *Service) Check(ctx context.Context, token string, reqs []domain.PermissionRequest) ([]domain.PermissionDecision, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	if len(reqs) == 0 {
		return []domain.PermissionDecision{}, nil
	}
	for _, r := range reqs {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	log := logging.WithRequest(ctx, s.logger).With(
		zap.String("subject", Subject(token)),
		zap.Int("checks", len(reqs)),
	)

	decisions, err := s.api.CheckPermissions(ctx, token, reqs)
	if err == nil {
		return decisions, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	log.Warn("Batch permission check failed, checking individually", zap.Error(err))
	metrics.IncrementPermissionFallback()

	out := make([]domain.PermissionDecision, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, r := range reqs {
		g.Go(func() error {
			d, err := s.api.CheckPermission(gctx, token, r)
			if err != nil {
				log.Warn("Permission check failed, denying",
					zap.String("resource_type", string(r.ResourceType)),
					zap.String("resource_id", r.ResourceID),
					zap.String("action", r.Action),
					zap.Error(err),
				)
				d = domain.PermissionDecision{Request: r, Reason: "check failed: " + err.Error()}
			}
			d.Request = r
			out[i] = d
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return out, nil
}

// Subject returns the sub claim of token without verifying it, for logging.
// The indexer does the verification.
func Subject(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
