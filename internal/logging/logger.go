package logging

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// New returns a JSON production logger, or a console logger for development.
func New(env string) (*zap.Logger, error) {
	if env == "development" || env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// WithRequest tags logger with the request id carried by ctx, if any.
func WithRequest(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := middleware.GetReqID(ctx); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}
