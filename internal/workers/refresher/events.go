package refresher

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"gaproadmap/internal/ports"
)

// IndexedEvent is published by the indexer after it stores an attestation.
type IndexedEvent struct {
	UID        string `json:"uid"`
	Type       string `json:"type"`
	ChainID    int    `json:"chainId"`
	ProjectUID string `json:"projectUID"`
}

// IndexedEventHandler drops the cached collections of the affected project and
// queues a snapshot refresh. Either dependency may be nil.
type IndexedEventHandler struct {
	cache  ports.UpdatesCache
	jobs   ports.JobRepository
	logger *zap.Logger
}

func NewIndexedEventHandler(cache ports.UpdatesCache, jobs ports.JobRepository, logger *zap.Logger) *IndexedEventHandler {
	return &IndexedEventHandler{cache: cache, jobs: jobs, logger: logger}
}

func (h *IndexedEventHandler) Handle(ctx context.Context, data json.RawMessage) error {
	var ev IndexedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		// redelivery cannot fix a malformed payload
		h.logger.Warn("Dropping malformed indexed event", zap.Error(err))
		return nil
	}
	projectUID := strings.TrimSpace(ev.ProjectUID)
	if projectUID == "" {
		h.logger.Debug("Indexed event without project, ignoring",
			zap.String("uid", ev.UID),
			zap.String("type", ev.Type),
		)
		return nil
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, projectUID); err != nil {
			return err
		}
	}
	if h.jobs != nil {
		jobID, err := h.jobs.EnqueueRefresh(ctx, projectUID)
		if err != nil {
			return err
		}
		h.logger.Info("Refresh queued for indexed attestation",
			zap.String("project_uid", projectUID),
			zap.String("attestation_uid", ev.UID),
			zap.String("type", ev.Type),
			zap.String("job_id", jobID),
		)
	}
	return nil
}
