package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"gaproadmap/internal/domain"
)

// SaveSnapshot stores resp as the latest known collections of a project.
func (db *DB) SaveSnapshot(ctx context.Context, projectUID string, resp domain.UpdatesResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO update_snapshots (project_uid, payload, fetched_at)
        VALUES ($1, $2, now())
        ON CONFLICT (project_uid) DO UPDATE SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at
    `, projectUID, payload)
	return err
}

func (db *DB) LatestSnapshot(ctx context.Context, projectUID string) (domain.UpdatesResponse, time.Time, bool, error) {
	var (
		resp      domain.UpdatesResponse
		payload   []byte
		fetchedAt time.Time
	)
	err := db.Pool.QueryRow(ctx, `
        SELECT payload, fetched_at FROM update_snapshots WHERE project_uid = $1
    `, projectUID).Scan(&payload, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return resp, fetchedAt, false, nil
	}
	if err != nil {
		return resp, fetchedAt, false, err
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return resp, fetchedAt, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return resp, fetchedAt, true, nil
}
