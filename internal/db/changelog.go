package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/resource-pipeline/internal/types"
)

func insertChangelog(ctx context.Context, q querier, e *types.ChangelogEntry) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}
	_, err = q.Exec(ctx,
		`INSERT INTO changelog_entries (id, resource_id, job_id, changes, summary, source, actor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ResourceID, e.JobID, changes, e.Summary, string(e.Source), e.Actor, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert changelog entry: %w", err)
	}
	return nil
}

// ListChangelog lists a resource's changelog newest first.
func (db *DB) ListChangelog(ctx context.Context, resourceID uuid.UUID, limit int) ([]types.ChangelogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, resource_id, job_id, changes, summary, source, actor, created_at
		 FROM changelog_entries
		 WHERE resource_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		resourceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list changelog: %w", err)
	}
	defer rows.Close()

	var entries []types.ChangelogEntry
	for rows.Next() {
		var (
			e       types.ChangelogEntry
			changes []byte
			source  string
		)
		if err := rows.Scan(&e.ID, &e.ResourceID, &e.JobID, &changes, &e.Summary, &source, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan changelog entry: %w", err)
		}
		e.Source = types.ChangeSource(source)
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return nil, fmt.Errorf("failed to decode changes: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
