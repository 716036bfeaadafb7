package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/resource-pipeline/internal/types"
)

// CreateJob inserts a new job. The partial unique index rejects a second active job.
func (db *DB) CreateJob(ctx context.Context, job *types.UpdateJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO update_jobs (id, resource_id, resource_slug, trigger, status, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.ResourceID, job.ResourceSlug, string(job.Trigger), string(job.Status), payload,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, activeJobIndex) {
			return ErrActiveJob
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.UpdateJob, error) {
	var payload []byte
	err := db.pool.QueryRow(ctx, `SELECT payload FROM update_jobs WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return decodeJob(payload)
}

// SaveJob writes job when the stored status still equals expected.
func (db *DB) SaveJob(ctx context.Context, job *types.UpdateJob, expected types.JobStatus) error {
	return saveJob(ctx, db.pool, job, expected)
}

func saveJob(ctx context.Context, q querier, job *types.UpdateJob, expected types.JobStatus) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	tag, err := q.Exec(ctx,
		`UPDATE update_jobs SET status = $1, payload = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(job.Status), payload, job.UpdatedAt, job.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM update_jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check job: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// ListJobs lists jobs newest first.
func (db *DB) ListJobs(ctx context.Context, filter JobFilter) ([]types.UpdateJob, error) {
	query := `SELECT payload FROM update_jobs`
	var (
		conds []string
		args  []any
	)
	if filter.ResourceID != nil {
		args = append(args, *filter.ResourceID)
		conds = append(conds, fmt.Sprintf("resource_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.UpdateJob
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job, err := decodeJob(payload)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ApplyChanges commits the patched resource, the changelog entry and the
// job transition in one transaction.
func (db *DB) ApplyChanges(ctx context.Context, in ApplyInput) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the job row first so concurrent reviewers serialize here.
	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM update_jobs WHERE id = $1 FOR UPDATE`, in.Job.ID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock job: %w", err)
	}
	if types.JobStatus(status) != in.Expected {
		return ErrConflict
	}

	if in.Resource != nil {
		if err := upsertResource(ctx, tx, in.Resource); err != nil {
			return err
		}
	}
	if in.Entry != nil {
		if err := insertChangelog(ctx, tx, in.Entry); err != nil {
			return err
		}
	}
	if err := saveJob(ctx, tx, in.Job, in.Expected); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit apply: %w", err)
	}
	return nil
}

func decodeJob(payload []byte) (*types.UpdateJob, error) {
	var job types.UpdateJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	if job.ProposedChanges == nil {
		job.ProposedChanges = []types.ProposedChange{}
	}
	return &job, nil
}
