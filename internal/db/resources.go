package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/resource-pipeline/internal/types"
)

const resourceColumns = `id, slug, title, category, url, repo_owner, repo_name, description, overview,
	features, tags, difficulty, facts, screenshots, last_verified_at, content_hash, created_at, updated_at`

// UpsertResource inserts or updates a resource keyed by slug. A zero ID is assigned.
func (db *DB) UpsertResource(ctx context.Context, r *types.Resource) error {
	return upsertResource(ctx, db.pool, r)
}

func upsertResource(ctx context.Context, q querier, r *types.Resource) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.RefreshContentHash()

	features, tags, facts, screenshots, err := marshalResourceJSON(r)
	if err != nil {
		return err
	}
	var owner, name *string
	if r.Repository != nil {
		owner, name = &r.Repository.Owner, &r.Repository.Name
	}

	err = q.QueryRow(ctx,
		`INSERT INTO resources (`+resourceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (slug) DO UPDATE SET
		   title = $3, category = $4, url = $5, repo_owner = $6, repo_name = $7,
		   description = $8, overview = $9, features = $10, tags = $11, difficulty = $12,
		   facts = $13, screenshots = $14, last_verified_at = $15, content_hash = $16, updated_at = $18
		 RETURNING id, created_at`,
		r.ID, r.Slug, r.Title, r.Category, r.URL, owner, name, r.Description, r.Overview,
		features, tags, r.Difficulty, facts, screenshots, r.LastVerifiedAt, r.ContentHash,
		r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert resource %s: %w", r.Slug, err)
	}
	return nil
}

// GetResource retrieves a resource by ID
func (db *DB) GetResource(ctx context.Context, id uuid.UUID) (*types.Resource, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id)
	r, err := scanResource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return r, nil
}

// GetResourceBySlug retrieves a resource by slug
func (db *DB) GetResourceBySlug(ctx context.Context, slug string) (*types.Resource, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE slug = $1`, slug)
	r, err := scanResource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get resource %s: %w", slug, err)
	}
	return r, nil
}

// ListResources lists resources ordered by staleness, least recently verified first.
func (db *DB) ListResources(ctx context.Context, filter ResourceFilter) ([]types.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources`
	var (
		conds []string
		args  []any
	)
	if filter.StaleBefore != nil {
		args = append(args, *filter.StaleBefore)
		conds = append(conds, fmt.Sprintf("(last_verified_at IS NULL OR last_verified_at < $%d)", len(args)))
	}
	if len(filter.Slugs) > 0 {
		args = append(args, filter.Slugs)
		conds = append(conds, fmt.Sprintf("slug = ANY($%d)", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY last_verified_at NULLS FIRST, slug"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []types.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, *r)
	}
	return resources, rows.Err()
}

func marshalResourceJSON(r *types.Resource) (features, tags, facts, screenshots []byte, err error) {
	if features, err = json.Marshal(nonNil(r.Features)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal features: %w", err)
	}
	if tags, err = json.Marshal(nonNil(r.Tags)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	if facts, err = json.Marshal(r.Facts); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal facts: %w", err)
	}
	if screenshots, err = json.Marshal(nonNil(r.Screenshots)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal screenshots: %w", err)
	}
	return features, tags, facts, screenshots, nil
}

func scanResource(row pgx.Row) (*types.Resource, error) {
	var (
		r                                      types.Resource
		owner, name                            *string
		features, tags, facts, screenshotsJSON []byte
	)
	err := row.Scan(&r.ID, &r.Slug, &r.Title, &r.Category, &r.URL, &owner, &name,
		&r.Description, &r.Overview, &features, &tags, &r.Difficulty, &facts, &screenshotsJSON,
		&r.LastVerifiedAt, &r.ContentHash, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if owner != nil && name != nil && *owner != "" {
		r.Repository = &types.RepositoryRef{Owner: *owner, Name: *name}
	}
	if err := unmarshalAll(
		jsonField{features, &r.Features},
		jsonField{tags, &r.Tags},
		jsonField{facts, &r.Facts},
		jsonField{screenshotsJSON, &r.Screenshots},
	); err != nil {
		return nil, err
	}
	return &r, nil
}

type jsonField struct {
	data []byte
	dest any
}

func unmarshalAll(fields ...jsonField) error {
	for _, f := range fields {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dest); err != nil {
			return fmt.Errorf("failed to decode column: %w", err)
		}
	}
	return nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
