package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rolograph/rolograph/pkg/logging"
)

// Repository provides PostgreSQL-backed storage for the contact graph. All
// queries are scoped by owner id so one owner can never observe another's
// records.
type Repository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewRepository creates a graph repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool, logger logging.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger.With(logging.F("component", "graph-repository")),
	}
}

// Pool exposes the underlying pool for health checks and metrics collectors.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

const entityColumns = `id, owner_id, display_name, status, merged_into_id, summary, batch_id, created_at, updated_at`

// CreateEntity inserts a new active entity, generating an id when unset.
func (r *Repository) CreateEntity(ctx context.Context, e *Entity) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = EntityStatusActive
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO entities (id, owner_id, display_name, status, summary, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, e.ID, e.OwnerID, e.DisplayName, e.Status, nullIfEmpty(e.Summary), e.BatchID).
		Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by id. Returns (nil, nil) when not found.
func (r *Repository) GetEntity(ctx context.Context, ownerID, id uuid.UUID) (*Entity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)

	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return e, nil
}

// ResolveEntity retrieves an entity, following a merge redirect to the
// surviving record. Merge chains are collapsed at merge time, so a single hop
// is always enough.
func (r *Repository) ResolveEntity(ctx context.Context, ownerID, id uuid.UUID) (*Entity, error) {
	e, err := r.GetEntity(ctx, ownerID, id)
	if err != nil || e == nil {
		return e, err
	}
	if e.Status == EntityStatusMerged && e.MergedIntoID != nil {
		return r.GetEntity(ctx, ownerID, *e.MergedIntoID)
	}
	return e, nil
}

// ListActiveEntities returns active entities ordered by most recently updated.
func (r *Repository) ListActiveEntities(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Entity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE owner_id = $1 AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// ListRecentActiveEntities returns the newest active entities by creation
// time. Gap scanning focuses on recent contacts, so recency drives the order.
func (r *Repository) ListRecentActiveEntities(ctx context.Context, ownerID uuid.UUID, limit int) ([]*Entity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE owner_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent entities: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// ListBatchEntityIDs returns the active entities one import batch created,
// oldest first.
func (r *Repository) ListBatchEntityIDs(ctx context.Context, ownerID, batchID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM entities
		WHERE owner_id = $1 AND batch_id = $2 AND status = 'active'
		ORDER BY created_at
	`, ownerID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch entities: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan batch entity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateEntitySummary replaces the stored summary for an entity.
func (r *Repository) UpdateEntitySummary(ctx context.Context, ownerID, id uuid.UUID, summary string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE entities
		SET summary = $3, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id, nullIfEmpty(summary))
	if err != nil {
		return fmt.Errorf("failed to update entity summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity not found: %s", id)
	}
	return nil
}

// UpdateDisplayName replaces the display name for an entity.
func (r *Repository) UpdateDisplayName(ctx context.Context, ownerID, id uuid.UUID, name string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE entities
		SET display_name = $3, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id, name)
	if err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity not found: %s", id)
	}
	return nil
}

// CountActiveEntities returns the number of active entities for an owner.
func (r *Repository) CountActiveEntities(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM entities WHERE owner_id = $1 AND status = 'active'
	`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	var e Entity
	var summary *string
	if err := row.Scan(
		&e.ID, &e.OwnerID, &e.DisplayName, &e.Status,
		&e.MergedIntoID, &summary, &e.BatchID,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if summary != nil {
		e.Summary = *summary
	}
	return &e, nil
}

func scanEntities(rows pgx.Rows) ([]*Entity, error) {
	var entities []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return entities, nil
}

// nullIfEmpty converts empty strings to nil for nullable columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
