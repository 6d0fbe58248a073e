package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateEdge inserts a directed relationship. Self-edges are rejected, and an
// identical edge (same endpoints and type) is a no-op. Returns whether a new
// row was written.
func (r *Repository) CreateEdge(ctx context.Context, e *Edge) (bool, error) {
	if !e.Type.IsValid() {
		return false, fmt.Errorf("invalid edge type: %s", e.Type)
	}
	if e.SrcID == e.DstID {
		return false, fmt.Errorf("self-edge not allowed: %s", e.SrcID)
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO edges (owner_id, src_id, dst_id, type, scope, context)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, src_id, dst_id, type) DO NOTHING
	`, e.OwnerID, e.SrcID, e.DstID, e.Type, e.Scope, nullIfEmpty(e.Context))
	if err != nil {
		return false, fmt.Errorf("failed to create edge: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListEdges returns all edges touching an entity, in either direction.
func (r *Repository) ListEdges(ctx context.Context, ownerID, entityID uuid.UUID) ([]*Edge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, src_id, dst_id, type, scope, COALESCE(context, ''), created_at
		FROM edges
		WHERE owner_id = $1 AND (src_id = $2 OR dst_id = $2)
		ORDER BY created_at DESC
	`, ownerID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.SrcID, &e.DstID, &e.Type, &e.Scope, &e.Context, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// CountEdges returns the number of edges touching an entity.
func (r *Repository) CountEdges(ctx context.Context, ownerID, entityID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM edges
		WHERE owner_id = $1 AND (src_id = $2 OR dst_id = $2)
	`, ownerID, entityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count edges: %w", err)
	}
	return count, nil
}
