package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/rolograph/rolograph/pkg/errors"
	"github.com/rolograph/rolograph/pkg/logging"
)

// MergeEntities folds the duplicate entity into the primary in one
// transaction: identities, assertions and edges move to the primary,
// resulting self-edges are removed, and the duplicate row stays behind as a
// merged tombstone pointing at the survivor. Redirects of earlier merges into
// the duplicate are collapsed onto the primary so lookups stay single-hop.
// Pending duplicate candidates and open questions referencing the duplicate
// are closed; they will be re-detected against the primary if still relevant.
func (r *Repository) MergeEntities(ctx context.Context, ownerID, primaryID, duplicateID uuid.UUID) (*MergeCounts, error) {
	if primaryID == duplicateID {
		return nil, fmt.Errorf("%w: cannot merge entity into itself", apperrors.ErrValidation)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, id := range []uuid.UUID{primaryID, duplicateID} {
		var status EntityStatus
		err := tx.QueryRow(ctx, `
			SELECT status FROM entities
			WHERE owner_id = $1 AND id = $2
			FOR UPDATE
		`, ownerID, id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: entity %s", apperrors.ErrNotFound, id)
			}
			return nil, fmt.Errorf("failed to lock entity: %w", err)
		}
		if status != EntityStatusActive {
			return nil, fmt.Errorf("%w: entity %s is not active", apperrors.ErrInvalidState, id)
		}
	}

	counts := &MergeCounts{}

	// Identities the primary already holds would collide on the per-entity
	// unique key; drop those duplicates first, then move the rest.
	if _, err := tx.Exec(ctx, `
		DELETE FROM identities dup
		USING identities keep
		WHERE dup.owner_id = $1 AND dup.entity_id = $2
		  AND keep.owner_id = $1 AND keep.entity_id = $3
		  AND keep.namespace = dup.namespace AND keep.value = dup.value
	`, ownerID, duplicateID, primaryID); err != nil {
		return nil, fmt.Errorf("failed to drop colliding identities: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE identities SET entity_id = $3
		WHERE owner_id = $1 AND entity_id = $2
	`, ownerID, duplicateID, primaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to move identities: %w", err)
	}
	counts.Identities = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		UPDATE assertions SET subject_id = $3
		WHERE owner_id = $1 AND subject_id = $2
	`, ownerID, duplicateID, primaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to move assertions: %w", err)
	}
	counts.Assertions = tag.RowsAffected()

	// Edges that would duplicate an existing primary edge, or become
	// self-edges after repointing, are removed rather than moved.
	tag, err = tx.Exec(ctx, `
		DELETE FROM edges
		WHERE owner_id = $1
		  AND ((src_id = $2 AND dst_id = $3) OR (src_id = $3 AND dst_id = $2))
	`, ownerID, duplicateID, primaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove self-edges: %w", err)
	}
	counts.SelfEdges = tag.RowsAffected()

	if _, err := tx.Exec(ctx, `
		DELETE FROM edges dup
		USING edges keep
		WHERE dup.owner_id = $1 AND keep.owner_id = $1
		  AND dup.src_id = $2 AND keep.src_id = $3
		  AND dup.dst_id = keep.dst_id AND dup.type = keep.type
	`, ownerID, duplicateID, primaryID); err != nil {
		return nil, fmt.Errorf("failed to drop colliding outbound edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM edges dup
		USING edges keep
		WHERE dup.owner_id = $1 AND keep.owner_id = $1
		  AND dup.dst_id = $2 AND keep.dst_id = $3
		  AND dup.src_id = keep.src_id AND dup.type = keep.type
	`, ownerID, duplicateID, primaryID); err != nil {
		return nil, fmt.Errorf("failed to drop colliding inbound edges: %w", err)
	}
	tag, err = tx.Exec(ctx, `
		UPDATE edges SET src_id = $3
		WHERE owner_id = $1 AND src_id = $2
	`, ownerID, duplicateID, primaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to move outbound edges: %w", err)
	}
	counts.Edges = tag.RowsAffected()
	tag, err = tx.Exec(ctx, `
		UPDATE edges SET dst_id = $3
		WHERE owner_id = $1 AND dst_id = $2
	`, ownerID, duplicateID, primaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to move inbound edges: %w", err)
	}
	counts.Edges += tag.RowsAffected()

	if _, err := tx.Exec(ctx, `
		UPDATE entities
		SET status = 'merged', merged_into_id = $3, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, duplicateID, primaryID); err != nil {
		return nil, fmt.Errorf("failed to tombstone duplicate: %w", err)
	}

	// Collapse chains: anything already merged into the duplicate now points
	// straight at the primary.
	if _, err := tx.Exec(ctx, `
		UPDATE entities SET merged_into_id = $3, updated_at = NOW()
		WHERE owner_id = $1 AND merged_into_id = $2
	`, ownerID, duplicateID, primaryID); err != nil {
		return nil, fmt.Errorf("failed to collapse merge chain: %w", err)
	}

	a, b := CanonicalPair(primaryID, duplicateID)
	if _, err := tx.Exec(ctx, `
		UPDATE match_candidates SET status = 'merged', updated_at = NOW()
		WHERE owner_id = $1 AND a_id = $2 AND b_id = $3
	`, ownerID, a, b); err != nil {
		return nil, fmt.Errorf("failed to mark candidate merged: %w", err)
	}

	tag, err = tx.Exec(ctx, `
		DELETE FROM match_candidates
		WHERE owner_id = $1 AND status = 'pending'
		  AND (a_id = $2 OR b_id = $2)
	`, ownerID, duplicateID)
	if err != nil {
		return nil, fmt.Errorf("failed to close stale candidates: %w", err)
	}
	counts.Candidates = tag.RowsAffected()

	if _, err := tx.Exec(ctx, `
		UPDATE questions SET status = 'dismissed', updated_at = NOW()
		WHERE owner_id = $1
		  AND status IN ('pending', 'shown')
		  AND (entity_id = $2 OR pair_a_id = $2 OR pair_b_id = $2)
	`, ownerID, duplicateID); err != nil {
		return nil, fmt.Errorf("failed to dismiss stale questions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}

	r.logger.Info("merged entities",
		logging.F("primary_id", primaryID.String()),
		logging.F("duplicate_id", duplicateID.String()),
		logging.F("assertions_moved", counts.Assertions),
		logging.F("edges_moved", counts.Edges),
		logging.F("identities_moved", counts.Identities))
	return counts, nil
}
