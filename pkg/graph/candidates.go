package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertCandidate records a proposed duplicate pair. The pair key is
// canonicalized before writing. If a row for the pair already exists in any
// status it is left untouched: the first detection wins, and a rejected or
// merged decision is never resurrected by a later scan. Returns whether a new
// pending row was created.
func (r *Repository) UpsertCandidate(ctx context.Context, c *MatchCandidate) (bool, error) {
	c.AID, c.BID = CanonicalPair(c.AID, c.BID)
	if c.Status == "" {
		c.Status = CandidateStatusPending
	}

	reasons, err := json.Marshal(c.Reasons)
	if err != nil {
		return false, fmt.Errorf("failed to marshal match reasons: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO match_candidates (owner_id, a_id, b_id, score, match_type, reasons, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, a_id, b_id) DO NOTHING
	`, c.OwnerID, c.AID, c.BID, c.Score, c.MatchType, reasons, c.Status)
	if err != nil {
		return false, fmt.Errorf("failed to upsert candidate: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetCandidateByPair retrieves the candidate row for an unordered pair.
// Returns (nil, nil) when the pair was never flagged.
func (r *Repository) GetCandidateByPair(ctx context.Context, ownerID, a, b uuid.UUID) (*MatchCandidate, error) {
	a, b = CanonicalPair(a, b)
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, a_id, b_id, score, match_type, reasons, status, created_at, updated_at
		FROM match_candidates
		WHERE owner_id = $1 AND a_id = $2 AND b_id = $3
	`, ownerID, a, b)

	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return c, nil
}

// ListPendingCandidates returns undecided pairs ordered by score descending.
func (r *Repository) ListPendingCandidates(ctx context.Context, ownerID uuid.UUID, limit int) ([]*MatchCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, a_id, b_id, score, match_type, reasons, status, created_at, updated_at
		FROM match_candidates
		WHERE owner_id = $1 AND status = 'pending'
		ORDER BY score DESC, created_at ASC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*MatchCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// SetCandidateStatus updates the decision state for an unordered pair.
func (r *Repository) SetCandidateStatus(ctx context.Context, ownerID, a, b uuid.UUID, status CandidateStatus) error {
	a, b = CanonicalPair(a, b)
	tag, err := r.pool.Exec(ctx, `
		UPDATE match_candidates
		SET status = $4, updated_at = NOW()
		WHERE owner_id = $1 AND a_id = $2 AND b_id = $3
	`, ownerID, a, b, status)
	if err != nil {
		return fmt.Errorf("failed to set candidate status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("candidate not found for pair %s/%s", a, b)
	}
	return nil
}

// RecordRejection marks an unordered pair as not-a-duplicate, creating the
// row if no scan ever flagged it. A rejected pair is suppressed from all
// future duplicate detection.
func (r *Repository) RecordRejection(ctx context.Context, ownerID, a, b uuid.UUID) error {
	c := rejectionCandidate(ownerID, a, b)
	reasons, err := json.Marshal(c.Reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal rejection reasons: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO match_candidates (owner_id, a_id, b_id, score, match_type, reasons, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, a_id, b_id)
		DO UPDATE SET status = 'rejected', updated_at = NOW()
	`, c.OwnerID, c.AID, c.BID, c.Score, c.MatchType, reasons, c.Status)
	if err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}
	return nil
}

// rejectionCandidate builds the row stored for an owner rejection. No
// detection tier produced it, so the match type is manual, not a tier label.
func rejectionCandidate(ownerID, a, b uuid.UUID) *MatchCandidate {
	a, b = CanonicalPair(a, b)
	return &MatchCandidate{
		OwnerID:   ownerID,
		AID:       a,
		BID:       b,
		Score:     0,
		MatchType: MatchTypeManual,
		Reasons:   MatchReasons{RejectedByUser: true},
		Status:    CandidateStatusRejected,
	}
}

// IsPairRejected reports whether the unordered pair was previously rejected.
func (r *Repository) IsPairRejected(ctx context.Context, ownerID, a, b uuid.UUID) (bool, error) {
	a, b = CanonicalPair(a, b)
	var rejected bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM match_candidates
			WHERE owner_id = $1 AND a_id = $2 AND b_id = $3 AND status = 'rejected'
		)
	`, ownerID, a, b).Scan(&rejected)
	if err != nil {
		return false, fmt.Errorf("failed to check rejection: %w", err)
	}
	return rejected, nil
}

func scanCandidate(row rowScanner) (*MatchCandidate, error) {
	var c MatchCandidate
	var reasons []byte
	if err := row.Scan(&c.ID, &c.OwnerID, &c.AID, &c.BID, &c.Score, &c.MatchType,
		&reasons, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &c.Reasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal match reasons: %w", err)
		}
	}
	return &c, nil
}
