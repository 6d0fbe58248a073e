package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RateLimitState is the per-owner question budget bookkeeping. Day is the
// calendar date the ShownToday counter belongs to; the counter resets when
// the date rolls over.
type RateLimitState struct {
	OwnerID              uuid.UUID  `json:"owner_id"`
	Day                  time.Time  `json:"day"`
	ShownToday           int        `json:"shown_today"`
	ConsecutiveDismisses int        `json:"consecutive_dismisses"`
	LastShownAt          *time.Time `json:"last_shown_at,omitempty"`
	PausedUntil          *time.Time `json:"paused_until,omitempty"`
}

// GetRateLimitState loads the question budget for an owner. A missing row
// yields a zero state, not an error.
func (r *Repository) GetRateLimitState(ctx context.Context, ownerID uuid.UUID) (*RateLimitState, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT owner_id, day, shown_today, consecutive_dismisses, last_shown_at, paused_until
		FROM rate_limits
		WHERE owner_id = $1
	`, ownerID)

	var s RateLimitState
	err := row.Scan(&s.OwnerID, &s.Day, &s.ShownToday, &s.ConsecutiveDismisses, &s.LastShownAt, &s.PausedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &RateLimitState{OwnerID: ownerID}, nil
		}
		return nil, fmt.Errorf("failed to get rate limit state: %w", err)
	}
	return &s, nil
}

// SaveRateLimitState upserts the question budget for an owner.
func (r *Repository) SaveRateLimitState(ctx context.Context, s *RateLimitState) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rate_limits (owner_id, day, shown_today, consecutive_dismisses, last_shown_at, paused_until)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id) DO UPDATE SET
			day = EXCLUDED.day,
			shown_today = EXCLUDED.shown_today,
			consecutive_dismisses = EXCLUDED.consecutive_dismisses,
			last_shown_at = EXCLUDED.last_shown_at,
			paused_until = EXCLUDED.paused_until
	`, s.OwnerID, s.Day, s.ShownToday, s.ConsecutiveDismisses, s.LastShownAt, s.PausedUntil)
	if err != nil {
		return fmt.Errorf("failed to save rate limit state: %w", err)
	}
	return nil
}
