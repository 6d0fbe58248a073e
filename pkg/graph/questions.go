package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// QuestionStatus tracks the lifecycle of a proactive question.
type QuestionStatus string

const (
	QuestionStatusPending   QuestionStatus = "pending"
	QuestionStatusShown     QuestionStatus = "shown"
	QuestionStatusAnswered  QuestionStatus = "answered"
	QuestionStatusDismissed QuestionStatus = "dismissed"
)

// QuestionKind distinguishes gap-filling questions from merge confirmations.
type QuestionKind string

const (
	QuestionKindGap          QuestionKind = "gap"
	QuestionKindDedupConfirm QuestionKind = "dedup_confirm"
)

// Question is one queued prompt for the owner, either asking to fill a
// knowledge gap about an entity or to confirm a suspected duplicate pair.
type Question struct {
	ID        uuid.UUID      `json:"id"`
	OwnerID   uuid.UUID      `json:"owner_id"`
	Kind      QuestionKind   `json:"kind"`
	EntityID  *uuid.UUID     `json:"entity_id,omitempty"`
	Dimension string         `json:"dimension,omitempty"`
	TextEN    string         `json:"text_en"`
	TextRU    string         `json:"text_ru"`
	Priority  float64        `json:"priority"`
	Status    QuestionStatus `json:"status"`
	PairAID   *uuid.UUID     `json:"pair_a_id,omitempty"`
	PairBID   *uuid.UUID     `json:"pair_b_id,omitempty"`
	ExpiresAt time.Time      `json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

const questionColumns = `id, owner_id, kind, entity_id, COALESCE(dimension, ''), text_en, text_ru,
	priority, status, pair_a_id, pair_b_id, expires_at, created_at, updated_at`

// CreateQuestion queues a question, generating an id when unset. An entity
// carries at most one open gap question at a time, whatever its dimension;
// a second one is not queued until the first is resolved.
func (r *Repository) CreateQuestion(ctx context.Context, q *Question) (bool, error) {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = QuestionStatusPending
	}

	if q.Kind == QuestionKindGap && q.EntityID != nil {
		var exists bool
		err := r.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM questions
				WHERE owner_id = $1 AND entity_id = $2
				  AND status IN ('pending', 'shown')
			)
		`, q.OwnerID, q.EntityID).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("failed to check question existence: %w", err)
		}
		if exists {
			return false, nil
		}
	}

	if q.Kind == QuestionKindDedupConfirm && q.PairAID != nil && q.PairBID != nil {
		a, b := CanonicalPair(*q.PairAID, *q.PairBID)
		q.PairAID, q.PairBID = &a, &b
		var exists bool
		err := r.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM questions
				WHERE owner_id = $1 AND pair_a_id = $2 AND pair_b_id = $3
				  AND status IN ('pending', 'shown')
			)
		`, q.OwnerID, q.PairAID, q.PairBID).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("failed to check question existence: %w", err)
		}
		if exists {
			return false, nil
		}
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO questions (id, owner_id, kind, entity_id, dimension, text_en, text_ru, priority, status, pair_a_id, pair_b_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, q.ID, q.OwnerID, q.Kind, q.EntityID, nullIfEmpty(q.Dimension), q.TextEN, q.TextRU,
		q.Priority, q.Status, q.PairAID, q.PairBID, q.ExpiresAt).
		Scan(&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create question: %w", err)
	}
	return true, nil
}

// HasPendingDedupQuestion reports whether an open merge-confirmation question
// already references the entity on either side of its pair.
func (r *Repository) HasPendingDedupQuestion(ctx context.Context, ownerID, entityID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM questions
			WHERE owner_id = $1 AND kind = 'dedup_confirm'
			  AND status IN ('pending', 'shown')
			  AND (pair_a_id = $2 OR pair_b_id = $2)
		)
	`, ownerID, entityID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dedup question existence: %w", err)
	}
	return exists, nil
}

// GetQuestion retrieves a question by id. Returns (nil, nil) when not found.
func (r *Repository) GetQuestion(ctx context.Context, ownerID, id uuid.UUID) (*Question, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)

	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

// NextPendingQuestion returns the unexpired pending question with the highest
// priority. Returns (nil, nil) when the queue is empty.
func (r *Repository) NextPendingQuestion(ctx context.Context, ownerID uuid.UUID, now time.Time) (*Question, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE owner_id = $1 AND status = 'pending' AND expires_at > $2
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
	`, ownerID, now)

	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get next question: %w", err)
	}
	return q, nil
}

// SetQuestionStatus moves a question between lifecycle states.
func (r *Repository) SetQuestionStatus(ctx context.Context, ownerID, id uuid.UUID, status QuestionStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE questions
		SET status = $3, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id, status)
	if err != nil {
		return fmt.Errorf("failed to set question status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("question not found: %s", id)
	}
	return nil
}

// SnoozeQuestion returns a shown question to the pending queue at reduced
// priority and pushes its expiry out, so a snoozed question resurfaces later
// instead of immediately.
func (r *Repository) SnoozeQuestion(ctx context.Context, ownerID, id uuid.UUID, priorityFactor float64, expiryExtension time.Duration) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE questions
		SET status = 'pending',
		    priority = priority * $3,
		    expires_at = GREATEST(expires_at, NOW() + $4::interval),
		    updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id, priorityFactor, expiryExtension.String())
	if err != nil {
		return fmt.Errorf("failed to snooze question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("question not found: %s", id)
	}
	return nil
}

// DismissQuestionsForEntity closes open questions targeting an entity. Used
// when the entity is merged away so stale prompts never reach the owner.
func (r *Repository) DismissQuestionsForEntity(ctx context.Context, ownerID, entityID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE questions
		SET status = 'dismissed', updated_at = NOW()
		WHERE owner_id = $1
		  AND status IN ('pending', 'shown')
		  AND (entity_id = $2 OR pair_a_id = $2 OR pair_b_id = $2)
	`, ownerID, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to dismiss questions for entity: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DismissQuestionsForPair closes open merge-confirmation questions about an
// unordered pair, after the pair was decided through another path.
func (r *Repository) DismissQuestionsForPair(ctx context.Context, ownerID, a, b uuid.UUID) (int64, error) {
	a, b = CanonicalPair(a, b)
	tag, err := r.pool.Exec(ctx, `
		UPDATE questions
		SET status = 'dismissed', updated_at = NOW()
		WHERE owner_id = $1 AND pair_a_id = $2 AND pair_b_id = $3
		  AND status IN ('pending', 'shown')
	`, ownerID, a, b)
	if err != nil {
		return 0, fmt.Errorf("failed to dismiss pair questions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanQuestion(row rowScanner) (*Question, error) {
	var q Question
	if err := row.Scan(&q.ID, &q.OwnerID, &q.Kind, &q.EntityID, &q.Dimension,
		&q.TextEN, &q.TextRU, &q.Priority, &q.Status,
		&q.PairAID, &q.PairBID, &q.ExpiresAt, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	return &q, nil
}
