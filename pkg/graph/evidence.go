package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rolograph/rolograph/pkg/logging"
)

const evidenceColumns = `id, owner_id, kind, content, status, COALESCE(error_message, ''), batch_id, created_at, updated_at`

// CreateEvidence stores a raw input unit in pending state.
func (r *Repository) CreateEvidence(ctx context.Context, ev *Evidence) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Status == "" {
		ev.Status = EvidenceStatusPending
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO evidence (id, owner_id, kind, content, status, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, ev.ID, ev.OwnerID, ev.Kind, ev.Content, ev.Status, ev.BatchID).
		Scan(&ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create evidence: %w", err)
	}
	return nil
}

// GetEvidence retrieves an evidence record. Returns (nil, nil) when missing.
func (r *Repository) GetEvidence(ctx context.Context, ownerID, id uuid.UUID) (*Evidence, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)

	ev, err := scanEvidence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get evidence: %w", err)
	}
	return ev, nil
}

// SetEvidenceStatus moves an evidence record between processing states,
// clearing any previous error message.
func (r *Repository) SetEvidenceStatus(ctx context.Context, ownerID, id uuid.UUID, status EvidenceStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE evidence
		SET status = $3, error_message = NULL, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id, status)
	if err != nil {
		return fmt.Errorf("failed to set evidence status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("evidence not found: %s", id)
	}
	return nil
}

// SetEvidenceError marks an evidence record failed with a bounded message.
func (r *Repository) SetEvidenceError(ctx context.Context, ownerID, id uuid.UUID, cause error) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE evidence
		SET status = 'error', error_message = $3, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id, TruncateError(cause))
	if err != nil {
		return fmt.Errorf("failed to set evidence error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("evidence not found: %s", id)
	}
	return nil
}

// UpdateEvidenceContent replaces the stored content, used after a voice
// recording is transcribed so later re-extraction reads the transcript.
func (r *Repository) UpdateEvidenceContent(ctx context.Context, ownerID, id uuid.UUID, content string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE evidence
		SET content = $3, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id, content)
	if err != nil {
		return fmt.Errorf("failed to update evidence content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("evidence not found: %s", id)
	}
	return nil
}

// ListEvidenceByBatch returns evidence records belonging to an import batch.
func (r *Repository) ListEvidenceByBatch(ctx context.Context, ownerID, batchID uuid.UUID) ([]*Evidence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence
		WHERE owner_id = $1 AND batch_id = $2
		ORDER BY created_at
	`, ownerID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence by batch: %w", err)
	}
	defer rows.Close()

	var out []*Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListReprocessableEvidenceIDs returns ids of every evidence record whose
// extraction has finished, successfully or not, oldest first. In-flight
// records are excluded so a bulk re-extract never races a running job.
func (r *Repository) ListReprocessableEvidenceIDs(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM evidence
		WHERE owner_id = $1 AND status IN ('done', 'error')
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reprocessable evidence: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan evidence id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanEvidence(row rowScanner) (*Evidence, error) {
	var ev Evidence
	if err := row.Scan(&ev.ID, &ev.OwnerID, &ev.Kind, &ev.Content, &ev.Status,
		&ev.ErrorMessage, &ev.BatchID, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

// CreateImportBatch registers a bulk import run in processing state.
func (r *Repository) CreateImportBatch(ctx context.Context, b *ImportBatch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = BatchStatusProcessing
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO import_batches (id, owner_id, source, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, b.ID, b.OwnerID, b.Source, b.Status).
		Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import batch: %w", err)
	}
	return nil
}

// GetImportBatch retrieves a batch record. Returns (nil, nil) when missing.
func (r *Repository) GetImportBatch(ctx context.Context, ownerID, id uuid.UUID) (*ImportBatch, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, source, status, created_count, duplicate_count, skipped_count, created_at, updated_at
		FROM import_batches
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)

	var b ImportBatch
	err := row.Scan(&b.ID, &b.OwnerID, &b.Source, &b.Status,
		&b.Created, &b.Duplicates, &b.Skipped, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get import batch: %w", err)
	}
	return &b, nil
}

// FinishImportBatch records final counts and moves the batch to done.
func (r *Repository) FinishImportBatch(ctx context.Context, ownerID, id uuid.UUID, created, duplicates, skipped int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE import_batches
		SET status = 'done', created_count = $3, duplicate_count = $4, skipped_count = $5, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id, created, duplicates, skipped)
	if err != nil {
		return fmt.Errorf("failed to finish import batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("import batch not found: %s", id)
	}
	return nil
}

// RollbackImportBatch removes every entity the batch created, together with
// their identities, assertions and edges via cascading deletes, then marks
// the batch rolled back. Entities that predate the batch and were only
// matched against are untouched. Returns the number of entities removed.
func (r *Repository) RollbackImportBatch(ctx context.Context, ownerID, batchID uuid.UUID) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status BatchStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM import_batches
		WHERE owner_id = $1 AND id = $2
		FOR UPDATE
	`, ownerID, batchID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("import batch not found: %s", batchID)
		}
		return 0, fmt.Errorf("failed to lock import batch: %w", err)
	}
	if status == BatchStatusRolledBack {
		return 0, fmt.Errorf("import batch already rolled back: %s", batchID)
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM entities WHERE owner_id = $1 AND batch_id = $2
	`, ownerID, batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete batch entities: %w", err)
	}
	removed := tag.RowsAffected()

	if _, err := tx.Exec(ctx, `
		UPDATE import_batches SET status = 'rolled_back', updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, batchID); err != nil {
		return 0, fmt.Errorf("failed to mark batch rolled back: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit rollback: %w", err)
	}

	r.logger.Info("rolled back import batch",
		logging.F("batch_id", batchID.String()),
		logging.F("entities_removed", removed))
	return removed, nil
}
