package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateAssertion inserts a single fact. The embedding travels as a pgvector
// literal; a nil embedding stores NULL.
func (r *Repository) CreateAssertion(ctx context.Context, a *Assertion) error {
	if !a.Predicate.IsValid() {
		return fmt.Errorf("invalid predicate: %s", a.Predicate)
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO assertions (owner_id, subject_id, predicate, value, confidence, scope, evidence_id, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector)
		RETURNING id, created_at
	`, a.OwnerID, a.SubjectID, a.Predicate, a.Value, a.Confidence, a.Scope,
		a.EvidenceID, vectorParam(a.Embedding)).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create assertion: %w", err)
	}
	return nil
}

// CreateAssertions inserts many facts in one round trip via a pgx batch.
func (r *Repository) CreateAssertions(ctx context.Context, assertions []*Assertion) error {
	if len(assertions) == 0 {
		return nil
	}
	for _, a := range assertions {
		if !a.Predicate.IsValid() {
			return fmt.Errorf("invalid predicate: %s", a.Predicate)
		}
	}

	batch := &pgx.Batch{}
	for _, a := range assertions {
		batch.Queue(`
			INSERT INTO assertions (owner_id, subject_id, predicate, value, confidence, scope, evidence_id, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector)
		`, a.OwnerID, a.SubjectID, a.Predicate, a.Value, a.Confidence, a.Scope,
			a.EvidenceID, vectorParam(a.Embedding))
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range assertions {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert assertion %d: %w", i, err)
		}
	}
	return nil
}

// AssertionExists reports whether the subject already carries a fact with the
// same predicate and case-insensitive value.
func (r *Repository) AssertionExists(ctx context.Context, ownerID, subjectID uuid.UUID, predicate Predicate, value string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM assertions
			WHERE owner_id = $1 AND subject_id = $2 AND predicate = $3
			  AND lower(value) = lower($4)
		)
	`, ownerID, subjectID, predicate, value).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check assertion existence: %w", err)
	}
	return exists, nil
}

// ListAssertionsBySubject returns facts about an entity, newest first.
func (r *Repository) ListAssertionsBySubject(ctx context.Context, ownerID, subjectID uuid.UUID, limit int) ([]*Assertion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, subject_id, predicate, value, confidence, scope, evidence_id, created_at
		FROM assertions
		WHERE owner_id = $1 AND subject_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, ownerID, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assertions: %w", err)
	}
	defer rows.Close()

	return scanAssertions(rows)
}

// DeleteAssertionsByEvidence removes all facts derived from one evidence
// unit. Used before re-extraction so corrected output replaces the old facts.
func (r *Repository) DeleteAssertionsByEvidence(ctx context.Context, ownerID, evidenceID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM assertions WHERE owner_id = $1 AND evidence_id = $2
	`, ownerID, evidenceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete assertions by evidence: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PredicateCoverage maps each active entity to the set of predicates it
// carries. The gap scanner reads this in one query instead of per entity.
func (r *Repository) PredicateCoverage(ctx context.Context, ownerID uuid.UUID, entityIDs []uuid.UUID) (map[uuid.UUID]map[Predicate]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT subject_id, predicate
		FROM assertions
		WHERE owner_id = $1 AND subject_id = ANY($2)
	`, ownerID, entityIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load predicate coverage: %w", err)
	}
	defer rows.Close()

	coverage := make(map[uuid.UUID]map[Predicate]bool, len(entityIDs))
	for rows.Next() {
		var subjectID uuid.UUID
		var predicate Predicate
		if err := rows.Scan(&subjectID, &predicate); err != nil {
			return nil, fmt.Errorf("failed to scan predicate coverage: %w", err)
		}
		if coverage[subjectID] == nil {
			coverage[subjectID] = make(map[Predicate]bool)
		}
		coverage[subjectID][predicate] = true
	}
	return coverage, rows.Err()
}

// AssertionMatch is one semantic search hit with its cosine similarity.
type AssertionMatch struct {
	Assertion  *Assertion
	Similarity float64
}

// SemanticSearch returns the top-k assertions whose embeddings are cosine
// similar to the query vector, at or above minSimilarity.
func (r *Repository) SemanticSearch(ctx context.Context, ownerID uuid.UUID, query []float32, topK int, minSimilarity float64) ([]AssertionMatch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, subject_id, predicate, value, confidence, scope, evidence_id, created_at,
		       1 - (embedding <=> $2::vector) AS similarity
		FROM assertions
		WHERE owner_id = $1 AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $2::vector) >= $4
		ORDER BY embedding <=> $2::vector
		LIMIT $3
	`, ownerID, EncodeVector(query), topK, minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("failed to run semantic search: %w", err)
	}
	defer rows.Close()

	var matches []AssertionMatch
	for rows.Next() {
		var a Assertion
		var sim float64
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.SubjectID, &a.Predicate, &a.Value,
			&a.Confidence, &a.Scope, &a.EvidenceID, &a.CreatedAt, &sim); err != nil {
			return nil, fmt.Errorf("failed to scan semantic match: %w", err)
		}
		matches = append(matches, AssertionMatch{Assertion: &a, Similarity: sim})
	}
	return matches, rows.Err()
}

// EmbeddingMatch is one entity whose assertion centroid is cosine similar to
// another entity's.
type EmbeddingMatch struct {
	EntityID   uuid.UUID
	Similarity float64
}

// FindEmbeddingMatches compares the given entity's assertion centroid against
// every other active entity's centroid and returns those at or above the
// threshold. Entities with no embedded assertions never match.
func (r *Repository) FindEmbeddingMatches(ctx context.Context, ownerID, entityID uuid.UUID, threshold float64) ([]EmbeddingMatch, error) {
	rows, err := r.pool.Query(ctx, `
		WITH centroids AS (
			SELECT a.subject_id, AVG(a.embedding) AS centroid
			FROM assertions a
			JOIN entities e ON e.id = a.subject_id AND e.status = 'active'
			WHERE a.owner_id = $1 AND a.embedding IS NOT NULL
			GROUP BY a.subject_id
		)
		SELECT other.subject_id, 1 - (me.centroid <=> other.centroid)
		FROM centroids me
		JOIN centroids other ON other.subject_id <> me.subject_id
		WHERE me.subject_id = $2
		  AND 1 - (me.centroid <=> other.centroid) >= $3
		ORDER BY 2 DESC
	`, ownerID, entityID, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to find embedding matches: %w", err)
	}
	defer rows.Close()

	var matches []EmbeddingMatch
	for rows.Next() {
		var m EmbeddingMatch
		if err := rows.Scan(&m.EntityID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan embedding match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// EmbeddingPair is a pair of entities with cosine-similar assertion centroids.
type EmbeddingPair struct {
	AID        uuid.UUID
	BID        uuid.UUID
	Similarity float64
}

// FindEmbeddingPairs returns all pairs of active entities whose assertion
// centroids meet the threshold, in canonical pair order.
func (r *Repository) FindEmbeddingPairs(ctx context.Context, ownerID uuid.UUID, threshold float64) ([]EmbeddingPair, error) {
	rows, err := r.pool.Query(ctx, `
		WITH centroids AS (
			SELECT a.subject_id, AVG(a.embedding) AS centroid
			FROM assertions a
			JOIN entities e ON e.id = a.subject_id AND e.status = 'active'
			WHERE a.owner_id = $1 AND a.embedding IS NOT NULL
			GROUP BY a.subject_id
		)
		SELECT a.subject_id, b.subject_id, 1 - (a.centroid <=> b.centroid)
		FROM centroids a
		JOIN centroids b ON a.subject_id < b.subject_id
		WHERE 1 - (a.centroid <=> b.centroid) >= $2
		ORDER BY 3 DESC
	`, ownerID, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to find embedding pairs: %w", err)
	}
	defer rows.Close()

	var pairs []EmbeddingPair
	for rows.Next() {
		var p EmbeddingPair
		if err := rows.Scan(&p.AID, &p.BID, &p.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan embedding pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func scanAssertions(rows pgx.Rows) ([]*Assertion, error) {
	var assertions []*Assertion
	for rows.Next() {
		var a Assertion
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.SubjectID, &a.Predicate, &a.Value,
			&a.Confidence, &a.Scope, &a.EvidenceID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assertion: %w", err)
		}
		assertions = append(assertions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assertions: %w", err)
	}
	return assertions, nil
}

// vectorParam converts an embedding to a nullable pgvector literal.
func vectorParam(v []float32) *string {
	if len(v) == 0 {
		return nil
	}
	s := EncodeVector(v)
	return &s
}
