// Package dedup detects and resolves duplicate entities. Detection runs in
// three tiers of decreasing certainty: shared strong identifiers, trigram
// name similarity, and assertion-embedding similarity. Detection only flags
// pairs; merging always happens through an explicit decision, either by the
// owner or through a confirmation question.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rolograph/rolograph/pkg/graph"
	"github.com/rolograph/rolograph/pkg/logging"
)

// Thresholds configures the detection tiers. Batch scans use a stricter
// embedding cutoff than per-entity checks because nobody reviews each pair as
// it is found.
type Thresholds struct {
	Name           float64
	Embedding      float64
	BatchEmbedding float64
	AutoQuestion   float64
}

// DefaultThresholds mirror the service configuration defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Name:           0.5,
		Embedding:      0.85,
		BatchEmbedding: 0.8,
		AutoQuestion:   0.6,
	}
}

// Store is the graph storage surface the engine reads and writes.
type Store interface {
	GetEntity(ctx context.Context, ownerID, id uuid.UUID) (*graph.Entity, error)
	ListBatchEntityIDs(ctx context.Context, ownerID, batchID uuid.UUID) ([]uuid.UUID, error)
	FindSharedIdentityMatches(ctx context.Context, ownerID, entityID uuid.UUID) ([]graph.IdentityMatch, error)
	FindNameMatches(ctx context.Context, ownerID, entityID uuid.UUID, threshold float64) ([]graph.NameMatch, error)
	FindEmbeddingMatches(ctx context.Context, ownerID, entityID uuid.UUID, threshold float64) ([]graph.EmbeddingMatch, error)
	FindSharedIdentityPairs(ctx context.Context, ownerID uuid.UUID) ([]graph.SharedIdentityPair, error)
	FindNamePairs(ctx context.Context, ownerID uuid.UUID, threshold float64) ([]graph.NamePair, error)
	FindEmbeddingPairs(ctx context.Context, ownerID uuid.UUID, threshold float64) ([]graph.EmbeddingPair, error)

	IsPairRejected(ctx context.Context, ownerID, a, b uuid.UUID) (bool, error)
	UpsertCandidate(ctx context.Context, c *graph.MatchCandidate) (bool, error)
	ListPendingCandidates(ctx context.Context, ownerID uuid.UUID, limit int) ([]*graph.MatchCandidate, error)
	RecordRejection(ctx context.Context, ownerID, a, b uuid.UUID) error
	MergeEntities(ctx context.Context, ownerID, primaryID, duplicateID uuid.UUID) (*graph.MergeCounts, error)

	CreateQuestion(ctx context.Context, q *graph.Question) (bool, error)
	HasPendingDedupQuestion(ctx context.Context, ownerID, entityID uuid.UUID) (bool, error)
	DismissQuestionsForPair(ctx context.Context, ownerID, a, b uuid.UUID) (int64, error)
}

// Match is one suspected duplicate of an entity.
type Match struct {
	EntityID  uuid.UUID
	Score     float64
	MatchType graph.MatchType
	Reasons   graph.MatchReasons
}

// Engine runs duplicate detection and resolution.
type Engine struct {
	store       Store
	thresholds  Thresholds
	questionTTL time.Duration
	logger      logging.Logger
}

// NewEngine creates a dedup engine.
func NewEngine(store Store, thresholds Thresholds, questionTTL time.Duration, logger logging.Logger) *Engine {
	return &Engine{
		store:       store,
		thresholds:  thresholds,
		questionTTL: questionTTL,
		logger:      logger.With(logging.F("component", "dedup-engine")),
	}
}

// FindDuplicatesForEntity runs the three detection tiers for one entity.
// When tiers disagree about the same counterpart, the earlier (more certain)
// tier wins; scores are never fused across tiers. Previously rejected pairs
// are suppressed. Results are sorted by score descending.
func (e *Engine) FindDuplicatesForEntity(ctx context.Context, ownerID, entityID uuid.UUID) ([]Match, error) {
	return e.findDuplicates(ctx, ownerID, entityID, e.thresholds.Embedding)
}

func (e *Engine) findDuplicates(ctx context.Context, ownerID, entityID uuid.UUID, embeddingThreshold float64) ([]Match, error) {
	seen := make(map[uuid.UUID]Match)

	identityMatches, err := e.store.FindSharedIdentityMatches(ctx, ownerID, entityID)
	if err != nil {
		return nil, err
	}
	for _, m := range identityMatches {
		if _, ok := seen[m.EntityID]; ok {
			continue
		}
		seen[m.EntityID] = Match{
			EntityID:  m.EntityID,
			Score:     1.0,
			MatchType: graph.MatchTypeIdentity,
			Reasons: graph.MatchReasons{
				SharedNamespace: string(m.Namespace),
				SharedValue:     m.Value,
			},
		}
	}

	nameMatches, err := e.store.FindNameMatches(ctx, ownerID, entityID, e.thresholds.Name)
	if err != nil {
		return nil, err
	}
	for _, m := range nameMatches {
		if _, ok := seen[m.EntityID]; ok {
			continue
		}
		seen[m.EntityID] = Match{
			EntityID:  m.EntityID,
			Score:     m.Similarity,
			MatchType: graph.MatchTypeName,
			Reasons:   graph.MatchReasons{NameB: m.Name, Similarity: m.Similarity},
		}
	}

	embeddingMatches, err := e.store.FindEmbeddingMatches(ctx, ownerID, entityID, embeddingThreshold)
	if err != nil {
		return nil, err
	}
	for _, m := range embeddingMatches {
		if _, ok := seen[m.EntityID]; ok {
			continue
		}
		seen[m.EntityID] = Match{
			EntityID:  m.EntityID,
			Score:     m.Similarity,
			MatchType: graph.MatchTypeEmbedding,
			Reasons:   graph.MatchReasons{Similarity: m.Similarity},
		}
	}

	matches := make([]Match, 0, len(seen))
	for _, m := range seen {
		rejected, err := e.store.IsPairRejected(ctx, ownerID, entityID, m.EntityID)
		if err != nil {
			return nil, err
		}
		if rejected {
			continue
		}
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// FlagDuplicatesForEntity records detected duplicates as pending candidates
// and queues a confirmation question for each sufficiently confident pair.
// Returns how many new candidates were flagged.
func (e *Engine) FlagDuplicatesForEntity(ctx context.Context, ownerID, entityID uuid.UUID) (int, error) {
	matches, err := e.FindDuplicatesForEntity(ctx, ownerID, entityID)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, m := range matches {
		inserted, err := e.store.UpsertCandidate(ctx, &graph.MatchCandidate{
			OwnerID:   ownerID,
			AID:       entityID,
			BID:       m.EntityID,
			Score:     m.Score,
			MatchType: m.MatchType,
			Reasons:   m.Reasons,
		})
		if err != nil {
			return flagged, err
		}
		if !inserted {
			continue
		}
		flagged++

		if m.Score >= e.thresholds.AutoQuestion {
			if err := e.queueConfirmQuestion(ctx, ownerID, entityID, m.EntityID, m.Score); err != nil {
				return flagged, err
			}
		}
	}

	if flagged > 0 {
		e.logger.Info("flagged duplicate candidates",
			logging.F("entity_id", entityID.String()),
			logging.F("flagged", flagged))
	}
	return flagged, nil
}

// RunBatchDedup scans the entities one import batch created against the
// pre-existing graph. Batch siblings are never flagged against each other:
// rows inside one export are assumed to be distinct people. The embedding
// tier runs at the looser batch threshold since imports arrive with sparse
// fact profiles. Candidates are only flagged for review; nothing merges and
// no questions are queued here. Returns how many new candidates were flagged.
func (e *Engine) RunBatchDedup(ctx context.Context, ownerID, batchID uuid.UUID) (int, error) {
	ids, err := e.store.ListBatchEntityIDs(ctx, ownerID, batchID)
	if err != nil {
		return 0, err
	}
	inBatch := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		inBatch[id] = true
	}

	flagged := 0
	for _, id := range ids {
		matches, err := e.findDuplicates(ctx, ownerID, id, e.thresholds.BatchEmbedding)
		if err != nil {
			return flagged, err
		}
		for _, m := range matches {
			if inBatch[m.EntityID] {
				continue
			}
			inserted, err := e.store.UpsertCandidate(ctx, &graph.MatchCandidate{
				OwnerID:   ownerID,
				AID:       id,
				BID:       m.EntityID,
				Score:     m.Score,
				MatchType: m.MatchType,
				Reasons:   m.Reasons,
			})
			if err != nil {
				return flagged, err
			}
			if inserted {
				flagged++
			}
		}
	}

	e.logger.Info("import batch duplicate scan finished",
		logging.F("batch_id", batchID.String()),
		logging.F("entities_scanned", len(ids)),
		logging.F("flagged", flagged))
	return flagged, nil
}

// RunBatchScan runs all three tiers across every pair of active entities and
// flags new candidates, up to limit. Sufficiently confident new pairs get a
// confirmation question queued, unless either entity already has one open.
// It never merges anything on its own.
func (e *Engine) RunBatchScan(ctx context.Context, ownerID uuid.UUID, limit int) (int, error) {
	type pair struct {
		a, b      uuid.UUID
		score     float64
		matchType graph.MatchType
		reasons   graph.MatchReasons
	}

	seen := make(map[[2]uuid.UUID]pair)
	add := func(a, b uuid.UUID, score float64, mt graph.MatchType, reasons graph.MatchReasons) {
		a, b = graph.CanonicalPair(a, b)
		key := [2]uuid.UUID{a, b}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = pair{a: a, b: b, score: score, matchType: mt, reasons: reasons}
	}

	identityPairs, err := e.store.FindSharedIdentityPairs(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	for _, p := range identityPairs {
		add(p.AID, p.BID, 1.0, graph.MatchTypeIdentity, graph.MatchReasons{
			SharedNamespace: string(p.Namespace),
			SharedValue:     p.Value,
		})
	}

	namePairs, err := e.store.FindNamePairs(ctx, ownerID, e.thresholds.Name)
	if err != nil {
		return 0, err
	}
	for _, p := range namePairs {
		add(p.AID, p.BID, p.Similarity, graph.MatchTypeName, graph.MatchReasons{
			NameA:      p.NameA,
			NameB:      p.NameB,
			Similarity: p.Similarity,
		})
	}

	embeddingPairs, err := e.store.FindEmbeddingPairs(ctx, ownerID, e.thresholds.BatchEmbedding)
	if err != nil {
		return 0, err
	}
	for _, p := range embeddingPairs {
		add(p.AID, p.BID, p.Similarity, graph.MatchTypeEmbedding, graph.MatchReasons{Similarity: p.Similarity})
	}

	pairs := make([]pair, 0, len(seen))
	for _, p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	flagged := 0
	for _, p := range pairs {
		if limit > 0 && flagged >= limit {
			break
		}
		inserted, err := e.store.UpsertCandidate(ctx, &graph.MatchCandidate{
			OwnerID:   ownerID,
			AID:       p.a,
			BID:       p.b,
			Score:     p.score,
			MatchType: p.matchType,
			Reasons:   p.reasons,
		})
		if err != nil {
			return flagged, err
		}
		if !inserted {
			continue
		}
		flagged++

		if p.score >= e.thresholds.AutoQuestion {
			busy, err := e.eitherHasPendingQuestion(ctx, ownerID, p.a, p.b)
			if err != nil {
				return flagged, err
			}
			if !busy {
				if err := e.queueConfirmQuestion(ctx, ownerID, p.a, p.b, p.score); err != nil {
					return flagged, err
				}
			}
		}
	}

	e.logger.Info("batch duplicate scan finished",
		logging.F("pairs_considered", len(pairs)),
		logging.F("flagged", flagged))
	return flagged, nil
}

// ListPending returns undecided candidates, highest score first.
func (e *Engine) ListPending(ctx context.Context, ownerID uuid.UUID, limit int) ([]*graph.MatchCandidate, error) {
	return e.store.ListPendingCandidates(ctx, ownerID, limit)
}

// Merge folds the duplicate into the primary and closes any open
// confirmation question about the pair.
func (e *Engine) Merge(ctx context.Context, ownerID, primaryID, duplicateID uuid.UUID) (*graph.MergeCounts, error) {
	counts, err := e.store.MergeEntities(ctx, ownerID, primaryID, duplicateID)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.DismissQuestionsForPair(ctx, ownerID, primaryID, duplicateID); err != nil {
		return counts, err
	}
	return counts, nil
}

// Reject marks the pair as not-a-duplicate, permanently suppressing it from
// future scans, and closes any open confirmation question about it.
func (e *Engine) Reject(ctx context.Context, ownerID, a, b uuid.UUID) error {
	if err := e.store.RecordRejection(ctx, ownerID, a, b); err != nil {
		return err
	}
	if _, err := e.store.DismissQuestionsForPair(ctx, ownerID, a, b); err != nil {
		return err
	}
	return nil
}

// eitherHasPendingQuestion reports whether an open confirmation question
// already involves either side of the pair. One merge question at a time per
// person keeps the review queue from piling up around a single contact.
func (e *Engine) eitherHasPendingQuestion(ctx context.Context, ownerID, a, b uuid.UUID) (bool, error) {
	for _, id := range [2]uuid.UUID{a, b} {
		pending, err := e.store.HasPendingDedupQuestion(ctx, ownerID, id)
		if err != nil {
			return false, err
		}
		if pending {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) queueConfirmQuestion(ctx context.Context, ownerID, aID, bID uuid.UUID, score float64) error {
	entityA, err := e.store.GetEntity(ctx, ownerID, aID)
	if err != nil {
		return err
	}
	entityB, err := e.store.GetEntity(ctx, ownerID, bID)
	if err != nil {
		return err
	}
	if entityA == nil || entityB == nil {
		return nil
	}

	a, b := graph.CanonicalPair(aID, bID)
	_, err = e.store.CreateQuestion(ctx, &graph.Question{
		OwnerID: ownerID,
		Kind:    graph.QuestionKindDedupConfirm,
		TextEN:  fmt.Sprintf("Are %q and %q the same person?", entityA.DisplayName, entityB.DisplayName),
		TextRU:  fmt.Sprintf("%q и %q — это один и тот же человек?", entityA.DisplayName, entityB.DisplayName),
		// Confirmation priority tracks match confidence so near-certain
		// pairs surface before weak ones.
		Priority:  score,
		PairAID:   &a,
		PairBID:   &b,
		ExpiresAt: time.Now().Add(e.questionTTL),
	})
	return err
}
