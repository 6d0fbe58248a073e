package gaps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/rolograph/rolograph/pkg/errors"
	"github.com/rolograph/rolograph/pkg/graph"
	"github.com/rolograph/rolograph/pkg/logging"
)

// RecencyBoost multiplies a question's priority when the contact is fresh:
// details about a person met this week are still recoverable from memory.
const RecencyBoost = 1.5

// SnoozePriorityDecay and SnoozeExpiryPush shape how a snoozed question
// resurfaces: weaker, and with more time before it expires.
const (
	SnoozePriorityDecay = 0.8
	SnoozeExpiryPush    = 3 * 24 * time.Hour
)

// Store is the graph storage surface the scanner reads and writes.
type Store interface {
	GetEntity(ctx context.Context, ownerID, id uuid.UUID) (*graph.Entity, error)
	ListRecentActiveEntities(ctx context.Context, ownerID uuid.UUID, limit int) ([]*graph.Entity, error)
	PredicateCoverage(ctx context.Context, ownerID uuid.UUID, entityIDs []uuid.UUID) (map[uuid.UUID]map[graph.Predicate]bool, error)
	ListIdentities(ctx context.Context, ownerID, entityID uuid.UUID) ([]*graph.Identity, error)
	CountEdges(ctx context.Context, ownerID, entityID uuid.UUID) (int64, error)

	CreateQuestion(ctx context.Context, q *graph.Question) (bool, error)
	GetQuestion(ctx context.Context, ownerID, id uuid.UUID) (*graph.Question, error)
	NextPendingQuestion(ctx context.Context, ownerID uuid.UUID, now time.Time) (*graph.Question, error)
	SetQuestionStatus(ctx context.Context, ownerID, id uuid.UUID, status graph.QuestionStatus) error
	SnoozeQuestion(ctx context.Context, ownerID, id uuid.UUID, priorityFactor float64, expiryExtension time.Duration) error

	GetRateLimitState(ctx context.Context, ownerID uuid.UUID) (*graph.RateLimitState, error)
	SaveRateLimitState(ctx context.Context, s *graph.RateLimitState) error

	CreateAssertion(ctx context.Context, a *graph.Assertion) error
}

// Embedder produces an embedding for a stored answer.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes the scanner.
type Config struct {
	Limiter LimiterConfig
	// CandidateLimit bounds the scan to the newest N active entities.
	CandidateLimit int
	// RecencyBoostWindow is how long after creation an entity counts as fresh.
	RecencyBoostWindow time.Duration
	// QuestionTTL is how long a queued question stays askable.
	QuestionTTL time.Duration
}

// Scanner detects knowledge gaps and manages the question lifecycle.
type Scanner struct {
	store    Store
	embedder Embedder
	cfg      Config
	logger   logging.Logger
	now      func() time.Time
}

// NewScanner creates a gap scanner.
func NewScanner(store Store, embedder Embedder, cfg Config, logger logging.Logger) *Scanner {
	return &Scanner{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.With(logging.F("component", "gap-scanner")),
		now:      time.Now,
	}
}

// EntityGap is the rubric evaluation for one entity.
type EntityGap struct {
	Entity       *graph.Entity
	Completeness float64
	Missing      []Dimension
}

// GapForEntity evaluates the rubric for one entity.
func (s *Scanner) GapForEntity(ctx context.Context, ownerID, entityID uuid.UUID) (*EntityGap, error) {
	entity, err := s.store.GetEntity(ctx, ownerID, entityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: entity %s", apperrors.ErrNotFound, entityID)
	}

	profile, err := s.loadProfile(ctx, ownerID, entityID, nil)
	if err != nil {
		return nil, err
	}
	completeness, missing := profile.Completeness()
	return &EntityGap{Entity: entity, Completeness: completeness, Missing: missing}, nil
}

// ScanAndQueue evaluates the newest active entities and queues one question
// per entity for its highest-priority missing dimension. The question's
// priority grows with how incomplete the profile is, boosted for recently
// added contacts. Returns how many questions were queued; entities that
// already have an open question are skipped by the storage layer.
func (s *Scanner) ScanAndQueue(ctx context.Context, ownerID uuid.UUID) (int, error) {
	now := s.now()

	entities, err := s.store.ListRecentActiveEntities(ctx, ownerID, s.cfg.CandidateLimit)
	if err != nil {
		return 0, err
	}
	if len(entities) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	coverage, err := s.store.PredicateCoverage(ctx, ownerID, ids)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, entity := range entities {
		profile, err := s.loadProfile(ctx, ownerID, entity.ID, coverage[entity.ID])
		if err != nil {
			return queued, err
		}
		completeness, missing := profile.Completeness()
		if len(missing) == 0 {
			continue
		}

		// Highest-priority gap only: one good question per person beats a
		// questionnaire. The emptier the profile, the sooner it gets asked
		// about; fresh contacts jump the queue while memory is still warm.
		dim := missing[0]
		priority := 1 - completeness
		if now.Sub(entity.CreatedAt) <= s.cfg.RecencyBoostWindow {
			priority *= RecencyBoost
		}

		en, ru := QuestionTexts(dim, entity.DisplayName)
		entityID := entity.ID
		created, err := s.store.CreateQuestion(ctx, &graph.Question{
			OwnerID:   ownerID,
			Kind:      graph.QuestionKindGap,
			EntityID:  &entityID,
			Dimension: string(dim),
			TextEN:    en,
			TextRU:    ru,
			Priority:  priority,
			ExpiresAt: now.Add(s.cfg.QuestionTTL),
		})
		if err != nil {
			return queued, err
		}
		if created {
			queued++
		}
	}

	s.logger.Info("gap scan finished",
		logging.F("entities_scanned", len(entities)),
		logging.F("questions_queued", queued))
	return queued, nil
}

// NextQuestion returns the highest-priority askable question and marks it
// shown, consuming budget. Returns ErrRateLimited when the budget denies
// showing one, and (nil, nil) when the queue is empty. With force set the
// rate limiter is bypassed and no budget is consumed; that path is for
// administrative use, not the regular questioning loop.
func (s *Scanner) NextQuestion(ctx context.Context, ownerID uuid.UUID, force bool) (*graph.Question, error) {
	now := s.now()

	if !force {
		state, err := s.store.GetRateLimitState(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if reason := Decide(state, s.cfg.Limiter, now); reason != DenyNone {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrRateLimited, reason)
		}

		q, err := s.nextShown(ctx, ownerID, now)
		if err != nil || q == nil {
			return nil, err
		}

		RecordShown(state, now)
		if err := s.store.SaveRateLimitState(ctx, state); err != nil {
			return nil, err
		}
		return q, nil
	}

	return s.nextShown(ctx, ownerID, now)
}

func (s *Scanner) nextShown(ctx context.Context, ownerID uuid.UUID, now time.Time) (*graph.Question, error) {
	q, err := s.store.NextPendingQuestion(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, nil
	}

	if err := s.store.SetQuestionStatus(ctx, ownerID, q.ID, graph.QuestionStatusShown); err != nil {
		return nil, err
	}
	q.Status = graph.QuestionStatusShown
	return q, nil
}

// Answer stores the owner's answer to a gap question as a first-party
// assertion and closes the question. The answer lands under the dimension's
// predicate with high confidence, embedded for semantic search. Merge
// confirmation questions are decided through the dedup flow, not here.
func (s *Scanner) Answer(ctx context.Context, ownerID, questionID uuid.UUID, answer string) (*graph.Assertion, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("%w: empty answer", apperrors.ErrValidation)
	}

	q, err := s.loadOpenQuestion(ctx, ownerID, questionID)
	if err != nil {
		return nil, err
	}
	if q.Kind != graph.QuestionKindGap {
		return nil, fmt.Errorf("%w: question %s is not a gap question", apperrors.ErrValidation, questionID)
	}
	if q.EntityID == nil {
		return nil, fmt.Errorf("%w: question %s has no target entity", apperrors.ErrInvalidState, questionID)
	}

	entity, err := s.store.GetEntity(ctx, ownerID, *q.EntityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: entity %s", apperrors.ErrNotFound, *q.EntityID)
	}

	predicate := AnswerPredicate(Dimension(q.Dimension))
	embedding, err := s.embedder.Embed(ctx, answer)
	if err != nil {
		return nil, fmt.Errorf("embedding answer failed: %w", err)
	}

	assertion := &graph.Assertion{
		OwnerID:    ownerID,
		SubjectID:  entity.ID,
		Predicate:  predicate,
		Value:      answer,
		Confidence: 0.9,
		Scope:      graph.ScopePersonal,
		Embedding:  embedding,
	}
	if err := s.store.CreateAssertion(ctx, assertion); err != nil {
		return nil, err
	}

	if err := s.store.SetQuestionStatus(ctx, ownerID, questionID, graph.QuestionStatusAnswered); err != nil {
		return nil, err
	}

	state, err := s.store.GetRateLimitState(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	RecordAnswered(state)
	if err := s.store.SaveRateLimitState(ctx, state); err != nil {
		return nil, err
	}
	return assertion, nil
}

// Dismiss closes a question without an answer and advances the dismissal
// streak, pausing questioning when the streak gets long.
func (s *Scanner) Dismiss(ctx context.Context, ownerID, questionID uuid.UUID) error {
	if _, err := s.loadOpenQuestion(ctx, ownerID, questionID); err != nil {
		return err
	}
	if err := s.store.SetQuestionStatus(ctx, ownerID, questionID, graph.QuestionStatusDismissed); err != nil {
		return err
	}

	state, err := s.store.GetRateLimitState(ctx, ownerID)
	if err != nil {
		return err
	}
	RecordDismissed(state, s.cfg.Limiter, s.now())
	return s.store.SaveRateLimitState(ctx, state)
}

// Snooze returns a shown question to the queue at reduced priority with a
// pushed-out expiry. Snoozing does not count as a dismissal.
func (s *Scanner) Snooze(ctx context.Context, ownerID, questionID uuid.UUID) error {
	if _, err := s.loadOpenQuestion(ctx, ownerID, questionID); err != nil {
		return err
	}
	return s.store.SnoozeQuestion(ctx, ownerID, questionID, SnoozePriorityDecay, SnoozeExpiryPush)
}

func (s *Scanner) loadOpenQuestion(ctx context.Context, ownerID, questionID uuid.UUID) (*graph.Question, error) {
	q, err := s.store.GetQuestion(ctx, ownerID, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("%w: question %s", apperrors.ErrNotFound, questionID)
	}
	if q.Status != graph.QuestionStatusPending && q.Status != graph.QuestionStatusShown {
		return nil, fmt.Errorf("%w: question %s is %s", apperrors.ErrInvalidState, questionID, q.Status)
	}
	return q, nil
}

func (s *Scanner) loadProfile(ctx context.Context, ownerID, entityID uuid.UUID, predicates map[graph.Predicate]bool) (*Profile, error) {
	if predicates == nil {
		coverage, err := s.store.PredicateCoverage(ctx, ownerID, []uuid.UUID{entityID})
		if err != nil {
			return nil, err
		}
		predicates = coverage[entityID]
	}
	if predicates == nil {
		predicates = map[graph.Predicate]bool{}
	}

	identities, err := s.store.ListIdentities(ctx, ownerID, entityID)
	if err != nil {
		return nil, err
	}
	edgeCount, err := s.store.CountEdges(ctx, ownerID, entityID)
	if err != nil {
		return nil, err
	}

	return &Profile{Predicates: predicates, Identities: identities, EdgeCount: edgeCount}, nil
}
