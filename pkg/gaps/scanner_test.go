package gaps

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rolograph/rolograph/pkg/errors"
	"github.com/rolograph/rolograph/pkg/graph"
	"github.com/rolograph/rolograph/pkg/logging"
)

type fakeStore struct {
	entities   map[uuid.UUID]*graph.Entity
	coverage   map[uuid.UUID]map[graph.Predicate]bool
	identities map[uuid.UUID][]*graph.Identity
	edgeCounts map[uuid.UUID]int64
	questions  map[uuid.UUID]*graph.Question
	assertions []*graph.Assertion
	rateLimit  *graph.RateLimitState
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities:   make(map[uuid.UUID]*graph.Entity),
		coverage:   make(map[uuid.UUID]map[graph.Predicate]bool),
		identities: make(map[uuid.UUID][]*graph.Identity),
		edgeCounts: make(map[uuid.UUID]int64),
		questions:  make(map[uuid.UUID]*graph.Question),
	}
}

func (s *fakeStore) addEntity(name string, createdAt time.Time) *graph.Entity {
	e := &graph.Entity{
		ID: uuid.New(), DisplayName: name,
		Status: graph.EntityStatusActive, CreatedAt: createdAt,
	}
	s.entities[e.ID] = e
	return e
}

func (s *fakeStore) GetEntity(_ context.Context, _, id uuid.UUID) (*graph.Entity, error) {
	return s.entities[id], nil
}

func (s *fakeStore) ListRecentActiveEntities(_ context.Context, _ uuid.UUID, limit int) ([]*graph.Entity, error) {
	var out []*graph.Entity
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) PredicateCoverage(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]map[graph.Predicate]bool, error) {
	out := make(map[uuid.UUID]map[graph.Predicate]bool)
	for _, id := range ids {
		if c, ok := s.coverage[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s *fakeStore) ListIdentities(_ context.Context, _, entityID uuid.UUID) ([]*graph.Identity, error) {
	return s.identities[entityID], nil
}

func (s *fakeStore) CountEdges(_ context.Context, _, entityID uuid.UUID) (int64, error) {
	return s.edgeCounts[entityID], nil
}

func (s *fakeStore) CreateQuestion(_ context.Context, q *graph.Question) (bool, error) {
	// Mirrors the repository rule: one open gap question per entity.
	if q.Kind == graph.QuestionKindGap && q.EntityID != nil {
		for _, existing := range s.questions {
			if existing.EntityID != nil && *existing.EntityID == *q.EntityID &&
				(existing.Status == graph.QuestionStatusPending || existing.Status == graph.QuestionStatusShown) {
				return false, nil
			}
		}
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = graph.QuestionStatusPending
	}
	q.CreatedAt = time.Now()
	s.questions[q.ID] = q
	return true, nil
}

func (s *fakeStore) GetQuestion(_ context.Context, _, id uuid.UUID) (*graph.Question, error) {
	return s.questions[id], nil
}

func (s *fakeStore) NextPendingQuestion(_ context.Context, _ uuid.UUID, now time.Time) (*graph.Question, error) {
	var best *graph.Question
	for _, q := range s.questions {
		if q.Status != graph.QuestionStatusPending || !q.ExpiresAt.After(now) {
			continue
		}
		if best == nil || q.Priority > best.Priority {
			best = q
		}
	}
	return best, nil
}

func (s *fakeStore) SetQuestionStatus(_ context.Context, _, id uuid.UUID, status graph.QuestionStatus) error {
	s.questions[id].Status = status
	return nil
}

func (s *fakeStore) SnoozeQuestion(_ context.Context, _, id uuid.UUID, priorityFactor float64, expiryExtension time.Duration) error {
	q := s.questions[id]
	q.Status = graph.QuestionStatusPending
	q.Priority *= priorityFactor
	if pushed := time.Now().Add(expiryExtension); pushed.After(q.ExpiresAt) {
		q.ExpiresAt = pushed
	}
	return nil
}

func (s *fakeStore) GetRateLimitState(_ context.Context, ownerID uuid.UUID) (*graph.RateLimitState, error) {
	if s.rateLimit == nil {
		s.rateLimit = &graph.RateLimitState{OwnerID: ownerID}
	}
	return s.rateLimit, nil
}

func (s *fakeStore) SaveRateLimitState(_ context.Context, state *graph.RateLimitState) error {
	s.rateLimit = state
	return nil
}

func (s *fakeStore) CreateAssertion(_ context.Context, a *graph.Assertion) error {
	s.assertions = append(s.assertions, a)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func testConfig() Config {
	return Config{
		Limiter: LimiterConfig{
			DailyCap:          5,
			Cooldown:          2 * time.Hour,
			DismissPauseAfter: 3,
			DismissPause:      24 * time.Hour,
		},
		CandidateLimit:     50,
		RecencyBoostWindow: 7 * 24 * time.Hour,
		QuestionTTL:        14 * 24 * time.Hour,
	}
}

func newTestScanner(store *fakeStore) *Scanner {
	return NewScanner(store, fakeEmbedder{}, testConfig(), logging.NewNopLogger())
}

func TestScanAndQueuePicksTopGapWithRecencyBoost(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	now := time.Now()

	fresh := store.addEntity("Anna Kovaleva", now.Add(-24*time.Hour))
	stale := store.addEntity("Boris Petrov", now.Add(-30*24*time.Hour))
	// Boris only lacks location; Anna lacks everything.
	store.coverage[stale.ID] = map[graph.Predicate]bool{
		graph.PredicateContactContext: true,
		graph.PredicateWorksAt:        true,
		graph.PredicateStrongAt:       true,
	}
	store.identities[stale.ID] = []*graph.Identity{{Namespace: graph.NamespaceEmail, Value: "b@example.com"}}
	store.edgeCounts[stale.ID] = 1

	scanner := newTestScanner(store)
	queued, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	var annaQ, borisQ *graph.Question
	for _, q := range store.questions {
		switch *q.EntityID {
		case fresh.ID:
			annaQ = q
		case stale.ID:
			borisQ = q
		}
	}
	require.NotNil(t, annaQ)
	require.NotNil(t, borisQ)

	// Anna's top gap is contact context; her empty profile plus the recency
	// boost puts her first in line.
	assert.Equal(t, string(DimensionContactContext), annaQ.Dimension)
	assert.InDelta(t, 1.0*RecencyBoost, annaQ.Priority, 1e-9)
	assert.Contains(t, annaQ.TextEN, "Anna Kovaleva")

	// Boris's only gap is location; his nearly complete profile ranks low
	// and his age earns no boost.
	assert.Equal(t, string(DimensionLocation), borisQ.Dimension)
	assert.InDelta(t, 1.0/6.0, borisQ.Priority, 1e-9)
	assert.Greater(t, annaQ.Priority, borisQ.Priority)
}

func TestScanAndQueueEmptierProfileRanksFirst(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	old := time.Now().Add(-30 * 24 * time.Hour)

	// Both contacts are old, so recency plays no part; the one the owner
	// knows nothing about must outrank the nearly complete one.
	blank := store.addEntity("Frida Olsen", old)
	nearlyDone := store.addEntity("Georg Brandt", old.Add(time.Hour))
	store.coverage[nearlyDone.ID] = map[graph.Predicate]bool{
		graph.PredicateContactContext: true,
		graph.PredicateWorksAt:        true,
		graph.PredicateCanHelpWith:    true,
		graph.PredicateLocatedIn:      true,
	}
	store.identities[nearlyDone.ID] = []*graph.Identity{{Namespace: graph.NamespaceEmail, Value: "g@example.com"}}

	scanner := newTestScanner(store)
	queued, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, 2, queued)

	q, err := scanner.NextQuestion(context.Background(), owner, false)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, blank.ID, *q.EntityID)
}

func TestScanAndQueueOneOpenQuestionPerEntity(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	entity := store.addEntity("Anna Kovaleva", time.Now())

	scanner := newTestScanner(store)
	queued, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, 1, queued)

	// The first gap gets covered while its question is still open; the scan
	// must not queue a second question about another dimension.
	store.coverage[entity.ID] = map[graph.Predicate]bool{graph.PredicateContactContext: true}

	queued, err = scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 0, queued)
	assert.Len(t, store.questions, 1)
}

func TestScanAndQueueSkipsCompleteProfilesAndIsIdempotent(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()

	complete := store.addEntity("Dana Lee", time.Now())
	store.coverage[complete.ID] = map[graph.Predicate]bool{
		graph.PredicateContactContext: true,
		graph.PredicateWorksAt:        true,
		graph.PredicateStrongAt:       true,
		graph.PredicateLocatedIn:      true,
	}
	store.identities[complete.ID] = []*graph.Identity{{Namespace: graph.NamespaceEmail, Value: "d@example.com"}}
	store.edgeCounts[complete.ID] = 2

	incomplete := store.addEntity("Eli Moss", time.Now())

	scanner := newTestScanner(store)
	queued, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	// Re-scanning must not duplicate the open question.
	queued, err = scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 0, queued)

	for _, q := range store.questions {
		assert.Equal(t, incomplete.ID, *q.EntityID)
	}
}

func TestNextQuestionConsumesBudgetAndOrdersByPriority(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	store.addEntity("Anna Kovaleva", time.Now())
	store.addEntity("Boris Petrov", time.Now().Add(-30*24*time.Hour))

	scanner := newTestScanner(store)
	_, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)

	q, err := scanner.NextQuestion(context.Background(), owner, false)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, graph.QuestionStatusShown, q.Status)
	assert.Equal(t, 1, store.rateLimit.ShownToday)

	// The cooldown blocks an immediate second question.
	_, err = scanner.NextQuestion(context.Background(), owner, false)
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestNextQuestionDailyCap(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	store.addEntity("Anna Kovaleva", time.Now())

	scanner := newTestScanner(store)
	scanner.cfg.Limiter.Cooldown = 0
	_, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)

	now := time.Now()
	store.rateLimit = &graph.RateLimitState{
		OwnerID: owner, Day: truncateToDay(now), ShownToday: 5,
	}

	_, err = scanner.NextQuestion(context.Background(), owner, false)
	assert.True(t, apperrors.IsRateLimited(err))

	// Next calendar day the budget resets.
	scanner.now = func() time.Time { return now.Add(24 * time.Hour) }
	q, err := scanner.NextQuestion(context.Background(), owner, false)
	require.NoError(t, err)
	assert.NotNil(t, q)
}

func TestNextQuestionForceBypassesLimitsWithoutSpendingBudget(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	store.addEntity("Anna Kovaleva", time.Now())

	scanner := newTestScanner(store)
	_, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)

	// Cap reached and questioning paused: the regular path is denied.
	now := time.Now()
	paused := now.Add(24 * time.Hour)
	store.rateLimit = &graph.RateLimitState{
		OwnerID: owner, Day: truncateToDay(now), ShownToday: 5, PausedUntil: &paused,
	}

	_, err = scanner.NextQuestion(context.Background(), owner, false)
	assert.True(t, apperrors.IsRateLimited(err))

	// Force still surfaces the question and leaves the counters untouched.
	q, err := scanner.NextQuestion(context.Background(), owner, true)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, graph.QuestionStatusShown, q.Status)
	assert.Equal(t, 5, store.rateLimit.ShownToday)
}

func TestNextQuestionEmptyQueue(t *testing.T) {
	store := newFakeStore()
	scanner := newTestScanner(store)

	q, err := scanner.NextQuestion(context.Background(), uuid.New(), false)
	require.NoError(t, err)
	assert.Nil(t, q)
}

func TestAnswerStoresAssertionAndResetsStreak(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	entity := store.addEntity("Anna Kovaleva", time.Now())

	scanner := newTestScanner(store)
	_, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)

	q, err := scanner.NextQuestion(context.Background(), owner, false)
	require.NoError(t, err)
	require.NotNil(t, q)

	store.rateLimit.ConsecutiveDismisses = 2

	assertion, err := scanner.Answer(context.Background(), owner, q.ID, "We met at a fintech meetup in Berlin")
	require.NoError(t, err)

	assert.Equal(t, entity.ID, assertion.SubjectID)
	assert.Equal(t, graph.PredicateContactContext, assertion.Predicate)
	assert.Equal(t, 0.9, assertion.Confidence)
	assert.Equal(t, graph.ScopePersonal, assertion.Scope)
	assert.NotEmpty(t, assertion.Embedding)

	assert.Equal(t, graph.QuestionStatusAnswered, store.questions[q.ID].Status)
	assert.Equal(t, 0, store.rateLimit.ConsecutiveDismisses)
}

func TestAnswerRejectsClosedQuestionAndEmptyAnswer(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	store.addEntity("Anna Kovaleva", time.Now())

	scanner := newTestScanner(store)
	_, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)
	q, err := scanner.NextQuestion(context.Background(), owner, false)
	require.NoError(t, err)

	_, err = scanner.Answer(context.Background(), owner, q.ID, "   ")
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, store.SetQuestionStatus(context.Background(), owner, q.ID, graph.QuestionStatusDismissed))
	_, err = scanner.Answer(context.Background(), owner, q.ID, "an answer")
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestDismissStreakPausesQuestioning(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	for i := 0; i < 4; i++ {
		store.addEntity("Person", time.Now())
	}

	scanner := newTestScanner(store)
	scanner.cfg.Limiter.Cooldown = 0
	_, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		q, err := scanner.NextQuestion(context.Background(), owner, false)
		require.NoError(t, err)
		require.NotNil(t, q)
		require.NoError(t, scanner.Dismiss(context.Background(), owner, q.ID))
	}

	require.NotNil(t, store.rateLimit.PausedUntil)
	_, err = scanner.NextQuestion(context.Background(), owner, false)
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestSnoozeLowersPriorityAndRequeues(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	store.addEntity("Anna Kovaleva", time.Now())

	scanner := newTestScanner(store)
	_, err := scanner.ScanAndQueue(context.Background(), owner)
	require.NoError(t, err)

	q, err := scanner.NextQuestion(context.Background(), owner, false)
	require.NoError(t, err)
	before := q.Priority
	expiresBefore := q.ExpiresAt

	require.NoError(t, scanner.Snooze(context.Background(), owner, q.ID))

	stored := store.questions[q.ID]
	assert.Equal(t, graph.QuestionStatusPending, stored.Status)
	assert.InDelta(t, before*SnoozePriorityDecay, stored.Priority, 1e-9)
	assert.False(t, stored.ExpiresAt.Before(expiresBefore))

	// Snoozing keeps the dismissal streak untouched.
	assert.Equal(t, 0, store.rateLimit.ConsecutiveDismisses)
}
