package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rolograph/rolograph/pkg/errors"
	"github.com/rolograph/rolograph/pkg/graph"
	"github.com/rolograph/rolograph/pkg/logging"
)

type fakeStore struct {
	batches    map[uuid.UUID]*graph.ImportBatch
	entities   map[uuid.UUID]*graph.Entity
	identities []*graph.Identity
	evidence   map[uuid.UUID]*graph.Evidence
	assertions []*graph.Assertion
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batches:  make(map[uuid.UUID]*graph.ImportBatch),
		entities: make(map[uuid.UUID]*graph.Entity),
		evidence: make(map[uuid.UUID]*graph.Evidence),
	}
}

func (s *fakeStore) CreateImportBatch(_ context.Context, b *graph.ImportBatch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Status = graph.BatchStatusProcessing
	s.batches[b.ID] = b
	return nil
}

func (s *fakeStore) FinishImportBatch(_ context.Context, _, id uuid.UUID, created, duplicates, skipped int) error {
	b := s.batches[id]
	b.Status = graph.BatchStatusDone
	b.Created, b.Duplicates, b.Skipped = created, duplicates, skipped
	return nil
}

func (s *fakeStore) RollbackImportBatch(_ context.Context, _, batchID uuid.UUID) (int64, error) {
	b, ok := s.batches[batchID]
	if !ok {
		return 0, errors.New("batch not found")
	}
	if b.Status == graph.BatchStatusRolledBack {
		return 0, errors.New("already rolled back")
	}
	var removed int64
	for id, e := range s.entities {
		if e.BatchID != nil && *e.BatchID == batchID {
			delete(s.entities, id)
			removed++
		}
	}
	b.Status = graph.BatchStatusRolledBack
	return removed, nil
}

func (s *fakeStore) GetImportBatch(_ context.Context, _, id uuid.UUID) (*graph.ImportBatch, error) {
	return s.batches[id], nil
}

func (s *fakeStore) CreateEvidence(_ context.Context, ev *graph.Evidence) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.Status = graph.EvidenceStatusPending
	s.evidence[ev.ID] = ev
	return nil
}

func (s *fakeStore) SetEvidenceStatus(_ context.Context, _, id uuid.UUID, status graph.EvidenceStatus) error {
	s.evidence[id].Status = status
	return nil
}

func (s *fakeStore) CreateEntity(_ context.Context, e *graph.Entity) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = graph.EntityStatusActive
	s.entities[e.ID] = e
	return nil
}

func (s *fakeStore) AddIdentity(_ context.Context, _ uuid.UUID, ident *graph.Identity) (bool, error) {
	s.identities = append(s.identities, ident)
	return true, nil
}

func (s *fakeStore) FindEntityByIdentity(_ context.Context, _ uuid.UUID, ns graph.Namespace, value string) (*graph.Entity, error) {
	for _, ident := range s.identities {
		if ident.Namespace == ns && ident.Value == value {
			return s.entities[ident.EntityID], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateAssertions(_ context.Context, assertions []*graph.Assertion) error {
	s.assertions = append(s.assertions, assertions...)
	return nil
}

type fakeEmbedder struct {
	batches [][]string
	failOn  int // 1-based call number to fail on; 0 never fails
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.failOn > 0 && len(f.batches) == f.failOn {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

type fakeDeduper struct {
	batchIDs []uuid.UUID
	flagged  int
	err      error
}

func (f *fakeDeduper) RunBatchDedup(_ context.Context, _, batchID uuid.UUID) (int, error) {
	f.batchIDs = append(f.batchIDs, batchID)
	return f.flagged, f.err
}

func newTestImporter(store *fakeStore) (*Importer, *fakeEmbedder, *fakeDeduper) {
	embedder := &fakeEmbedder{}
	deduper := &fakeDeduper{}
	return New(store, embedder, deduper, logging.NewNopLogger()), embedder, deduper
}

func TestImportLinkedInCreatesContacts(t *testing.T) {
	store := newFakeStore()
	im, _, _ := newTestImporter(store)
	owner := uuid.New()

	result, err := im.ImportLinkedIn(context.Background(), owner, []LinkedInRecord{
		{
			FirstName:  "Anna",
			LastName:   "Kovaleva",
			Email:      "Anna.K@Example.com",
			Company:    "Stripe",
			Position:   "CTO",
			ProfileURL: "https://www.linkedin.com/in/Anna-Kovaleva/",
		},
		{FirstName: "", LastName: ""},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, graph.BatchStatusDone, result.Batch.Status)
	assert.Equal(t, 1, result.Batch.Created)

	require.Len(t, store.entities, 1)
	for _, e := range store.entities {
		assert.Equal(t, "Anna Kovaleva", e.DisplayName)
		require.NotNil(t, e.BatchID)
		assert.Equal(t, result.Batch.ID, *e.BatchID)
	}

	// Identities are normalized on the way in.
	values := make(map[string]bool)
	for _, ident := range store.identities {
		values[string(ident.Namespace)+"="+ident.Value] = true
	}
	assert.True(t, values["email=anna.k@example.com"])
	assert.True(t, values["linkedin_url=linkedin.com/in/anna-kovaleva"])
	assert.True(t, values["freeform_name=Anna Kovaleva"])

	// Facts land at external scope with capped confidence and embeddings.
	require.Len(t, store.assertions, 3)
	for _, a := range store.assertions {
		assert.Equal(t, graph.ScopeExternal, a.Scope)
		assert.Equal(t, graph.ExternalConfidenceCeiling, a.Confidence)
		assert.NotEmpty(t, a.Embedding)
		require.NotNil(t, a.EvidenceID)
	}
}

func TestImportLinkedInCountsDuplicatesWithoutTouchingThem(t *testing.T) {
	store := newFakeStore()
	im, _, _ := newTestImporter(store)
	owner := uuid.New()

	existing := &graph.Entity{OwnerID: owner, DisplayName: "Anna Kovaleva"}
	require.NoError(t, store.CreateEntity(context.Background(), existing))
	_, err := store.AddIdentity(context.Background(), owner, &graph.Identity{
		EntityID:  existing.ID,
		Namespace: graph.NamespaceEmail,
		Value:     "anna.k@example.com",
	})
	require.NoError(t, err)
	identitiesBefore := len(store.identities)

	result, err := im.ImportLinkedIn(context.Background(), owner, []LinkedInRecord{
		{FirstName: "Anna", LastName: "Kovaleva", Email: "anna.k@example.com", Company: "Stripe"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Duplicates)
	assert.Len(t, store.entities, 1)
	assert.Len(t, store.identities, identitiesBefore)
	assert.Empty(t, store.assertions)
}

func TestImportScansFinishedBatchForDuplicates(t *testing.T) {
	store := newFakeStore()
	im, _, deduper := newTestImporter(store)
	deduper.flagged = 2
	owner := uuid.New()

	result, err := im.ImportLinkedIn(context.Background(), owner, []LinkedInRecord{
		{FirstName: "Anna", LastName: "Kovaleva"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Flagged)
	require.Len(t, deduper.batchIDs, 1)
	assert.Equal(t, result.Batch.ID, deduper.batchIDs[0])
}

func TestImportSucceedsWhenDuplicateScanFails(t *testing.T) {
	store := newFakeStore()
	im, _, deduper := newTestImporter(store)
	deduper.err = errors.New("scan unavailable")
	owner := uuid.New()

	result, err := im.ImportLinkedIn(context.Background(), owner, []LinkedInRecord{
		{FirstName: "Anna", LastName: "Kovaleva"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Flagged)
	assert.Equal(t, graph.BatchStatusDone, result.Batch.Status)
}

func TestImportCalendarUsesWeakNameNamespace(t *testing.T) {
	store := newFakeStore()
	im, _, _ := newTestImporter(store)
	owner := uuid.New()

	result, err := im.ImportCalendar(context.Background(), owner, []CalendarRecord{
		{DisplayName: "Carl Jensen", Email: "carl@maersk.com", EventTitle: "Logistics sync"},
		{Email: "no-name@example.com", EventTitle: "1:1"},
		{},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)

	namespaces := make(map[graph.Namespace]int)
	for _, ident := range store.identities {
		namespaces[ident.Namespace]++
	}
	assert.Equal(t, 2, namespaces[graph.NamespaceCalendarName])
	assert.Equal(t, 2, namespaces[graph.NamespaceEmail])

	var contexts []string
	for _, a := range store.assertions {
		if a.Predicate == graph.PredicateContactContext {
			contexts = append(contexts, a.Value)
		}
	}
	assert.Contains(t, contexts, "met at Logistics sync")
}

func TestImportRejectsOversizedBatch(t *testing.T) {
	store := newFakeStore()
	im, _, _ := newTestImporter(store)

	records := make([]LinkedInRecord, MaxRecords+1)
	_, err := im.ImportLinkedIn(context.Background(), uuid.New(), records)
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, store.batches)
}

func TestRollbackRemovesOnlyBatchEntities(t *testing.T) {
	store := newFakeStore()
	im, _, _ := newTestImporter(store)
	owner := uuid.New()

	pre := &graph.Entity{OwnerID: owner, DisplayName: "Pre Existing"}
	require.NoError(t, store.CreateEntity(context.Background(), pre))

	result, err := im.ImportLinkedIn(context.Background(), owner, []LinkedInRecord{
		{FirstName: "Anna", LastName: "Kovaleva"},
		{FirstName: "Boris", LastName: "Petrov"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)

	removed, err := im.Rollback(context.Background(), owner, result.Batch.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2), removed)
	assert.Len(t, store.entities, 1)
	assert.Contains(t, store.entities, pre.ID)
	assert.Equal(t, graph.BatchStatusRolledBack, store.batches[result.Batch.ID].Status)
}

func TestImportFailureRollsBackBatch(t *testing.T) {
	store := newFakeStore()
	im, embedder, deduper := newTestImporter(store)
	embedder.failOn = 2
	owner := uuid.New()

	pre := &graph.Entity{OwnerID: owner, DisplayName: "Pre Existing"}
	require.NoError(t, store.CreateEntity(context.Background(), pre))

	result, err := im.ImportLinkedIn(context.Background(), owner, []LinkedInRecord{
		{FirstName: "Anna", LastName: "Kovaleva", Company: "Stripe"},
		{FirstName: "Boris", LastName: "Petrov", Company: "Yandex"},
	})
	require.Error(t, err)

	// The partial batch is gone; only pre-existing entities survive.
	assert.Len(t, store.entities, 1)
	assert.Contains(t, store.entities, pre.ID)
	assert.Equal(t, graph.BatchStatusRolledBack, result.Batch.Status)
	assert.Equal(t, graph.BatchStatusRolledBack, store.batches[result.Batch.ID].Status)
	assert.Empty(t, deduper.batchIDs)
}
