package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rolograph/rolograph/pkg/errors"
	"github.com/rolograph/rolograph/pkg/graph"
	"github.com/rolograph/rolograph/pkg/logging"
)

type fakeStore struct {
	evidence   map[uuid.UUID]*graph.Evidence
	entities   map[uuid.UUID]*graph.Entity
	identities []*graph.Identity
	assertions []*graph.Assertion
	edges      []*graph.Edge
	candidates []*graph.MatchCandidate
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		evidence: make(map[uuid.UUID]*graph.Evidence),
		entities: make(map[uuid.UUID]*graph.Entity),
	}
}

func (s *fakeStore) addEvidence(ownerID uuid.UUID, kind graph.EvidenceKind, content string) *graph.Evidence {
	ev := &graph.Evidence{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Kind:    kind,
		Content: content,
		Status:  graph.EvidenceStatusPending,
	}
	s.evidence[ev.ID] = ev
	return ev
}

func (s *fakeStore) GetEvidence(_ context.Context, _, id uuid.UUID) (*graph.Evidence, error) {
	return s.evidence[id], nil
}

func (s *fakeStore) SetEvidenceStatus(_ context.Context, _, id uuid.UUID, status graph.EvidenceStatus) error {
	ev, ok := s.evidence[id]
	if !ok {
		return errors.New("evidence not found")
	}
	ev.Status = status
	ev.ErrorMessage = ""
	return nil
}

func (s *fakeStore) SetEvidenceError(_ context.Context, _, id uuid.UUID, cause error) error {
	ev, ok := s.evidence[id]
	if !ok {
		return errors.New("evidence not found")
	}
	ev.Status = graph.EvidenceStatusError
	ev.ErrorMessage = graph.TruncateError(cause)
	return nil
}

func (s *fakeStore) UpdateEvidenceContent(_ context.Context, _, id uuid.UUID, content string) error {
	s.evidence[id].Content = content
	return nil
}

func (s *fakeStore) DeleteAssertionsByEvidence(_ context.Context, _, evidenceID uuid.UUID) (int64, error) {
	var kept []*graph.Assertion
	var deleted int64
	for _, a := range s.assertions {
		if a.EvidenceID != nil && *a.EvidenceID == evidenceID {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	s.assertions = kept
	return deleted, nil
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
	for _, existing := range s.identities {
		if existing.EntityID == ident.EntityID && existing.Namespace == ident.Namespace && existing.Value == ident.Value {
			return false, nil
		}
	}
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

func (s *fakeStore) FindEntitiesByName(_ context.Context, _ uuid.UUID, name string) ([]*graph.Entity, error) {
	var out []*graph.Entity
	for _, ident := range s.identities {
		if (ident.Namespace == graph.NamespaceFreeformName || ident.Namespace == graph.NamespaceCalendarName) &&
			strings.EqualFold(ident.Value, name) {
			out = append(out, s.entities[ident.EntityID])
		}
	}
	return out, nil
}

func (s *fakeStore) FindEntitiesByFirstName(_ context.Context, _ uuid.UUID, firstName string) ([]*graph.Entity, error) {
	var out []*graph.Entity
	for _, e := range s.entities {
		if e.Status != graph.EntityStatusActive {
			continue
		}
		first := strings.SplitN(e.DisplayName, " ", 2)[0]
		if strings.EqualFold(first, firstName) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) AssertionExists(_ context.Context, _, subjectID uuid.UUID, predicate graph.Predicate, value string) (bool, error) {
	for _, a := range s.assertions {
		if a.SubjectID == subjectID && a.Predicate == predicate && strings.EqualFold(a.Value, value) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) CreateAssertions(_ context.Context, assertions []*graph.Assertion) error {
	s.assertions = append(s.assertions, assertions...)
	return nil
}

func (s *fakeStore) CreateEdge(_ context.Context, e *graph.Edge) (bool, error) {
	for _, existing := range s.edges {
		if existing.SrcID == e.SrcID && existing.DstID == e.DstID && existing.Type == e.Type {
			return false, nil
		}
	}
	s.edges = append(s.edges, e)
	return true, nil
}

func (s *fakeStore) UpsertCandidate(_ context.Context, c *graph.MatchCandidate) (bool, error) {
	c.AID, c.BID = graph.CanonicalPair(c.AID, c.BID)
	for _, existing := range s.candidates {
		if existing.AID == c.AID && existing.BID == c.BID {
			return false, nil
		}
	}
	if c.Status == "" {
		c.Status = graph.CandidateStatusPending
	}
	s.candidates = append(s.candidates, c)
	return true, nil
}

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(context.Context, string, string) (string, error) {
	return f.response, f.err
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

type fakeTranscriber struct {
	transcript string
	err        error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.transcript, f.err
}

func newTestPipeline(store *fakeStore, completer *fakeCompleter) (*Pipeline, *fakeEmbedder) {
	embedder := &fakeEmbedder{}
	p := NewPipeline(store, completer, embedder, &fakeTranscriber{}, logging.NewNopLogger())
	return p, embedder
}

const sampleResponse = `{
	"persons": [
		{
			"name": "Anna Kovaleva",
			"identities": [
				{"namespace": "email", "value": "Anna.K@Example.com"},
				{"namespace": "telegram_username", "value": "@annak"}
			],
			"facts": [
				{"predicate": "works_at", "value": "Stripe", "confidence": 0.95},
				{"predicate": "strong_at", "value": "payment infrastructure", "confidence": 0.8}
			]
		},
		{
			"name": "Boris Petrov",
			"facts": [
				{"predicate": "located_in", "value": "Berlin", "confidence": 0.9},
				{"predicate": "made_of_cheese", "value": "nonsense", "confidence": 0.9}
			]
		}
	],
	"edges": [
		{"from": "Anna Kovaleva", "to": "Boris Petrov", "type": "worked_with", "context": "fintech meetup"}
	]
}`

func TestProcessEvidenceCreatesGraph(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()
	ev := store.addEvidence(owner, graph.EvidenceKindText, "met anna and boris")

	p, embedder := newTestPipeline(store, &fakeCompleter{response: sampleResponse})

	result, err := p.ProcessEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)

	assert.Equal(t, 2, result.EntitiesCreated)
	assert.Equal(t, 0, result.EntitiesMatched)
	// The invalid predicate is dropped during parsing.
	assert.Equal(t, 3, result.AssertionsCreated)
	assert.Equal(t, 1, result.EdgesCreated)
	assert.Len(t, result.TouchedEntityIDs, 2)

	assert.Equal(t, graph.EvidenceStatusDone, store.evidence[ev.ID].Status)

	// Identities are normalized before storage.
	values := make(map[string]bool)
	for _, ident := range store.identities {
		values[string(ident.Namespace)+"="+ident.Value] = true
	}
	assert.True(t, values["email=anna.k@example.com"])
	assert.True(t, values["telegram_username=annak"])

	// Every assertion carries an embedding and the evidence link.
	for _, a := range store.assertions {
		assert.NotEmpty(t, a.Embedding)
		require.NotNil(t, a.EvidenceID)
		assert.Equal(t, ev.ID, *a.EvidenceID)
	}

	// One embedding batch per person with fresh facts.
	assert.Equal(t, 2, embedder.calls)
}

func TestProcessEvidenceCreatesDespiteKnownIdentity(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()

	existing := &graph.Entity{OwnerID: owner, DisplayName: "Anna Kovaleva"}
	require.NoError(t, store.CreateEntity(context.Background(), existing))
	_, err := store.AddIdentity(context.Background(), owner, &graph.Identity{
		EntityID:  existing.ID,
		Namespace: graph.NamespaceEmail,
		Value:     "anna.k@example.com",
	})
	require.NoError(t, err)

	ev := store.addEvidence(owner, graph.EvidenceKindText, "more about anna")
	p, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{
			"name": "Anya K",
			"identities": [{"namespace": "email", "value": "ANNA.K@example.com"}],
			"facts": [{"predicate": "role_is", "value": "CTO", "confidence": 0.9}]
		}]
	}`})

	result, err := p.ProcessEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)

	// The first pass never maps a mention onto an existing contact, even when
	// a strong identifier is already known: a new entity is created and the
	// shared identifier flags the pair for dedup review.
	assert.Equal(t, 1, result.EntitiesCreated)
	assert.Equal(t, 0, result.EntitiesMatched)
	assert.Equal(t, 1, result.CandidatesFlagged)
	assert.Len(t, store.entities, 2)

	require.Len(t, store.assertions, 1)
	assert.NotEqual(t, existing.ID, store.assertions[0].SubjectID)

	// The email stays with its original holder.
	holder, err := store.FindEntityByIdentity(context.Background(), owner, graph.NamespaceEmail, "anna.k@example.com")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, holder.ID)
}

func TestReextractResolvesBareFirstName(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()

	existing := &graph.Entity{OwnerID: owner, DisplayName: "Anna Kovaleva"}
	require.NoError(t, store.CreateEntity(context.Background(), existing))

	ev := store.addEvidence(owner, graph.EvidenceKindText, "talked to anna")
	p, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{
			"name": "Anna",
			"facts": [{"predicate": "interested_in", "value": "climbing", "confidence": 0.7}]
		}]
	}`})

	result, err := p.ReextractEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)

	// The bare first name resolves to the single existing fuller name.
	assert.Equal(t, 0, result.EntitiesCreated)
	assert.Equal(t, 1, result.EntitiesMatched)
	require.Len(t, store.assertions, 1)
	assert.Equal(t, existing.ID, store.assertions[0].SubjectID)
}

func TestReextractAmbiguousFirstNameSkipsMention(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()

	require.NoError(t, store.CreateEntity(context.Background(), &graph.Entity{OwnerID: owner, DisplayName: "Anna Kovaleva"}))
	require.NoError(t, store.CreateEntity(context.Background(), &graph.Entity{OwnerID: owner, DisplayName: "Anna Schmidt"}))

	ev := store.addEvidence(owner, graph.EvidenceKindText, "talked to anna")
	p, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{"name": "Anna", "facts": [{"predicate": "note", "value": "likes tea", "confidence": 0.6}]}]
	}`})

	result, err := p.ReextractEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)

	// Two entities share the first name, so the mention maps to neither and
	// its facts are dropped rather than attached to a guess.
	assert.Equal(t, 0, result.EntitiesCreated)
	assert.Equal(t, 0, result.EntitiesMatched)
	assert.Empty(t, store.assertions)
	assert.Len(t, store.entities, 2)
}

func TestReextractMatchesNameVariation(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()

	existing := &graph.Entity{OwnerID: owner, DisplayName: "Aleksandr Volkov"}
	require.NoError(t, store.CreateEntity(context.Background(), existing))
	_, err := store.AddIdentity(context.Background(), owner, &graph.Identity{
		EntityID:  existing.ID,
		Namespace: graph.NamespaceFreeformName,
		Value:     "Aleksandr Volkov",
	})
	require.NoError(t, err)
	// Two other Sashas keep the first-name tier ambiguous.
	require.NoError(t, store.CreateEntity(context.Background(), &graph.Entity{OwnerID: owner, DisplayName: "Sasha Ivanov"}))
	require.NoError(t, store.CreateEntity(context.Background(), &graph.Entity{OwnerID: owner, DisplayName: "Sasha Petrova"}))

	ev := store.addEvidence(owner, graph.EvidenceKindText, "sasha, i.e. aleksandr volkov")
	p, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{
			"name": "Sasha",
			"name_variations": ["Aleksandr Volkov"],
			"facts": [{"predicate": "works_at", "value": "Ozon", "confidence": 0.8}]
		}]
	}`})

	result, err := p.ReextractEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)

	assert.Equal(t, 1, result.EntitiesMatched)
	require.Len(t, store.assertions, 1)
	assert.Equal(t, existing.ID, store.assertions[0].SubjectID)
}

func TestProcessEvidenceIdentityConflictFlagsCandidate(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()

	holder := &graph.Entity{OwnerID: owner, DisplayName: "A. Kovaleva"}
	require.NoError(t, store.CreateEntity(context.Background(), holder))
	_, err := store.AddIdentity(context.Background(), owner, &graph.Identity{
		EntityID:  holder.ID,
		Namespace: graph.NamespaceTelegram,
		Value:     "annak",
	})
	require.NoError(t, err)

	other := &graph.Entity{OwnerID: owner, DisplayName: "Anna Kovaleva"}
	require.NoError(t, store.CreateEntity(context.Background(), other))
	_, err = store.AddIdentity(context.Background(), owner, &graph.Identity{
		EntityID:  other.ID,
		Namespace: graph.NamespaceEmail,
		Value:     "anna.k@example.com",
	})
	require.NoError(t, err)

	// The mention carries two strong identifiers held by different entities.
	ev := store.addEvidence(owner, graph.EvidenceKindText, "anna's telegram is @annak")
	p, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{
			"name": "Anna Kovaleva",
			"identities": [
				{"namespace": "email", "value": "anna.k@example.com"},
				{"namespace": "telegram_username", "value": "@annak"}
			]
		}]
	}`})

	result, err := p.ProcessEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)

	// The mention becomes its own entity; each identity stays with its holder
	// and flags a pair instead of moving.
	assert.Equal(t, 1, result.EntitiesCreated)
	assert.Equal(t, 2, result.CandidatesFlagged)
	require.Len(t, store.candidates, 2)
	for _, c := range store.candidates {
		assert.Equal(t, graph.MatchTypeIdentity, c.MatchType)
		assert.Equal(t, 1.0, c.Score)
	}

	holders, err := store.FindEntityByIdentity(context.Background(), owner, graph.NamespaceTelegram, "annak")
	require.NoError(t, err)
	assert.Equal(t, holder.ID, holders.ID)
}

func TestProcessEvidenceExternalScopeCapsConfidence(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()
	ev := store.addEvidence(owner, graph.EvidenceKindImport, "profile dump")

	p, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{
			"name": "Carl Jensen",
			"facts": [
				{"predicate": "works_at", "value": "Maersk", "confidence": 0.99},
				{"predicate": "located_in", "value": "Copenhagen", "confidence": 0.4}
			]
		}]
	}`})

	_, err := p.ProcessEvidence(context.Background(), owner, ev.ID, graph.ScopeExternal)
	require.NoError(t, err)

	require.Len(t, store.assertions, 2)
	for _, a := range store.assertions {
		assert.Equal(t, graph.ScopeExternal, a.Scope)
		assert.LessOrEqual(t, a.Confidence, graph.ExternalConfidenceCeiling)
	}
	// A confidence under the ceiling is kept as-is.
	assert.Equal(t, 0.4, store.assertions[1].Confidence)
}

func TestReextractSkipsDuplicateFacts(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()

	existing := &graph.Entity{OwnerID: owner, DisplayName: "Anna Kovaleva"}
	require.NoError(t, store.CreateEntity(context.Background(), existing))
	_, err := store.AddIdentity(context.Background(), owner, &graph.Identity{
		EntityID:  existing.ID,
		Namespace: graph.NamespaceFreeformName,
		Value:     "Anna Kovaleva",
	})
	require.NoError(t, err)
	store.assertions = append(store.assertions, &graph.Assertion{
		OwnerID:   owner,
		SubjectID: existing.ID,
		Predicate: graph.PredicateWorksAt,
		Value:     "stripe",
	})

	ev := store.addEvidence(owner, graph.EvidenceKindText, "anna works at stripe")
	p, embedder := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{
			"name": "Anna Kovaleva",
			"facts": [{"predicate": "works_at", "value": "Stripe", "confidence": 0.9}]
		}]
	}`})

	// The fact is already on record from another source, so nothing new is
	// written and no embedding call is spent.
	result, err := p.ReextractEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntitiesMatched)
	assert.Equal(t, 0, result.AssertionsCreated)
	assert.Equal(t, 0, embedder.calls)
}

func TestProcessEvidenceErrorIsRecordedAndTruncated(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()
	ev := store.addEvidence(owner, graph.EvidenceKindText, "some text")

	longMsg := strings.Repeat("boom ", 200)
	p, _ := newTestPipeline(store, &fakeCompleter{err: errors.New(longMsg)})

	_, err := p.ProcessEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.Error(t, err)

	assert.Equal(t, graph.EvidenceStatusError, store.evidence[ev.ID].Status)
	assert.Len(t, store.evidence[ev.ID].ErrorMessage, graph.ErrorMessageMaxLen)
}

func TestProcessEvidenceRejectsWrongState(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()
	ev := store.addEvidence(owner, graph.EvidenceKindText, "text")
	ev.Status = graph.EvidenceStatusDone

	p, _ := newTestPipeline(store, &fakeCompleter{response: `{"persons": []}`})

	_, err := p.ProcessEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestProcessEvidenceMissingEvidence(t *testing.T) {
	store := newFakeStore()
	p, _ := newTestPipeline(store, &fakeCompleter{})

	_, err := p.ProcessEvidence(context.Background(), uuid.New(), uuid.New(), graph.ScopePersonal)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProcessEvidenceTranscribesVoice(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()
	ev := store.addEvidence(owner, graph.EvidenceKindVoice, "/tmp/memo.ogg")

	embedder := &fakeEmbedder{}
	p := NewPipeline(store, &fakeCompleter{response: `{
		"persons": [{"name": "Dana Lee", "facts": [{"predicate": "works_at", "value": "Figma", "confidence": 0.9}]}]
	}`}, embedder, &fakeTranscriber{transcript: "met dana from figma"}, logging.NewNopLogger())

	result, err := p.ProcessEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)

	assert.Equal(t, 1, result.EntitiesCreated)
	assert.Equal(t, "met dana from figma", store.evidence[ev.ID].Content)
	assert.Equal(t, graph.EvidenceStatusDone, store.evidence[ev.ID].Status)
}

func TestReextractEvidenceReplacesFacts(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()
	ev := store.addEvidence(owner, graph.EvidenceKindText, "anna works somewhere")

	p, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{"name": "Anna Kovaleva", "facts": [{"predicate": "works_at", "value": "Stripe", "confidence": 0.9}]}]
	}`})

	_, err := p.ProcessEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)
	require.Len(t, store.assertions, 1)

	// The corrected model output replaces the old fact wholesale.
	p2, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{"name": "Anna Kovaleva", "facts": [{"predicate": "works_at", "value": "Adyen", "confidence": 0.9}]}]
	}`})
	result, err := p2.ReextractEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)

	assert.Equal(t, 1, result.AssertionsCreated)
	require.Len(t, store.assertions, 1)
	assert.Equal(t, "Adyen", store.assertions[0].Value)
	// The entity from the first run is reused, not duplicated.
	assert.Equal(t, 0, result.EntitiesCreated)
	assert.Equal(t, 1, result.EntitiesMatched)
}

func TestReextractSkipsUnmatchedPersons(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()
	ev := store.addEvidence(owner, graph.EvidenceKindText, "met anna, maybe viktor too")

	p, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{"name": "Anna Kovaleva", "facts": [{"predicate": "works_at", "value": "Stripe", "confidence": 0.9}]}]
	}`})
	_, err := p.ProcessEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)
	require.Len(t, store.entities, 1)

	// The corrected output now also mentions someone the graph has never
	// seen; re-extraction drops that mention instead of creating a contact.
	p2, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [
			{"name": "Anna Kovaleva", "facts": [{"predicate": "works_at", "value": "Adyen", "confidence": 0.9}]},
			{"name": "Viktor Orlov", "facts": [{"predicate": "located_in", "value": "Riga", "confidence": 0.8}]}
		],
		"edges": [{"from": "Anna Kovaleva", "to": "Viktor Orlov", "type": "knows"}]
	}`})
	result, err := p2.ReextractEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)

	assert.Equal(t, 0, result.EntitiesCreated)
	assert.Equal(t, 1, result.EntitiesMatched)
	assert.Len(t, store.entities, 1)

	// Only the matched person's facts land; the dropped mention takes its
	// facts and edges with it.
	require.Len(t, store.assertions, 1)
	assert.Equal(t, "Adyen", store.assertions[0].Value)
	assert.Equal(t, 0, result.EdgesCreated)
	assert.Empty(t, store.edges)
}

func TestProcessEvidenceStoresNameVariations(t *testing.T) {
	owner := uuid.New()
	store := newFakeStore()
	ev := store.addEvidence(owner, graph.EvidenceKindText, "sasha aka aleksandr")

	p, _ := newTestPipeline(store, &fakeCompleter{response: `{
		"persons": [{"name": "Aleksandr Volkov", "name_variations": ["Sasha", "aleksandr volkov"]}]
	}`})

	result, err := p.ProcessEvidence(context.Background(), owner, ev.ID, graph.ScopePersonal)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntitiesCreated)

	// Each distinct spelling becomes a name identity; the duplicate of the
	// primary name is dropped during sanitizing.
	var values []string
	for _, ident := range store.identities {
		if ident.Namespace == graph.NamespaceFreeformName {
			values = append(values, ident.Value)
		}
	}
	assert.ElementsMatch(t, []string{"Aleksandr Volkov", "Sasha"}, values)
}
