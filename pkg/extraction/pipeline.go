package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/rolograph/rolograph/pkg/errors"
	"github.com/rolograph/rolograph/pkg/graph"
	"github.com/rolograph/rolograph/pkg/logging"
)

// Completer produces structured model output for a prompt pair.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder produces embedding vectors for texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Transcriber converts a voice recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Store is the graph storage surface the pipeline writes through.
type Store interface {
	GetEvidence(ctx context.Context, ownerID, id uuid.UUID) (*graph.Evidence, error)
	SetEvidenceStatus(ctx context.Context, ownerID, id uuid.UUID, status graph.EvidenceStatus) error
	SetEvidenceError(ctx context.Context, ownerID, id uuid.UUID, cause error) error
	UpdateEvidenceContent(ctx context.Context, ownerID, id uuid.UUID, content string) error
	DeleteAssertionsByEvidence(ctx context.Context, ownerID, evidenceID uuid.UUID) (int64, error)

	CreateEntity(ctx context.Context, e *graph.Entity) error
	AddIdentity(ctx context.Context, ownerID uuid.UUID, ident *graph.Identity) (bool, error)
	FindEntityByIdentity(ctx context.Context, ownerID uuid.UUID, ns graph.Namespace, value string) (*graph.Entity, error)
	FindEntitiesByName(ctx context.Context, ownerID uuid.UUID, name string) ([]*graph.Entity, error)
	FindEntitiesByFirstName(ctx context.Context, ownerID uuid.UUID, firstName string) ([]*graph.Entity, error)

	AssertionExists(ctx context.Context, ownerID, subjectID uuid.UUID, predicate graph.Predicate, value string) (bool, error)
	CreateAssertions(ctx context.Context, assertions []*graph.Assertion) error
	CreateEdge(ctx context.Context, e *graph.Edge) (bool, error)
	UpsertCandidate(ctx context.Context, c *graph.MatchCandidate) (bool, error)
}

// Result summarizes what one pipeline run wrote.
type Result struct {
	EntitiesCreated   int
	EntitiesMatched   int
	AssertionsCreated int
	EdgesCreated      int
	CandidatesFlagged int
	// TouchedEntityIDs lists every entity the run created or added facts to,
	// in first-seen order, for follow-up duplicate scans and gap checks.
	TouchedEntityIDs []uuid.UUID
}

// Pipeline runs the extract-normalize-store flow for evidence records.
type Pipeline struct {
	store       Store
	completer   Completer
	embedder    Embedder
	transcriber Transcriber
	tracer      trace.Tracer
	logger      logging.Logger
}

// NewPipeline creates an extraction pipeline.
func NewPipeline(store Store, completer Completer, embedder Embedder, transcriber Transcriber, logger logging.Logger) *Pipeline {
	return &Pipeline{
		store:       store,
		completer:   completer,
		embedder:    embedder,
		transcriber: transcriber,
		tracer:      otel.Tracer("rolograph/extraction"),
		logger:      logger.With(logging.F("component", "extraction-pipeline")),
	}
}

// ProcessEvidence runs extraction for one evidence record. The record must be
// pending or in error state; voice evidence is transcribed first. Every
// mentioned person becomes a new entity: the first pass never guesses at
// matches, it leaves suspected duplicates to the dedup engine. Any failure
// marks the evidence as errored with a bounded message and is also returned
// to the caller.
func (p *Pipeline) ProcessEvidence(ctx context.Context, ownerID, evidenceID uuid.UUID, scope graph.Scope) (*Result, error) {
	return p.runExtraction(ctx, ownerID, evidenceID, scope, false)
}

func (p *Pipeline) runExtraction(ctx context.Context, ownerID, evidenceID uuid.UUID, scope graph.Scope, reextract bool) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "extraction.process_evidence",
		trace.WithAttributes(attribute.String("evidence_id", evidenceID.String())))
	defer span.End()

	ev, err := p.store.GetEvidence(ctx, ownerID, evidenceID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: evidence %s", apperrors.ErrNotFound, evidenceID)
	}
	if ev.Status != graph.EvidenceStatusPending && ev.Status != graph.EvidenceStatusError {
		return nil, fmt.Errorf("%w: evidence %s is %s", apperrors.ErrInvalidState, evidenceID, ev.Status)
	}

	result, err := p.process(ctx, ownerID, ev, scope, reextract)
	if err != nil {
		span.RecordError(err)
		evidenceProcessed.WithLabelValues("error").Inc()
		if setErr := p.store.SetEvidenceError(ctx, ownerID, evidenceID, err); setErr != nil {
			p.logger.Error("failed to record evidence error", logging.Err(setErr),
				logging.F("evidence_id", evidenceID.String()))
		}
		return nil, err
	}

	if err := p.store.SetEvidenceStatus(ctx, ownerID, evidenceID, graph.EvidenceStatusDone); err != nil {
		return nil, err
	}
	recordResult(result)

	p.logger.Info("processed evidence",
		logging.F("evidence_id", evidenceID.String()),
		logging.F("entities_created", result.EntitiesCreated),
		logging.F("assertions_created", result.AssertionsCreated),
		logging.F("edges_created", result.EdgesCreated))
	return result, nil
}

// ReextractEvidence drops all assertions derived from the evidence and runs
// extraction again. Entities and identities created by the original run are
// kept; only the facts are replaced. Unlike the first pass, re-extraction
// never creates entities: each mention is mapped onto an existing one and
// mentions that match nothing are dropped along with their facts.
func (p *Pipeline) ReextractEvidence(ctx context.Context, ownerID, evidenceID uuid.UUID, scope graph.Scope) (*Result, error) {
	ev, err := p.store.GetEvidence(ctx, ownerID, evidenceID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: evidence %s", apperrors.ErrNotFound, evidenceID)
	}

	deleted, err := p.store.DeleteAssertionsByEvidence(ctx, ownerID, evidenceID)
	if err != nil {
		return nil, err
	}
	p.logger.Info("dropped assertions for re-extraction",
		logging.F("evidence_id", evidenceID.String()),
		logging.F("deleted", deleted))

	if err := p.store.SetEvidenceStatus(ctx, ownerID, evidenceID, graph.EvidenceStatusPending); err != nil {
		return nil, err
	}
	return p.runExtraction(ctx, ownerID, evidenceID, scope, true)
}

func (p *Pipeline) process(ctx context.Context, ownerID uuid.UUID, ev *graph.Evidence, scope graph.Scope, reextract bool) (*Result, error) {
	text := ev.Content

	if ev.Kind == graph.EvidenceKindVoice {
		if err := p.store.SetEvidenceStatus(ctx, ownerID, ev.ID, graph.EvidenceStatusTranscribing); err != nil {
			return nil, err
		}
		transcript, err := p.transcriber.Transcribe(ctx, ev.Content)
		if err != nil {
			return nil, fmt.Errorf("transcription failed: %w", err)
		}
		if err := p.store.UpdateEvidenceContent(ctx, ownerID, ev.ID, transcript); err != nil {
			return nil, err
		}
		text = transcript
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: evidence has no content", apperrors.ErrValidation)
	}

	if err := p.store.SetEvidenceStatus(ctx, ownerID, ev.ID, graph.EvidenceStatusExtracting); err != nil {
		return nil, err
	}

	raw, err := p.completer.Complete(ctx, systemPrompt, userPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	extracted, err := ParseResult(raw)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	entitiesByName := make(map[string]*graph.Entity, len(extracted.Persons))

	for i := range extracted.Persons {
		person := &extracted.Persons[i]

		var entity *graph.Entity
		if reextract {
			entity, err = p.matchExistingPerson(ctx, ownerID, person)
			if err != nil {
				return nil, err
			}
			if entity == nil {
				// A mention that matches nothing on re-extraction is dropped;
				// its facts and edges go with it.
				continue
			}
			result.EntitiesMatched++
		} else {
			entity, err = p.createPerson(ctx, ownerID, person)
			if err != nil {
				return nil, err
			}
			result.EntitiesCreated++
		}
		entitiesByName[strings.ToLower(person.Name)] = entity
		result.TouchedEntityIDs = append(result.TouchedEntityIDs, entity.ID)

		flagged, err := p.attachIdentities(ctx, ownerID, entity, person.Identities)
		if err != nil {
			return nil, err
		}
		result.CandidatesFlagged += flagged

		created2, err := p.storeFacts(ctx, ownerID, entity, person, ev.ID, scope)
		if err != nil {
			return nil, err
		}
		result.AssertionsCreated += created2
	}

	for _, edge := range extracted.Edges {
		src := entitiesByName[strings.ToLower(edge.From)]
		dst := entitiesByName[strings.ToLower(edge.To)]
		if src == nil || dst == nil || src.ID == dst.ID {
			continue
		}
		inserted, err := p.store.CreateEdge(ctx, &graph.Edge{
			OwnerID: ownerID,
			SrcID:   src.ID,
			DstID:   dst.ID,
			Type:    graph.EdgeType(edge.Type),
			Scope:   scope,
			Context: edge.Context,
		})
		if err != nil {
			return nil, err
		}
		if inserted {
			result.EdgesCreated++
		}
	}

	return result, nil
}

// createPerson records a mention as a new entity. The name and each of its
// variations land in the freeform name namespace so later runs can find the
// person again. When the mention turns out to describe somebody already known,
// the dedup engine flags the pair; nothing is merged here.
func (p *Pipeline) createPerson(ctx context.Context, ownerID uuid.UUID, person *ExtractedPerson) (*graph.Entity, error) {
	entity := &graph.Entity{OwnerID: ownerID, DisplayName: person.Name}
	if err := p.store.CreateEntity(ctx, entity); err != nil {
		return nil, err
	}
	names := append([]string{person.Name}, person.NameVariations...)
	for _, name := range names {
		if _, err := p.store.AddIdentity(ctx, ownerID, &graph.Identity{
			EntityID:  entity.ID,
			Namespace: graph.NamespaceFreeformName,
			Value:     graph.NormalizeName(name),
		}); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

// matchExistingPerson maps a mention onto an entity that already exists. An
// exact name match wins; a first name resolves only when exactly one entity
// carries it; failing both, the mention's alternate spellings are tried as
// exact names. Returns nil when nothing matches.
func (p *Pipeline) matchExistingPerson(ctx context.Context, ownerID uuid.UUID, person *ExtractedPerson) (*graph.Entity, error) {
	matches, err := p.store.FindEntitiesByName(ctx, ownerID, person.Name)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return matches[0], nil
	}

	if first := strings.Fields(person.Name); len(first) > 0 {
		candidates, err := p.store.FindEntitiesByFirstName(ctx, ownerID, first[0])
		if err != nil {
			return nil, err
		}
		if len(candidates) == 1 {
			return candidates[0], nil
		}
	}

	for _, variation := range person.NameVariations {
		matches, err := p.store.FindEntitiesByName(ctx, ownerID, variation)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return nil, nil
}

// attachIdentities binds extracted identifiers to the entity. A strong
// identifier already held by a different entity is not moved; the pair is
// flagged as a duplicate candidate instead. Returns how many pairs were
// flagged.
func (p *Pipeline) attachIdentities(ctx context.Context, ownerID uuid.UUID, entity *graph.Entity, identities []ExtractedIdentity) (int, error) {
	flagged := 0
	for _, ident := range identities {
		ns := graph.Namespace(ident.Namespace)
		value, err := graph.NormalizeIdentity(ns, ident.Value)
		if err != nil {
			p.logger.Debug("skipping unnormalizable identity",
				logging.F("namespace", string(ns)), logging.Err(err))
			continue
		}

		if ns.IsStrongIdentifier() {
			holder, err := p.store.FindEntityByIdentity(ctx, ownerID, ns, value)
			if err != nil {
				return flagged, err
			}
			if holder != nil && holder.ID != entity.ID {
				inserted, err := p.store.UpsertCandidate(ctx, &graph.MatchCandidate{
					OwnerID:   ownerID,
					AID:       entity.ID,
					BID:       holder.ID,
					Score:     1.0,
					MatchType: graph.MatchTypeIdentity,
					Reasons: graph.MatchReasons{
						SharedNamespace: string(ns),
						SharedValue:     value,
					},
				})
				if err != nil {
					return flagged, err
				}
				if inserted {
					flagged++
				}
				continue
			}
		}

		if _, err := p.store.AddIdentity(ctx, ownerID, &graph.Identity{
			EntityID:  entity.ID,
			Namespace: ns,
			Value:     value,
		}); err != nil {
			return flagged, err
		}
	}
	return flagged, nil
}

// storeFacts writes the person's new facts with embeddings. Facts identical
// to an existing one (same predicate, case-insensitive value) are skipped;
// contradicting facts are both kept, ranked by confidence downstream.
func (p *Pipeline) storeFacts(ctx context.Context, ownerID uuid.UUID, entity *graph.Entity, person *ExtractedPerson, evidenceID uuid.UUID, scope graph.Scope) (int, error) {
	var fresh []*graph.Assertion
	var sentences []string

	for _, fact := range person.Facts {
		predicate := graph.Predicate(fact.Predicate)
		exists, err := p.store.AssertionExists(ctx, ownerID, entity.ID, predicate, fact.Value)
		if err != nil {
			return 0, err
		}
		if exists {
			continue
		}

		confidence := fact.Confidence
		if scope == graph.ScopeExternal && confidence > graph.ExternalConfidenceCeiling {
			confidence = graph.ExternalConfidenceCeiling
		}

		evID := evidenceID
		fresh = append(fresh, &graph.Assertion{
			OwnerID:    ownerID,
			SubjectID:  entity.ID,
			Predicate:  predicate,
			Value:      fact.Value,
			Confidence: confidence,
			Scope:      scope,
			EvidenceID: &evID,
		})
		sentences = append(sentences, SentenceFor(entity.DisplayName, predicate, fact.Value))
	}

	if len(fresh) == 0 {
		return 0, nil
	}

	// One embedding call for the whole person keeps API round trips bounded
	// by mention count, not fact count.
	vectors, err := p.embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		return 0, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(fresh) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(fresh))
	}
	for i, v := range vectors {
		fresh[i].Embedding = v
	}

	if err := p.store.CreateAssertions(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}
