// Package importer loads bulk contact exports (LinkedIn connections,
// calendar attendees) into the graph. Every run is tracked as a batch:
// records matching an existing contact are counted as duplicates and never
// modify the existing record, a failure mid-run deletes everything the batch
// created, and a finished batch is scanned for duplicates against the
// pre-existing graph.
package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/rolograph/rolograph/pkg/errors"
	"github.com/rolograph/rolograph/pkg/extraction"
	"github.com/rolograph/rolograph/pkg/graph"
	"github.com/rolograph/rolograph/pkg/logging"
)

const (
	// SourceLinkedIn and SourceCalendar label the batch origin.
	SourceLinkedIn = "linkedin"
	SourceCalendar = "calendar"

	// MaxRecords bounds a single import run.
	MaxRecords = 5000

	// embedChunkSize bounds one embedding API call.
	embedChunkSize = 100

	// importConfidence is the fixed confidence of import-derived facts,
	// at the external-scope ceiling.
	importConfidence = graph.ExternalConfidenceCeiling
)

// LinkedInRecord is one row of a LinkedIn connections export.
type LinkedInRecord struct {
	FirstName  string
	LastName   string
	Email      string
	Company    string
	Position   string
	ProfileURL string
}

// Name returns the record's display name.
func (r LinkedInRecord) Name() string {
	return graph.NormalizeName(r.FirstName + " " + r.LastName)
}

// CalendarRecord is one attendee occurrence from a calendar export.
type CalendarRecord struct {
	DisplayName string
	Email       string
	EventTitle  string
}

// Store is the graph storage surface the importer writes through.
type Store interface {
	CreateImportBatch(ctx context.Context, b *graph.ImportBatch) error
	FinishImportBatch(ctx context.Context, ownerID, id uuid.UUID, created, duplicates, skipped int) error
	RollbackImportBatch(ctx context.Context, ownerID, batchID uuid.UUID) (int64, error)
	GetImportBatch(ctx context.Context, ownerID, id uuid.UUID) (*graph.ImportBatch, error)

	CreateEvidence(ctx context.Context, ev *graph.Evidence) error
	SetEvidenceStatus(ctx context.Context, ownerID, id uuid.UUID, status graph.EvidenceStatus) error
	CreateEntity(ctx context.Context, e *graph.Entity) error
	AddIdentity(ctx context.Context, ownerID uuid.UUID, ident *graph.Identity) (bool, error)
	FindEntityByIdentity(ctx context.Context, ownerID uuid.UUID, ns graph.Namespace, value string) (*graph.Entity, error)
	CreateAssertions(ctx context.Context, assertions []*graph.Assertion) error
}

// Embedder produces embeddings for import-derived assertions.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Deduper scans a finished batch's entities against the pre-existing graph.
// Satisfied by *dedup.Engine.
type Deduper interface {
	RunBatchDedup(ctx context.Context, ownerID, batchID uuid.UUID) (int, error)
}

// Result summarizes one import run.
type Result struct {
	Batch      *graph.ImportBatch
	Created    int
	Duplicates int
	Skipped    int
	Flagged    int
}

// Importer runs bulk imports.
type Importer struct {
	store    Store
	embedder Embedder
	dedup    Deduper
	logger   logging.Logger
}

// New creates an importer.
func New(store Store, embedder Embedder, dedup Deduper, logger logging.Logger) *Importer {
	return &Importer{
		store:    store,
		embedder: embedder,
		dedup:    dedup,
		logger:   logger.With(logging.F("component", "importer")),
	}
}

// ImportLinkedIn loads a LinkedIn connections export as one batch.
func (im *Importer) ImportLinkedIn(ctx context.Context, ownerID uuid.UUID, records []LinkedInRecord) (*Result, error) {
	if len(records) > MaxRecords {
		return nil, fmt.Errorf("%w: %d records exceeds the limit of %d", apperrors.ErrValidation, len(records), MaxRecords)
	}

	batch := &graph.ImportBatch{OwnerID: ownerID, Source: SourceLinkedIn}
	if err := im.store.CreateImportBatch(ctx, batch); err != nil {
		return nil, err
	}
	result := &Result{Batch: batch}

	for _, rec := range records {
		if err := im.importLinkedInRecord(ctx, ownerID, batch.ID, rec, result); err != nil {
			im.rollbackFailedBatch(ctx, ownerID, batch)
			return result, err
		}
	}

	if err := im.store.FinishImportBatch(ctx, ownerID, batch.ID, result.Created, result.Duplicates, result.Skipped); err != nil {
		im.rollbackFailedBatch(ctx, ownerID, batch)
		return result, err
	}
	batch.Status = graph.BatchStatusDone
	im.scanBatch(ctx, ownerID, batch.ID, result)

	im.logger.Info("linkedin import finished",
		logging.F("batch_id", batch.ID.String()),
		logging.F("created", result.Created),
		logging.F("duplicates", result.Duplicates),
		logging.F("skipped", result.Skipped),
		logging.F("flagged", result.Flagged))
	return result, nil
}

// ImportCalendar loads calendar attendees as one batch. Attendee names from
// calendars are weak evidence, so they land in the calendar_name namespace
// and facts stay at external confidence.
func (im *Importer) ImportCalendar(ctx context.Context, ownerID uuid.UUID, records []CalendarRecord) (*Result, error) {
	if len(records) > MaxRecords {
		return nil, fmt.Errorf("%w: %d records exceeds the limit of %d", apperrors.ErrValidation, len(records), MaxRecords)
	}

	batch := &graph.ImportBatch{OwnerID: ownerID, Source: SourceCalendar}
	if err := im.store.CreateImportBatch(ctx, batch); err != nil {
		return nil, err
	}
	result := &Result{Batch: batch}

	for _, rec := range records {
		if err := im.importCalendarRecord(ctx, ownerID, batch.ID, rec, result); err != nil {
			im.rollbackFailedBatch(ctx, ownerID, batch)
			return result, err
		}
	}

	if err := im.store.FinishImportBatch(ctx, ownerID, batch.ID, result.Created, result.Duplicates, result.Skipped); err != nil {
		im.rollbackFailedBatch(ctx, ownerID, batch)
		return result, err
	}
	batch.Status = graph.BatchStatusDone
	im.scanBatch(ctx, ownerID, batch.ID, result)

	im.logger.Info("calendar import finished",
		logging.F("batch_id", batch.ID.String()),
		logging.F("created", result.Created),
		logging.F("duplicates", result.Duplicates),
		logging.F("skipped", result.Skipped),
		logging.F("flagged", result.Flagged))
	return result, nil
}

// Rollback removes everything a batch created.
func (im *Importer) Rollback(ctx context.Context, ownerID, batchID uuid.UUID) (int64, error) {
	return im.store.RollbackImportBatch(ctx, ownerID, batchID)
}

// rollbackFailedBatch undoes a batch that could not run to completion. The
// import error is what the caller sees; a rollback failure is only logged.
func (im *Importer) rollbackFailedBatch(ctx context.Context, ownerID uuid.UUID, batch *graph.ImportBatch) {
	removed, err := im.store.RollbackImportBatch(ctx, ownerID, batch.ID)
	if err != nil {
		im.logger.Error("failed to roll back import batch",
			logging.F("batch_id", batch.ID.String()),
			logging.F("error", err.Error()))
		return
	}
	batch.Status = graph.BatchStatusRolledBack
	im.logger.Warn("import batch rolled back after failure",
		logging.F("batch_id", batch.ID.String()),
		logging.F("entities_removed", removed))
}

// scanBatch flags duplicates between the finished batch and the pre-existing
// graph. A scan failure does not fail the import; the batch is already done.
func (im *Importer) scanBatch(ctx context.Context, ownerID, batchID uuid.UUID, result *Result) {
	flagged, err := im.dedup.RunBatchDedup(ctx, ownerID, batchID)
	if err != nil {
		im.logger.Warn("post-import duplicate scan failed",
			logging.F("batch_id", batchID.String()),
			logging.F("error", err.Error()))
		return
	}
	result.Flagged = flagged
}

func (im *Importer) importLinkedInRecord(ctx context.Context, ownerID, batchID uuid.UUID, rec LinkedInRecord, result *Result) error {
	name := rec.Name()
	if name == "" {
		result.Skipped++
		return nil
	}

	identities := im.linkedInIdentities(rec)
	if existing, err := im.findExisting(ctx, ownerID, identities); err != nil {
		return err
	} else if existing != nil {
		result.Duplicates++
		return nil
	}

	var facts []fact
	if rec.Company != "" {
		facts = append(facts, fact{graph.PredicateWorksAt, rec.Company})
	}
	if rec.Position != "" {
		facts = append(facts, fact{graph.PredicateRoleIs, rec.Position})
	}
	facts = append(facts, fact{graph.PredicateContactContext, "LinkedIn connection"})

	if err := im.createContact(ctx, ownerID, batchID, name, identities, facts,
		fmt.Sprintf("LinkedIn connection: %s, %s at %s", name, rec.Position, rec.Company)); err != nil {
		return err
	}
	result.Created++
	return nil
}

func (im *Importer) importCalendarRecord(ctx context.Context, ownerID, batchID uuid.UUID, rec CalendarRecord, result *Result) error {
	name := graph.NormalizeName(rec.DisplayName)
	if name == "" && rec.Email == "" {
		result.Skipped++
		return nil
	}
	if name == "" {
		// Fall back to the mailbox part of the address.
		name = strings.SplitN(rec.Email, "@", 2)[0]
	}

	var identities []graph.Identity
	if rec.Email != "" {
		if value, err := graph.NormalizeIdentity(graph.NamespaceEmail, rec.Email); err == nil {
			identities = append(identities, graph.Identity{Namespace: graph.NamespaceEmail, Value: value})
		}
	}
	identities = append(identities, graph.Identity{Namespace: graph.NamespaceCalendarName, Value: name})

	if existing, err := im.findExisting(ctx, ownerID, identities); err != nil {
		return err
	} else if existing != nil {
		result.Duplicates++
		return nil
	}

	var facts []fact
	if rec.EventTitle != "" {
		facts = append(facts, fact{graph.PredicateContactContext, "met at " + rec.EventTitle})
	}

	if err := im.createContact(ctx, ownerID, batchID, name, identities, facts,
		fmt.Sprintf("Calendar attendee: %s <%s> at %q", name, rec.Email, rec.EventTitle)); err != nil {
		return err
	}
	result.Created++
	return nil
}

type fact struct {
	predicate graph.Predicate
	value     string
}

func (im *Importer) linkedInIdentities(rec LinkedInRecord) []graph.Identity {
	var identities []graph.Identity
	if rec.Email != "" {
		if value, err := graph.NormalizeIdentity(graph.NamespaceEmail, rec.Email); err == nil {
			identities = append(identities, graph.Identity{Namespace: graph.NamespaceEmail, Value: value})
		}
	}
	if rec.ProfileURL != "" {
		if value, err := graph.NormalizeLinkedInURL(rec.ProfileURL); err == nil {
			identities = append(identities, graph.Identity{Namespace: graph.NamespaceLinkedIn, Value: value})
		}
	}
	identities = append(identities, graph.Identity{Namespace: graph.NamespaceFreeformName, Value: rec.Name()})
	return identities
}

// findExisting reports whether a strong identifier of the record already
// belongs to an entity.
func (im *Importer) findExisting(ctx context.Context, ownerID uuid.UUID, identities []graph.Identity) (*graph.Entity, error) {
	for _, ident := range identities {
		if !ident.Namespace.IsStrongIdentifier() {
			continue
		}
		entity, err := im.store.FindEntityByIdentity(ctx, ownerID, ident.Namespace, ident.Value)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			return entity, nil
		}
	}
	return nil, nil
}

// createContact creates the entity, its identities, evidence and assertions.
// Duplicate flagging happens after the batch finishes, in one scan against the
// pre-existing graph.
func (im *Importer) createContact(ctx context.Context, ownerID, batchID uuid.UUID, name string, identities []graph.Identity, facts []fact, evidenceText string) error {
	entity := &graph.Entity{OwnerID: ownerID, DisplayName: name, BatchID: &batchID}
	if err := im.store.CreateEntity(ctx, entity); err != nil {
		return err
	}

	for _, ident := range identities {
		ident.EntityID = entity.ID
		if _, err := im.store.AddIdentity(ctx, ownerID, &ident); err != nil {
			return err
		}
	}

	ev := &graph.Evidence{
		OwnerID: ownerID,
		Kind:    graph.EvidenceKindImport,
		Content: evidenceText,
		BatchID: &batchID,
	}
	if err := im.store.CreateEvidence(ctx, ev); err != nil {
		return err
	}

	if len(facts) > 0 {
		assertions := make([]*graph.Assertion, len(facts))
		sentences := make([]string, len(facts))
		for i, f := range facts {
			evID := ev.ID
			assertions[i] = &graph.Assertion{
				OwnerID:    ownerID,
				SubjectID:  entity.ID,
				Predicate:  f.predicate,
				Value:      f.value,
				Confidence: importConfidence,
				Scope:      graph.ScopeExternal,
				EvidenceID: &evID,
			}
			sentences[i] = extraction.SentenceFor(name, f.predicate, f.value)
		}

		for start := 0; start < len(assertions); start += embedChunkSize {
			end := start + embedChunkSize
			if end > len(assertions) {
				end = len(assertions)
			}
			vectors, err := im.embedder.EmbedBatch(ctx, sentences[start:end])
			if err != nil {
				return fmt.Errorf("embedding import facts failed: %w", err)
			}
			for i, v := range vectors {
				assertions[start+i].Embedding = v
			}
		}

		if err := im.store.CreateAssertions(ctx, assertions); err != nil {
			return err
		}
	}

	return im.store.SetEvidenceStatus(ctx, ownerID, ev.ID, graph.EvidenceStatusDone)
}
