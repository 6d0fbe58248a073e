// Package service wires the graph components into a single application
// surface: evidence capture, background processing, duplicate review,
// proactive questions and bulk imports.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/rolograph/rolograph/pkg/errors"
	"github.com/rolograph/rolograph/pkg/extraction"
	"github.com/rolograph/rolograph/pkg/graph"
	"github.com/rolograph/rolograph/pkg/importer"
	"github.com/rolograph/rolograph/pkg/logging"
	"github.com/rolograph/rolograph/pkg/queues"
)

// Store is the storage surface the service talks to directly. Satisfied by
// *graph.Repository.
type Store interface {
	CreateEvidence(ctx context.Context, ev *graph.Evidence) error
	GetEvidence(ctx context.Context, ownerID, id uuid.UUID) (*graph.Evidence, error)
	ListReprocessableEvidenceIDs(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error)
	GetQuestion(ctx context.Context, ownerID, id uuid.UUID) (*graph.Question, error)
	SetQuestionStatus(ctx context.Context, ownerID, id uuid.UUID, status graph.QuestionStatus) error
}

// Extractor runs fact extraction over stored evidence.
type Extractor interface {
	ProcessEvidence(ctx context.Context, ownerID, evidenceID uuid.UUID, scope graph.Scope) (*extraction.Result, error)
	ReextractEvidence(ctx context.Context, ownerID, evidenceID uuid.UUID, scope graph.Scope) (*extraction.Result, error)
}

// Deduper finds and resolves duplicate entities.
type Deduper interface {
	FlagDuplicatesForEntity(ctx context.Context, ownerID, entityID uuid.UUID) (int, error)
	RunBatchScan(ctx context.Context, ownerID uuid.UUID, limit int) (int, error)
	ListPending(ctx context.Context, ownerID uuid.UUID, limit int) ([]*graph.MatchCandidate, error)
	Merge(ctx context.Context, ownerID, primaryID, duplicateID uuid.UUID) (*graph.MergeCounts, error)
	Reject(ctx context.Context, ownerID, a, b uuid.UUID) error
}

// Questioner maintains the proactive question queue.
type Questioner interface {
	ScanAndQueue(ctx context.Context, ownerID uuid.UUID) (int, error)
	NextQuestion(ctx context.Context, ownerID uuid.UUID, force bool) (*graph.Question, error)
	Answer(ctx context.Context, ownerID, questionID uuid.UUID, answer string) (*graph.Assertion, error)
	Dismiss(ctx context.Context, ownerID, questionID uuid.UUID) error
	Snooze(ctx context.Context, ownerID, questionID uuid.UUID) error
}

// BulkImporter loads contact exports.
type BulkImporter interface {
	ImportLinkedIn(ctx context.Context, ownerID uuid.UUID, records []importer.LinkedInRecord) (*importer.Result, error)
	ImportCalendar(ctx context.Context, ownerID uuid.UUID, records []importer.CalendarRecord) (*importer.Result, error)
	Rollback(ctx context.Context, ownerID, batchID uuid.UUID) (int64, error)
}

// Service is the application facade.
type Service struct {
	store     Store
	extractor Extractor
	deduper   Deduper
	questions Questioner
	importer  BulkImporter
	queue     queues.Queue // optional; nil means process inline
	logger    logging.Logger
}

// New creates a service. The queue may be nil, in which case submitted
// evidence is processed synchronously.
func New(store Store, extractor Extractor, deduper Deduper, questions Questioner, imp BulkImporter, queue queues.Queue, logger logging.Logger) *Service {
	return &Service{
		store:     store,
		extractor: extractor,
		deduper:   deduper,
		questions: questions,
		importer:  imp,
		queue:     queue,
		logger:    logger.With(logging.F("component", "service")),
	}
}

// SubmitNote stores a free-form text note as evidence and schedules
// extraction.
func (s *Service) SubmitNote(ctx context.Context, ownerID uuid.UUID, text string) (*graph.Evidence, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: note text is empty", apperrors.ErrValidation)
	}
	return s.submit(ctx, ownerID, graph.EvidenceKindText, text)
}

// SubmitVoice stores a voice memo as evidence. The content is the audio file
// path; the extraction pipeline transcribes it before extracting facts.
func (s *Service) SubmitVoice(ctx context.Context, ownerID uuid.UUID, audioPath string) (*graph.Evidence, error) {
	if strings.TrimSpace(audioPath) == "" {
		return nil, fmt.Errorf("%w: audio path is empty", apperrors.ErrValidation)
	}
	return s.submit(ctx, ownerID, graph.EvidenceKindVoice, audioPath)
}

func (s *Service) submit(ctx context.Context, ownerID uuid.UUID, kind graph.EvidenceKind, content string) (*graph.Evidence, error) {
	ev := &graph.Evidence{
		OwnerID: ownerID,
		Kind:    kind,
		Content: content,
	}
	if err := s.store.CreateEvidence(ctx, ev); err != nil {
		return nil, err
	}

	if s.queue != nil {
		msg := &queues.ExtractMessage{
			OwnerID:    ownerID,
			EvidenceID: ev.ID,
			Priority:   queues.PriorityHigh,
			EnqueuedAt: time.Now(),
		}
		if err := s.queue.Enqueue(msg); err != nil {
			return nil, fmt.Errorf("failed to enqueue extraction: %w", err)
		}
		return ev, nil
	}

	if _, err := s.ProcessEvidence(ctx, ownerID, ev.ID, false); err != nil {
		return ev, err
	}
	return ev, nil
}

// EvidenceStatus reports the processing state of a submitted input.
func (s *Service) EvidenceStatus(ctx context.Context, ownerID, evidenceID uuid.UUID) (*graph.Evidence, error) {
	ev, err := s.store.GetEvidence(ctx, ownerID, evidenceID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: evidence %s", apperrors.ErrNotFound, evidenceID)
	}
	return ev, nil
}

// ProcessEvidence runs extraction over one piece of evidence and then flags
// duplicate candidates for every entity the extraction touched.
func (s *Service) ProcessEvidence(ctx context.Context, ownerID, evidenceID uuid.UUID, reextract bool) (*extraction.Result, error) {
	var result *extraction.Result
	var err error
	if reextract {
		result, err = s.extractor.ReextractEvidence(ctx, ownerID, evidenceID, graph.ScopePersonal)
	} else {
		result, err = s.extractor.ProcessEvidence(ctx, ownerID, evidenceID, graph.ScopePersonal)
	}
	if err != nil {
		return nil, err
	}

	for _, entityID := range result.TouchedEntityIDs {
		if _, err := s.deduper.FlagDuplicatesForEntity(ctx, ownerID, entityID); err != nil {
			s.logger.Warn("duplicate flagging failed",
				logging.F("entity_id", entityID.String()),
				logging.Err(err))
		}
	}
	return result, nil
}

// ReextractAll schedules re-extraction for every finished evidence record of
// the owner, oldest first. With a queue configured the work runs in the
// background at low priority; without one it runs inline, continuing past
// individual failures. Returns how many records were scheduled or processed.
func (s *Service) ReextractAll(ctx context.Context, ownerID uuid.UUID) (int, error) {
	ids, err := s.store.ListReprocessableEvidenceIDs(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if s.queue != nil {
		msgs := make([]queues.Message, 0, len(ids))
		for _, id := range ids {
			msgs = append(msgs, &queues.ExtractMessage{
				OwnerID:    ownerID,
				EvidenceID: id,
				Reextract:  true,
				Priority:   queues.PriorityLow,
				EnqueuedAt: time.Now(),
			})
		}
		if err := s.queue.EnqueueBatch(msgs); err != nil {
			return 0, fmt.Errorf("failed to enqueue re-extraction: %w", err)
		}
		return len(ids), nil
	}

	processed := 0
	for _, id := range ids {
		if _, err := s.ProcessEvidence(ctx, ownerID, id, true); err != nil {
			s.logger.Warn("re-extraction failed",
				logging.F("evidence_id", id.String()),
				logging.Err(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// ListDedupCandidates returns pending duplicate pairs for review.
func (s *Service) ListDedupCandidates(ctx context.Context, ownerID uuid.UUID, limit int) ([]*graph.MatchCandidate, error) {
	return s.deduper.ListPending(ctx, ownerID, limit)
}

// MergeEntities merges a confirmed duplicate into its primary.
func (s *Service) MergeEntities(ctx context.Context, ownerID, primaryID, duplicateID uuid.UUID) (*graph.MergeCounts, error) {
	return s.deduper.Merge(ctx, ownerID, primaryID, duplicateID)
}

// RejectPair records that two entities are distinct people; the pair is
// never suggested again.
func (s *Service) RejectPair(ctx context.Context, ownerID, a, b uuid.UUID) error {
	return s.deduper.Reject(ctx, ownerID, a, b)
}

// RunDedupScan scans for duplicate pairs across the whole graph.
func (s *Service) RunDedupScan(ctx context.Context, ownerID uuid.UUID, limit int) (int, error) {
	return s.deduper.RunBatchScan(ctx, ownerID, limit)
}

// RunGapScan refreshes the proactive question queue.
func (s *Service) RunGapScan(ctx context.Context, ownerID uuid.UUID) (int, error) {
	return s.questions.ScanAndQueue(ctx, ownerID)
}

// NextQuestion returns the next question to surface, subject to rate limits.
// Force bypasses the limits without consuming budget; it exists for
// administrative inspection of the queue.
func (s *Service) NextQuestion(ctx context.Context, ownerID uuid.UUID, force bool) (*graph.Question, error) {
	return s.questions.NextQuestion(ctx, ownerID, force)
}

// AnswerQuestion routes an answer by question kind: gap answers become
// assertions, duplicate-confirmation answers trigger a merge or a rejection.
// Affirmative answers are "yes" or "да" (case-insensitive).
func (s *Service) AnswerQuestion(ctx context.Context, ownerID, questionID uuid.UUID, answer string) error {
	q, err := s.store.GetQuestion(ctx, ownerID, questionID)
	if err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("%w: question %s", apperrors.ErrNotFound, questionID)
	}

	switch q.Kind {
	case graph.QuestionKindGap:
		_, err := s.questions.Answer(ctx, ownerID, questionID, answer)
		return err

	case graph.QuestionKindDedupConfirm:
		if q.PairAID == nil || q.PairBID == nil {
			return fmt.Errorf("%w: question %s has no pair", apperrors.ErrInvalidState, questionID)
		}
		if isAffirmative(answer) {
			if _, err := s.deduper.Merge(ctx, ownerID, *q.PairAID, *q.PairBID); err != nil {
				return err
			}
		} else {
			if err := s.deduper.Reject(ctx, ownerID, *q.PairAID, *q.PairBID); err != nil {
				return err
			}
		}
		return s.store.SetQuestionStatus(ctx, ownerID, questionID, graph.QuestionStatusAnswered)

	default:
		return fmt.Errorf("%w: unknown question kind %q", apperrors.ErrInvalidState, q.Kind)
	}
}

// DismissQuestion marks a question dismissed and advances the dismissal
// streak.
func (s *Service) DismissQuestion(ctx context.Context, ownerID, questionID uuid.UUID) error {
	return s.questions.Dismiss(ctx, ownerID, questionID)
}

// SnoozeQuestion lowers a question's priority and pushes out its expiry.
func (s *Service) SnoozeQuestion(ctx context.Context, ownerID, questionID uuid.UUID) error {
	return s.questions.Snooze(ctx, ownerID, questionID)
}

// ImportLinkedIn loads a LinkedIn connections export.
func (s *Service) ImportLinkedIn(ctx context.Context, ownerID uuid.UUID, records []importer.LinkedInRecord) (*importer.Result, error) {
	return s.importer.ImportLinkedIn(ctx, ownerID, records)
}

// ImportCalendar loads calendar attendee records.
func (s *Service) ImportCalendar(ctx context.Context, ownerID uuid.UUID, records []importer.CalendarRecord) (*importer.Result, error) {
	return s.importer.ImportCalendar(ctx, ownerID, records)
}

// RollbackImport removes everything an import batch created.
func (s *Service) RollbackImport(ctx context.Context, ownerID, batchID uuid.UUID) (int64, error) {
	return s.importer.Rollback(ctx, ownerID, batchID)
}

// HandleMessage dispatches a queue message to the owning component. It is
// the handler installed on every worker pool.
func (s *Service) HandleMessage(ctx context.Context, msg queues.Message) error {
	switch m := msg.(type) {
	case *queues.ExtractMessage:
		_, err := s.ProcessEvidence(ctx, m.OwnerID, m.EvidenceID, m.Reextract)
		if err != nil {
			if apperrors.IsValidation(err) || apperrors.IsNotFound(err) || apperrors.IsInvalidState(err) {
				return queues.NewPermanentError(queues.ErrorCodeInvalidInput, "extraction rejected input", err)
			}
			return queues.NewTransientError(queues.ErrorCodeLLM, "extraction failed", err)
		}
		return nil

	case *queues.DedupScanMessage:
		if len(m.EntityIDs) == 0 {
			_, err := s.deduper.RunBatchScan(ctx, m.OwnerID, m.Limit)
			return err
		}
		for _, entityID := range m.EntityIDs {
			if _, err := s.deduper.FlagDuplicatesForEntity(ctx, m.OwnerID, entityID); err != nil {
				return err
			}
		}
		return nil

	case *queues.GapScanMessage:
		_, err := s.questions.ScanAndQueue(ctx, m.OwnerID)
		return err

	default:
		return queues.NewPermanentError(queues.ErrorCodeParseError,
			fmt.Sprintf("unhandled message type %q", msg.GetMessageType()), nil)
	}
}

func isAffirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y", "да":
		return true
	}
	return false
}
