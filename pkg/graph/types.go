// Package graph provides the contact-graph data model and storage layer:
// entities, alternate identities, confidence-weighted assertions, relationship
// edges, duplicate candidates, and evidence records.
package graph

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDim is the fixed dimensionality of assertion embeddings.
const EmbeddingDim = 1536

// ExternalConfidenceCeiling caps the confidence of enrichment-sourced
// assertions below first-party notes.
const ExternalConfidenceCeiling = 0.7

// ErrorMessageMaxLen bounds error messages stored on evidence records.
const ErrorMessageMaxLen = 500

// EntityStatus represents the lifecycle state of an entity.
type EntityStatus string

const (
	EntityStatusActive EntityStatus = "active"
	EntityStatusMerged EntityStatus = "merged"
)

// Namespace categorizes an alternate identifier.
type Namespace string

const (
	NamespaceEmail        Namespace = "email"
	NamespacePhone        Namespace = "phone"
	NamespaceTelegram     Namespace = "telegram_username"
	NamespaceLinkedIn     Namespace = "linkedin_url"
	NamespaceFreeformName Namespace = "freeform_name"
	NamespaceCalendarName Namespace = "calendar_name"
	NamespaceEmailHash    Namespace = "email_hash"
)

// strongNamespaces are identifiers unique enough that a shared value means
// the same real person.
var strongNamespaces = map[Namespace]bool{
	NamespaceEmail:    true,
	NamespaceLinkedIn: true,
	NamespaceTelegram: true,
}

// IsStrongIdentifier reports whether a shared value in this namespace
// identifies the same person.
func (n Namespace) IsStrongIdentifier() bool {
	return strongNamespaces[n]
}

// Predicate is the fixed vocabulary tag for assertion meaning.
type Predicate string

const (
	PredicateWorksAt        Predicate = "works_at"
	PredicateRoleIs         Predicate = "role_is"
	PredicateCanHelpWith    Predicate = "can_help_with"
	PredicateStrongAt       Predicate = "strong_at"
	PredicateInterestedIn   Predicate = "interested_in"
	PredicateTrustedBy      Predicate = "trusted_by"
	PredicateKnows          Predicate = "knows"
	PredicateIntroPath      Predicate = "intro_path"
	PredicateLocatedIn      Predicate = "located_in"
	PredicateWorkedOn       Predicate = "worked_on"
	PredicateSpeaksLanguage Predicate = "speaks_language"
	PredicateBackground     Predicate = "background"
	PredicateContactContext Predicate = "contact_context"
	PredicateReputationNote Predicate = "reputation_note"
	PredicateNote           Predicate = "note"
	PredicateSelfRole       Predicate = "self_role"
	PredicateSelfOffer      Predicate = "self_offer"
	PredicateSelfSeek       Predicate = "self_seek"
)

var validPredicates = map[Predicate]bool{
	PredicateWorksAt: true, PredicateRoleIs: true, PredicateCanHelpWith: true,
	PredicateStrongAt: true, PredicateInterestedIn: true, PredicateTrustedBy: true,
	PredicateKnows: true, PredicateIntroPath: true, PredicateLocatedIn: true,
	PredicateWorkedOn: true, PredicateSpeaksLanguage: true, PredicateBackground: true,
	PredicateContactContext: true, PredicateReputationNote: true, PredicateNote: true,
	PredicateSelfRole: true, PredicateSelfOffer: true, PredicateSelfSeek: true,
}

// IsValid reports whether p is in the fixed predicate vocabulary.
func (p Predicate) IsValid() bool {
	return validPredicates[p]
}

// Scope is the trust tier of an assertion.
type Scope string

const (
	// ScopePersonal marks first-party, user-reported facts.
	ScopePersonal Scope = "personal"
	// ScopeExternal marks enrichment-sourced facts with lower default trust.
	ScopeExternal Scope = "external"
)

// EdgeType is the fixed vocabulary for relationship kinds.
type EdgeType string

const (
	EdgeKnows            EdgeType = "knows"
	EdgeRecommended      EdgeType = "recommended"
	EdgeWorkedWith       EdgeType = "worked_with"
	EdgeInSameGroup      EdgeType = "in_same_group"
	EdgeIntroducedBy     EdgeType = "introduced_by"
	EdgeCollaboratesWith EdgeType = "collaborates_with"
)

var validEdgeTypes = map[EdgeType]bool{
	EdgeKnows: true, EdgeRecommended: true, EdgeWorkedWith: true,
	EdgeInSameGroup: true, EdgeIntroducedBy: true, EdgeCollaboratesWith: true,
}

// IsValid reports whether t is in the fixed edge-type vocabulary.
func (t EdgeType) IsValid() bool {
	return validEdgeTypes[t]
}

// CandidateStatus represents the decision state of a duplicate pair.
type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusMerged   CandidateStatus = "merged"
	CandidateStatusRejected CandidateStatus = "rejected"
)

// MatchType labels which tier produced a duplicate candidate. Manual marks
// rows created by an owner decision rather than a detection tier.
type MatchType string

const (
	MatchTypeIdentity  MatchType = "identity_match"
	MatchTypeName      MatchType = "name_similarity"
	MatchTypeEmbedding MatchType = "embedding_similarity"
	MatchTypeManual    MatchType = "manual"
)

// EvidenceStatus tracks processing of one ingested input unit.
type EvidenceStatus string

const (
	EvidenceStatusPending      EvidenceStatus = "pending"
	EvidenceStatusTranscribing EvidenceStatus = "transcribing"
	EvidenceStatusExtracting   EvidenceStatus = "extracting"
	EvidenceStatusDone         EvidenceStatus = "done"
	EvidenceStatusError        EvidenceStatus = "error"
)

// EvidenceKind distinguishes the origin of an evidence unit.
type EvidenceKind string

const (
	EvidenceKindText   EvidenceKind = "text"
	EvidenceKindVoice  EvidenceKind = "voice"
	EvidenceKindImport EvidenceKind = "import"
)

// BatchStatus tracks a bulk import batch.
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusDone       BatchStatus = "done"
	BatchStatusRolledBack BatchStatus = "rolled_back"
)

// Entity is a unique individual known to an owner. Entities are never hard
// deleted; a merged entity keeps its row with status=merged pointing at the
// surviving record, so readers never observe assertions with a missing subject.
type Entity struct {
	ID           uuid.UUID    `json:"id"`
	OwnerID      uuid.UUID    `json:"owner_id"`
	DisplayName  string       `json:"display_name"`
	Status       EntityStatus `json:"status"`
	MergedIntoID *uuid.UUID   `json:"merged_into_id,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	BatchID      *uuid.UUID   `json:"batch_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsActive reports whether the entity currently represents a real person.
func (e *Entity) IsActive() bool {
	return e.Status == EntityStatusActive
}

// Identity is an alternate identifier bound to exactly one entity.
type Identity struct {
	ID        int64     `json:"id,omitempty"`
	EntityID  uuid.UUID `json:"entity_id"`
	Namespace Namespace `json:"namespace"`
	Value     string    `json:"value"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Assertion is a single confidence-weighted fact about an entity.
type Assertion struct {
	ID         int64      `json:"id,omitempty"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	SubjectID  uuid.UUID  `json:"subject_id"`
	Predicate  Predicate  `json:"predicate"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Scope      Scope      `json:"scope"`
	EvidenceID *uuid.UUID `json:"evidence_id,omitempty"`
	Embedding  []float32  `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Edge is a directed relationship between two entities.
type Edge struct {
	ID        int64     `json:"id,omitempty"`
	OwnerID   uuid.UUID `json:"owner_id"`
	SrcID     uuid.UUID `json:"src_id"`
	DstID     uuid.UUID `json:"dst_id"`
	Type      EdgeType  `json:"type"`
	Scope     Scope     `json:"scope"`
	Context   string    `json:"context,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MatchReasons holds structured match evidence for a duplicate candidate.
type MatchReasons struct {
	SharedNamespace string  `json:"shared_namespace,omitempty"`
	SharedValue     string  `json:"shared_value,omitempty"`
	NameA           string  `json:"name_a,omitempty"`
	NameB           string  `json:"name_b,omitempty"`
	Similarity      float64 `json:"similarity,omitempty"`
	RejectedByUser  bool    `json:"rejected_by_user,omitempty"`
}

// MatchCandidate is a proposed duplicate pair with a decision state. The pair
// is stored in canonical order (AID < BID lexically) so (a,b) and (b,a) map
// to the same row.
type MatchCandidate struct {
	ID        int64           `json:"id,omitempty"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	AID       uuid.UUID       `json:"a_id"`
	BID       uuid.UUID       `json:"b_id"`
	Score     float64         `json:"score"`
	MatchType MatchType       `json:"match_type"`
	Reasons   MatchReasons    `json:"reasons"`
	Status    CandidateStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CanonicalPair orders two entity ids so an unordered pair has one stable key.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() <= b.String() {
		return a, b
	}
	return b, a
}

// Evidence is one ingested raw input unit that assertions trace back to.
type Evidence struct {
	ID           uuid.UUID      `json:"id"`
	OwnerID      uuid.UUID      `json:"owner_id"`
	Kind         EvidenceKind   `json:"kind"`
	Content      string         `json:"content"`
	Status       EvidenceStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	BatchID      *uuid.UUID     `json:"batch_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ImportBatch tracks a bulk import run so its records can be rolled back as a
// unit.
type ImportBatch struct {
	ID         uuid.UUID   `json:"id"`
	OwnerID    uuid.UUID   `json:"owner_id"`
	Source     string      `json:"source"`
	Status     BatchStatus `json:"status"`
	Created    int         `json:"created"`
	Duplicates int         `json:"duplicates"`
	Skipped    int         `json:"skipped"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// MergeCounts reports rows moved per category by a merge, for auditability.
type MergeCounts struct {
	Assertions int64 `json:"assertions"`
	Edges      int64 `json:"edges"`
	Identities int64 `json:"identities"`
	SelfEdges  int64 `json:"self_edges_removed"`
	Candidates int64 `json:"candidates_updated"`
}

// TruncateError bounds an error message for storage on an evidence record.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > ErrorMessageMaxLen {
		msg = msg[:ErrorMessageMaxLen]
	}
	return msg
}
