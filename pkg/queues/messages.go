// Package queues provides the Redis-backed job queues that feed the
// background workers: evidence extraction, duplicate scans and gap scans.
package queues

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Priority levels for queue messages.
type Priority int

const (
	PriorityLow    Priority = 0 // Re-extraction, nightly scans
	PriorityNormal Priority = 1 // Bulk import follow-up
	PriorityHigh   Priority = 2 // Interactive note capture
)

// MessageType identifies the type of queue message.
type MessageType string

const (
	MessageTypeExtract   MessageType = "extract"
	MessageTypeDedupScan MessageType = "dedup_scan"
	MessageTypeGapScan   MessageType = "gap_scan"
)

// Message is the base interface for all queue messages.
type Message interface {
	// GetOwnerID returns the graph owner the job belongs to.
	GetOwnerID() uuid.UUID
	// GetPriority returns the message priority.
	GetPriority() Priority
	// GetMessageType returns the message type.
	GetMessageType() MessageType
}

// ExtractMessage asks a worker to run fact extraction over one piece of
// evidence.
type ExtractMessage struct {
	OwnerID    uuid.UUID `json:"owner_id"`
	EvidenceID uuid.UUID `json:"evidence_id"`
	Reextract  bool      `json:"reextract,omitempty"`
	Priority   Priority  `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (m *ExtractMessage) GetOwnerID() uuid.UUID       { return m.OwnerID }
func (m *ExtractMessage) GetPriority() Priority       { return m.Priority }
func (m *ExtractMessage) GetMessageType() MessageType { return MessageTypeExtract }

// DedupScanMessage asks a worker to scan entities for duplicate pairs. When
// EntityIDs is empty the worker runs a full batch scan.
type DedupScanMessage struct {
	OwnerID   uuid.UUID   `json:"owner_id"`
	EntityIDs []uuid.UUID `json:"entity_ids,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Priority  Priority    `json:"priority"`
}

func (m *DedupScanMessage) GetOwnerID() uuid.UUID       { return m.OwnerID }
func (m *DedupScanMessage) GetPriority() Priority       { return m.Priority }
func (m *DedupScanMessage) GetMessageType() MessageType { return MessageTypeDedupScan }

// GapScanMessage asks a worker to refresh the proactive question queue for
// an owner.
type GapScanMessage struct {
	OwnerID  uuid.UUID `json:"owner_id"`
	Priority Priority  `json:"priority"`
}

func (m *GapScanMessage) GetOwnerID() uuid.UUID       { return m.OwnerID }
func (m *GapScanMessage) GetPriority() Priority       { return m.Priority }
func (m *GapScanMessage) GetMessageType() MessageType { return MessageTypeGapScan }

// QueuedMessage wraps a message with queue metadata.
type QueuedMessage struct {
	ID           string          `json:"id"`
	Message      json.RawMessage `json:"message"`
	MessageType  MessageType     `json:"message_type"`
	Priority     Priority        `json:"priority"`
	RetryCount   int             `json:"retry_count"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAfter time.Time       `json:"visible_after,omitempty"` // For delayed visibility
}

// ParseMessage parses the raw message based on message type.
func (qm *QueuedMessage) ParseMessage() (Message, error) {
	switch qm.MessageType {
	case MessageTypeExtract:
		var msg ExtractMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case MessageTypeDedupScan:
		var msg DedupScanMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case MessageTypeGapScan:
		var msg GapScanMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, ErrUnknownMessageType
	}
}

// Queue defines the interface for a message queue.
type Queue interface {
	// Name returns the queue name.
	Name() string

	// Enqueue adds a message to the queue.
	Enqueue(msg Message) error

	// EnqueueBatch adds multiple messages to the queue.
	EnqueueBatch(msgs []Message) error

	// Dequeue retrieves messages from the queue.
	// Returns up to maxMessages, blocks for timeout.
	Dequeue(maxMessages int, timeout time.Duration) ([]*QueuedMessage, error)

	// Ack acknowledges successful processing of a message.
	Ack(messageID string) error

	// Nack indicates processing failure, message will be retried.
	Nack(messageID string) error

	// MoveToDeadLetter moves a message to the dead letter queue.
	MoveToDeadLetter(messageID string, reason string) error

	// Depth returns the current queue depth.
	Depth() (int64, error)

	// Close closes the queue connection.
	Close() error
}

// QueueConfig configures queue behavior.
type QueueConfig struct {
	Name              string        `yaml:"name"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetentionPeriod   time.Duration `yaml:"retention_period"`
}

// Queue names.
const (
	QueueExtract   = "graph:extract"
	QueueDedupScan = "graph:dedup"
	QueueGapScan   = "graph:gaps"
)

// DefaultQueueConfigs returns default configurations for each queue type.
func DefaultQueueConfigs() map[string]QueueConfig {
	return map[string]QueueConfig{
		QueueExtract: {
			Name:              QueueExtract,
			VisibilityTimeout: 300 * time.Second, // LLM and transcription calls can be slow
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
		QueueDedupScan: {
			Name:              QueueDedupScan,
			VisibilityTimeout: 120 * time.Second,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
		QueueGapScan: {
			Name:              QueueGapScan,
			VisibilityTimeout: 60 * time.Second,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
	}
}

// Verify interface compliance
var _ Message = (*ExtractMessage)(nil)
var _ Message = (*DedupScanMessage)(nil)
var _ Message = (*GapScanMessage)(nil)
