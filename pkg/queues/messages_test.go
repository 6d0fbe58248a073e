package queues

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestExtractMessage_Interface(t *testing.T) {
	owner := uuid.New()
	evidence := uuid.New()
	msg := &ExtractMessage{
		OwnerID:    owner,
		EvidenceID: evidence,
		Priority:   PriorityHigh,
		EnqueuedAt: time.Now(),
	}

	if msg.GetOwnerID() != owner {
		t.Errorf("GetOwnerID() = %s, want %s", msg.GetOwnerID(), owner)
	}
	if msg.GetPriority() != PriorityHigh {
		t.Errorf("GetPriority() = %d, want %d", msg.GetPriority(), PriorityHigh)
	}
	if msg.GetMessageType() != MessageTypeExtract {
		t.Errorf("GetMessageType() = %s, want %s", msg.GetMessageType(), MessageTypeExtract)
	}
}

func TestDedupScanMessage_Interface(t *testing.T) {
	owner := uuid.New()
	msg := &DedupScanMessage{
		OwnerID:   owner,
		EntityIDs: []uuid.UUID{uuid.New()},
		Limit:     50,
		Priority:  PriorityLow,
	}

	if msg.GetOwnerID() != owner {
		t.Errorf("GetOwnerID() = %s, want %s", msg.GetOwnerID(), owner)
	}
	if msg.GetMessageType() != MessageTypeDedupScan {
		t.Errorf("GetMessageType() = %s, want %s", msg.GetMessageType(), MessageTypeDedupScan)
	}
}

func TestQueuedMessage_ParseMessage(t *testing.T) {
	extractMsg := &ExtractMessage{
		OwnerID:    uuid.New(),
		EvidenceID: uuid.New(),
		Priority:   PriorityNormal,
	}

	msgBytes, _ := json.Marshal(extractMsg)
	qm := &QueuedMessage{
		ID:          "msg-1",
		Message:     msgBytes,
		MessageType: MessageTypeExtract,
		Priority:    PriorityNormal,
		EnqueuedAt:  time.Now(),
	}

	parsed, err := qm.ParseMessage()
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	em, ok := parsed.(*ExtractMessage)
	if !ok {
		t.Fatal("ParseMessage() did not return *ExtractMessage")
	}

	if em.EvidenceID != extractMsg.EvidenceID {
		t.Errorf("Parsed EvidenceID = %s, want %s", em.EvidenceID, extractMsg.EvidenceID)
	}
}

func TestQueuedMessage_ParseMessage_UnknownType(t *testing.T) {
	qm := &QueuedMessage{
		ID:          "msg-1",
		Message:     []byte("{}"),
		MessageType: MessageType("unknown"),
	}

	_, err := qm.ParseMessage()
	if err != ErrUnknownMessageType {
		t.Errorf("ParseMessage() error = %v, want %v", err, ErrUnknownMessageType)
	}
}

func TestDefaultQueueConfigs(t *testing.T) {
	configs := DefaultQueueConfigs()

	expected := []string{QueueExtract, QueueDedupScan, QueueGapScan}
	for _, name := range expected {
		if _, ok := configs[name]; !ok {
			t.Errorf("DefaultQueueConfigs() missing %s", name)
		}
	}

	// Extraction involves LLM calls and needs the longest visibility timeout.
	extractConfig := configs[QueueExtract]
	if extractConfig.VisibilityTimeout < configs[QueueGapScan].VisibilityTimeout {
		t.Error("extract queue should have longer visibility timeout than gap scan queue")
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy()

	if got := p.CalculateBackoff(0); got != p.InitialBackoff {
		t.Errorf("CalculateBackoff(0) = %v, want %v", got, p.InitialBackoff)
	}
	if got := p.CalculateBackoff(2); got != 4*time.Second {
		t.Errorf("CalculateBackoff(2) = %v, want 4s", got)
	}
	if got := p.CalculateBackoff(100); got != p.MaxBackoff {
		t.Errorf("CalculateBackoff(100) = %v, want capped at %v", got, p.MaxBackoff)
	}
}

func TestDecideRetry(t *testing.T) {
	p := DefaultRetryPolicy()

	transient := NewTransientError(ErrorCodeTimeout, "llm timed out", nil)
	if d := p.DecideRetry(transient, 1); !d.ShouldRetry {
		t.Error("transient error should be retried")
	}

	permanent := NewPermanentError(ErrorCodeInvalidInput, "bad payload", nil)
	if d := p.DecideRetry(permanent, 1); d.ShouldRetry {
		t.Error("permanent error should not be retried")
	}

	if d := p.DecideRetry(transient, p.MaxRetries); d.ShouldRetry {
		t.Error("exhausted retries should not be retried")
	}
}
