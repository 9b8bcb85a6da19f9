package domain

import "time"

// InboundRecord is a raw record delivered by the message log. It is immutable;
// identity for dedup purposes is (Partition, Offset).
type InboundRecord struct {
	Partition  int
	Offset     string
	ProducedAt time.Time
	Raw        []byte
}

// ParsedMessage is derived deterministically from an InboundRecord payload
// and discarded after processing.
type ParsedMessage struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	ThreadID    string `json:"thread_id,omitempty"`
	Body        string `json:"body"`
	SourceID    string `json:"message_id,omitempty"`
	ReceivedAt  time.Time
}

// ResponseKind distinguishes reply kinds for the same underlying record.
// Each kind gets its own dedup namespace.
type ResponseKind string

const (
	KindRegular    ResponseKind = "regular"
	KindReflection ResponseKind = "reflection"
	KindError      ResponseKind = "error"
)

// Reply is the output of the response generator, ready for delivery.
type Reply struct {
	Text             string
	SuggestedActions []string
	UsedFallback     bool
}

// ChatMessage is a single turn passed to the completion backend.
type ChatMessage struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}
