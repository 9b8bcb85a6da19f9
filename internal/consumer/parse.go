package consumer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"barfly/internal/domain"
)

// ParseRecord derives a ParsedMessage from a record payload. Malformed
// payloads are parse errors; the caller drops them with a log line, never a
// crash or a retry.
func ParseRecord(rec domain.InboundRecord) (domain.ParsedMessage, error) {
	var msg domain.ParsedMessage
	if err := json.Unmarshal(rec.Raw, &msg); err != nil {
		return msg, fmt.Errorf("unmarshal payload: %w", err)
	}
	if msg.SenderID == "" {
		return msg, errors.New("payload missing sender_id")
	}
	if msg.Body == "" {
		return msg, errors.New("payload missing body")
	}
	msg.ReceivedAt = time.Now()
	return msg, nil
}
