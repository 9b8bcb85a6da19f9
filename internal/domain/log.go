package domain

import "context"

// RecordHandler receives each record delivered by the log. Handlers must not
// block for long: the log client calls them from its read loop.
type RecordHandler func(rec InboundRecord)

// MessageLog is an append-only, partitioned record stream with at-least-once
// delivery. Subscribe starts delivery from the current position (never the
// beginning) and invokes the handler for every record until Disconnect or
// context cancellation.
type MessageLog interface {
	Subscribe(ctx context.Context, handler RecordHandler) error
	Disconnect() error
}
