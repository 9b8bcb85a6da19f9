package domain

import "context"

// SendReceipt confirms a successful gateway send.
type SendReceipt struct {
	MessageID string
	ThreadID  string
}

// DeliveryGateway is the outbound chat surface. SendToThread and
// CreateThreadAndSend return a receipt on success and an error otherwise;
// typing indicators are best-effort and failures carry no consequence.
type DeliveryGateway interface {
	Name() string
	SendToThread(ctx context.Context, threadID, text string) (*SendReceipt, error)
	CreateThreadAndSend(ctx context.Context, from, to, text string) (*SendReceipt, error)
	StartTyping(ctx context.Context, threadID string) error
	StopTyping(ctx context.Context, threadID string) error
}
