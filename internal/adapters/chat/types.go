package chat

import "context"

// InboundMessage is a single message from the chat transport. The
// gateway promises per-sender FIFO delivery and nothing else.
type InboundMessage struct {
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// OutboundMessage is a reply sent back through the gateway
type OutboundMessage struct {
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// Sender abstracts the outbound side of the gateway so services can be
// tested with a recording fake.
type Sender interface {
	SendMessage(ctx context.Context, senderID string, text string) error
}
