package domain

import "time"

// InboundMessage is one delivery from a messaging channel. Immutable;
// created per update/webhook and handed to the engine as-is.
type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string // external identity on the channel (phone, telegram user id)
	Content   string
	Media     []string // opaque media references in delivery order
	MessageID string   // channel-assigned message id
	Timestamp time.Time
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	Format  string // text | markdown
}
