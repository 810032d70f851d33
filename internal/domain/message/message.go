// Package message defines the message domain model.
package message

import (
	"encoding/json"
	"time"
)

// Direction of a message relative to the system.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
	SenderAI       Sender = "ai"
)

// ContentType is the closed set of message kinds the provider delivers.
type ContentType string

const (
	TypeText        ContentType = "text"
	TypeImage       ContentType = "image"
	TypeAudio       ContentType = "audio"
	TypeVideo       ContentType = "video"
	TypeDocument    ContentType = "document"
	TypeSticker     ContentType = "sticker"
	TypeInteractive ContentType = "interactive"
	TypeButton      ContentType = "button"
	TypeOrder       ContentType = "order"
	TypeSystem      ContentType = "system"
	TypeUnknown     ContentType = "unknown"
)

// Placeholder returns the fixed stand-in content stored for non-text
// messages. Adding a provider message kind is a one-place change here.
func (t ContentType) Placeholder() string {
	switch t {
	case TypeImage:
		return "[Image]"
	case TypeAudio:
		return "[Audio]"
	case TypeVideo:
		return "[Video]"
	case TypeDocument:
		return "[Document]"
	case TypeSticker:
		return "[Sticker]"
	case TypeInteractive:
		return "[Interactive Message]"
	case TypeButton:
		return "[Button Response]"
	case TypeOrder:
		return "[Order]"
	case TypeSystem:
		return "[System Message]"
	case TypeText, TypeUnknown:
		return "[Media]"
	default:
		return "[Media]"
	}
}

// Message is one unit of communication on a conversation. ProviderID is
// the provider-assigned message ID and is unique across all messages;
// it is the deduplication key for redelivered webhooks.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Direction      Direction   `json:"direction"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type"`
	Sender         Sender      `json:"sender_type"`
	ProviderID     string      `json:"provider_message_id,omitempty"`
	Metadata       Metadata    `json:"metadata"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Metadata carries the raw provider payload and the AI agent configuration
// snapshot that was in effect when the message arrived.
type Metadata struct {
	Timestamp  string          `json:"timestamp,omitempty"`
	RawMessage json.RawMessage `json:"raw_message,omitempty"`
	AIAgent    json.RawMessage `json:"ai_agent,omitempty"`
	Extra      map[string]any  `json:"extra,omitempty"`
}

// InsertRequest holds the fields the store needs to persist a message.
type InsertRequest struct {
	ConversationID string
	Direction      Direction
	Content        string
	ContentType    ContentType
	Sender         Sender
	ProviderID     string
	Metadata       Metadata
}
