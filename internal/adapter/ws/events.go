package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Event type constants for WebSocket messages.
const (
	EventMessageCreated      = "message.created"
	EventConversationUpdated = "conversation.updated"
)

// MessageCreatedEvent is broadcast when an inbound or outbound message is persisted.
type MessageCreatedEvent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	ContactID      string    `json:"contact_id,omitempty"`
	Direction      string    `json:"direction"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	SenderType     string    `json:"sender_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationUpdatedEvent is broadcast when a conversation's state changes
// (handler takeover, timestamp bumps).
type ConversationUpdatedEvent struct {
	ConversationID string `json:"conversation_id"`
	HandlerType    string `json:"handler_type,omitempty"`
}

// BroadcastEvent marshals a typed event and broadcasts it to all clients.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
