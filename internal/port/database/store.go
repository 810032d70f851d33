// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/relaydesk/relaydesk/internal/domain/agent"
	"github.com/relaydesk/relaydesk/internal/domain/contact"
	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/message"
)

// Store is the narrow, typed port the ingestion pipeline needs. Uniqueness
// is enforced at the storage layer: contacts.phone, (contact_id, channel)
// on conversations and messages.provider_message_id are all unique, and
// create operations surface constraint hits as domain.ErrDuplicate.
type Store interface {
	// Contacts
	FindContactByPhone(ctx context.Context, phone string) (*contact.Contact, error)
	CreateContact(ctx context.Context, req contact.CreateRequest) (*contact.Contact, error)
	UpdateContactName(ctx context.Context, id, name string) error

	// Conversations
	FindConversation(ctx context.Context, contactID, channel string) (*conversation.Conversation, error)
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
	CreateConversation(ctx context.Context, contactID, channel string) (*conversation.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time, customerMessage bool) error
	SetConversationHandler(ctx context.Context, id string, handler conversation.Handler, assignedAgentID string) error
	GetConversationAgent(ctx context.Context, conversationID string) (*agent.Context, error)

	// Messages
	MessageExists(ctx context.Context, providerID string) (bool, error)
	InsertMessage(ctx context.Context, req message.InsertRequest) (*message.Message, error)
}
