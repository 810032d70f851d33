package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/domain"
	"github.com/relaydesk/relaydesk/internal/domain/agent"
	"github.com/relaydesk/relaydesk/internal/domain/contact"
	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/message"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Contacts ---

func (s *Store) FindContactByPhone(ctx context.Context, phone string) (*contact.Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, phone, name, metadata, created_at, updated_at
		 FROM contacts WHERE phone = $1`, phone)

	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find contact %s: %w", phone, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("find contact %s: %w", phone, err)
	}
	return &c, nil
}

func (s *Store) CreateContact(ctx context.Context, req contact.CreateRequest) (*contact.Contact, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO contacts (id, phone, name, metadata)
		 VALUES ($1, $2, $3, '{}')
		 RETURNING id, phone, name, metadata, created_at, updated_at`,
		uuid.NewString(), req.Phone, nullIfEmpty(req.Name))

	c, err := scanContact(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create contact %s: %w", req.Phone, domain.ErrDuplicate)
		}
		return nil, fmt.Errorf("create contact %s: %w", req.Phone, err)
	}
	return &c, nil
}

func (s *Store) UpdateContactName(ctx context.Context, id, name string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET name = $2, updated_at = now() WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("update contact name %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update contact name %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanContact(row scannable) (contact.Contact, error) {
	var (
		c        contact.Contact
		name     *string
		metadata []byte
	)
	if err := row.Scan(&c.ID, &c.Phone, &name, &metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return contact.Contact{}, err
	}
	c.Name = deref(name)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return contact.Contact{}, fmt.Errorf("decode contact metadata: %w", err)
		}
	}
	return c, nil
}

// --- Conversations ---

const conversationColumns = `id, contact_id, channel, status, handler_type,
	ai_agent_id, assigned_agent_id, last_message_at, last_customer_message_at, created_at`

func (s *Store) FindConversation(ctx context.Context, contactID, channel string) (*conversation.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations WHERE contact_id = $1 AND channel = $2`, contactID, channel)

	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find conversation %s/%s: %w", contactID, channel, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("find conversation %s/%s: %w", contactID, channel, err)
	}
	return &c, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)

	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get conversation %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) CreateConversation(ctx context.Context, contactID, channel string) (*conversation.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, contact_id, channel, status, handler_type, last_message_at, last_customer_message_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 RETURNING `+conversationColumns,
		uuid.NewString(), contactID, channel, conversation.StatusActive, conversation.HandlerAI)

	c, err := scanConversation(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create conversation %s/%s: %w", contactID, channel, domain.ErrDuplicate)
		}
		return nil, fmt.Errorf("create conversation %s/%s: %w", contactID, channel, err)
	}
	return &c, nil
}

func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time, customerMessage bool) error {
	var (
		tag interface{ RowsAffected() int64 }
		err error
	)
	if customerMessage {
		tag, err = s.pool.Exec(ctx,
			`UPDATE conversations SET last_message_at = $2, last_customer_message_at = $2 WHERE id = $1`, id, at)
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE conversations SET last_message_at = $2 WHERE id = $1`, id, at)
	}
	if err != nil {
		return fmt.Errorf("touch conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("touch conversation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) SetConversationHandler(ctx context.Context, id string, handler conversation.Handler, assignedAgentID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET handler_type = $2, assigned_agent_id = $3, last_message_at = now() WHERE id = $1`,
		id, handler, nullIfEmpty(assignedAgentID))
	if err != nil {
		return fmt.Errorf("set conversation handler %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set conversation handler %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) GetConversationAgent(ctx context.Context, conversationID string) (*agent.Context, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT a.id, a.name, a.model, a.system_prompt, a.greeting_message, a.behaviors
		 FROM conversations c
		 JOIN ai_agents a ON a.id = c.ai_agent_id
		 WHERE c.id = $1`, conversationID)

	var (
		a                agent.Context
		prompt, greeting *string
		behaviors        []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Model, &prompt, &greeting, &behaviors); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No agent assigned (or no such conversation): not an error,
			// the pipeline treats a missing agent as "no automation context".
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation agent %s: %w", conversationID, err)
	}
	a.Prompt = deref(prompt)
	a.Greeting = deref(greeting)
	if len(behaviors) > 0 {
		if err := json.Unmarshal(behaviors, &a.Behaviors); err != nil {
			return nil, fmt.Errorf("decode agent behaviors: %w", err)
		}
	}
	return &a, nil
}

func scanConversation(row scannable) (conversation.Conversation, error) {
	var (
		c                 conversation.Conversation
		agentID, assigned *string
		lastCustomerAt    *time.Time
	)
	err := row.Scan(&c.ID, &c.ContactID, &c.Channel, &c.Status, &c.Handler,
		&agentID, &assigned, &c.LastMessageAt, &lastCustomerAt, &c.CreatedAt)
	if err != nil {
		return conversation.Conversation{}, err
	}
	c.AgentID = deref(agentID)
	c.AssignedAgentID = deref(assigned)
	c.LastCustomerMessageAt = lastCustomerAt
	return c, nil
}

// --- Messages ---

func (s *Store) MessageExists(ctx context.Context, providerID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE provider_message_id = $1)`, providerID).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("message exists %s: %w", providerID, err)
	}
	return exists, nil
}

func (s *Store) InsertMessage(ctx context.Context, req message.InsertRequest) (*message.Message, error) {
	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal message metadata: %w", err)
	}

	m := message.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		Direction:      req.Direction,
		Content:        req.Content,
		ContentType:    req.ContentType,
		Sender:         req.Sender,
		ProviderID:     req.ProviderID,
		Metadata:       req.Metadata,
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, direction, content, content_type, sender_type, provider_message_id, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		m.ID, m.ConversationID, m.Direction, m.Content, m.ContentType, m.Sender,
		nullIfEmpty(m.ProviderID), metadata).
		Scan(&m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert message %s: %w", req.ProviderID, domain.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &m, nil
}
