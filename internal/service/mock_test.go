package service

import (
	"context"
	"fmt"
	"time"

	"github.com/relaydesk/relaydesk/internal/domain"
	"github.com/relaydesk/relaydesk/internal/domain/agent"
	"github.com/relaydesk/relaydesk/internal/domain/contact"
	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/message"
	"github.com/relaydesk/relaydesk/internal/port/messagequeue"
	"github.com/relaydesk/relaydesk/internal/port/workflow"
	"github.com/relaydesk/relaydesk/internal/whatsapp"
)

type touchCall struct {
	id       string
	customer bool
}

type handlerCall struct {
	id      string
	handler conversation.Handler
	agentID string
}

type nameUpdate struct {
	id   string
	name string
}

// mockStore is an in-memory database.Store for testing.
type mockStore struct {
	contacts      map[string]*contact.Contact           // keyed by phone
	conversations map[string]*conversation.Conversation // keyed by ID
	agents        map[string]*agent.Context             // keyed by conversation ID
	existing      map[string]bool                       // provider IDs already stored

	inserted    []message.InsertRequest
	nameUpdates []nameUpdate
	touches     []touchCall
	handlerSets []handlerCall

	// missFirstFind makes the first FindContactByPhone miss even when the
	// contact exists, to simulate losing a create race.
	missFirstFind    bool
	findContactCalls int

	createContactErr error
	insertErr        error
	existsErr        error
}

func newMockStore() *mockStore {
	return &mockStore{
		contacts:      make(map[string]*contact.Contact),
		conversations: make(map[string]*conversation.Conversation),
		agents:        make(map[string]*agent.Context),
		existing:      make(map[string]bool),
	}
}

func (m *mockStore) FindContactByPhone(_ context.Context, phone string) (*contact.Contact, error) {
	m.findContactCalls++
	if m.missFirstFind && m.findContactCalls == 1 {
		return nil, domain.ErrNotFound
	}
	if c, ok := m.contacts[phone]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateContact(_ context.Context, req contact.CreateRequest) (*contact.Contact, error) {
	if m.createContactErr != nil {
		return nil, m.createContactErr
	}
	if _, ok := m.contacts[req.Phone]; ok {
		return nil, domain.ErrDuplicate
	}
	c := &contact.Contact{
		ID:    fmt.Sprintf("ct-%d", len(m.contacts)+1),
		Phone: req.Phone,
		Name:  req.Name,
	}
	m.contacts[req.Phone] = c
	return c, nil
}

func (m *mockStore) UpdateContactName(_ context.Context, id, name string) error {
	m.nameUpdates = append(m.nameUpdates, nameUpdate{id: id, name: name})
	for _, c := range m.contacts {
		if c.ID == id {
			c.Name = name
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) FindConversation(_ context.Context, contactID, channel string) (*conversation.Conversation, error) {
	for _, c := range m.conversations {
		if c.ContactID == contactID && c.Channel == channel {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetConversation(_ context.Context, id string) (*conversation.Conversation, error) {
	if c, ok := m.conversations[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateConversation(_ context.Context, contactID, channel string) (*conversation.Conversation, error) {
	now := time.Now().UTC()
	c := &conversation.Conversation{
		ID:            fmt.Sprintf("conv-%d", len(m.conversations)+1),
		ContactID:     contactID,
		Channel:       channel,
		Status:        conversation.StatusActive,
		Handler:       conversation.HandlerAI,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	m.conversations[c.ID] = c
	return c, nil
}

func (m *mockStore) TouchConversation(_ context.Context, id string, at time.Time, customerMessage bool) error {
	m.touches = append(m.touches, touchCall{id: id, customer: customerMessage})
	if c, ok := m.conversations[id]; ok {
		c.LastMessageAt = at
		if customerMessage {
			c.LastCustomerMessageAt = &at
		}
		return nil
	}
	return domain.ErrNotFound
}

func (m *mockStore) SetConversationHandler(_ context.Context, id string, handler conversation.Handler, assignedAgentID string) error {
	if _, ok := m.conversations[id]; !ok {
		return domain.ErrNotFound
	}
	m.handlerSets = append(m.handlerSets, handlerCall{id: id, handler: handler, agentID: assignedAgentID})
	m.conversations[id].Handler = handler
	m.conversations[id].AssignedAgentID = assignedAgentID
	return nil
}

func (m *mockStore) GetConversationAgent(_ context.Context, conversationID string) (*agent.Context, error) {
	return m.agents[conversationID], nil
}

func (m *mockStore) MessageExists(_ context.Context, providerID string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.existing[providerID], nil
}

func (m *mockStore) InsertMessage(_ context.Context, req message.InsertRequest) (*message.Message, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if req.ProviderID != "" && m.existing[req.ProviderID] {
		return nil, domain.ErrDuplicate
	}
	m.inserted = append(m.inserted, req)
	if req.ProviderID != "" {
		m.existing[req.ProviderID] = true
	}
	return &message.Message{
		ID:             fmt.Sprintf("msg-%d", len(m.inserted)),
		ConversationID: req.ConversationID,
		Direction:      req.Direction,
		Content:        req.Content,
		ContentType:    req.ContentType,
		Sender:         req.Sender,
		ProviderID:     req.ProviderID,
		Metadata:       req.Metadata,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// mockTrigger implements workflow.Trigger for testing.
type mockTrigger struct {
	calls []workflow.TriggerRequest
	err   error
}

func (t *mockTrigger) Trigger(_ context.Context, req workflow.TriggerRequest) error {
	if t.err != nil {
		return t.err
	}
	t.calls = append(t.calls, req)
	return nil
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	published []struct {
		subject string
		data    []byte
	}
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.published = append(q.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Close() error { return nil }

// mockBroadcaster implements broadcast.Broadcaster for testing.
type mockBroadcaster struct {
	events []string
}

func (b *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.events = append(b.events, eventType)
}

// mockSender implements TextSender for testing.
type mockSender struct {
	sent []struct{ to, text string }
	resp *whatsapp.SendResponse
	err  error
}

func (s *mockSender) SendText(_ context.Context, to, text string) (*whatsapp.SendResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, struct{ to, text string }{to, text})
	if s.resp != nil {
		return s.resp, nil
	}
	return &whatsapp.SendResponse{
		Messages: []struct {
			ID string `json:"id"`
		}{{ID: "wamid.SENT"}},
	}, nil
}

// mockCache implements cache.Cache for testing.
type mockCache struct {
	entries map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]byte)}
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *mockCache) Close() {}
