package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaydesk/relaydesk/internal/domain/agent"
	"github.com/relaydesk/relaydesk/internal/domain/contact"
	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/message"
	"github.com/relaydesk/relaydesk/internal/port/workflow"
	"github.com/relaydesk/relaydesk/internal/whatsapp"
)

// textPayload builds a webhook payload with a single inbound text message.
func textPayload(providerID, from, name, body string) *whatsapp.Payload {
	return &whatsapp.Payload{
		Object: "whatsapp_business_account",
		Entry: []whatsapp.Entry{{
			ID: "entry-1",
			Changes: []whatsapp.Change{{
				Field: whatsapp.FieldMessages,
				Value: whatsapp.Value{
					Contacts: []whatsapp.Contact{{
						WaID:    from,
						Profile: whatsapp.Profile{Name: name},
					}},
					Messages: []whatsapp.Message{{
						From:      from,
						ID:        providerID,
						Timestamp: "1756700000",
						Type:      "text",
						Text:      &whatsapp.Text{Body: body},
					}},
				},
			}},
		}},
	}
}

func TestProcessorNewContact(t *testing.T) {
	store := newMockStore()
	trigger := &mockTrigger{}
	hub := &mockBroadcaster{}
	proc := NewProcessor(store, newMockCache(), trigger, hub, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.1", "15551234567", "Jane", "hello"))

	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 message inserted, got %d", len(store.inserted))
	}
	msg := store.inserted[0]
	if msg.Content != "hello" || msg.ContentType != message.TypeText {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Direction != message.Inbound || msg.Sender != message.SenderCustomer {
		t.Errorf("unexpected direction/sender: %+v", msg)
	}
	if msg.ProviderID != "wamid.1" {
		t.Errorf("provider ID = %q, want wamid.1", msg.ProviderID)
	}

	ct, ok := store.contacts["15551234567"]
	if !ok {
		t.Fatal("expected contact created for 15551234567")
	}
	if ct.Name != "Jane" {
		t.Errorf("contact name = %q, want Jane", ct.Name)
	}

	if len(store.conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(store.conversations))
	}
	for _, conv := range store.conversations {
		if conv.Handler != conversation.HandlerAI || conv.Status != conversation.StatusActive {
			t.Errorf("unexpected conversation defaults: %+v", conv)
		}
	}

	if len(store.touches) != 1 || !store.touches[0].customer {
		t.Errorf("expected one customer touch, got %+v", store.touches)
	}

	if len(trigger.calls) != 1 {
		t.Fatalf("expected 1 trigger call, got %d", len(trigger.calls))
	}
	call := trigger.calls[0]
	if call.CustomerMessage != "hello" || call.Channel != whatsapp.Channel {
		t.Errorf("unexpected trigger payload: %+v", call)
	}
	if call.Contact.Phone != "15551234567" || call.Contact.Name != "Jane" {
		t.Errorf("unexpected trigger contact: %+v", call.Contact)
	}

	if len(hub.events) != 1 {
		t.Errorf("expected 1 broadcast event, got %d", len(hub.events))
	}
}

func TestProcessorNormalizesPhone(t *testing.T) {
	store := newMockStore()
	proc := NewProcessor(store, newMockCache(), &mockTrigger{}, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.1", "+1 555-123-4567", "Jane", "hi"))

	if _, ok := store.contacts["15551234567"]; !ok {
		t.Errorf("expected contact keyed by normalized phone, have %v", store.contacts)
	}
}

func TestProcessorDedupPreCheck(t *testing.T) {
	store := newMockStore()
	store.existing["wamid.dup"] = true
	trigger := &mockTrigger{}
	proc := NewProcessor(store, newMockCache(), trigger, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.dup", "15551234567", "Jane", "again"))

	if len(store.inserted) != 0 {
		t.Errorf("expected no insert for duplicate, got %d", len(store.inserted))
	}
	if len(trigger.calls) != 0 {
		t.Errorf("expected no trigger for duplicate, got %d", len(trigger.calls))
	}
}

func TestProcessorDedupCacheHit(t *testing.T) {
	store := newMockStore()
	c := newMockCache()
	_ = c.Set(context.Background(), "dedup:wamid.c", []byte{1}, 0)
	proc := NewProcessor(store, c, &mockTrigger{}, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.c", "15551234567", "", "x"))

	if len(store.inserted) != 0 {
		t.Errorf("expected cache hit to skip insert, got %d inserts", len(store.inserted))
	}
}

func TestProcessorDedupPreCheckErrorProceeds(t *testing.T) {
	store := newMockStore()
	store.existsErr = errors.New("store down")
	proc := NewProcessor(store, newMockCache(), &mockTrigger{}, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.1", "15551234567", "", "x"))

	if len(store.inserted) != 1 {
		t.Errorf("expected insert despite pre-check error, got %d", len(store.inserted))
	}
}

func TestProcessorInsertDuplicateIsSilent(t *testing.T) {
	// Pre-check misses but the insert hits the unique constraint.
	store := newMockStore()
	store.existsErr = errors.New("read replica lagging")
	store.existing["wamid.race"] = true
	trigger := &mockTrigger{}
	proc := NewProcessor(store, newMockCache(), trigger, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.race", "15551234567", "", "x"))

	if len(store.inserted) != 0 {
		t.Errorf("expected no insert, got %d", len(store.inserted))
	}
	if len(trigger.calls) != 0 {
		t.Errorf("expected no trigger on duplicate insert, got %d", len(trigger.calls))
	}
	if len(store.touches) != 0 {
		t.Errorf("expected no touch on duplicate insert, got %+v", store.touches)
	}
}

func TestProcessorContactCreateRaceRefetches(t *testing.T) {
	store := newMockStore()
	store.contacts["15551234567"] = &contact.Contact{ID: "ct-winner", Phone: "15551234567", Name: "Jane"}
	store.missFirstFind = true
	proc := NewProcessor(store, newMockCache(), &mockTrigger{}, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.1", "15551234567", "Jane", "hi"))

	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserted))
	}
	if len(store.conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(store.conversations))
	}
	for _, conv := range store.conversations {
		if conv.ContactID != "ct-winner" {
			t.Errorf("conversation bound to %q, want race winner ct-winner", conv.ContactID)
		}
	}
}

func TestProcessorHumanHandlerSkipsTrigger(t *testing.T) {
	store := newMockStore()
	store.contacts["15551234567"] = &contact.Contact{ID: "ct-1", Phone: "15551234567"}
	store.conversations["conv-1"] = &conversation.Conversation{
		ID:        "conv-1",
		ContactID: "ct-1",
		Channel:   whatsapp.Channel,
		Status:    conversation.StatusActive,
		Handler:   conversation.HandlerHuman,
	}
	trigger := &mockTrigger{}
	proc := NewProcessor(store, newMockCache(), trigger, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.1", "15551234567", "", "help"))

	if len(store.inserted) != 1 {
		t.Fatalf("expected message persisted in human mode, got %d", len(store.inserted))
	}
	if len(trigger.calls) != 0 {
		t.Errorf("expected no trigger in human mode, got %d", len(trigger.calls))
	}
}

func TestProcessorNameUpdateAfterPersist(t *testing.T) {
	store := newMockStore()
	store.contacts["15551234567"] = &contact.Contact{ID: "ct-1", Phone: "15551234567", Name: "Jane"}
	proc := NewProcessor(store, newMockCache(), &mockTrigger{}, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.1", "15551234567", "Jane Doe", "hi"))

	if len(store.nameUpdates) != 1 {
		t.Fatalf("expected 1 name update, got %d", len(store.nameUpdates))
	}
	if store.nameUpdates[0].name != "Jane Doe" {
		t.Errorf("name update = %q, want Jane Doe", store.nameUpdates[0].name)
	}
}

func TestProcessorNoNameUpdateWhenSame(t *testing.T) {
	store := newMockStore()
	store.contacts["15551234567"] = &contact.Contact{ID: "ct-1", Phone: "15551234567", Name: "Jane"}
	proc := NewProcessor(store, newMockCache(), &mockTrigger{}, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.1", "15551234567", "Jane", "hi"))

	if len(store.nameUpdates) != 0 {
		t.Errorf("expected no name update, got %+v", store.nameUpdates)
	}
}

func TestProcessorAgentSnapshot(t *testing.T) {
	store := newMockStore()
	store.contacts["15551234567"] = &contact.Contact{ID: "ct-1", Phone: "15551234567"}
	store.conversations["conv-1"] = &conversation.Conversation{
		ID:        "conv-1",
		ContactID: "ct-1",
		Channel:   whatsapp.Channel,
		Handler:   conversation.HandlerAI,
	}
	store.agents["conv-1"] = &agent.Context{ID: "ag-1", Name: "Support Bot", Model: "gpt-4o"}
	trigger := &mockTrigger{}
	proc := NewProcessor(store, newMockCache(), trigger, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.1", "15551234567", "", "hi"))

	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserted))
	}
	if len(store.inserted[0].Metadata.AIAgent) == 0 {
		t.Error("expected agent snapshot in message metadata")
	}
	if len(trigger.calls) != 1 || trigger.calls[0].AIAgent == nil {
		t.Fatalf("expected agent context in trigger payload, got %+v", trigger.calls)
	}
	if trigger.calls[0].AIAgent.ID != "ag-1" {
		t.Errorf("trigger agent = %q, want ag-1", trigger.calls[0].AIAgent.ID)
	}
}

func TestProcessorTriggerNotConfigured(t *testing.T) {
	store := newMockStore()
	trigger := &mockTrigger{err: workflow.ErrNotConfigured}
	proc := NewProcessor(store, newMockCache(), trigger, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.1", "15551234567", "", "hi"))

	if len(store.inserted) != 1 {
		t.Errorf("expected message persisted despite unconfigured trigger, got %d", len(store.inserted))
	}
}

func TestProcessorNoAgentSkipIsNotFailure(t *testing.T) {
	store := newMockStore()
	trigger := &mockTrigger{err: workflow.ErrNoAgent}
	proc := NewProcessor(store, newMockCache(), trigger, nil, 10*time.Minute)

	proc.Process(context.Background(), textPayload("wamid.1", "15551234567", "", "hi"))

	if len(store.inserted) != 1 {
		t.Errorf("expected message persisted despite missing agent, got %d", len(store.inserted))
	}
}

func TestProcessorPlaceholderForMedia(t *testing.T) {
	payload := textPayload("wamid.img", "15551234567", "", "")
	payload.Entry[0].Changes[0].Value.Messages[0].Type = "image"
	payload.Entry[0].Changes[0].Value.Messages[0].Text = nil

	store := newMockStore()
	proc := NewProcessor(store, newMockCache(), &mockTrigger{}, nil, 10*time.Minute)
	proc.Process(context.Background(), payload)

	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserted))
	}
	if store.inserted[0].Content != "[Image]" {
		t.Errorf("content = %q, want [Image]", store.inserted[0].Content)
	}
	if store.inserted[0].ContentType != message.TypeImage {
		t.Errorf("content type = %q, want image", store.inserted[0].ContentType)
	}
}

func TestProcessorIgnoresOtherFields(t *testing.T) {
	store := newMockStore()
	proc := NewProcessor(store, newMockCache(), &mockTrigger{}, nil, 10*time.Minute)

	payload := textPayload("wamid.1", "15551234567", "", "hi")
	payload.Entry[0].Changes[0].Field = "message_template_status_update"
	proc.Process(context.Background(), payload)

	if len(store.inserted) != 0 {
		t.Errorf("expected non-message changes ignored, got %d inserts", len(store.inserted))
	}
}
