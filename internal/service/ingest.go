// Package service contains the application services: webhook ingestion,
// outbound sending and conversation handoff.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaydesk/relaydesk/internal/adapter/otel"
	"github.com/relaydesk/relaydesk/internal/adapter/ws"
	"github.com/relaydesk/relaydesk/internal/domain"
	"github.com/relaydesk/relaydesk/internal/domain/agent"
	"github.com/relaydesk/relaydesk/internal/domain/contact"
	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/message"
	"github.com/relaydesk/relaydesk/internal/port/broadcast"
	"github.com/relaydesk/relaydesk/internal/port/cache"
	"github.com/relaydesk/relaydesk/internal/port/database"
	"github.com/relaydesk/relaydesk/internal/port/messagequeue"
	"github.com/relaydesk/relaydesk/internal/port/workflow"
	"github.com/relaydesk/relaydesk/internal/whatsapp"
)

// Processor turns verified webhook payloads into persisted messages and
// automation triggers. All of its work happens after the webhook response
// has been written; nothing here may reach the HTTP reply.
type Processor struct {
	store    database.Store
	cache    cache.Cache
	trigger  workflow.Trigger
	hub      broadcast.Broadcaster
	queue    messagequeue.Queue
	metrics  *otel.Metrics
	dedupTTL time.Duration
}

// NewProcessor creates a Processor. queue and metrics may be nil.
func NewProcessor(store database.Store, c cache.Cache, trigger workflow.Trigger, hub broadcast.Broadcaster, dedupTTL time.Duration) *Processor {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &Processor{
		store:    store,
		cache:    c,
		trigger:  trigger,
		hub:      hub,
		dedupTTL: dedupTTL,
	}
}

// SetQueue attaches a message bus for post-persist event publication.
func (p *Processor) SetQueue(q messagequeue.Queue) {
	p.queue = q
}

// SetMetrics attaches metric instruments.
func (p *Processor) SetMetrics(m *otel.Metrics) {
	p.metrics = m
}

// Process walks a webhook payload and handles every message event in it.
// Changes for fields other than "messages" are skipped. Errors are logged
// per message; one bad message never stops the rest of the batch.
func (p *Processor) Process(ctx context.Context, payload *whatsapp.Payload) {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != whatsapp.FieldMessages {
				slog.Debug("skipping webhook change", "field", change.Field)
				continue
			}

			value := change.Value
			for i := range value.Messages {
				if err := p.processMessage(ctx, &value, &value.Messages[i]); err != nil {
					slog.Error("process inbound message failed",
						"provider_id", value.Messages[i].ID, "error", err)
				}
			}
			for _, st := range value.Statuses {
				slog.Info("delivery status",
					"provider_id", st.ID,
					"status", st.Status,
					"recipient", st.RecipientID,
					"timestamp", st.Timestamp)
			}
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, value *whatsapp.Value, msg *whatsapp.Message) error {
	ctx, span := otel.StartProcessSpan(ctx, msg.ID, whatsapp.Channel)
	defer span.End()
	start := time.Now()

	if p.metrics != nil {
		p.metrics.MessagesReceived.Add(ctx, 1)
	}

	phone := whatsapp.NormalizePhone(msg.From)
	if phone == "" {
		return fmt.Errorf("message %s has no sender phone", msg.ID)
	}
	name := value.SenderName(msg.From)

	ct, err := p.resolveContact(ctx, phone, name)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}

	conv, err := p.resolveConversation(ctx, ct.ID)
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}

	if p.alreadyProcessed(ctx, msg.ID) {
		if p.metrics != nil {
			p.metrics.DuplicatesSkipped.Add(ctx, 1)
		}
		slog.Info("duplicate message skipped", "provider_id", msg.ID)
		return nil
	}

	// Snapshot the agent configuration before persisting so the workflow
	// runner sees exactly what was in effect when the message arrived.
	agentCtx, err := p.store.GetConversationAgent(ctx, conv.ID)
	if err != nil {
		slog.Warn("load conversation agent failed", "conversation_id", conv.ID, "error", err)
		agentCtx = nil
	}

	persisted, err := p.persistMessage(ctx, conv.ID, msg, agentCtx)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			if p.metrics != nil {
				p.metrics.DuplicatesSkipped.Add(ctx, 1)
			}
			p.markProcessed(ctx, msg.ID)
			slog.Info("duplicate message skipped on insert", "provider_id", msg.ID)
			return nil
		}
		return fmt.Errorf("persist message: %w", err)
	}
	p.markProcessed(ctx, msg.ID)

	if p.metrics != nil {
		p.metrics.MessagesPersisted.Add(ctx, 1)
		p.metrics.ProcessDuration.Record(ctx, time.Since(start).Seconds())
	}

	now := time.Now().UTC()
	if err := p.store.TouchConversation(ctx, conv.ID, now, true); err != nil {
		slog.Error("touch conversation failed", "conversation_id", conv.ID, "error", err)
	}

	// Profile name updates ride along with messages; apply only after the
	// message made it in.
	if name != "" && name != ct.Name {
		if err := p.store.UpdateContactName(ctx, ct.ID, name); err != nil {
			slog.Warn("update contact name failed", "contact_id", ct.ID, "error", err)
		}
	}

	p.publishCreated(ctx, ct, persisted)

	if conv.Handler == conversation.HandlerAI {
		p.fireTrigger(ctx, conv, ct, persisted, agentCtx)
	} else {
		if p.metrics != nil {
			p.metrics.TriggersSkipped.Add(ctx, 1)
		}
		slog.Info("automation skipped, human handler active", "conversation_id", conv.ID)
	}

	slog.Info("inbound message processed",
		"message_id", persisted.ID,
		"conversation_id", conv.ID,
		"contact_id", ct.ID,
		"content_type", persisted.ContentType,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// resolveContact finds or creates the contact for a normalized phone.
// A concurrent create losing the phone uniqueness race re-fetches the winner.
func (p *Processor) resolveContact(ctx context.Context, phone, name string) (*contact.Contact, error) {
	ct, err := p.store.FindContactByPhone(ctx, phone)
	if err == nil {
		return ct, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	ct, err = p.store.CreateContact(ctx, contact.CreateRequest{Phone: phone, Name: name})
	if err == nil {
		return ct, nil
	}
	if errors.Is(err, domain.ErrDuplicate) {
		return p.store.FindContactByPhone(ctx, phone)
	}
	return nil, err
}

// resolveConversation finds or creates the single conversation for a
// contact on this channel, racing the same way resolveContact does.
func (p *Processor) resolveConversation(ctx context.Context, contactID string) (*conversation.Conversation, error) {
	conv, err := p.store.FindConversation(ctx, contactID, whatsapp.Channel)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	conv, err = p.store.CreateConversation(ctx, contactID, whatsapp.Channel)
	if err == nil {
		return conv, nil
	}
	if errors.Is(err, domain.ErrDuplicate) {
		return p.store.FindConversation(ctx, contactID, whatsapp.Channel)
	}
	return nil, err
}

// alreadyProcessed is a pre-insert optimization. A cache or store miss here
// is never trusted as proof of newness; the unique constraint on the
// provider message ID is the authority. A store read error allows
// processing to proceed for the same reason.
func (p *Processor) alreadyProcessed(ctx context.Context, providerID string) bool {
	if p.cache != nil {
		if _, ok, _ := p.cache.Get(ctx, dedupKey(providerID)); ok {
			return true
		}
	}

	exists, err := p.store.MessageExists(ctx, providerID)
	if err != nil {
		slog.Warn("dedup pre-check failed, proceeding", "provider_id", providerID, "error", err)
		return false
	}
	if exists {
		p.markProcessed(ctx, providerID)
	}
	return exists
}

func (p *Processor) markProcessed(ctx context.Context, providerID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, dedupKey(providerID), []byte{1}, p.dedupTTL); err != nil {
		slog.Debug("dedup cache set failed", "provider_id", providerID, "error", err)
	}
}

func dedupKey(providerID string) string {
	return "dedup:" + providerID
}

func (p *Processor) persistMessage(ctx context.Context, conversationID string, msg *whatsapp.Message, agentCtx *agent.Context) (*message.Message, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal raw message: %w", err)
	}

	var agentSnapshot json.RawMessage
	if agentCtx != nil {
		agentSnapshot, err = json.Marshal(agentCtx)
		if err != nil {
			return nil, fmt.Errorf("marshal agent snapshot: %w", err)
		}
	}

	ct := msg.ContentType()
	return p.store.InsertMessage(ctx, message.InsertRequest{
		ConversationID: conversationID,
		Direction:      message.Inbound,
		Content:        whatsapp.ExtractContent(msg),
		ContentType:    ct,
		Sender:         message.SenderCustomer,
		ProviderID:     msg.ID,
		Metadata: message.Metadata{
			Timestamp:  msg.Timestamp,
			RawMessage: raw,
			AIAgent:    agentSnapshot,
		},
	})
}

func (p *Processor) publishCreated(ctx context.Context, ct *contact.Contact, msg *message.Message) {
	event := ws.MessageCreatedEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		ContactID:      ct.ID,
		Direction:      string(msg.Direction),
		Content:        msg.Content,
		ContentType:    string(msg.ContentType),
		SenderType:     string(msg.Sender),
		CreatedAt:      msg.CreatedAt,
	}

	p.hub.BroadcastEvent(ctx, ws.EventMessageCreated, event)

	if p.queue != nil {
		data, err := json.Marshal(event)
		if err != nil {
			slog.Error("marshal message event", "error", err)
			return
		}
		if err := p.queue.Publish(ctx, messagequeue.SubjectMessageCreated, data); err != nil {
			slog.Warn("publish message event failed", "error", err)
		}
	}
}

// fireTrigger hands the message to the workflow runner. Failures are
// logged and swallowed; the message is already persisted and the customer
// already got their webhook 200.
func (p *Processor) fireTrigger(ctx context.Context, conv *conversation.Conversation, ct *contact.Contact, msg *message.Message, agentCtx *agent.Context) {
	ctx, span := otel.StartTriggerSpan(ctx, conv.ID)
	defer span.End()

	err := p.trigger.Trigger(ctx, workflow.TriggerRequest{
		ConversationID:  conv.ID,
		MessageID:       msg.ID,
		CustomerMessage: msg.Content,
		Channel:         conv.Channel,
		Contact: workflow.ContactSummary{
			ID:    ct.ID,
			Phone: ct.Phone,
			Name:  ct.Name,
		},
		AIAgent: agentCtx,
	})
	switch {
	case err == nil:
		if p.metrics != nil {
			p.metrics.TriggersFired.Add(ctx, 1)
		}
		slog.Info("automation triggered", "conversation_id", conv.ID, "message_id", msg.ID)
	case errors.Is(err, workflow.ErrNotConfigured):
		if p.metrics != nil {
			p.metrics.TriggersSkipped.Add(ctx, 1)
		}
		slog.Info("automation not configured, skipping", "conversation_id", conv.ID)
	case errors.Is(err, workflow.ErrNoAgent):
		if p.metrics != nil {
			p.metrics.TriggersSkipped.Add(ctx, 1)
		}
		slog.Info("no ai agent assigned, skipping automation", "conversation_id", conv.ID)
	default:
		if p.metrics != nil {
			p.metrics.TriggersFailed.Add(ctx, 1)
		}
		slog.Error("automation trigger failed", "conversation_id", conv.ID, "error", err)
	}
}
