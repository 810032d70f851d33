package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaydesk/relaydesk/internal/adapter/ws"
	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/message"
	"github.com/relaydesk/relaydesk/internal/port/broadcast"
	"github.com/relaydesk/relaydesk/internal/port/database"
	"github.com/relaydesk/relaydesk/internal/port/messagequeue"
)

// ErrRejected means an AI response arrived for a conversation a human has
// taken over. Handlers return it as a 200 with a rejected flag so the
// workflow runner drops the response instead of retrying.
var ErrRejected = errors.New("ai response rejected, human takeover active")

// UnassignedAgent clears the assigned agent on takeover.
const UnassignedAgent = "unassigned"

// TakeoverService handles the conversation handoff between automation and
// human agents, and records AI-generated replies.
type TakeoverService struct {
	store database.Store
	hub   broadcast.Broadcaster
	queue messagequeue.Queue
}

// NewTakeoverService creates a TakeoverService. queue may be set later.
func NewTakeoverService(store database.Store, hub broadcast.Broadcaster) *TakeoverService {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &TakeoverService{store: store, hub: hub}
}

// SetQueue attaches a message bus for handler-change events.
func (s *TakeoverService) SetQueue(q messagequeue.Queue) {
	s.queue = q
}

// AIResponse persists an AI-generated reply on a conversation. The
// handler mode is read fresh: a takeover that happened while the workflow
// was running rejects the response.
func (s *TakeoverService) AIResponse(ctx context.Context, conversationID, content string, extra map[string]any) (*message.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if conv.Handler != conversation.HandlerAI {
		slog.Info("ai response rejected", "conversation_id", conv.ID, "handler", conv.Handler)
		return nil, ErrRejected
	}

	msg, err := s.store.InsertMessage(ctx, message.InsertRequest{
		ConversationID: conv.ID,
		Direction:      message.Outbound,
		Content:        content,
		ContentType:    message.TypeText,
		Sender:         message.SenderAI,
		Metadata:       message.Metadata{Extra: extra},
	})
	if err != nil {
		return nil, fmt.Errorf("insert ai response: %w", err)
	}

	if err := s.store.TouchConversation(ctx, conv.ID, time.Now().UTC(), false); err != nil {
		slog.Error("touch conversation failed", "conversation_id", conv.ID, "error", err)
	}

	s.hub.BroadcastEvent(ctx, ws.EventMessageCreated, ws.MessageCreatedEvent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		ContactID:      conv.ContactID,
		Direction:      string(msg.Direction),
		Content:        msg.Content,
		ContentType:    string(msg.ContentType),
		SenderType:     string(msg.Sender),
		CreatedAt:      msg.CreatedAt,
	})

	slog.Info("ai response saved", "conversation_id", conv.ID, "message_id", msg.ID)
	return msg, nil
}

// HumanTakeover flips a conversation to human handling and assigns an
// agent. agentID "unassigned" (or empty) clears the assignment.
func (s *TakeoverService) HumanTakeover(ctx context.Context, conversationID, agentID, reason string) error {
	if agentID == UnassignedAgent {
		agentID = ""
	}

	if err := s.store.SetConversationHandler(ctx, conversationID, conversation.HandlerHuman, agentID); err != nil {
		return fmt.Errorf("set conversation handler: %w", err)
	}

	event := ws.ConversationUpdatedEvent{
		ConversationID: conversationID,
		HandlerType:    string(conversation.HandlerHuman),
	}
	s.hub.BroadcastEvent(ctx, ws.EventConversationUpdated, event)

	if s.queue != nil {
		data, err := json.Marshal(event)
		if err != nil {
			slog.Error("marshal conversation event", "error", err)
		} else if err := s.queue.Publish(ctx, messagequeue.SubjectConversationUpdated, data); err != nil {
			slog.Warn("publish conversation event failed", "error", err)
		}
	}

	slog.Info("human takeover",
		"conversation_id", conversationID,
		"agent_id", agentID,
		"reason", reason)
	return nil
}
