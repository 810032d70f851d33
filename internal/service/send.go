package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaydesk/relaydesk/internal/adapter/ws"
	"github.com/relaydesk/relaydesk/internal/domain"
	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/message"
	"github.com/relaydesk/relaydesk/internal/port/broadcast"
	"github.com/relaydesk/relaydesk/internal/port/database"
	"github.com/relaydesk/relaydesk/internal/whatsapp"
)

// Sentinel results for sends that are refused without being errors on the
// provider side. Handlers map both to 200 responses with a flag so the
// workflow runner does not retry.
var (
	// ErrHumanMode means a human agent holds the conversation and
	// automated sends are blocked.
	ErrHumanMode = errors.New("conversation is in human mode")
	// ErrWindowExpired means the 24-hour customer-messaging window has
	// closed and a template message would be required.
	ErrWindowExpired = errors.New("messaging window expired, template required")
)

// TextSender sends free-form text messages on the provider channel.
type TextSender interface {
	SendText(ctx context.Context, to, text string) (*whatsapp.SendResponse, error)
}

// SendRequest is an outbound send. ConversationID is optional; without it
// the message is sent but not persisted. SkipHandlerCheck lets a human
// agent send into a conversation they have taken over.
type SendRequest struct {
	To               string `json:"to"`
	Message          string `json:"message"`
	ConversationID   string `json:"conversation_id,omitempty"`
	SkipHandlerCheck bool   `json:"skip_handler_check,omitempty"`
}

// SendService sends outbound text messages through the provider API and
// records them on the conversation.
type SendService struct {
	store  database.Store
	sender TextSender
	hub    broadcast.Broadcaster
}

// NewSendService creates a SendService.
func NewSendService(store database.Store, sender TextSender, hub broadcast.Broadcaster) *SendService {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &SendService{store: store, sender: sender, hub: hub}
}

// Send validates the conversation state, delivers the text via the
// provider and persists the outbound message. The provider message ID is
// returned. Persistence failures after a successful delivery are logged,
// not returned; the message is already on the wire.
func (s *SendService) Send(ctx context.Context, req SendRequest) (string, error) {
	if req.To == "" || req.Message == "" {
		return "", fmt.Errorf("%w: to and message are required", domain.ErrValidation)
	}

	var conv *conversation.Conversation
	if req.ConversationID != "" {
		var err error
		conv, err = s.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return "", fmt.Errorf("get conversation: %w", err)
		}

		if !req.SkipHandlerCheck && conv.Handler == conversation.HandlerHuman {
			slog.Info("send blocked, conversation in human mode", "conversation_id", conv.ID)
			return "", ErrHumanMode
		}

		if !conv.WithinMessagingWindow(time.Now()) {
			slog.Info("send blocked, messaging window expired", "conversation_id", conv.ID)
			return "", ErrWindowExpired
		}
	}

	resp, err := s.sender.SendText(ctx, req.To, req.Message)
	if err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}
	providerID := resp.MessageID()

	if conv != nil {
		msg, err := s.store.InsertMessage(ctx, message.InsertRequest{
			ConversationID: conv.ID,
			Direction:      message.Outbound,
			Content:        req.Message,
			ContentType:    message.TypeText,
			Sender:         message.SenderAgent,
			ProviderID:     providerID,
		})
		if err != nil {
			slog.Error("store outbound message failed", "conversation_id", conv.ID, "error", err)
			return providerID, nil
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
	}

	slog.Info("outbound message sent", "to", req.To, "provider_id", providerID)
	return providerID, nil
}
