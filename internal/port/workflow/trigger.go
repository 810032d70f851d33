// Package workflow defines the downstream automation trigger port.
package workflow

import (
	"context"
	"errors"

	"github.com/relaydesk/relaydesk/internal/domain/agent"
)

// ErrNotConfigured is returned when the workflow runner endpoint or secret
// is not configured. Callers treat it as a skip, not a failure.
var ErrNotConfigured = errors.New("workflow trigger not configured")

// ErrNoAgent is returned when the conversation has no AI agent assigned.
// There is nothing for the runner to do without one, so callers treat it
// as a skip, not a failure.
var ErrNoAgent = errors.New("no ai agent assigned")

// ContactSummary identifies the customer in a trigger payload.
type ContactSummary struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// TriggerRequest is the payload handed to the workflow runner when an
// inbound customer message needs an automated response.
type TriggerRequest struct {
	ConversationID  string         `json:"conversation_id"`
	MessageID       string         `json:"message_id"`
	CustomerMessage string         `json:"customer_message"`
	Channel         string         `json:"channel"`
	Contact         ContactSummary `json:"contact"`
	AIAgent         *agent.Context `json:"ai_agent"`
}

// Trigger fires a workflow run. Implementations must be safe to call from
// a detached goroutine; the caller never blocks the webhook response on it.
type Trigger interface {
	Trigger(ctx context.Context, req TriggerRequest) error
}
