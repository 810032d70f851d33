// Package conversation defines the conversation domain model.
package conversation

import "time"

// Status of a conversation.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Handler selects who is currently responding on a conversation.
type Handler string

const (
	// HandlerAI means automated processing is engaged: inbound customer
	// messages are forwarded to the workflow runner.
	HandlerAI Handler = "ai"
	// HandlerHuman means a human agent has taken over; automation is paused.
	HandlerHuman Handler = "human"
)

// Conversation is an ongoing thread between one contact and the system on
// one channel. At most one conversation exists per (contact, channel).
type Conversation struct {
	ID                    string     `json:"id"`
	ContactID             string     `json:"contact_id"`
	Channel               string     `json:"channel"`
	Status                Status     `json:"status"`
	Handler               Handler    `json:"handler_type"`
	AgentID               string     `json:"ai_agent_id,omitempty"`
	AssignedAgentID       string     `json:"assigned_agent_id,omitempty"`
	LastMessageAt         time.Time  `json:"last_message_at"`
	LastCustomerMessageAt *time.Time `json:"last_customer_message_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// MessagingWindow is the period after the last customer message during
// which the channel provider allows free-form outbound messages.
const MessagingWindow = 24 * time.Hour

// WithinMessagingWindow reports whether an outbound free-form message is
// still allowed. A conversation with no customer message yet is outside
// the window (a template would be required).
func (c *Conversation) WithinMessagingWindow(now time.Time) bool {
	if c.LastCustomerMessageAt == nil {
		return false
	}
	return now.Sub(*c.LastCustomerMessageAt) < MessagingWindow
}
