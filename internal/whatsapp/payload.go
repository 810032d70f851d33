// Package whatsapp implements the WhatsApp Cloud API wire formats:
// inbound webhook payloads, signature verification and the outbound send
// client.
package whatsapp

import "encoding/json"

// Channel is the channel tag used for conversations created from this
// provider.
const Channel = "whatsapp"

// FieldMessages is the change field carrying message events. All other
// change fields are ignored.
const FieldMessages = "messages"

// Payload is the top-level webhook body: { object, entry: [...] }.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes delivered for one business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries one field update and its value object.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value holds the messages, contact profiles and delivery statuses of a
// "messages" change.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

// Metadata identifies the receiving business phone number.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender profile attached to a messages change.
type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

// Profile carries the sender's display name.
type Profile struct {
	Name string `json:"name"`
}

// Message is one inbound message event. The type-specific payloads are
// kept raw; only Text is decoded, everything else maps to a placeholder.
type Message struct {
	From      string          `json:"from"`
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Text      *Text           `json:"text,omitempty"`
	Image     json.RawMessage `json:"image,omitempty"`
	Audio     json.RawMessage `json:"audio,omitempty"`
	Video     json.RawMessage `json:"video,omitempty"`
	Document  json.RawMessage `json:"document,omitempty"`
	Sticker   json.RawMessage `json:"sticker,omitempty"`
	Errors    json.RawMessage `json:"errors,omitempty"`
}

// Text is the body of a text message.
type Text struct {
	Body string `json:"body"`
}

// Status is a delivery status update (sent/delivered/read/failed).
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// SenderName returns the profile name the payload carries for the given
// sender wa_id, or "" when none is present.
func (v *Value) SenderName(waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}
