// Package contact defines the contact domain model.
package contact

import "time"

// Contact is a unique external party reachable on a messaging channel.
// Phone is stored normalized (digits only, no '+', spaces or dashes) and
// is unique across all contacts.
type Contact struct {
	ID        string         `json:"id"`
	Phone     string         `json:"phone"`
	Name      string         `json:"name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a contact.
type CreateRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}
