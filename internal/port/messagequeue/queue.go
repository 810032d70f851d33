// Package messagequeue defines the message bus port.
package messagequeue

import "context"

// Subjects published by the ingestion and messaging services.
const (
	// SubjectMessageCreated carries persisted message events.
	SubjectMessageCreated = "messages.created"
	// SubjectConversationUpdated carries handler-mode changes.
	SubjectConversationUpdated = "conversations.updated"
)

// Handler processes one message from a subject.
type Handler func(subject string, data []byte) error

// Queue is the port for publish/subscribe messaging between services.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)
	Close() error
}
