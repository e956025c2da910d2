// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue. Returning an error
// asks the queue to redeliver the message later.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects of post-commit tasks.
const (
	// SubjectMediaMigrate asks a worker to move inline media of a row to
	// object storage.
	SubjectMediaMigrate = "tasks.media.migrate"
	// SubjectInvitationEmail asks a worker to send an invitation email.
	SubjectInvitationEmail = "tasks.invitations.email"
)

// HeaderRequestID carries the originating request ID across the queue.
const HeaderRequestID = "X-Request-ID"
