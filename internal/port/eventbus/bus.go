// Package eventbus defines the port for publishing task lifecycle events.
package eventbus

import "context"

// Publisher publishes task lifecycle events for external consumers.
// Publishing is best-effort: the task engine never fails an operation
// because an event could not be delivered.
type Publisher interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close shuts down the publisher connection.
	Close() error
}

// Subject constants for task lifecycle events.
const (
	SubjectTaskCreated   = "tasks.created"
	SubjectTaskCompleted = "tasks.completed"
	SubjectTaskFailed    = "tasks.failed"
	SubjectTaskCancelled = "tasks.cancelled"
)
