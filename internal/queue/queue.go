package queue

import (
	"context"
)

// Publisher publishes reminder dispatch jobs to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg ReminderMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message. A returned error dead-letters
// the message; nothing is requeued automatically.
type MessageHandler func(ctx context.Context, msg ReminderMessage) error

// Consumer consumes reminder dispatch jobs from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// DispatchQueue carries one message per due reminder.
const DispatchQueue = "reminders.dispatch"

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.reminders.dispatch.
func DLQName(queue string) string {
	return "dlq." + queue
}

// WorkQueueNames returns all work queues.
func WorkQueueNames() []string {
	return []string{DispatchQueue}
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	return []string{DLQName(DispatchQueue)}
}
