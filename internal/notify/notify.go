// Package notify abstracts the outbound notification transport. The real
// email/push delivery pipeline is an external system; the service only needs
// a fire-and-forget interface, and failures must never fail the triggering
// operation.
package notify

import (
	"context"
	"log/slog"
)

// Event identifies what happened to a complaint.
type Event string

const (
	EventCreated       Event = "complaint.created"
	EventStatusChanged Event = "complaint.status_changed"
	EventAssigned      Event = "complaint.assigned"
	EventNoteAdded     Event = "complaint.note_added"
)

// Notification is one message to one recipient.
type Notification struct {
	Event       Event
	Recipient   string // user ID of the recipient
	ComplaintID string
	Reference   string
	Detail      string
}

// Notifier delivers notifications. Implementations must not block the caller
// beyond a quick handoff.
type Notifier interface {
	Send(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the structured log. Stands in for the
// external delivery transport in development and tests.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Send logs the notification.
func (l *LogNotifier) Send(_ context.Context, n Notification) {
	slog.Info("notification",
		"event", n.Event,
		"recipient", n.Recipient,
		"complaint", n.ComplaintID,
		"reference", n.Reference,
		"detail", n.Detail,
	)
}
