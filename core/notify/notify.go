package notify

import (
	"github.com/rs/zerolog"
)

// NotificationType represents who a notification is for.
type NotificationType string

const (
	NotifyAdmin NotificationType = "admin"
	NotifyUser  NotificationType = "user"
)

// Notification holds the data for a notification event.
type Notification struct {
	Type      NotificationType
	Recipient string // actor ID, or "admin"
	Subject   string // e.g. "access_denied", "integrity_failure"
	EntityID  string // actor or block the notification is about
	Reason    string
	Attempt   int
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a zerolog logger.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (l *LogNotifier) Notify(n Notification) {
	l.log.Warn().
		Str("type", string(n.Type)).
		Str("to", n.Recipient).
		Str("subject", n.Subject).
		Str("entity", n.EntityID).
		Int("attempt", n.Attempt).
		Msg(n.Reason)
}

// AccessDenied tells admins about a rejected request.
func AccessDenied(n Notifier, actorID, reason string) {
	n.Notify(Notification{
		Type:      NotifyAdmin,
		Recipient: string(NotifyAdmin),
		Subject:   "access_denied",
		EntityID:  actorID,
		Reason:    reason,
	})
}

// IntegrityFailure tells admins that verification found a broken block.
func IntegrityFailure(n Notifier, index, reason string) {
	n.Notify(Notification{
		Type:      NotifyAdmin,
		Recipient: string(NotifyAdmin),
		Subject:   "integrity_failure",
		EntityID:  index,
		Reason:    reason,
	})
}

// Nop drops notifications.
type Nop struct{}

func (Nop) Notify(Notification) {}
