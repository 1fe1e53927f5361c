package audit

import (
	"time"

	"github.com/rs/zerolog"
)

// Event types recorded by the node.
const (
	EventAuthorization  = "Authorization"
	EventTokenVerify    = "TokenVerification"
	EventLogin          = "Login"
	EventRegistration   = "Registration"
	EventGrant          = "Grant"
	EventRevoke         = "Revoke"
	EventAppend         = "LedgerAppend"
	EventVerification   = "ChainVerification"
	EventProfileUpdate  = "ProfileUpdate"
	EventPasswordChange = "PasswordChange"
)

// Results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event represents a verification or authorization event.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"eventType"` // e.g. "Authorization", "LedgerAppend"
	EntityID  string            `json:"entityId"`  // actor ID or block index
	Result    string            `json:"result"`    // "success" or "failure"
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"` // never carries record content
}

// Logger is the interface for logging audit events.
type Logger interface {
	LogEvent(event Event)
}

// ZerologLogger writes audit events as structured log lines.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger returns a Logger that writes to log.
func NewZerologLogger(log zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: log.With().Str("component", "audit").Logger()}
}

func (l *ZerologLogger) LogEvent(event Event) {
	e := l.log.Info()
	if event.Result == ResultFailure {
		e = l.log.Warn()
	}
	e.Time("at", event.Timestamp).
		Str("event", event.EventType).
		Str("entity", event.EntityID).
		Str("result", event.Result).
		Str("reason", event.Reason).
		Interface("metadata", event.Metadata).
		Msg("audit")
}

// Multi fans an event out to several loggers.
type Multi []Logger

func (m Multi) LogEvent(event Event) {
	for _, l := range m {
		l.LogEvent(event)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) LogEvent(Event) {}
