package auth

import (
	"time"

	"ehrchain/core/audit"
)

// Authenticator verifies bearer tokens and records the outcome in the audit log.
type Authenticator struct {
	Tokens      *Tokens
	AuditLogger audit.Logger
}

// Authenticate returns the claims of a valid token.
func (a *Authenticator) Authenticate(token string) (*Claims, error) {
	claims, err := a.Tokens.Verify(token)
	if err != nil {
		a.AuditLogger.LogEvent(audit.Event{
			Timestamp: time.Now().UTC(),
			EventType: audit.EventTokenVerify,
			Result:    audit.ResultFailure,
			Reason:    err.Error(),
		})
		return nil, err
	}
	return claims, nil
}
