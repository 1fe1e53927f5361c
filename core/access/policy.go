package access

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrAccessDenied is the only error Authorize returns. It never says whether the target exists.
var ErrAccessDenied = errors.New("access denied")

// Operation is an action on a patient's records.
type Operation string

const (
	OpCreate    Operation = "create"
	OpRead      Operation = "read"
	OpAmend     Operation = "amend"
	OpGrant     Operation = "grant"
	OpAnalytics Operation = "analytics"
	OpAudit     Operation = "audit"
)

// Scope bounds what a grant lets a doctor do.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// ParseScope defaults an empty scope to read.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeRead:
		return ScopeRead, nil
	case ScopeWrite:
		return ScopeWrite, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// Grant lets a doctor act on one patient's records.
type Grant struct {
	DoctorID  string     `json:"doctorId"`
	PatientID string     `json:"patientId"`
	Scope     Scope      `json:"scope"`
	GrantedAt time.Time  `json:"grantedAt"`
	Active    bool       `json:"active"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Policy holds actors and grants rebuilt from the ledger and answers authorization questions.
type Policy struct {
	mu     sync.RWMutex
	actors map[string]Actor
	grants map[string]map[string]*Grant // patient -> doctor -> grant
}

func NewPolicy() *Policy {
	return &Policy{
		actors: make(map[string]Actor),
		grants: make(map[string]map[string]*Grant),
	}
}

// PutActor records a registration or a role/profile change.
func (p *Policy) PutActor(a Actor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actors[a.ID] = a
}

// Actor looks up an actor by ID.
func (p *Policy) Actor(id string) (Actor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.actors[id]
	return a, ok
}

// HasAdmin reports whether any admin is registered.
func (p *Policy) HasAdmin() bool {
	return p.CountByRole()[RoleAdmin] > 0
}

// CountByRole returns how many actors hold each role.
func (p *Policy) CountByRole() map[Role]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[Role]int, 3)
	for _, a := range p.actors {
		out[a.Role]++
	}
	return out
}

// PutGrant activates (or re-scopes) a doctor's grant on a patient.
func (p *Policy) PutGrant(g Grant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	byDoctor, ok := p.grants[g.PatientID]
	if !ok {
		byDoctor = make(map[string]*Grant)
		p.grants[g.PatientID] = byDoctor
	}
	g.Active = true
	g.RevokedAt = nil
	byDoctor[g.DoctorID] = &g
}

// Revoke deactivates a grant. It reports false if there was no active grant.
func (p *Policy) Revoke(patientID, doctorID string, at time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.grants[patientID][doctorID]
	if !ok || !g.Active {
		return false
	}
	g.Active = false
	g.RevokedAt = &at
	return true
}

// Grants lists every grant a patient has issued, ordered by doctor ID.
func (p *Policy) Grants(patientID string) []Grant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Grant, 0, len(p.grants[patientID]))
	for _, g := range p.grants[patientID] {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DoctorID < out[j].DoctorID })
	return out
}

// ActiveGrant returns the doctor's active grant on the patient, if any.
func (p *Policy) ActiveGrant(patientID, doctorID string) (Grant, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	g, ok := p.grants[patientID][doctorID]
	if !ok || !g.Active {
		return Grant{}, false
	}
	return *g, true
}

// PatientsOf lists the patients that have an active grant for doctorID, sorted.
func (p *Policy) PatientsOf(doctorID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for patientID, byDoctor := range p.grants {
		if g, ok := byDoctor[doctorID]; ok && g.Active {
			out = append(out, patientID)
		}
	}
	sort.Strings(out)
	return out
}

// Authorize decides whether actorID may perform op on patientID's records. patientID is ignored
// for analytics and audit.
func (p *Policy) Authorize(actorID, patientID string, op Operation) error {
	if p.allowed(actorID, patientID, op) {
		return nil
	}
	return fmt.Errorf("%w: %s on %s", ErrAccessDenied, actorID, op)
}

func (p *Policy) allowed(actorID, patientID string, op Operation) bool {
	actor, ok := p.Actor(actorID)
	if !ok {
		return false
	}
	switch actor.Role {
	case RolePatient:
		return (op == OpRead || op == OpGrant) && actorID == patientID
	case RoleDoctor:
		g, ok := p.ActiveGrant(patientID, actorID)
		if !ok {
			return false
		}
		switch op {
		case OpRead:
			return true
		case OpCreate, OpAmend:
			return g.Scope == ScopeWrite
		}
	case RoleAdmin:
		return op == OpAnalytics || op == OpAudit
	}
	return false
}
