package ehr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ehrchain/core/access"
	"ehrchain/core/audit"
	"ehrchain/core/block"
	"ehrchain/core/wallet"
)

// RegisterRequest describes a new actor.
type RegisterRequest struct {
	ID        string         `json:"id,omitempty"`
	Role      string         `json:"role"`
	Name      string         `json:"name"`
	Password  string         `json:"password"`
	Profile   access.Profile `json:"profile"`
	Algorithm string         `json:"algorithm,omitempty"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Actor     access.Actor `json:"actor"`
}

// RegisterActor registers a patient or doctor. Admins can only be registered by an existing
// admin (requesterID), who signs the actor event, or through BootstrapAdmin. Otherwise the new
// actor's key signs its own actor event.
func (s *Service) RegisterActor(ctx context.Context, requesterID string, req RegisterRequest) (access.Actor, error) {
	role, err := access.ParseRole(req.Role)
	if err != nil {
		return access.Actor{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if role == access.RoleAdmin {
		if err := s.authorize(requesterID, "", access.OpAudit); err != nil {
			return access.Actor{}, err
		}
		return s.register(ctx, role, req, requesterID)
	}
	return s.register(ctx, role, req, "")
}

// BootstrapAdmin registers the first admin. It does nothing once any admin exists or when id is
// already registered.
func (s *Service) BootstrapAdmin(ctx context.Context, id, password string) error {
	if s.policy.HasAdmin() {
		return nil
	}
	if a, ok := s.policy.Actor(id); ok {
		s.log.Warn().Str("actor", id).Str("role", string(a.Role)).Msg("bootstrap admin id is taken and no admin exists")
		return nil
	}
	_, err := s.register(ctx, access.RoleAdmin, RegisterRequest{ID: id, Name: id, Password: password}, "")
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.log.Info().Str("admin", id).Msg("bootstrap admin registered")
	return nil
}

// register creates the actor's wallet and appends its actor event, signed by signerID or, when
// signerID is empty, by the new actor.
func (s *Service) register(ctx context.Context, role access.Role, req RegisterRequest, signerID string) (access.Actor, error) {
	if err := ctx.Err(); err != nil {
		return access.Actor{}, err
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(req.Name) == "" {
		return access.Actor{}, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	alg := s.keyAlg
	if req.Algorithm != "" {
		var err error
		if alg, err = wallet.NormalizeAlgorithm(req.Algorithm); err != nil {
			return access.Actor{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	hash, err := access.HashPassword(req.Password)
	if err != nil {
		return access.Actor{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if !s.reserve(id) {
		return access.Actor{}, fmt.Errorf("%w: %s", ErrDuplicateActor, id)
	}
	defer s.release(id)

	w, err := wallet.Generate(id, alg)
	if err != nil {
		return access.Actor{}, err
	}
	if err := s.keys.Store(w); err != nil {
		return access.Actor{}, fmt.Errorf("store wallet: %w", err)
	}
	signer, err := w.Signer()
	if err != nil {
		return access.Actor{}, err
	}
	if signerID == "" {
		signerID = id
	} else if signer, err = s.keys.Signer(signerID); err != nil {
		return access.Actor{}, err
	}
	actor := access.Actor{
		ID:           id,
		Role:         role,
		Name:         strings.TrimSpace(req.Name),
		Profile:      req.Profile,
		PublicKey:    w.PublicKey,
		Algorithm:    w.Algorithm,
		PasswordHash: hash,
		RegisteredAt: s.now(),
	}
	payload, err := s.codec.Encode(block.KindActor, actor)
	if err != nil {
		return access.Actor{}, err
	}
	if _, err := s.appendEvent(ctx, block.KindActor, payload, signerID, signer); err != nil {
		return access.Actor{}, err
	}
	s.audit.LogEvent(audit.Event{
		Timestamp: s.now(),
		EventType: audit.EventRegistration,
		EntityID:  id,
		Result:    audit.ResultSuccess,
		Metadata:  map[string]string{"role": string(role)},
	})
	return actor.Public(), nil
}

// reserve claims id for a registration. It fails if id is registered or being registered.
func (s *Service) reserve(id string) bool {
	s.reservedMu.Lock()
	defer s.reservedMu.Unlock()
	if _, exists := s.policy.Actor(id); exists || s.reserved[id] {
		return false
	}
	s.reserved[id] = true
	return true
}

func (s *Service) release(id string) {
	s.reservedMu.Lock()
	defer s.reservedMu.Unlock()
	delete(s.reserved, id)
}

// ChangeRole records a role change for targetID, signed by the admin making it. The last admin
// cannot be demoted.
func (s *Service) ChangeRole(ctx context.Context, adminID, targetID, role string) (access.Actor, error) {
	if err := s.authorize(adminID, "", access.OpAudit); err != nil {
		return access.Actor{}, err
	}
	newRole, err := access.ParseRole(role)
	if err != nil {
		return access.Actor{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	s.actorMu.Lock()
	defer s.actorMu.Unlock()
	target, ok := s.policy.Actor(targetID)
	if !ok {
		return access.Actor{}, fmt.Errorf("%w: unknown actor %s", ErrInvalidRequest, targetID)
	}
	if target.Role == access.RoleAdmin && newRole != access.RoleAdmin && s.policy.CountByRole()[access.RoleAdmin] <= 1 {
		return access.Actor{}, fmt.Errorf("%w: %s is the last admin", ErrInvalidRequest, targetID)
	}
	target.Role = newRole
	if err := s.putActor(ctx, target, adminID); err != nil {
		return access.Actor{}, err
	}
	return target.Public(), nil
}

// ProfileUpdate carries the fields an actor may change about themselves. Empty fields are kept.
type ProfileUpdate struct {
	Name    string          `json:"name,omitempty"`
	Profile *access.Profile `json:"profile,omitempty"`
}

// UpdateProfile records a self-signed change to the actor's name or profile.
func (s *Service) UpdateProfile(ctx context.Context, actorID string, upd ProfileUpdate) (access.Actor, error) {
	s.actorMu.Lock()
	defer s.actorMu.Unlock()
	a, ok := s.policy.Actor(actorID)
	if !ok {
		return access.Actor{}, fmt.Errorf("%w: %s", access.ErrAccessDenied, actorID)
	}
	if name := strings.TrimSpace(upd.Name); name != "" {
		a.Name = name
	}
	if upd.Profile != nil {
		a.Profile = *upd.Profile
	}
	if err := s.putActor(ctx, a, actorID); err != nil {
		return access.Actor{}, err
	}
	s.audit.LogEvent(audit.Event{
		Timestamp: s.now(),
		EventType: audit.EventProfileUpdate,
		EntityID:  actorID,
		Result:    audit.ResultSuccess,
	})
	return a.Public(), nil
}

// ChangePassword replaces the actor's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, actorID, current, next string) error {
	s.actorMu.Lock()
	defer s.actorMu.Unlock()
	ev := audit.Event{Timestamp: s.now(), EventType: audit.EventPasswordChange, EntityID: actorID, Result: audit.ResultSuccess}
	a, ok := s.policy.Actor(actorID)
	if !ok {
		a = access.Actor{}
	}
	if err := a.CheckPassword(current); err != nil {
		ev.Result, ev.Reason = audit.ResultFailure, err.Error()
		s.audit.LogEvent(ev)
		return err
	}
	hash, err := access.HashPassword(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	a.PasswordHash = hash
	if err := s.putActor(ctx, a, actorID); err != nil {
		return err
	}
	s.audit.LogEvent(ev)
	return nil
}

// putActor appends an actor event for a, signed by signerID. Callers hold actorMu.
func (s *Service) putActor(ctx context.Context, a access.Actor, signerID string) error {
	signer, err := s.keys.Signer(signerID)
	if err != nil {
		return err
	}
	payload, err := s.codec.Encode(block.KindActor, a)
	if err != nil {
		return err
	}
	_, err = s.appendEvent(ctx, block.KindActor, payload, signerID, signer)
	return err
}

// Login checks a password and issues a session token. Unknown IDs and wrong passwords fail the
// same way.
func (s *Service) Login(ctx context.Context, id, password string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	ev := audit.Event{Timestamp: s.now(), EventType: audit.EventLogin, EntityID: id, Result: audit.ResultSuccess}
	actor, ok := s.policy.Actor(id)
	if !ok {
		actor = access.Actor{}
	}
	if err := actor.CheckPassword(password); err != nil {
		ev.Result, ev.Reason = audit.ResultFailure, err.Error()
		s.audit.LogEvent(ev)
		return Session{}, err
	}
	token, exp, err := s.tokens.Issue(actor.ID, string(actor.Role))
	if err != nil {
		return Session{}, err
	}
	s.audit.LogEvent(ev)
	return Session{Token: token, ExpiresAt: exp, Actor: actor.Public()}, nil
}

// Actor returns targetID's public profile. Actors see themselves; admins see everyone.
func (s *Service) Actor(ctx context.Context, requesterID, targetID string) (access.Actor, error) {
	if requesterID != targetID {
		if err := s.authorize(requesterID, "", access.OpAudit); err != nil {
			return access.Actor{}, err
		}
	}
	a, ok := s.policy.Actor(targetID)
	if !ok {
		return access.Actor{}, fmt.Errorf("%w: unknown actor %s", ErrInvalidRequest, targetID)
	}
	return a.Public(), nil
}
