package ehr

import (
	"context"
	"fmt"

	"ehrchain/core/access"
	"ehrchain/core/audit"
	"ehrchain/core/block"
)

// GrantAccess lets doctorID act on patientID's records within scope. Only the patient can grant.
// Granting again replaces the scope of an existing grant.
func (s *Service) GrantAccess(ctx context.Context, patientID, doctorID, scope string) (access.Grant, error) {
	if err := s.authorize(patientID, patientID, access.OpGrant); err != nil {
		return access.Grant{}, err
	}
	sc, err := access.ParseScope(scope)
	if err != nil {
		return access.Grant{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if doc, ok := s.policy.Actor(doctorID); !ok || doc.Role != access.RoleDoctor {
		return access.Grant{}, fmt.Errorf("%w: %s is not a registered doctor", ErrInvalidRequest, doctorID)
	}
	signer, err := s.keys.Signer(patientID)
	if err != nil {
		return access.Grant{}, err
	}
	g := access.Grant{DoctorID: doctorID, PatientID: patientID, Scope: sc, GrantedAt: s.now(), Active: true}
	payload, err := s.codec.Encode(block.KindGrant, g)
	if err != nil {
		return access.Grant{}, err
	}
	if _, err := s.appendEvent(ctx, block.KindGrant, payload, patientID, signer); err != nil {
		return access.Grant{}, err
	}
	s.audit.LogEvent(audit.Event{
		Timestamp: g.GrantedAt,
		EventType: audit.EventGrant,
		EntityID:  patientID,
		Result:    audit.ResultSuccess,
		Metadata:  map[string]string{"doctor": doctorID, "scope": string(sc)},
	})
	return g, nil
}

// RevokeAccess ends doctorID's access to patientID's records.
func (s *Service) RevokeAccess(ctx context.Context, patientID, doctorID string) error {
	if err := s.authorize(patientID, patientID, access.OpGrant); err != nil {
		return err
	}
	if _, ok := s.policy.ActiveGrant(patientID, doctorID); !ok {
		return fmt.Errorf("%w: no active grant for %s", ErrInvalidRequest, doctorID)
	}
	signer, err := s.keys.Signer(patientID)
	if err != nil {
		return err
	}
	ev := revokeEvent{PatientID: patientID, DoctorID: doctorID, RevokedAt: s.now()}
	payload, err := s.codec.Encode(block.KindRevoke, ev)
	if err != nil {
		return err
	}
	if _, err := s.appendEvent(ctx, block.KindRevoke, payload, patientID, signer); err != nil {
		return err
	}
	s.audit.LogEvent(audit.Event{
		Timestamp: ev.RevokedAt,
		EventType: audit.EventRevoke,
		EntityID:  patientID,
		Result:    audit.ResultSuccess,
		Metadata:  map[string]string{"doctor": doctorID},
	})
	return nil
}

// Grants lists the grants patientID has issued. Only the patient can list them.
func (s *Service) Grants(ctx context.Context, actorID, patientID string) ([]access.Grant, error) {
	if err := s.authorize(actorID, patientID, access.OpGrant); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.policy.Grants(patientID), nil
}

// Patients lists the patients who currently grant doctorID access, with their public profiles.
func (s *Service) Patients(ctx context.Context, doctorID string) ([]access.Actor, error) {
	doc, ok := s.policy.Actor(doctorID)
	if !ok || doc.Role != access.RoleDoctor {
		return nil, fmt.Errorf("%w: %s is not a doctor", access.ErrAccessDenied, doctorID)
	}
	ids := s.policy.PatientsOf(doctorID)
	out := make([]access.Actor, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if a, ok := s.policy.Actor(id); ok {
			out = append(out, a.Public())
		}
	}
	return out, nil
}
