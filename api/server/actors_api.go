package server

import (
	"fmt"
	"net/http"

	"ehrchain/core/access"
	"ehrchain/core/ehr"
)

// LoginRequest is the body of POST /api/v1/login.
type LoginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// GrantRequest is the body of POST and DELETE /api/v1/grants.
type GrantRequest struct {
	DoctorID string `json:"doctorId"`
	Scope    string `json:"scope,omitempty"`
}

// RoleRequest is the body of PUT /api/v1/actors/{id}/role.
type RoleRequest struct {
	Role string `json:"role"`
}

// PasswordRequest is the body of PUT /api/v1/actors/{id}/password.
type PasswordRequest struct {
	Current string `json:"currentPassword"`
	New     string `json:"newPassword"`
}

// selfOnly rejects requests on an actor other than the caller.
func selfOnly(r *http.Request, actorID string) error {
	if id := r.PathValue("id"); id != actorID {
		return fmt.Errorf("%w: %s may not modify %s", access.ErrAccessDenied, actorID, id)
	}
	return nil
}

// handleRegister registers an actor. A bearer token is only needed to register admins.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	requester, err := s.optionalActor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ehr.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := s.svc.RegisterActor(r.Context(), requester, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, actor)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.svc.Login(r.Context(), req.ID, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetActor(w http.ResponseWriter, r *http.Request, actorID string) {
	actor, err := s.svc.Actor(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request, actorID string) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := s.svc.ChangeRole(r.Context(), actorID, r.PathValue("id"), req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

// handleListGrants lists the caller's own grants.
func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request, actorID string) {
	grants, err := s.svc.Grants(r.Context(), actorID, actorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

// handleGrant grants a doctor access to the caller's records.
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request, actorID string) {
	var req GrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.svc.GrantAccess(r.Context(), actorID, req.DoctorID, req.Scope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// handleRevoke takes the doctor from the body or the doctorId query parameter.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request, actorID string) {
	req := GrantRequest{DoctorID: r.URL.Query().Get("doctorId")}
	if req.DoctorID == "" {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if err := s.svc.RevokeAccess(r.Context(), actorID, req.DoctorID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, actorID string) {
	if err := selfOnly(r, actorID); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ehr.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := s.svc.UpdateProfile(r.Context(), actorID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, actorID string) {
	if err := selfOnly(r, actorID); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req PasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.ChangePassword(r.Context(), actorID, req.Current, req.New); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMyPatients lists the patients who grant the calling doctor access.
func (s *Server) handleMyPatients(w http.ResponseWriter, r *http.Request, actorID string) {
	patients, err := s.svc.Patients(r.Context(), actorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}
