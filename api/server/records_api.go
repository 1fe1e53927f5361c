package server

import (
	"net/http"

	"ehrchain/core/record"
)

// AmendRequest is the body of POST /api/v1/records/{id}/amend.
type AmendRequest struct {
	Record record.Record `json:"record"`
	Reason string        `json:"reason"`
}

// VerifyHashRequest is the body of POST /api/v1/records/{id}/verify-hash.
type VerifyHashRequest struct {
	Hash string `json:"hash"`
}

// VerifyHashResponse reports whether the record matches the supplied hash.
type VerifyHashResponse struct {
	RecordID string `json:"recordId"`
	Match    bool   `json:"match"`
}

func (s *Server) handleSubmitRecord(w http.ResponseWriter, r *http.Request, actorID string) {
	var rec record.Record
	if err := decodeJSON(w, r, &rec); err != nil {
		s.writeError(w, r, err)
		return
	}
	rcpt, err := s.svc.SubmitRecord(r.Context(), actorID, rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rcpt)
}

func (s *Server) handleAmendRecord(w http.ResponseWriter, r *http.Request, actorID string) {
	var req AmendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rcpt, err := s.svc.AmendRecord(r.Context(), actorID, r.PathValue("id"), req.Record, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rcpt)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request, actorID string) {
	rec, err := s.svc.GetRecord(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request, actorID string) {
	chain, err := s.svc.Lineage(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

func (s *Server) handleVerifyHash(w http.ResponseWriter, r *http.Request, actorID string) {
	var req VerifyHashRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	ok, err := s.svc.VerifyFingerprint(r.Context(), actorID, id, req.Hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyHashResponse{RecordID: id, Match: ok})
}

func (s *Server) handlePatientRecords(w http.ResponseWriter, r *http.Request, actorID string) {
	recs, err := s.svc.PatientRecords(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
