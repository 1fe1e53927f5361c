package server

import (
	"fmt"
	"net/http"
	"strconv"
)

// rangeParams reads the optional from/to query parameters.
func rangeParams(r *http.Request) (from, to uint64, err error) {
	parse := func(name string) (uint64, error) {
		v := r.URL.Query().Get(name)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
		}
		return n, nil
	}
	if from, err = parse("from"); err != nil {
		return 0, 0, err
	}
	if to, err = parse("to"); err != nil {
		return 0, 0, err
	}
	return from, to, nil
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request, _ string) {
	from, to, err := rangeParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if to == 0 {
		to = s.svc.Height()
	}
	headers, err := s.svc.Blocks(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, headers)
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request, _ string) {
	h, err := s.svc.BlockByHash(r.Context(), r.PathValue("hash"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// handleVerify runs a verification. The result carries no record content, so no token is needed.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Verify(r.Context(), from, to))
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request, actorID string) {
	a, err := s.svc.Analytics(r.Context(), actorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, actorID string) {
	entries, err := s.svc.AuditTrail(r.Context(), actorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request, _ string) {
	from, to, err := rangeParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cp, err := s.svc.Checkpoint(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}
