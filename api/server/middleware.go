package server

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// authedHandler receives the actor ID from a verified bearer token.
type authedHandler func(w http.ResponseWriter, r *http.Request, actorID string)

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return tok, tok != ""
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
			return
		}
		claims, err := s.authn.Authenticate(tok)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r, claims.Subject)
	})
}

// optionalActor returns the caller's actor ID if a valid token was sent, "" if none was sent.
func (s *Server) optionalActor(r *http.Request) (string, error) {
	tok, ok := bearerToken(r)
	if !ok {
		return "", nil
	}
	claims, err := s.authn.Authenticate(tok)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := clientAddr(r)
		if !s.limiter.Allow(addr) {
			s.log.Warn().Str("client", addr).Msg("rate limited")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
