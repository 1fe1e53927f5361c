// server.go - HTTP API for the EHR ledger node
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"ehrchain/core/auth"
	"ehrchain/core/ehr"
)

// Options configures a Server.
type Options struct {
	ListenAddr      string
	TLSCert         string
	TLSKey          string
	DataDir         string // probed for free disk space
	RateLimitPerMin int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	Logger          zerolog.Logger
}

// Server exposes the EHR service over HTTP.
type Server struct {
	svc     *ehr.Service
	authn   *auth.Authenticator
	limiter *RateLimiter
	log     zerolog.Logger
	opts    Options
	started time.Time
}

func NewServer(svc *ehr.Service, authn *auth.Authenticator, opts Options) *Server {
	s := &Server{
		svc:     svc,
		authn:   authn,
		log:     opts.Logger.With().Str("component", "api").Logger(),
		opts:    opts,
		started: time.Now(),
	}
	if opts.RateLimitPerMin > 0 {
		s.limiter = NewRateLimiter(opts.RateLimitPerMin, time.Minute)
	}
	return s
}

// Handler returns the routed handler with logging and rate limiting applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health/status endpoints
	mux.HandleFunc("GET /nodehealth", s.HandleNodeHealth)
	mux.HandleFunc("GET /health/liveness", s.HandleLiveness)
	mux.HandleFunc("GET /health/readiness", s.HandleReadiness)
	mux.HandleFunc("GET /status", s.HandleStatus)

	// Actors and sessions
	mux.HandleFunc("POST /api/v1/actors", s.handleRegister)
	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.Handle("GET /api/v1/actors/{id}", s.requireAuth(s.handleGetActor))
	mux.Handle("PUT /api/v1/actors/{id}/role", s.requireAuth(s.handleChangeRole))
	mux.Handle("PUT /api/v1/actors/{id}/profile", s.requireAuth(s.handleUpdateProfile))
	mux.Handle("PUT /api/v1/actors/{id}/password", s.requireAuth(s.handleChangePassword))
	mux.Handle("GET /api/v1/patients", s.requireAuth(s.handleMyPatients))

	// Grants
	mux.Handle("GET /api/v1/grants", s.requireAuth(s.handleListGrants))
	mux.Handle("POST /api/v1/grants", s.requireAuth(s.handleGrant))
	mux.Handle("DELETE /api/v1/grants", s.requireAuth(s.handleRevoke))

	// Records
	mux.Handle("POST /api/v1/records", s.requireAuth(s.handleSubmitRecord))
	mux.Handle("GET /api/v1/records/{id}", s.requireAuth(s.handleGetRecord))
	mux.Handle("POST /api/v1/records/{id}/amend", s.requireAuth(s.handleAmendRecord))
	mux.Handle("GET /api/v1/records/{id}/lineage", s.requireAuth(s.handleLineage))
	mux.Handle("POST /api/v1/records/{id}/verify-hash", s.requireAuth(s.handleVerifyHash))
	mux.Handle("GET /api/v1/patients/{id}/records", s.requireAuth(s.handlePatientRecords))

	// Ledger and admin views
	mux.Handle("GET /api/v1/ledger/blocks", s.requireAuth(s.handleBlocks))
	mux.Handle("GET /api/v1/ledger/blocks/{hash}", s.requireAuth(s.handleBlockByHash))
	mux.HandleFunc("GET /api/v1/ledger/verify", s.handleVerify)
	mux.Handle("GET /api/v1/ledger/checkpoint", s.requireAuth(s.handleCheckpoint))
	mux.Handle("GET /api/v1/analytics", s.requireAuth(s.handleAnalytics))
	mux.Handle("GET /api/v1/audit", s.requireAuth(s.handleAudit))

	return s.logRequests(s.rateLimit(mux))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.Handler(),
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	errc := make(chan error, 1)
	go func() {
		if s.opts.TLSCert != "" {
			s.log.Info().Str("addr", s.opts.ListenAddr).Str("cert", s.opts.TLSCert).Msg("API server listening (HTTPS)")
			errc <- srv.ListenAndServeTLS(s.opts.TLSCert, s.opts.TLSKey)
			return
		}
		s.log.Warn().Str("addr", s.opts.ListenAddr).Msg("API server listening (HTTP only)")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	}
}
