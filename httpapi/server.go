// Package httpapi is Sentinel's HTTP surface: the decision endpoint and
// the session/security query-and-mutation endpoints analysts and
// callers use, mounted under /v1/. Routing uses the stdlib
// net/http.ServeMux method+pattern matching introduced in Go 1.22.
package httpapi

import (
	"context"
	"net/http"

	"github.com/byteness/sentinel-fraud/eventstore"
	"github.com/byteness/sentinel-fraud/orchestrator"
	"github.com/byteness/sentinel-fraud/ratelimit"
	"github.com/byteness/sentinel-fraud/secaccess"
	"github.com/byteness/sentinel-fraud/session"
)

// Config wires a Server's collaborators. Orchestrator is required;
// the rest may be nil, in which case the endpoints depending on them
// respond 404. Decision, session, and security-event logging all
// happen inside the orchestrator itself; this package only needs the
// collaborators it queries directly.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     session.Store
	Events       eventstore.Store
	RateLimiter  ratelimit.Limiter
	Model        ModelStatus

	// RulesVersion is the version string of the currently loaded rules
	// document, reported by the health endpoint so operators can
	// confirm which document a process is serving.
	RulesVersion string

	// Auth, when set, guards the analyst-facing session and security
	// endpoints: a request without valid analyst credentials gets a
	// 401. Nil leaves the surface open for local/dev deployments. The
	// decision endpoint and the health endpoint are never guarded --
	// transaction callers are keyed and limited by source, and health
	// must stay reachable for deploy smoke tests.
	Auth Authenticator
}

// ModelStatus reports the ML scorer's degraded state for the health
// endpoint, satisfied directly by *mlscore.Model.
type ModelStatus interface {
	Degraded() bool
}

// Authenticator resolves an Authorization header to a verified
// analyst identity, satisfied by *secaccess.Authenticator.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (secaccess.Analyst, error)
}

// Server holds a Config and exposes a ready-to-mount http.Handler.
type Server struct {
	cfg Config
}

// New builds a Server and registers every /v1/ route on a fresh
// ServeMux.
func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Handler returns the fully routed http.Handler for this server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/decision", s.handleDecision)

	mux.HandleFunc("GET /v1/sessions/active", s.analyst(s.handleSessionsActive))
	mux.HandleFunc("GET /v1/sessions/suspicious", s.analyst(s.handleSessionsSuspicious))
	mux.HandleFunc("GET /v1/sessions/{id}", s.analyst(s.handleSessionGet))
	mux.HandleFunc("GET /v1/sessions/{id}/risk", s.analyst(s.handleSessionRisk))
	mux.HandleFunc("POST /v1/sessions/{id}/terminate", s.analyst(s.handleSessionTerminate))

	mux.HandleFunc("GET /v1/security/events", s.analyst(s.handleSecurityEvents))
	mux.HandleFunc("GET /v1/security/events/review-queue", s.analyst(s.handleReviewQueue))
	mux.HandleFunc("POST /v1/security/events/{id}/review", s.analyst(s.handleReviewEvent))
	mux.HandleFunc("POST /v1/security/events/review-queue/clear", s.analyst(s.handleReviewQueueClear))
	mux.HandleFunc("GET /v1/security/dashboard", s.analyst(s.handleDashboard))
	mux.HandleFunc("GET /v1/security/sources/blocked", s.analyst(s.handleSourcesBlocked))
	mux.HandleFunc("GET /v1/security/sources/{id}/risk", s.analyst(s.handleSourceRisk))
	mux.HandleFunc("POST /v1/security/sources/{id}/unblock", s.analyst(s.handleSourceUnblock))
	mux.HandleFunc("POST /v1/security/sources/{id}/reset", s.analyst(s.handleSourceReset))
	mux.HandleFunc("GET /v1/security/rate-limits/{id}", s.analyst(s.handleRateLimitStatus))
	mux.HandleFunc("POST /v1/security/rate-limits/{id}/tier", s.analyst(s.handleRateLimitTier))
	mux.HandleFunc("GET /v1/security/audit-trail", s.analyst(s.handleAuditTrail))
	mux.HandleFunc("GET /v1/security/health", s.handleHealth)

	return mux
}

// analyst wraps an analyst-facing handler with bearer-credential
// authentication when Config.Auth is set. The verified identity is not
// threaded into handlers: endpoints that need an analyst name for the
// audit trail take an explicit analyst_id field, which keeps the
// recorded actor the analyst's operator handle rather than an STS ARN.
func (s *Server) analyst(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.Auth == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.cfg.Auth.Authenticate(r.Context(), r.Header.Get("Authorization")); err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "analyst credentials are missing or invalid")
			return
		}
		next(w, r)
	}
}
