// Package orchestrator wires Sentinel's request path together: rate
// limiting, the decision pipeline, session behavioral tracking, the
// security monitor, and the event store, behind one method a transport
// (HTTP, Lambda) calls once per transaction. Every collaborator
// is an explicit dependency: a single Orchestrator value holds
// every collaborator and exposes HandleDecisionRequest.
package orchestrator

import (
	"time"

	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
	"github.com/byteness/sentinel-fraud/txn"
)

// DecisionRequest is the transport-agnostic input to a decision
// request: the transaction fields plus the request metadata the
// security monitor and rate limiter need. A transport layer (HTTP,
// Lambda) is responsible for parsing its wire format into this shape.
type DecisionRequest struct {
	Transaction txn.Transaction

	// Source is the rate limiter / security monitor key: the
	// X-Source-ID header if present, else the caller's network
	// address.
	Source string

	// Endpoint identifies the logical API operation, for the security
	// monitor's per-endpoint history ("POST /v1/decision").
	Endpoint string

	// SecurityTestBypass mirrors the X-Security-Test sentinel header:
	// skips rate-limit admission (access is still logged) so the
	// security-test surface can generate traffic past the limiter.
	SecurityTestBypass bool

	// AuthFailed mirrors X-Auth-Result: failed, driving brute-force
	// detection.
	AuthFailed bool

	// RecordsAccessed mirrors X-Records-Accessed, driving
	// data-exfiltration detection.
	RecordsAccessed int

	// OffHoursOverride mirrors X-Access-Time: off-hours, a test
	// sentinel that forces the insider-threat time predicate true
	// regardless of wall-clock time.
	OffHoursOverride bool

	// PrivilegedEndpoint mirrors X-Endpoint-Type: privileged, layered
	// on top of the configured privileged-endpoint list.
	PrivilegedEndpoint bool

	// ConfigChangeSignal flags a configuration-change event for the
	// system-anomaly detector; set by internal callers, never by an
	// external header.
	ConfigChangeSignal bool

	// Now overrides the clock for deterministic tests; zero means
	// time.Now().
	Now time.Time
}

// SessionRisk is the optional session-risk fragment attached to a
// DecisionResponse when the request carries a session identifier.
type SessionRisk struct {
	SessionID         string
	RiskScore         float64
	SignalsTriggered  []string
	AnomaliesDetected []string
	IsTerminated      bool
	TerminationReason string
	TransactionCount  int
}

// DecisionResponse is the transport-agnostic result of a decision
// request: the Decision plus the optional session-risk fragment.
// Transports serialize this into their own wire format (see
// httpapi.decisionResponseBody for the JSON shape).
type DecisionResponse struct {
	Decision    txn.Decision
	SessionRisk *SessionRisk
}

// RateLimited is returned by HandleDecisionRequest when the rate
// limiter denies the request. Transports translate it into a 429 with
// a Retry-After header. It unwraps to sentinelerrors.ErrRateLimited,
// so callers without the concrete type can still classify it.
type RateLimited struct {
	RetryAfter time.Duration
}

func (e *RateLimited) Error() string {
	return "orchestrator: rate limited"
}

func (e *RateLimited) Unwrap() error {
	return sentinelerrors.ErrRateLimited
}
