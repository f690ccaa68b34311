package session

import (
	"context"
	"errors"
	"time"
)

// Query limit constants for List operations.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// ErrSessionNotFound is returned when a session identifier does not exist.
var ErrSessionNotFound = errors.New("session: not found")

// RecordTransactionInput is the per-transaction update record.Transaction applies.
type RecordTransactionInput struct {
	SessionID        string
	AccountID        string
	Amount           float64
	Location         string
	IsNewBeneficiary bool
	Metadata         map[string]any
	Now              time.Time
}

func enforceLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// Store is Sentinel's session persistence layer. Per-session state
// survives process restart; implementations must serialise concurrent
// RecordTransaction calls for the same session identifier while letting
// different sessions proceed in parallel.
//
// A terminated session never reopens: RecordTransaction on an already
// terminated session identifier is a no-op that returns the session
// unchanged; a terminated session is never re-opened.
type Store interface {
	// RecordTransaction creates the session if absent (appending a
	// session_start event) and then atomically folds in the
	// transaction: increments TransactionCount, adds Amount to
	// TotalAmount, increments NewBeneficiaryCount when the flag is set,
	// updates LastActivityAt, and appends a transaction event.
	RecordTransaction(ctx context.Context, in RecordTransactionInput) (Session, error)

	// UpdateRisk persists a newly computed risk score, its triggered
	// signal set, and human-readable anomaly strings for a session.
	UpdateRisk(ctx context.Context, sessionID string, riskScore float64, signals, anomalies []string) (Session, error)

	// Get retrieves a session by identifier.
	Get(ctx context.Context, sessionID string) (Session, error)

	// ListActive returns non-terminated sessions, most recently active first.
	ListActive(ctx context.Context, limit int) ([]Session, error)

	// ListByAccount returns sessions for accountID, most recent first.
	// When activeOnly is true, terminated sessions are excluded.
	ListByAccount(ctx context.Context, accountID string, activeOnly bool, limit int) ([]Session, error)

	// ListSuspicious returns sessions whose risk score is at least minRisk,
	// highest risk first.
	ListSuspicious(ctx context.Context, minRisk float64, limit int) ([]Session, error)

	// Events returns a session's append-only event log in submission order.
	Events(ctx context.Context, sessionID string) ([]Event, error)

	// Terminate marks a session terminated, idempotently: terminating an
	// already-terminated session leaves its original reason/actor intact
	// and is not an error.
	Terminate(ctx context.Context, sessionID, reason, actor string, now time.Time) (Session, error)

	// Cleanup marks every non-terminated session whose LastActivityAt is
	// older than olderThan as terminated with reason "expired", and
	// reports how many sessions it affected. Safe to call repeatedly.
	Cleanup(ctx context.Context, olderThan time.Duration, now time.Time) (int, error)
}

// AuditRecorder receives one entry per session mutation an analyst
// triggers (currently just Terminate). It is satisfied by
// eventstore.Store; a nil recorder disables auditing.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, actor, action, resource string, success bool, metadata map[string]string)
}
