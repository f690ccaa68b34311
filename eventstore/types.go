// Package eventstore is Sentinel's durable, query-capable log of
// security events, API accesses, blocked sources, and analyst audit
// entries. Two backends share the Store interface: MemoryStore (the
// default, a single process's system of record) and DynamoDBStore (one
// table per logical table, for deployments that must survive a
// restart).
package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/byteness/sentinel-fraud/security"
)

// ErrEventNotFound is returned when a security event id does not
// exist, e.g. on ReviewEvent.
var ErrEventNotFound = errors.New("eventstore: event not found")

// SecurityEvent is one durable row in the security_events table.
type SecurityEvent struct {
	ID             string
	Timestamp      time.Time
	Kind           security.Kind
	Level          security.Level
	Source         string
	Endpoint       string
	Description    string
	Metadata       map[string]string
	RequiresReview bool
	ReviewedBy     string
	ReviewAction   string
	ReviewNotes    string
}

// Reviewed reports whether an analyst has already actioned this event.
func (e SecurityEvent) Reviewed() bool {
	return e.ReviewedBy != ""
}

// APIAccess is one row in the api_access table, logged once per
// request regardless of outcome.
type APIAccess struct {
	ID        string
	Timestamp time.Time
	Source    string
	Endpoint  string
	Method    string
	Status    int
	LatencyMS float64
}

// BlockedSource is one row in the blocked_sources table. A nil
// UnblockedAt is the source of truth for "currently blocked".
type BlockedSource struct {
	Source      string
	BlockedAt   time.Time
	Reason      string
	Level       security.Level
	Auto        bool
	UnblockedAt *time.Time
	UnblockedBy string
}

// Blocked reports whether this row currently represents an active block.
func (b BlockedSource) Blocked() bool {
	return b.UnblockedAt == nil
}

// AuditEntry is one row in the audit_trail table.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	Actor     string
	Action    string
	Resource  string
	Success   bool
	Metadata  map[string]string
}

// EventFilter narrows RecentEvents.
type EventFilter struct {
	MinLevel security.Level
	Kind     security.Kind
	Source   string
	Limit    int
}

// DashboardAggregates answers the dashboard query in one call.
type DashboardAggregates struct {
	TotalsByKind        map[security.Kind]int
	TotalsByLevel       map[security.Level]int
	PendingReviews      int
	BlockedSourcesCount int
	Recent              []SecurityEvent
}

// SourceRiskProfile answers the source-risk-profile query: how a
// source has behaved across a trailing window, and whether it is
// currently blocked.
type SourceRiskProfile struct {
	Source           string
	Window           time.Duration
	EventsByLevel    map[security.Level]int
	EventsByKind     map[security.Kind]int
	CurrentlyBlocked bool
}

// AuditFilter narrows AuditTrail. Exactly one of Actor/Resource should
// typically be set; an empty filter returns the trail unfiltered.
type AuditFilter struct {
	Actor    string
	Resource string
	Limit    int
	Offset   int
}

// DefaultQueryLimit and MaxQueryLimit bound unset/oversized query limits.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

func enforceLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// Store is the durable event log. All write methods block until the
// write is durable. Implementations must be safe for concurrent use
// by the security monitor and the orchestrator.
type Store interface {
	StoreEvent(ctx context.Context, event SecurityEvent) error
	LogAccess(ctx context.Context, access APIAccess) error
	RecordBlock(ctx context.Context, block BlockedSource) error
	Unblock(ctx context.Context, source, unblockedBy string, now time.Time) error

	// RecordAudit matches ratelimit.AuditRecorder's signature so a Store
	// can be passed directly as a rate limiter's auditor. It is
	// fire-and-forget: a durability failure is logged, not returned,
	// since no caller of this particular signature can act on an error.
	RecordAudit(ctx context.Context, actor, action, resource string, success bool, metadata map[string]string)

	RecentEvents(ctx context.Context, filter EventFilter) ([]SecurityEvent, error)
	ReviewQueue(ctx context.Context, limit int) ([]SecurityEvent, error)
	ReviewEvent(ctx context.Context, id, reviewedBy, action, notes string) error
	Dashboard(ctx context.Context) (DashboardAggregates, error)
	SourceRisk(ctx context.Context, source string, window time.Duration) (SourceRiskProfile, error)
	BlockedSources(ctx context.Context) ([]BlockedSource, error)
	IsBlocked(ctx context.Context, source string) (bool, error)
	AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}
