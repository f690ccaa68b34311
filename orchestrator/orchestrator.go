package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/byteness/sentinel-fraud/behavior"
	"github.com/byteness/sentinel-fraud/decision"
	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
	"github.com/byteness/sentinel-fraud/eventstore"
	"github.com/byteness/sentinel-fraud/feature"
	"github.com/byteness/sentinel-fraud/identity"
	"github.com/byteness/sentinel-fraud/logging"
	"github.com/byteness/sentinel-fraud/mlscore"
	"github.com/byteness/sentinel-fraud/policy"
	"github.com/byteness/sentinel-fraud/ratelimit"
	"github.com/byteness/sentinel-fraud/security"
	"github.com/byteness/sentinel-fraud/session"
	"github.com/byteness/sentinel-fraud/txn"
)

// RequestBudget is the soft per-request latency budget. Exceeding it
// degrades the decision to Review rather than failing the request.
const RequestBudget = 100 * time.Millisecond

// Config collects every collaborator HandleDecisionRequest needs.
// Rules and History drive every request. RateLimiter, Model, Sessions,
// Security, Events, Metrics, and Logger may each be nil, which skips
// that step (a nil Logger is replaced by a no-op logger).
type Config struct {
	RateLimiter ratelimit.Limiter

	History  feature.UserHistory
	Devices  feature.DeviceRegistry
	IPRep    feature.IPReputation
	Distance feature.DistanceFunc

	Rules      policy.Config
	Model      *mlscore.Model
	Thresholds decision.Thresholds

	Sessions session.Store

	Security *security.Monitor
	Events   eventstore.Store

	// Metrics receives request-path counters: admissions and denials
	// at the rate limiter, decisions by outcome, and security events
	// by threat level. Nil disables publication. Satisfied by
	// *telemetry.Metrics.
	Metrics MetricsRecorder

	// PrivilegedEndpoints is the explicit, startup-configured set of
	// endpoints the insider-threat and privilege-escalation detectors
	// treat as privileged/admin. The
	// X-Endpoint-Type: privileged test sentinel (DecisionRequest.
	// PrivilegedEndpoint) is layered on top of this set, not a
	// replacement for it.
	PrivilegedEndpoints []string

	Logger logging.Logger
}

// MetricsRecorder is the narrow counter surface the orchestrator
// publishes through.
type MetricsRecorder interface {
	RequestAdmitted()
	RequestDenied()
	DecisionMade(code txn.Code)
	SecurityEventEmitted(level security.Level)
}

func (c Config) isPrivilegedEndpoint(endpoint string) bool {
	for _, e := range c.PrivilegedEndpoints {
		if e == endpoint {
			return true
		}
	}
	return false
}

// Orchestrator wires the request path together: rate limit, decision
// pipeline, session tracking, security monitoring, and event
// persistence, behind one HandleDecisionRequest method. It holds no
// per-request state; every field is a long-lived, concurrency-safe
// collaborator constructed once at startup and shared by every
// request handler.
type Orchestrator struct {
	cfg      Config
	counters *velocityCounters
}

// New creates an Orchestrator from cfg. A zero-value optional field
// (Security, Events, Sessions, Logger, Devices, IPRep, Distance)
// disables that feature rather than panicking; monitoring and
// session tracking are best-effort, never load-bearing.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	return &Orchestrator{cfg: cfg, counters: newVelocityCounters()}
}

// blocker adapts an event store and a rate limiter so their combination
// satisfies security.Blocker: a level-4 security event marks the
// source blocked in the event store and places an indefinite
// admission block in the rate limiter. It is constructed ahead of
// the Orchestrator itself (the security.Monitor it's wired into is
// one of Config's fields) so it depends directly on the two stores
// rather than on *Orchestrator.
type blocker struct {
	events  eventstore.Store
	limiter ratelimit.Limiter
}

// NewBlocker adapts events and limiter into a security.Blocker
// suitable for security.NewMonitor. Either argument may be nil, in
// which case that half of the auto-block policy is skipped.
func NewBlocker(events eventstore.Store, limiter ratelimit.Limiter) security.Blocker {
	return blocker{events: events, limiter: limiter}
}

func (b blocker) BlockSource(ctx context.Context, source, reason string, level security.Level) error {
	if b.events != nil {
		if err := b.events.RecordBlock(ctx, eventstore.BlockedSource{
			Source:    source,
			Reason:    reason,
			Level:     level,
			Auto:      true,
			BlockedAt: time.Now(),
		}); err != nil {
			log.Printf("orchestrator: failed to record auto-block for %s: %v", source, err)
		}
	}
	if b.limiter != nil {
		if err := b.limiter.Block(ctx, source, "system", ratelimit.IndefiniteBlock); err != nil {
			log.Printf("orchestrator: failed to set rate-limit block for %s: %v", source, err)
		}
	}
	return nil
}

// HandleDecisionRequest runs the full request path: admit, decide,
// fold in session behavior, observe for security threats, log, and
// return. Failures in monitoring, session tracking, and event
// persistence are logged and swallowed (never surfaced as a
// decision-request failure); the sole exception is the
// behavioral-risk override, which can upgrade the returned Decision
// to Block.
func (o *Orchestrator) HandleDecisionRequest(ctx context.Context, req DecisionRequest) (DecisionResponse, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	// Rate limit, honoring the test-only bypass.
	if !req.SecurityTestBypass && o.cfg.RateLimiter != nil {
		obs, err := o.cfg.RateLimiter.Admit(ctx, req.Source, now)
		if err != nil {
			// Fail-open: admit, but surface the failure as a system
			// anomaly so it is visible to the SOC review queue.
			log.Printf("orchestrator: rate limiter error for %s, failing open: %v", req.Source, err)
			o.recordSystemAnomaly(ctx, req.Source, req.Endpoint, "rate limiter unavailable, admitted fail-open", now)
		} else if !obs.Allowed {
			if o.cfg.Metrics != nil {
				o.cfg.Metrics.RequestDenied()
			}
			o.logAccess(ctx, req, 429, 0, now)
			return DecisionResponse{}, &RateLimited{RetryAfter: obs.RetryAfter}
		} else if o.cfg.Metrics != nil {
			o.cfg.Metrics.RequestAdmitted()
		}
	}

	// Decision pipeline.
	start := time.Now()
	decisionResult := o.runPipeline(req.Transaction, now)
	decisionResult.LatencyMS = float64(time.Since(start)) / float64(time.Millisecond)

	if time.Since(start) > RequestBudget {
		decisionResult.Code = txn.Review
		decisionResult.Reasons = append(decisionResult.Reasons, "timeout")
		o.recordAudit(ctx, "system", "decision_request", req.Transaction.ID, false, map[string]string{
			"reason": "timeout",
			"code":   sentinelerrors.ErrCodeTimeout,
		})
	}

	resp := DecisionResponse{Decision: decisionResult}

	// Session behavioral tracking.
	if req.Transaction.SessionID != "" {
		resp.SessionRisk = o.updateSession(ctx, req.Transaction, now, &resp.Decision)
	}

	// Security monitor.
	o.observeSecurity(ctx, req, now)

	// Durable API access log. A Block is still a successfully
	// handled request from the transport's point of view; only
	// rate-limit denial and pipeline failure use a non-200 status.
	o.logAccess(ctx, req, 200, resp.Decision.LatencyMS, now)

	o.cfg.Logger.LogDecision(logging.NewDecisionLogEntry(req.Transaction, resp.Decision))
	o.recordAudit(ctx, "system", "decision_request", req.Transaction.ID, true, map[string]string{
		"decision": resp.Decision.Code.String(),
	})
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.DecisionMade(resp.Decision.Code)
	}

	return resp, nil
}

// runPipeline is the decision pipeline: feature extraction, rules, ML score,
// and policy combination. It never blocks on I/O once its read-only
// lookups return.
func (o *Orchestrator) runPipeline(tx txn.Transaction, now time.Time) txn.Decision {
	fv := feature.Extract(tx, o.cfg.History, o.cfg.Devices, o.cfg.IPRep, o.cfg.Distance)
	counts := o.counters.Counts(tx, now)
	o.counters.Observe(tx, now)

	ruleResult := o.cfg.Rules.Evaluate(tx, fv, counts)

	var ml txn.MLScore
	if ruleResult.HardOutcome != txn.HardOutcomeBlock && o.cfg.Model != nil {
		// A hard BLOCK skips the model entirely.
		ml = o.cfg.Model.Score(fv)
	}

	return decision.Combine(ruleResult, ml, tx.Amount, o.cfg.Thresholds)
}

// updateSession folds tx into its session, scores the resulting
// behavioral risk, persists it, and -- if risk has crossed the
// critical threshold -- terminates the session and upgrades decision
// to Block. Every
// error here is logged and swallowed; session tracking never fails a
// decision request.
func (o *Orchestrator) updateSession(ctx context.Context, tx txn.Transaction, now time.Time, result *txn.Decision) *SessionRisk {
	if o.cfg.Sessions == nil {
		return nil
	}

	before, err := o.cfg.Sessions.Get(ctx, tx.SessionID)
	hadPrior := err == nil
	snap := behavior.Snapshot{}
	if hadPrior {
		snap = behavior.Snapshot{
			TransactionCount:    before.TransactionCount,
			TotalAmount:         before.TotalAmount,
			NewBeneficiaryCount: before.NewBeneficiaryCount,
			FirstLocation:       before.FirstLocation,
			FirstTransactionAt:  before.FirstTransactionAt,
		}
	}

	sess, err := o.cfg.Sessions.RecordTransaction(ctx, session.RecordTransactionInput{
		SessionID:        tx.SessionID,
		AccountID:        tx.UserID,
		Amount:           tx.Amount,
		Location:         tx.Location,
		IsNewBeneficiary: tx.IsNewBeneficiary,
		Metadata:         tx.Metadata,
		Now:              now,
	})
	if err != nil {
		log.Printf("orchestrator: session record_transaction failed for %s: %v", tx.SessionID, err)
		return nil
	}
	if sess.Terminated && sess.TransactionCount == before.TransactionCount {
		// Already-terminated session: RecordTransaction no-op'd;
		// report its frozen state without re-scoring.
		return sessionRiskOf(sess)
	}

	scored := behavior.Score(snap, behavior.Candidate{
		Amount:   tx.Amount,
		Location: tx.Location,
		At:       now,
	})

	sess, err = o.cfg.Sessions.UpdateRisk(ctx, tx.SessionID, scored.Score, asStrings(scored.Signals), scored.Anomalies)
	if err != nil {
		log.Printf("orchestrator: session update_risk failed for %s: %v", tx.SessionID, err)
	}

	o.cfg.Logger.LogSession(logging.NewSessionLogEntry(sess.ID, sess.AccountID, sess.RiskScore, sess.SignalsTriggered, sess.TransactionCount, sess.Terminated, sess.TerminationReason))

	if scored.Score >= session.CriticalRiskThreshold && !sess.Terminated {
		terminated, err := o.cfg.Sessions.Terminate(ctx, tx.SessionID, "critical behavioral risk", "system", now)
		if err != nil {
			log.Printf("orchestrator: session terminate failed for %s: %v", tx.SessionID, err)
		} else {
			sess = terminated
			result.Code = txn.Block
			result.Score = 1.0
			result.Reasons = append(result.Reasons, "session terminated by behavioral risk")
			o.recordAudit(ctx, "system", "terminate_session", tx.SessionID, true, map[string]string{"reason": "critical behavioral risk"})
		}
	}

	return sessionRiskOf(sess)
}

func sessionRiskOf(s session.Session) *SessionRisk {
	return &SessionRisk{
		SessionID:         s.ID,
		RiskScore:         s.RiskScore,
		SignalsTriggered:  s.SignalsTriggered,
		AnomaliesDetected: s.Anomalies,
		IsTerminated:      s.Terminated,
		TerminationReason: s.TerminationReason,
		TransactionCount:  s.TransactionCount,
	}
}

func asStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

// observeSecurity feeds the request envelope to the security
// monitor and persists any emitted events, auto-blocking on a level-4
// detection via the blocker adapter the Monitor was constructed with.
func (o *Orchestrator) observeSecurity(ctx context.Context, req DecisionRequest, now time.Time) {
	if o.cfg.Security == nil {
		return
	}

	privileged := req.PrivilegedEndpoint || o.cfg.isPrivilegedEndpoint(req.Endpoint)
	events := o.cfg.Security.Observe(ctx, security.RequestMeta{
		Source:               req.Source,
		Endpoint:             req.Endpoint,
		IsAdminEndpoint:      privileged,
		IsPrivilegedEndpoint: privileged,
		AuthFailed:           req.AuthFailed,
		RecordsAccessed:      req.RecordsAccessed,
		ConfigChangeSignal:   req.ConfigChangeSignal,
	}, overrideOffHours(now, req.OffHoursOverride))

	for _, e := range events {
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.SecurityEventEmitted(e.Level)
		}
		o.cfg.Logger.LogSecurityEvent(logging.NewSecurityEventLogEntry(identity.NewRequestID(), string(e.Kind), e.Source, e.Endpoint, e.Description, int(e.Level), e.Metadata))
		if o.cfg.Events == nil {
			continue
		}
		if err := o.cfg.Events.StoreEvent(ctx, eventstore.SecurityEvent{
			Timestamp:      e.Timestamp,
			Kind:           e.Kind,
			Level:          e.Level,
			Source:         e.Source,
			Endpoint:       e.Endpoint,
			Description:    e.Description,
			Metadata:       e.Metadata,
			RequiresReview: e.RequiresReview,
		}); err != nil {
			log.Printf("orchestrator: failed to store security event for %s: %v", e.Source, err)
		}
	}
}

// overrideOffHours forces the wall-clock hour the security monitor
// sees into its insider-threat night window when the X-Access-Time:
// off-hours test sentinel is set, without otherwise perturbing `now`.
func overrideOffHours(now time.Time, force bool) time.Time {
	if !force {
		return now
	}
	if h := now.Hour(); h >= 22 || h <= 5 {
		return now
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 23, now.Minute(), now.Second(), 0, now.Location())
}

func (o *Orchestrator) recordSystemAnomaly(ctx context.Context, source, endpoint, description string, now time.Time) {
	if o.cfg.Events == nil {
		return
	}
	if err := o.cfg.Events.StoreEvent(ctx, eventstore.SecurityEvent{
		Timestamp:      now,
		Kind:           security.KindSystemAnomaly,
		Level:          security.LevelMedium,
		Source:         source,
		Endpoint:       endpoint,
		Description:    description,
		RequiresReview: true,
	}); err != nil {
		log.Printf("orchestrator: failed to store system-anomaly event for %s: %v", source, err)
	}
}

func (o *Orchestrator) logAccess(ctx context.Context, req DecisionRequest, status int, latencyMS float64, now time.Time) {
	if o.cfg.Events == nil {
		return
	}
	if err := o.cfg.Events.LogAccess(ctx, eventstore.APIAccess{
		Timestamp: now,
		Source:    req.Source,
		Endpoint:  req.Endpoint,
		Method:    "POST",
		Status:    status,
		LatencyMS: latencyMS,
	}); err != nil {
		log.Printf("orchestrator: failed to log api access for %s: %v", req.Source, err)
	}
}

func (o *Orchestrator) recordAudit(ctx context.Context, actor, action, resource string, success bool, metadata map[string]string) {
	if o.cfg.Events == nil {
		return
	}
	o.cfg.Events.RecordAudit(ctx, actor, action, resource, success, metadata)
}
