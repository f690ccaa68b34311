package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
	"github.com/byteness/sentinel-fraud/eventstore"
	"github.com/byteness/sentinel-fraud/ratelimit"
	"github.com/byteness/sentinel-fraud/security"
	"github.com/byteness/sentinel-fraud/validate"
)

type securityEventBody struct {
	ID             string            `json:"id"`
	Timestamp      string            `json:"timestamp"`
	Kind           string            `json:"kind"`
	Level          int               `json:"level"`
	Source         string            `json:"source"`
	Endpoint       string            `json:"endpoint"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RequiresReview bool              `json:"requires_review"`
	ReviewedBy     string            `json:"reviewed_by,omitempty"`
	ReviewAction   string            `json:"review_action,omitempty"`
}

func eventToBody(e eventstore.SecurityEvent) securityEventBody {
	return securityEventBody{
		ID:             e.ID,
		Timestamp:      e.Timestamp.Format(time.RFC3339),
		Kind:           string(e.Kind),
		Level:          int(e.Level),
		Source:         e.Source,
		Endpoint:       e.Endpoint,
		Description:    e.Description,
		Metadata:       e.Metadata,
		RequiresReview: e.RequiresReview,
		ReviewedBy:     e.ReviewedBy,
		ReviewAction:   e.ReviewAction,
	}
}

func (s *Server) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "event store is not configured")
		return
	}
	threatType, ok := queryID(w, r, "threat_type")
	if !ok {
		return
	}
	sourceID, ok := queryID(w, r, "source_id")
	if !ok {
		return
	}
	filter := eventstore.EventFilter{
		MinLevel: security.Level(queryInt(r, "min_threat_level", 0)),
		Kind:     security.Kind(threatType),
		Source:   sourceID,
		Limit:    queryInt(r, "limit", eventstore.DefaultQueryLimit),
	}
	events, err := s.cfg.Events.RecentEvents(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
		return
	}
	out := make([]securityEventBody, 0, len(events))
	for _, e := range events {
		out = append(out, eventToBody(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "event store is not configured")
		return
	}
	events, err := s.cfg.Events.ReviewQueue(r.Context(), queryInt(r, "limit", eventstore.DefaultQueryLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
		return
	}
	out := make([]securityEventBody, 0, len(events))
	for _, e := range events {
		out = append(out, eventToBody(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type reviewEventBody struct {
	AnalystID string `json:"analyst_id"`
	Action    string `json:"action"`
	Notes     string `json:"notes"`
}

var validReviewActions = map[string]bool{"dismiss": true, "investigate": true, "escalate": true}

func (s *Server) handleReviewEvent(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "event store is not configured")
		return
	}
	var body reviewEventBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, err.Error())
		return
	}
	if body.AnalystID == "" || !validReviewActions[body.Action] {
		writeError(w, http.StatusBadRequest, "INVALID_REVIEW", "analyst_id is required and action must be one of dismiss, investigate, escalate")
		return
	}
	if err := validate.ValidateSafeString(body.AnalystID, validate.MaxQueryParamLength); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REVIEW", "analyst_id: "+err.Error())
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.cfg.Events.ReviewEvent(r.Context(), id, body.AnalystID, body.Action, body.Notes); err != nil {
		if err == eventstore.ErrEventNotFound {
			writeError(w, http.StatusNotFound, "EVENT_NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
		return
	}
	s.cfg.Events.RecordAudit(r.Context(), body.AnalystID, "review_event", id, true,
		map[string]string{"action": body.Action, "notes": validate.SanitizeForLog(body.Notes, 256)})
	writeJSON(w, http.StatusOK, map[string]string{"status": "reviewed"})
}

func (s *Server) handleReviewQueueClear(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "event store is not configured")
		return
	}
	pending, err := s.cfg.Events.ReviewQueue(r.Context(), eventstore.MaxQueryLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
		return
	}
	cleared := 0
	for _, e := range pending {
		if err := s.cfg.Events.ReviewEvent(r.Context(), e.ID, "system", "dismiss", "cleared in bulk"); err == nil {
			cleared++
		}
	}
	s.cfg.Events.RecordAudit(r.Context(), "system", "clear_review_queue", "", true, map[string]string{"cleared": strconv.Itoa(cleared)})
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

type dashboardBody struct {
	TotalsByKind        map[string]int      `json:"totals_by_kind"`
	TotalsByLevel       map[string]int      `json:"totals_by_level"`
	PendingReviews      int                 `json:"pending_reviews"`
	BlockedSourcesCount int                 `json:"blocked_sources_count"`
	Recent              []securityEventBody `json:"recent"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "event store is not configured")
		return
	}
	agg, err := s.cfg.Events.Dashboard(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
		return
	}
	byKind := make(map[string]int, len(agg.TotalsByKind))
	for k, v := range agg.TotalsByKind {
		byKind[string(k)] = v
	}
	byLevel := make(map[string]int, len(agg.TotalsByLevel))
	for k, v := range agg.TotalsByLevel {
		byLevel[k.String()] = v
	}
	recent := make([]securityEventBody, 0, len(agg.Recent))
	for _, e := range agg.Recent {
		recent = append(recent, eventToBody(e))
	}
	writeJSON(w, http.StatusOK, dashboardBody{
		TotalsByKind:        byKind,
		TotalsByLevel:       byLevel,
		PendingReviews:      agg.PendingReviews,
		BlockedSourcesCount: agg.BlockedSourcesCount,
		Recent:              recent,
	})
}

type sourceRiskBody struct {
	Source           string         `json:"source"`
	WindowSeconds    float64        `json:"window_seconds"`
	EventsByLevel    map[string]int `json:"events_by_level"`
	EventsByKind     map[string]int `json:"events_by_kind"`
	CurrentlyBlocked bool           `json:"currently_blocked"`
}

const defaultSourceRiskWindow = 24 * time.Hour

func (s *Server) handleSourceRisk(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "event store is not configured")
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	profile, err := s.cfg.Events.SourceRisk(r.Context(), id, defaultSourceRiskWindow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
		return
	}
	byLevel := make(map[string]int, len(profile.EventsByLevel))
	for k, v := range profile.EventsByLevel {
		byLevel[k.String()] = v
	}
	byKind := make(map[string]int, len(profile.EventsByKind))
	for k, v := range profile.EventsByKind {
		byKind[string(k)] = v
	}
	writeJSON(w, http.StatusOK, sourceRiskBody{
		Source:           profile.Source,
		WindowSeconds:    profile.Window.Seconds(),
		EventsByLevel:    byLevel,
		EventsByKind:     byKind,
		CurrentlyBlocked: profile.CurrentlyBlocked,
	})
}

type blockedSourceBody struct {
	Source    string `json:"source"`
	BlockedAt string `json:"blocked_at"`
	Reason    string `json:"reason"`
	Level     int    `json:"level"`
	Auto      bool   `json:"auto"`
}

func (s *Server) handleSourcesBlocked(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "event store is not configured")
		return
	}
	blocks, err := s.cfg.Events.BlockedSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
		return
	}
	out := make([]blockedSourceBody, 0, len(blocks))
	for _, b := range blocks {
		if !b.Blocked() {
			continue
		}
		out = append(out, blockedSourceBody{
			Source:    b.Source,
			BlockedAt: b.BlockedAt.Format(time.RFC3339),
			Reason:    b.Reason,
			Level:     int(b.Level),
			Auto:      b.Auto,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type unblockSourceBody struct {
	AnalystID string `json:"analyst_id"`
	Reason    string `json:"reason"`
}

func (s *Server) handleSourceUnblock(w http.ResponseWriter, r *http.Request) {
	var body unblockSourceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, err.Error())
		return
	}
	if body.AnalystID == "" {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, "analyst_id is required")
		return
	}
	if err := validate.ValidateSafeString(body.AnalystID, validate.MaxQueryParamLength); err != nil {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, "analyst_id: "+err.Error())
		return
	}
	source, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if s.cfg.Events != nil {
		if err := s.cfg.Events.Unblock(r.Context(), source, body.AnalystID, time.Now()); err != nil {
			writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
			return
		}
	}
	if s.cfg.RateLimiter != nil {
		if err := s.cfg.RateLimiter.Reset(r.Context(), source, body.AnalystID); err != nil {
			writeError(w, http.StatusInternalServerError, "RATE_LIMITER_ERROR", err.Error())
			return
		}
	}
	if s.cfg.Events != nil {
		s.cfg.Events.RecordAudit(r.Context(), body.AnalystID, "unblock_source", source, true,
			map[string]string{"reason": validate.SanitizeForLog(body.Reason, 256)})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

type resetSourceBody struct {
	AnalystID string `json:"analyst_id"`
}

func (s *Server) handleSourceReset(w http.ResponseWriter, r *http.Request) {
	if s.cfg.RateLimiter == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "rate limiter is not configured")
		return
	}
	var body resetSourceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, err.Error())
		return
	}
	if body.AnalystID == "" {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, "analyst_id is required")
		return
	}
	if err := validate.ValidateSafeString(body.AnalystID, validate.MaxQueryParamLength); err != nil {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, "analyst_id: "+err.Error())
		return
	}
	source, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.cfg.RateLimiter.Reset(r.Context(), source, body.AnalystID); err != nil {
		writeError(w, http.StatusInternalServerError, "RATE_LIMITER_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type rateLimitStatusBody struct {
	Source         string  `json:"source"`
	Tier           string  `json:"tier"`
	Remaining      float64 `json:"remaining"`
	ViolationCount int     `json:"violation_count"`
	Blocked        bool    `json:"blocked"`
	RetryAfterMS   int64   `json:"retry_after_ms,omitempty"`
}

func (s *Server) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.RateLimiter == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "rate limiter is not configured")
		return
	}
	source, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	obs, err := s.cfg.RateLimiter.Status(r.Context(), source, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "RATE_LIMITER_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rateLimitStatusBody{
		Source:         source,
		Tier:           obs.Tier.String(),
		Remaining:      obs.Remaining,
		ViolationCount: obs.ViolationCount,
		Blocked:        obs.Blocked,
		RetryAfterMS:   obs.RetryAfter.Milliseconds(),
	})
}

func (s *Server) handleRateLimitTier(w http.ResponseWriter, r *http.Request) {
	if s.cfg.RateLimiter == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "rate limiter is not configured")
		return
	}
	analystID := r.URL.Query().Get("analyst_id")
	if analystID == "" {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, "analyst_id is required")
		return
	}
	if err := validate.ValidateSafeString(analystID, validate.MaxQueryParamLength); err != nil {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, "analyst_id: "+err.Error())
		return
	}
	tier, err := ratelimit.ParseTier(r.URL.Query().Get("tier"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TIER", err.Error())
		return
	}
	source, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.cfg.RateLimiter.SetTier(r.Context(), source, tier, analystID); err != nil {
		writeError(w, http.StatusInternalServerError, "RATE_LIMITER_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "tier_updated", "tier": tier.String()})
}

type auditEntryBody struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Resource  string            `json:"resource"`
	Success   bool              `json:"success"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "event store is not configured")
		return
	}
	actor, ok := queryID(w, r, "actor")
	if !ok {
		return
	}
	resource, ok := queryID(w, r, "resource")
	if !ok {
		return
	}
	filter := eventstore.AuditFilter{
		Actor:    actor,
		Resource: resource,
		Limit:    queryInt(r, "limit", eventstore.DefaultQueryLimit),
		Offset:   queryInt(r, "offset", 0),
	}
	entries, err := s.cfg.Events.AuditTrail(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
		return
	}
	out := make([]auditEntryBody, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryBody{
			ID:        e.ID,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Actor:     e.Actor,
			Action:    e.Action,
			Resource:  e.Resource,
			Success:   e.Success,
			Metadata:  e.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type healthBody struct {
	Status        string `json:"status"`
	ModelDegraded bool   `json:"model_degraded"`
	RulesVersion  string `json:"rules_version,omitempty"`
	DroppedEvents int    `json:"dropped_events"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	degraded := false
	if s.cfg.Model != nil {
		degraded = s.cfg.Model.Degraded()
	}
	status := "ok"
	if degraded {
		status = "degraded"
	}
	// DroppedEvents is always 0: the request path is synchronous, so
	// there is no bounded update queue to drop from.
	writeJSON(w, http.StatusOK, healthBody{
		Status:        status,
		ModelDegraded: degraded,
		RulesVersion:  s.cfg.RulesVersion,
		DroppedEvents: 0,
	})
}
