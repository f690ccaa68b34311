package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
	"github.com/byteness/sentinel-fraud/session"
	"github.com/byteness/sentinel-fraud/validate"
)

type sessionBody struct {
	ID                  string   `json:"id"`
	AccountID           string   `json:"account_id"`
	CreatedAt           string   `json:"created_at"`
	LastActivityAt      string   `json:"last_activity_at"`
	TransactionCount    int      `json:"transaction_count"`
	TotalAmount         float64  `json:"total_amount"`
	NewBeneficiaryCount int      `json:"new_beneficiary_count"`
	RiskScore           float64  `json:"risk_score"`
	RiskLevel           string   `json:"risk_level"`
	SignalsTriggered    []string `json:"signals_triggered"`
	Terminated          bool     `json:"terminated"`
	TerminationReason   string   `json:"termination_reason,omitempty"`
	Anomalies           []string `json:"anomalies"`
}

func sessionToBody(s session.Session) sessionBody {
	return sessionBody{
		ID:                  s.ID,
		AccountID:           s.AccountID,
		CreatedAt:           s.CreatedAt.Format(time.RFC3339),
		LastActivityAt:      s.LastActivityAt.Format(time.RFC3339),
		TransactionCount:    s.TransactionCount,
		TotalAmount:         s.TotalAmount,
		NewBeneficiaryCount: s.NewBeneficiaryCount,
		RiskScore:           s.RiskScore,
		RiskLevel:           string(s.RiskLevel()),
		SignalsTriggered:    nonNil(s.SignalsTriggered),
		Terminated:          s.Terminated,
		TerminationReason:   s.TerminationReason,
		Anomalies:           nonNil(s.Anomalies),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Server) handleSessionsActive(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "session store is not configured")
		return
	}
	limit := queryInt(r, "limit", session.DefaultQueryLimit)
	sessions, err := s.cfg.Sessions.ListActive(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSessionBodies(sessions))
}

func (s *Server) handleSessionsSuspicious(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "session store is not configured")
		return
	}
	minRisk := queryFloat(r, "min_risk_score", 0)
	sessions, err := s.cfg.Sessions.ListSuspicious(r.Context(), minRisk, session.DefaultQueryLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodeStore, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSessionBodies(sessions))
}

func toSessionBodies(sessions []session.Session) []sessionBody {
	out := make([]sessionBody, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionToBody(sess))
	}
	return out
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "session store is not configured")
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sess, err := s.cfg.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionToBody(sess))
}

type sessionRiskResponseBody struct {
	SessionID        string   `json:"session_id"`
	RiskScore        float64  `json:"risk_score"`
	RiskLevel        string   `json:"risk_level"`
	SignalsTriggered []string `json:"signals_triggered"`
	Anomalies        []string `json:"anomalies"`
	Terminated       bool     `json:"terminated"`
}

func (s *Server) handleSessionRisk(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "session store is not configured")
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sess, err := s.cfg.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionRiskResponseBody{
		SessionID:        sess.ID,
		RiskScore:        sess.RiskScore,
		RiskLevel:        string(sess.RiskLevel()),
		SignalsTriggered: nonNil(sess.SignalsTriggered),
		Anomalies:        nonNil(sess.Anomalies),
		Terminated:       sess.Terminated,
	})
}

type terminateSessionBody struct {
	Reason    string `json:"reason"`
	AnalystID string `json:"analyst_id"`
}

func (s *Server) handleSessionTerminate(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "session store is not configured")
		return
	}
	var body terminateSessionBody
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
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sess, err := s.cfg.Sessions.Terminate(r.Context(), id, body.Reason, body.AnalystID, time.Now())
	if err != nil {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
		return
	}
	if s.cfg.Events != nil {
		s.cfg.Events.RecordAudit(r.Context(), body.AnalystID, "terminate_session", sess.ID, true,
			map[string]string{"reason": validate.SanitizeForLog(body.Reason, 256)})
	}
	writeJSON(w, http.StatusOK, sessionToBody(sess))
}
