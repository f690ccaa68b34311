package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
	"github.com/byteness/sentinel-fraud/orchestrator"
	"github.com/byteness/sentinel-fraud/txn"
)

// decisionRequestBody is the wire shape of POST /v1/decision.
type decisionRequestBody struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	DeviceID         string         `json:"device_id"`
	SourceIP         string         `json:"source_ip"`
	MerchantID       string         `json:"merchant_id"`
	Amount           float64        `json:"amount"`
	Currency         string         `json:"currency"`
	Timestamp        time.Time      `json:"timestamp"`
	Location         string         `json:"location"`
	Beneficiary      string         `json:"beneficiary"`
	IsNewBeneficiary bool           `json:"is_new_beneficiary"`
	SessionID        string         `json:"session_id"`
	Metadata         map[string]any `json:"metadata"`
}

type featureContributionBody struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

type sessionRiskBody struct {
	SessionID         string   `json:"session_id"`
	RiskScore         float64  `json:"risk_score"`
	SignalsTriggered  []string `json:"signals_triggered"`
	AnomaliesDetected []string `json:"anomalies_detected"`
	IsTerminated      bool     `json:"is_terminated"`
	TerminationReason string   `json:"termination_reason,omitempty"`
	TransactionCount  int      `json:"transaction_count"`
}

// decisionResponseBody is the wire shape of a decision reply. The
// outcome is present twice: decision_code carries the fixed integer
// discriminant, decision its readable alias, since external callers
// have been seen to expect either one.
type decisionResponseBody struct {
	DecisionCode int                       `json:"decision_code"`
	Decision     string                    `json:"decision"`
	Score        float64                   `json:"score"`
	MLScore      float64                   `json:"ml_score"`
	RuleFlags    []string                  `json:"rule_flags"`
	Reasons      []string                  `json:"reasons"`
	LatencyMS    float64                   `json:"latency_ms"`
	TopFeatures  []featureContributionBody `json:"top_features"`
	SessionRisk  *sessionRiskBody          `json:"session_risk,omitempty"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var body decisionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, "could not parse transaction JSON: "+err.Error())
		return
	}
	if body.ID == "" || body.UserID == "" {
		writeError(w, http.StatusBadRequest, sentinelerrors.ErrCodeInput, "id and user_id are required")
		return
	}

	req := orchestrator.DecisionRequest{
		Transaction: txn.Transaction{
			ID:               body.ID,
			UserID:           body.UserID,
			DeviceID:         body.DeviceID,
			SourceIP:         body.SourceIP,
			MerchantID:       body.MerchantID,
			Amount:           body.Amount,
			Currency:         body.Currency,
			Timestamp:        body.Timestamp,
			Location:         body.Location,
			Beneficiary:      body.Beneficiary,
			IsNewBeneficiary: body.IsNewBeneficiary,
			SessionID:        body.SessionID,
			Metadata:         body.Metadata,
		},
		Endpoint: "POST /v1/decision",
	}
	applySecurityHeaders(r, &req)

	resp, err := s.cfg.Orchestrator.HandleDecisionRequest(r.Context(), req)
	if err != nil {
		if rl, ok := err.(*orchestrator.RateLimited); ok {
			writeRateLimited(w, int(rl.RetryAfter/time.Second)+1)
			return
		}
		// The internal diagnostic stays in the server log and audit
		// trail; callers get only the generic failure.
		writeError(w, http.StatusInternalServerError, sentinelerrors.ErrCodePipeline, "internal decision pipeline failure")
		return
	}

	writeJSON(w, http.StatusOK, decisionToBody(resp))
}

// applySecurityHeaders maps the test-sentinel headers onto a
// DecisionRequest. Source defaults to the caller's network address
// when X-Source-ID is absent.
func applySecurityHeaders(r *http.Request, req *orchestrator.DecisionRequest) {
	req.Source = r.Header.Get("X-Source-ID")
	if req.Source == "" {
		req.Source = r.RemoteAddr
	}
	req.SecurityTestBypass = r.Header.Get("X-Security-Test") != ""
	req.AuthFailed = r.Header.Get("X-Auth-Result") == "failed"
	if n, err := strconv.Atoi(r.Header.Get("X-Records-Accessed")); err == nil {
		req.RecordsAccessed = n
	}
	req.OffHoursOverride = r.Header.Get("X-Access-Time") == "off-hours"
	req.PrivilegedEndpoint = r.Header.Get("X-Endpoint-Type") == "privileged"
}

func decisionToBody(resp orchestrator.DecisionResponse) decisionResponseBody {
	d := resp.Decision
	top := make([]featureContributionBody, 0, len(d.TopFeatures))
	for _, f := range d.TopFeatures {
		top = append(top, featureContributionBody{Name: f.Feature, Value: f.Value, Contribution: f.Contribution})
	}

	body := decisionResponseBody{
		DecisionCode: int(d.Code),
		Decision:     d.Code.String(),
		Score:        d.Score,
		MLScore:      d.ML.CalibratedProbability,
		RuleFlags:    d.Rule.Triggered,
		Reasons:      d.Reasons,
		LatencyMS:    d.LatencyMS,
		TopFeatures:  top,
	}
	if resp.SessionRisk != nil {
		sr := resp.SessionRisk
		body.SessionRisk = &sessionRiskBody{
			SessionID:         sr.SessionID,
			RiskScore:         sr.RiskScore,
			SignalsTriggered:  sr.SignalsTriggered,
			AnomaliesDetected: sr.AnomaliesDetected,
			IsTerminated:      sr.IsTerminated,
			TerminationReason: sr.TerminationReason,
			TransactionCount:  sr.TransactionCount,
		}
	}
	if body.RuleFlags == nil {
		body.RuleFlags = []string{}
	}
	if body.Reasons == nil {
		body.Reasons = []string{}
	}
	return body
}
