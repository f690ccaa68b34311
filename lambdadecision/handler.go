package lambdadecision

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
	"github.com/byteness/sentinel-fraud/orchestrator"
	"github.com/byteness/sentinel-fraud/txn"
)

// Handler adapts API Gateway v2 HTTP API events onto a single
// Orchestrator, with HandleRequest as the one entry point and no
// net/http in between. Unlike httpapi.Server, it serves only the
// decision endpoint: session and security query/mutation traffic is
// expected to go through the always-on httpapi.Server, not a
// per-invocation Lambda.
type Handler struct {
	Orchestrator *orchestrator.Orchestrator
}

// NewHandler wraps orch in a Handler.
func NewHandler(orch *orchestrator.Orchestrator) *Handler {
	return &Handler{Orchestrator: orch}
}

// decisionRequestBody mirrors httpapi.decisionRequestBody: the wire
// shape of POST /v1/decision.
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

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HandleRequest processes one API Gateway v2 HTTP API decision
// request. It is the Lambda counterpart to httpapi's
// POST /v1/decision handler: same wire shape, same orchestrator call,
// different transport framing.
func (h *Handler) HandleRequest(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	var body decisionRequestBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorResponse(http.StatusBadRequest, sentinelerrors.ErrCodeInput, "could not parse transaction JSON: "+err.Error())
	}
	if body.ID == "" || body.UserID == "" {
		return errorResponse(http.StatusBadRequest, sentinelerrors.ErrCodeInput, "id and user_id are required")
	}

	decisionReq := orchestrator.DecisionRequest{
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
	applyHeaders(req, &decisionReq)

	resp, err := h.Orchestrator.HandleDecisionRequest(ctx, decisionReq)
	if err != nil {
		if rl, ok := err.(*orchestrator.RateLimited); ok {
			retrySeconds := int(rl.RetryAfter/time.Second) + 1
			out, respErr := errorResponse(http.StatusTooManyRequests, sentinelerrors.ErrCodeRateLimited, "too many requests")
			if respErr == nil {
				out.Headers["Retry-After"] = strconv.Itoa(retrySeconds)
			}
			return out, respErr
		}
		// The internal diagnostic stays in the invocation log; callers
		// get only the generic failure.
		return errorResponse(http.StatusInternalServerError, sentinelerrors.ErrCodePipeline, "internal decision pipeline failure")
	}

	return jsonResponse(http.StatusOK, decisionToBody(resp))
}

// applyHeaders maps the test-sentinel headers and source
// keying onto a DecisionRequest, the Lambda counterpart to httpapi's
// applySecurityHeaders. Source defaults to API Gateway's reported
// client address when X-Source-ID is absent.
func applyHeaders(req events.APIGatewayV2HTTPRequest, decisionReq *orchestrator.DecisionRequest) {
	decisionReq.Source = headerValue(req.Headers, "X-Source-ID")
	if decisionReq.Source == "" {
		decisionReq.Source = req.RequestContext.HTTP.SourceIP
	}
	decisionReq.SecurityTestBypass = headerValue(req.Headers, "X-Security-Test") != ""
	decisionReq.AuthFailed = headerValue(req.Headers, "X-Auth-Result") == "failed"
	if n, err := strconv.Atoi(headerValue(req.Headers, "X-Records-Accessed")); err == nil {
		decisionReq.RecordsAccessed = n
	}
	decisionReq.OffHoursOverride = headerValue(req.Headers, "X-Access-Time") == "off-hours"
	decisionReq.PrivilegedEndpoint = headerValue(req.Headers, "X-Endpoint-Type") == "privileged"
}

// headerValue looks up a header case-insensitively; API Gateway v2
// normalizes header casing on the way in but payload-format v1
// integrations and local test fixtures do not always match.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
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

func jsonResponse(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "MARSHAL_ERROR", err.Error())
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:       string(data),
	}, nil
}

func errorResponse(status int, code, message string) (events.APIGatewayV2HTTPResponse, error) {
	data, _ := json.Marshal(errorBody{Code: code, Message: message})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:       string(data),
	}, nil
}
