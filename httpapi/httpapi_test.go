package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/byteness/sentinel-fraud/decision"
	"github.com/byteness/sentinel-fraud/device"
	"github.com/byteness/sentinel-fraud/eventstore"
	"github.com/byteness/sentinel-fraud/feature"
	"github.com/byteness/sentinel-fraud/httpapi"
	"github.com/byteness/sentinel-fraud/orchestrator"
	"github.com/byteness/sentinel-fraud/policy"
	"github.com/byteness/sentinel-fraud/ratelimit"
	"github.com/byteness/sentinel-fraud/security"
	"github.com/byteness/sentinel-fraud/session"
)

func newTestServer(t *testing.T) (*httpapi.Server, *ratelimit.MemoryLimiter, *eventstore.MemoryStore, *session.MemoryStore) {
	t.Helper()
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Free, nil, nil)
	t.Cleanup(func() { limiter.Close() })
	events := eventstore.NewMemoryStore()
	t.Cleanup(events.Close)
	sessions := session.NewMemoryStore()

	orch := orchestrator.New(orchestrator.Config{
		History:     feature.NewMemoryHistory(),
		Devices:     device.NewMemoryRegistry(),
		IPRep:       feature.NewMemoryIPReputation(),
		Rules:       policy.DefaultConfig(),
		Thresholds:  decision.DefaultThresholds(),
		Sessions:    sessions,
		Security:    security.NewMonitor(orchestrator.NewBlocker(events, limiter)),
		Events:      events,
		RateLimiter: limiter,
	})

	srv := httpapi.New(httpapi.Config{
		Orchestrator: orch,
		Sessions:     sessions,
		Events:       events,
		RateLimiter:  limiter,
	})
	return srv, limiter, events, sessions
}

func TestHandleDecision_AllowsCleanTransaction(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	body := []byte(`{"id":"t1","user_id":"u1","amount":25,"timestamp":"2026-01-05T14:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/decision", bytes.NewReader(body))
	req.Header.Set("X-Source-ID", "203.0.113.1")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["decision_code"] != float64(0) {
		t.Errorf("decision_code = %v, want 0", got["decision_code"])
	}
	if got["decision"] != "allow" {
		t.Errorf("decision = %v, want allow", got["decision"])
	}
}

func TestHandleDecision_MissingFieldsReturn400(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/decision", bytes.NewReader([]byte(`{"amount":25}`)))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDecision_RateLimitedReturns429WithRetryAfter(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	source := "198.51.100.20"

	var lastCode int
	var lastRetryAfter string
	for i := 0; i < 15; i++ {
		body := []byte(`{"id":"t` + string(rune('a'+i)) + `","user_id":"u1","amount":5,"timestamp":"2026-01-05T14:00:00Z"}`)
		req := httptest.NewRequest(http.MethodPost, "/v1/decision", bytes.NewReader(body))
		req.Header.Set("X-Source-ID", source)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		lastCode = rec.Code
		lastRetryAfter = rec.Header().Get("Retry-After")
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("final status = %d, want 429", lastCode)
	}
	if lastRetryAfter == "" || lastRetryAfter == "0" {
		t.Errorf("Retry-After = %q, want a positive value", lastRetryAfter)
	}
}

func TestSessionEndpoints_GetAndTerminate(t *testing.T) {
	srv, _, events, sessions := newTestServer(t)

	now := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	if _, err := sessions.RecordTransaction(newCtx(), session.RecordTransactionInput{
		SessionID: "sess1", AccountID: "acct1", Amount: 50, Location: "US", Now: now,
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET session status = %d, want 200", rec.Code)
	}

	termBody := []byte(`{"reason":"analyst review","analyst_id":"analyst-1"}`)
	termReq := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess1/terminate", bytes.NewReader(termBody))
	termRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(termRec, termReq)
	if termRec.Code != http.StatusOK {
		t.Fatalf("terminate status = %d, want 200, body: %s", termRec.Code, termRec.Body.String())
	}

	trail, err := events.AuditTrail(newCtx(), eventstore.AuditFilter{})
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	if len(trail) == 0 {
		t.Error("AuditTrail is empty, want the terminate_session entry recorded")
	}
}

func TestSessionEndpoints_UnknownSessionReturns404(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSecurityHealth_ReportsOK(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/security/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got map[string]any
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["status"] != "ok" {
		t.Errorf("status field = %v, want ok", got["status"])
	}
}

func TestSecurityRateLimitTier_UpdatesTier(t *testing.T) {
	srv, limiter, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/security/rate-limits/source-1/tier?tier=premium&analyst_id=analyst-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	obs, err := limiter.Status(newCtx(), "source-1", time.Now())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if obs.Tier != ratelimit.Premium {
		t.Errorf("Tier = %v, want Premium", obs.Tier)
	}
}

func TestSecuritySourcesBlocked_OnlyListsActiveBlocks(t *testing.T) {
	srv, _, events, _ := newTestServer(t)

	if err := events.RecordBlock(newCtx(), eventstore.BlockedSource{
		Source: "blocked-1", Reason: "auto", Level: security.LevelCritical, Auto: true, BlockedAt: time.Now(),
	}); err != nil {
		t.Fatalf("RecordBlock: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/security/sources/blocked", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0]["source"] != "blocked-1" {
		t.Errorf("blocked sources = %v, want one entry for blocked-1", got)
	}
}

func newCtx() context.Context {
	return context.Background()
}
