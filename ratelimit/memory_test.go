package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_AdmitWithinBurst(t *testing.T) {
	m := NewMemoryLimiter(Free, nil, nil)
	defer m.Close()

	now := time.Now()
	for i := 0; i < 10; i++ {
		obs, err := m.Admit(context.Background(), "src-a", now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !obs.Allowed {
			t.Fatalf("request %d should be allowed within burst of 10, observation=%+v", i, obs)
		}
	}

	obs, err := m.Admit(context.Background(), "src-a", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.Allowed {
		t.Fatal("11th request should exceed Free tier's burst of 10")
	}
}

func TestMemoryLimiter_RefillsOverTime(t *testing.T) {
	m := NewMemoryLimiter(Free, nil, nil)
	defer m.Close()

	now := time.Now()
	for i := 0; i < 10; i++ {
		if obs, _ := m.Admit(context.Background(), "src-a", now); !obs.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if obs, _ := m.Admit(context.Background(), "src-a", now); obs.Allowed {
		t.Fatal("bucket should be empty")
	}

	later := now.Add(3 * time.Second) // Free refills 20/min = 1 token per 3s
	obs, err := m.Admit(context.Background(), "src-a", later)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !obs.Allowed {
		t.Fatalf("expected a refilled token after 3s, observation=%+v", obs)
	}
}

func TestMemoryLimiter_UnlimitedBypasses(t *testing.T) {
	m := NewMemoryLimiter(Unlimited, nil, nil)
	defer m.Close()

	now := time.Now()
	for i := 0; i < 1000; i++ {
		obs, err := m.Admit(context.Background(), "src-a", now)
		if err != nil || !obs.Allowed {
			t.Fatalf("unlimited tier should never deny, iteration %d observation=%+v err=%v", i, obs, err)
		}
	}
}

func TestMemoryLimiter_RepeatedViolationsTriggerBlock(t *testing.T) {
	m := NewMemoryLimiter(Free, nil, nil)
	defer m.Close()

	now := time.Now()
	for i := 0; i < 10; i++ {
		m.Admit(context.Background(), "src-a", now)
	}

	var last Observation
	for i := 0; i < 3; i++ {
		obs, _ := m.Admit(context.Background(), "src-a", now)
		last = obs
	}
	if !last.Blocked {
		t.Fatalf("expected source to be blocked after 3 violations, got %+v", last)
	}
	if last.RetryAfter <= 0 {
		t.Error("blocked observation should carry a positive RetryAfter")
	}
}

func TestMemoryLimiter_SetTierIsIdempotent(t *testing.T) {
	m := NewMemoryLimiter(Free, nil, nil)
	defer m.Close()

	if err := m.SetTier(context.Background(), "src-a", Premium, "analyst-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.SetTier(context.Background(), "src-a", Premium, "analyst-1"); err != nil {
		t.Fatalf("unexpected error on repeat SetTier: %v", err)
	}

	now := time.Now()
	obs, _ := m.Admit(context.Background(), "src-a", now)
	if obs.Tier != Premium {
		t.Errorf("Tier = %v, want Premium after SetTier", obs.Tier)
	}
}

func TestMemoryLimiter_ResetClearsBlockAndViolations(t *testing.T) {
	m := NewMemoryLimiter(Free, nil, nil)
	defer m.Close()

	now := time.Now()
	for i := 0; i < 13; i++ {
		m.Admit(context.Background(), "src-a", now)
	}
	obs, _ := m.Admit(context.Background(), "src-a", now)
	if !obs.Blocked {
		t.Fatal("setup: expected source to be blocked before reset")
	}

	if err := m.Reset(context.Background(), "src-a", "analyst-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obs2, _ := m.Admit(context.Background(), "src-a", now)
	if !obs2.Allowed {
		t.Errorf("expected a fresh bucket after Reset, got %+v", obs2)
	}
}

type recordingAuditor struct {
	entries []string
}

func (r *recordingAuditor) RecordAudit(ctx context.Context, actor, action, resource string, success bool, metadata map[string]string) {
	r.entries = append(r.entries, actor+":"+action+":"+resource)
}

func TestMemoryLimiter_MutationsEmitAuditEntries(t *testing.T) {
	audit := &recordingAuditor{}
	m := NewMemoryLimiter(Free, nil, audit)
	defer m.Close()

	m.SetTier(context.Background(), "src-a", Basic, "analyst-1")
	m.Reset(context.Background(), "src-a", "analyst-1")

	if len(audit.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %v", audit.entries)
	}
}
