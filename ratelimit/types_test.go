package ratelimit

import "testing"

func TestTier_String(t *testing.T) {
	tests := []struct {
		tier Tier
		want string
	}{
		{Free, "free"},
		{Basic, "basic"},
		{Premium, "premium"},
		{Internal, "internal"},
		{Unlimited, "unlimited"},
	}
	for _, tt := range tests {
		if got := tt.tier.String(); got != tt.want {
			t.Errorf("Tier(%d).String() = %q, want %q", tt.tier, got, tt.want)
		}
	}
}

func TestParseTier(t *testing.T) {
	for _, name := range []string{"free", "basic", "premium", "internal", "unlimited"} {
		tier, err := ParseTier(name)
		if err != nil {
			t.Fatalf("ParseTier(%q) error: %v", name, err)
		}
		if tier.String() != name {
			t.Errorf("ParseTier(%q).String() = %q", name, tier.String())
		}
	}
	if _, err := ParseTier("bogus"); err == nil {
		t.Error("expected error for unknown tier name")
	}
}

func TestLimitsFor_DocumentedDefaults(t *testing.T) {
	tests := []struct {
		tier  Tier
		rate  int
		burst int
	}{
		{Free, 20, 10},
		{Basic, 100, 30},
		{Premium, 500, 100},
		{Internal, 1000, 200},
	}
	for _, tt := range tests {
		limits := LimitsFor(tt.tier)
		if limits.RatePerMinute != tt.rate || limits.Burst != tt.burst {
			t.Errorf("LimitsFor(%v) = %+v, want rate=%d burst=%d", tt.tier, limits, tt.rate, tt.burst)
		}
	}
}
