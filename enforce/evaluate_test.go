package enforce

import "testing"

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, value string
		want           bool
	}{
		{"*", "anything", true},
		{"*", "", true},
		{"merchant-*", "merchant-123", true},
		{"merchant-*", "other-123", false},
		{"dev-???", "dev-abc", true},
		{"dev-???", "dev-ab", false},
		{"192.168.*.*", "192.168.1.5", true},
		{"192.168.*.*", "10.0.0.1", false},
		{"exact", "exact", true},
		{"exact", "Exact", false},
	}
	for _, c := range cases {
		if got := MatchPattern(c.pattern, c.value); got != c.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", c.pattern, c.value, got, c.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"user-a*", "user-b*"}
	if !MatchAny(patterns, "user-a1") {
		t.Error("expected match against user-a*")
	}
	if MatchAny(patterns, "user-c1") {
		t.Error("expected no match")
	}
}

func TestEvaluateCondition(t *testing.T) {
	if !EvaluateCondition("StringLike", "merchant-*", "merchant-9") {
		t.Error("StringLike should match")
	}
	if EvaluateCondition("StringNotLike", "merchant-*", "merchant-9") {
		t.Error("StringNotLike should reject a matching value")
	}
	if !EvaluateCondition("StringEquals", "abc", "abc") {
		t.Error("StringEquals should match identical strings")
	}
	if EvaluateCondition("unknown-op", "a", "a") {
		t.Error("unknown operator should never match")
	}
}
