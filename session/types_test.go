package session

import "testing"

func TestNewID(t *testing.T) {
	id := NewID()
	if !ValidID(id) {
		t.Fatalf("generated ID %q does not match the expected shape", id)
	}
	if len(id) != IDLength {
		t.Errorf("expected length %d, got %d", IDLength, len(id))
	}
}

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Fatalf("expected distinct IDs, got %q twice", a)
	}
}

func TestValidID(t *testing.T) {
	cases := map[string]bool{
		"0123456789abcdef": true,
		"0123456789ABCDEF": false,
		"too-short":        false,
		"":                 false,
	}
	for id, want := range cases {
		if got := ValidID(id); got != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestLevelForScore(t *testing.T) {
	cases := []struct {
		score float64
		want  RiskLevel
	}{
		{0, RiskLow},
		{29.9, RiskLow},
		{30, RiskElevated},
		{59.9, RiskElevated},
		{60, RiskHigh},
		{79.9, RiskHigh},
		{80, RiskCritical},
		{100, RiskCritical},
	}
	for _, c := range cases {
		if got := LevelForScore(c.score); got != c.want {
			t.Errorf("LevelForScore(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestSession_RiskLevel(t *testing.T) {
	s := Session{RiskScore: 85}
	if got := s.RiskLevel(); got != RiskCritical {
		t.Errorf("RiskLevel() = %v, want %v", got, RiskCritical)
	}
}
