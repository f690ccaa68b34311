package testutil

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/byteness/sentinel-fraud/txn"
)

// ============================================================================
// Time helpers
// ============================================================================

// MustParseTime parses a time string using the given layout and panics on error.
// Useful for test data initialization where parse errors indicate a test bug.
//
// Example:
//
//	t := MustParseTime(time.RFC3339, "2024-01-15T10:00:00Z")
func MustParseTime(layout, value string) time.Time {
	t, err := time.Parse(layout, value)
	if err != nil {
		panic("testutil.MustParseTime: " + err.Error())
	}
	return t
}

// FixedClock returns a function that always returns the given time.
// Useful for testing time-dependent logic with deterministic values.
//
// Example:
//
//	now := time.Now()
//	clock := FixedClock(now)
//	// clock() always returns now
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}

// ============================================================================
// Transaction helpers
// ============================================================================

// MakeTransaction creates a test transaction with sensible defaults.
//
// Example:
//
//	tx := MakeTransaction("alice", 100.0)
func MakeTransaction(userID string, amount float64) txn.Transaction {
	return txn.Transaction{
		ID:         "tx-" + userID,
		UserID:     userID,
		DeviceID:   "device-" + userID,
		SourceIP:   "203.0.113.1",
		MerchantID: "merchant-test",
		Amount:     amount,
		Currency:   "USD",
		Timestamp:  time.Now(),
		Location:   "US",
		SessionID:  "session-" + userID,
		Metadata:   map[string]any{},
	}
}

// MakeTransactionWithBeneficiary creates a test transaction naming a new
// beneficiary, useful for exercising new-beneficiary feature logic.
//
// Example:
//
//	tx := MakeTransactionWithBeneficiary("alice", 100.0, "bob")
func MakeTransactionWithBeneficiary(userID string, amount float64, beneficiary string) txn.Transaction {
	tx := MakeTransaction(userID, amount)
	tx.Beneficiary = beneficiary
	tx.IsNewBeneficiary = true
	return tx
}

// MakeAllowDecision creates a test decision with an allow outcome.
//
// Example:
//
//	d := MakeAllowDecision()
func MakeAllowDecision() txn.Decision {
	return txn.Decision{
		Code:      txn.Allow,
		Score:     0.01,
		LatencyMS: 1.0,
	}
}

// MakeBlockDecision creates a test decision with a block outcome and the
// given triggered rule names.
//
// Example:
//
//	d := MakeBlockDecision("velocity_user_hourly")
func MakeBlockDecision(triggeredRules ...string) txn.Decision {
	return txn.Decision{
		Code:  txn.Block,
		Score: 0.98,
		Rule: txn.RuleResult{
			Triggered:   triggeredRules,
			HardOutcome: txn.HardOutcomeBlock,
		},
		Reasons:   triggeredRules,
		LatencyMS: 2.0,
	}
}

// ============================================================================
// Assertion helpers
// ============================================================================

// AssertErrorIs checks if got error matches want error using errors.Is.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertErrorIs(t, err, txn.ErrInvalidTransaction)
func AssertErrorIs(t *testing.T, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("error mismatch:\n  got:  %v\n  want: %v", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertNoError(t, err)
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertError(t, err)
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertContains checks if got string contains substr.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertContains(t, err.Error(), "not found")
func AssertContains(t *testing.T, got, substr string) {
	t.Helper()
	if !strings.Contains(got, substr) {
		t.Errorf("string does not contain expected substring:\n  got:    %q\n  substr: %q", got, substr)
	}
}

// AssertNotContains checks if got string does not contain substr.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertNotContains(t, output, "error")
func AssertNotContains(t *testing.T, got, substr string) {
	t.Helper()
	if strings.Contains(got, substr) {
		t.Errorf("string contains unexpected substring:\n  got:    %q\n  substr: %q", got, substr)
	}
}

// AssertEqual checks if got equals want.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertEqual(t, result.Code, txn.Block)
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("value mismatch:\n  got:  %v\n  want: %v", got, want)
	}
}

// AssertNotEqual checks if got does not equal want.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertNotEqual(t, result.ID, "")
func AssertNotEqual[T comparable](t *testing.T, got, notWant T) {
	t.Helper()
	if got == notWant {
		t.Errorf("value should not be: %v", got)
	}
}

// AssertTrue fails if condition is false.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertTrue(t, result.HasIssues())
func AssertTrue(t *testing.T, condition bool, msg ...string) {
	t.Helper()
	if !condition {
		if len(msg) > 0 {
			t.Errorf("expected true: %s", msg[0])
		} else {
			t.Error("expected true, got false")
		}
	}
}

// AssertFalse fails if condition is true.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertFalse(t, result.HasIssues())
func AssertFalse(t *testing.T, condition bool, msg ...string) {
	t.Helper()
	if condition {
		if len(msg) > 0 {
			t.Errorf("expected false: %s", msg[0])
		} else {
			t.Error("expected false, got true")
		}
	}
}

// AssertNil fails if value is not nil.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertNil(t, result.Error)
func AssertNil(t *testing.T, value interface{}) {
	t.Helper()
	if value != nil {
		t.Errorf("expected nil, got: %v", value)
	}
}

// AssertNotNil fails if value is nil.
// Uses t.Helper() for correct line number reporting.
//
// Example:
//
//	AssertNotNil(t, result.Decision)
func AssertNotNil(t *testing.T, value interface{}) {
	t.Helper()
	if value == nil {
		t.Error("expected non-nil value, got nil")
	}
}

// ============================================================================
// String helpers
// ============================================================================

// Ptr returns a pointer to the given value.
// Useful for constructing test data with pointer fields.
//
// Example:
//
//	input := &dynamodb.GetItemInput{TableName: testutil.Ptr("my-table")}
func Ptr[T any](v T) *T {
	return &v
}
