package logging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/byteness/sentinel-fraud/txn"
)

func TestNewDecisionLogEntry_Allow(t *testing.T) {
	tx := txn.Transaction{
		ID:     "tx-1",
		UserID: "alice",
	}
	decision := txn.Decision{
		Code:      txn.Allow,
		Score:     0.02,
		Reasons:   nil,
		LatencyMS: 3.5,
	}

	entry := NewDecisionLogEntry(tx, decision)

	if entry.Timestamp == "" {
		t.Error("expected non-empty timestamp")
	}
	if entry.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", entry.UserID)
	}
	if entry.Decision != "allow" {
		t.Errorf("Decision = %q, want allow", entry.Decision)
	}
	if _, err := time.Parse("2006-01-02T15:04:05.000Z07:00", entry.Timestamp); err != nil {
		t.Errorf("timestamp should be ISO8601, got error: %v", err)
	}
}

func TestNewDecisionLogEntry_Block(t *testing.T) {
	tx := txn.Transaction{ID: "tx-2", UserID: "bob", DeviceID: "dev-1", SourceIP: "203.0.113.9"}
	decision := txn.Decision{
		Code:  txn.Block,
		Score: 0.97,
		Rule: txn.RuleResult{
			Triggered:   []string{"velocity_user_hourly"},
			HardOutcome: txn.HardOutcomeBlock,
		},
		Reasons:   []string{"velocity_user_hourly", "fraud probability 0.97"},
		LatencyMS: 4.1,
		TopFeatures: []txn.FeatureContribution{
			{Feature: "amount", Value: 9000, Contribution: 0.4},
		},
	}

	entry := NewDecisionLogEntry(tx, decision)

	if entry.Decision != "block" {
		t.Errorf("Decision = %q, want block", entry.Decision)
	}
	if entry.HardOutcome != "block" {
		t.Errorf("HardOutcome = %q, want block", entry.HardOutcome)
	}
	if len(entry.RuleFlags) != 1 || entry.RuleFlags[0] != "velocity_user_hourly" {
		t.Errorf("RuleFlags = %v", entry.RuleFlags)
	}
	if len(entry.TopFeatures) != 1 || entry.TopFeatures[0] != "amount" {
		t.Errorf("TopFeatures = %v", entry.TopFeatures)
	}
}

func TestDecisionLogEntry_JSONMarshal(t *testing.T) {
	tx := txn.Transaction{ID: "tx-3", UserID: "carol"}
	decision := txn.Decision{Code: txn.Monitor, Score: 0.3, LatencyMS: 2.0}

	entry := NewDecisionLogEntry(tx, decision)
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTrip DecisionLogEntry
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if roundTrip.Decision != "monitor" {
		t.Errorf("roundtrip Decision = %q, want monitor", roundTrip.Decision)
	}
}
