package logging

import (
	"time"

	"github.com/byteness/sentinel-fraud/iso8601"
	"github.com/byteness/sentinel-fraud/txn"
)

// DecisionLogEntry captures all context for a fraud decision.
type DecisionLogEntry struct {
	Timestamp     string   `json:"timestamp"`              // ISO8601 format
	TransactionID string   `json:"transaction_id"`         // Transaction identifier
	UserID        string   `json:"user_id"`                // Transaction owner
	DeviceID      string   `json:"device_id,omitempty"`    // Originating device, if known
	SourceIP      string   `json:"source_ip,omitempty"`    // Originating network address
	Decision      string   `json:"decision"`               // "allow", "monitor", "step_up", "review", "block"
	Score         float64  `json:"score"`                  // Combined decision score
	RuleFlags     []string `json:"rule_flags,omitempty"`   // Rule names that triggered
	HardOutcome   string   `json:"hard_outcome,omitempty"` // Rule-forced floor, if any
	Reasons       []string `json:"reasons,omitempty"`      // Human-readable reason chain
	LatencyMS     float64  `json:"latency_ms"`             // End-to-end pipeline latency
	TopFeatures   []string `json:"top_features,omitempty"` // Top-3 contributing feature names
}

// NewDecisionLogEntry creates a DecisionLogEntry from a transaction and the
// decision the pipeline reached for it.
func NewDecisionLogEntry(tx txn.Transaction, decision txn.Decision) DecisionLogEntry {
	entry := DecisionLogEntry{
		Timestamp:     iso8601.Format(time.Now()),
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		DeviceID:      tx.DeviceID,
		SourceIP:      tx.SourceIP,
		Decision:      decision.Code.String(),
		Score:         decision.Score,
		RuleFlags:     decision.Rule.Triggered,
		HardOutcome:   string(decision.Rule.HardOutcome),
		Reasons:       decision.Reasons,
		LatencyMS:     decision.LatencyMS,
	}
	for _, f := range decision.TopFeatures {
		entry.TopFeatures = append(entry.TopFeatures, f.Feature)
	}
	return entry
}
