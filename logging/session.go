package logging

import (
	"time"

	"github.com/byteness/sentinel-fraud/iso8601"
)

// SessionLogEntry captures a session risk-state change.
type SessionLogEntry struct {
	Timestamp         string   `json:"timestamp"`
	SessionID         string   `json:"session_id"`
	AccountID         string   `json:"account_id"`
	RiskScore         float64  `json:"risk_score"`
	SignalsTriggered  []string `json:"signals_triggered,omitempty"`
	TransactionCount  int      `json:"transaction_count"`
	Terminated        bool     `json:"terminated"`
	TerminationReason string   `json:"termination_reason,omitempty"`
}

// NewSessionLogEntry builds a SessionLogEntry from the current session state.
func NewSessionLogEntry(sessionID, accountID string, riskScore float64, signals []string, txCount int, terminated bool, terminationReason string) SessionLogEntry {
	return SessionLogEntry{
		Timestamp:         iso8601.Format(time.Now()),
		SessionID:         sessionID,
		AccountID:         accountID,
		RiskScore:         riskScore,
		SignalsTriggered:  signals,
		TransactionCount:  txCount,
		Terminated:        terminated,
		TerminationReason: terminationReason,
	}
}
