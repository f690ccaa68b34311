// Package audit cross-checks Sentinel's local audit trail against
// CloudTrail. Analyst actions recorded locally (unblocks, tier
// changes, session terminations, event reviews) are made through
// AWS-authenticated consoles, so each should have corresponding
// CloudTrail API activity from the same principal; a local row with no
// CloudTrail activity nearby, or a CloudTrail write to a Sentinel
// table with no local row, is a tamper indicator worth a SOC look.
package audit

import "time"

// Severity indicates how serious a verification issue is.
type Severity string

const (
	// SeverityWarning indicates an issue that should be investigated.
	SeverityWarning Severity = "warning"
	// SeverityCritical indicates an issue that requires immediate attention.
	SeverityCritical Severity = "critical"
)

// IssueType categorizes verification issues.
type IssueType string

const (
	// IssueTypeUncorroboratedAction is a local analyst audit row with
	// no CloudTrail activity from that principal near its timestamp.
	IssueTypeUncorroboratedAction IssueType = "uncorroborated_action"
	// IssueTypeOutOfBandWrite is a CloudTrail-observed write to a
	// watched Sentinel table by a principal with no local audit row
	// near that time.
	IssueTypeOutOfBandWrite IssueType = "out_of_band_write"
)

// Issue represents a single finding from the verification sweep.
type Issue struct {
	Severity Severity
	Type     IssueType
	Actor    string
	Action   string
	Resource string
	At       time.Time
	Message  string
}

// VerifyInput configures a verification sweep.
type VerifyInput struct {
	StartTime time.Time
	EndTime   time.Time

	// Actor narrows the sweep to one analyst (the CloudTrail username
	// and the local audit actor). Empty sweeps every analyst.
	Actor string

	// WatchedTables are the Sentinel DynamoDB table names whose
	// CloudTrail write events are checked for local corroboration.
	WatchedTables []string
}

// Result contains the outcome of a verification sweep.
type Result struct {
	StartTime time.Time
	EndTime   time.Time

	// LocalActions is how many analyst audit rows fell in the window.
	LocalActions int
	// TrailEvents is how many CloudTrail events were examined.
	TrailEvents int
	// Corroborated is how many local actions had matching CloudTrail
	// activity.
	Corroborated int

	Issues []Issue
}
