// Package behavior scores a transaction session for account-takeover
// style behavior: a burst of abnormal activity inside a single session
// that no single transaction's rules/ML evaluation would catch in
// isolation. Grounded in the pack's risk-engine rule-evaluation idiom
// (threshold predicates each independently contributing a fixed score,
// accumulated into a capped total with a parallel triggered-signal
// list) adapted here to a fixed five-signal table instead of a
// DB-driven rule set.
package behavior

import (
	"fmt"
	"time"
)

// Signal names one of the five behavioral checks.
type Signal string

const (
	SignalAmountDeviation Signal = "amount_deviation"
	SignalBeneficiary     Signal = "beneficiary_changes"
	SignalTimePattern     Signal = "time_pattern"
	SignalVelocity        Signal = "velocity"
	SignalGeolocation     Signal = "geolocation"
)

// Signal weights.
const (
	WeightAmountDeviation = 25
	WeightBeneficiary     = 20
	WeightTimePattern     = 15
	WeightVelocity        = 20
	WeightGeolocation     = 20
)

// Defaults used when a caller omits a user-specific baseline.
const (
	DefaultUserBaselineAmount   = 2500.0
	AmountDeviationSessionMult  = 10.0
	AmountDeviationBaselineMult = 3.0
	BeneficiaryChangeThreshold  = 2
	VelocityCountThreshold      = 10
	NightWindowStartHour        = 23
	NightWindowEndHour          = 6
	ImpossibleTravelWindow      = 2 * time.Hour
)

// Snapshot is the subset of session.Session state the scorer needs. It
// is a plain struct rather than a dependency on the session package so
// behavior stays a pure, independently testable function over values.
type Snapshot struct {
	TransactionCount    int
	TotalAmount         float64
	NewBeneficiaryCount int
	FirstLocation       string
	FirstTransactionAt  time.Time
}

// Candidate is the current transaction being folded into the session.
type Candidate struct {
	Amount       float64
	Location     string
	At           time.Time
	UserBaseline float64 // 0 => DefaultUserBaselineAmount
}

// Result is the scorer's pure output: never mutates, never touches
// persistent state.
type Result struct {
	Score     float64
	Signals   []Signal
	Anomalies []string
}

// RiskLevel mirrors session.LevelForScore without importing the session
// package, keeping behavior free of a dependency cycle.
func (r Result) RiskLevel() string {
	switch {
	case r.Score >= 80:
		return "critical"
	case r.Score >= 60:
		return "high"
	case r.Score >= 30:
		return "elevated"
	default:
		return "low"
	}
}

// Score evaluates all five signals against snap (the session's prior
// state, before folding in cand) and cand (the transaction about to be
// recorded). The snapshot's counters must reflect the state BEFORE this
// transaction: Score is called once per transaction, immediately before
// session.Store.RecordTransaction commits it.
func Score(snap Snapshot, cand Candidate) Result {
	var (
		total     float64
		signals   []Signal
		anomalies []string
	)

	trigger := func(s Signal, weight float64, detail string) {
		total += weight
		signals = append(signals, s)
		anomalies = append(anomalies, fmt.Sprintf("%s:%s", s, detail))
	}

	if amountDeviates(snap, cand) {
		trigger(SignalAmountDeviation, WeightAmountDeviation,
			fmt.Sprintf("amount %.2f far exceeds session/user baseline", cand.Amount))
	}

	if snap.NewBeneficiaryCount > BeneficiaryChangeThreshold {
		trigger(SignalBeneficiary, WeightBeneficiary,
			fmt.Sprintf("%d new beneficiaries in session", snap.NewBeneficiaryCount))
	}

	if inNightWindow(cand.At) {
		trigger(SignalTimePattern, WeightTimePattern,
			fmt.Sprintf("transaction at %02d:%02d local", cand.At.Hour(), cand.At.Minute()))
	}

	if snap.TransactionCount > VelocityCountThreshold {
		trigger(SignalVelocity, WeightVelocity,
			fmt.Sprintf("%d transactions in session", snap.TransactionCount))
	}

	if impossibleTravel(snap, cand) {
		trigger(SignalGeolocation, WeightGeolocation,
			fmt.Sprintf("location changed from %q to %q within %s", snap.FirstLocation, cand.Location, cand.At.Sub(snap.FirstTransactionAt)))
	}

	if total > 100 {
		total = 100
	}
	return Result{Score: total, Signals: signals, Anomalies: anomalies}
}

func amountDeviates(snap Snapshot, cand Candidate) bool {
	baseline := cand.UserBaseline
	if baseline <= 0 {
		baseline = DefaultUserBaselineAmount
	}
	if cand.Amount > AmountDeviationBaselineMult*baseline {
		return true
	}
	if snap.TransactionCount == 0 {
		return false
	}
	mean := snap.TotalAmount / float64(snap.TransactionCount)
	return mean > 0 && cand.Amount > AmountDeviationSessionMult*mean
}

func inNightWindow(at time.Time) bool {
	h := at.Hour()
	return h >= NightWindowStartHour || h < NightWindowEndHour
}

func impossibleTravel(snap Snapshot, cand Candidate) bool {
	if snap.FirstLocation == "" || snap.FirstTransactionAt.IsZero() {
		return false
	}
	if cand.Location == "" || cand.Location == snap.FirstLocation {
		return false
	}
	return cand.At.Sub(snap.FirstTransactionAt) < ImpossibleTravelWindow
}
