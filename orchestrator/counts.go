package orchestrator

import (
	"sync"
	"time"

	"github.com/byteness/sentinel-fraud/policy"
	"github.com/byteness/sentinel-fraud/txn"
)

// velocityCounters tracks the two velocity counts the fixed feature
// vector does not itself carry (policy.Counts' DeviceHourly and
// UserHighValueDaily), so Evaluate stays a pure function of its
// arguments. It is deliberately
// shaped like feature.MemoryHistory: a small in-memory rolling window,
// safe for concurrent use, fed by the orchestrator after every
// transaction.
type velocityCounters struct {
	mu      sync.Mutex
	devices map[string][]time.Time
	highVal map[string][]time.Time
}

func newVelocityCounters() *velocityCounters {
	return &velocityCounters{
		devices: make(map[string][]time.Time),
		highVal: make(map[string][]time.Time),
	}
}

// highValueThreshold marks a transaction as "high-value" for the
// per-day high-value velocity cap, independent of the decision
// combiner's own high-amount review bar.
const highValueThreshold = 1000.0

// Counts reports the counts policy.Evaluate needs as of now, before
// the current transaction is folded in.
func (v *velocityCounters) Counts(tx txn.Transaction, now time.Time) policy.Counts {
	v.mu.Lock()
	defer v.mu.Unlock()

	return policy.Counts{
		DeviceHourly:       countWithin(v.devices[tx.DeviceID], now, time.Hour),
		UserHighValueDaily: countWithin(v.highVal[tx.UserID], now, 24*time.Hour),
	}
}

// Observe folds tx into the rolling windows. Call once per transaction,
// after Counts has been read for that same transaction.
func (v *velocityCounters) Observe(tx txn.Transaction, now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if tx.DeviceID != "" {
		v.devices[tx.DeviceID] = prune(append(v.devices[tx.DeviceID], now), now, time.Hour)
	}
	if tx.Amount > highValueThreshold {
		v.highVal[tx.UserID] = prune(append(v.highVal[tx.UserID], now), now, 24*time.Hour)
	}
}

func countWithin(times []time.Time, now time.Time, window time.Duration) int {
	count := 0
	cutoff := now.Add(-window)
	for _, t := range times {
		if t.After(cutoff) && !t.After(now) {
			count++
		}
	}
	return count
}

func prune(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
