package policy

import (
	"math"
	"strconv"
	"strings"

	"github.com/byteness/sentinel-fraud/enforce"
	"github.com/byteness/sentinel-fraud/txn"
)

// Counts carries velocity counters the fixed 15-element feature vector
// does not itself expose (per-device hourly count, per-user count of
// today's high-value transactions). The orchestrator derives these from
// the session/event store and passes them alongside the feature vector so
// Evaluate stays a pure function of its arguments.
type Counts struct {
	DeviceHourly       int
	UserHighValueDaily int
}

// Evaluate runs the deterministic rule set against tx and its feature
// vector, in order, short-circuiting on the first BLOCK hard outcome
// (spec's "once a BLOCK hard-outcome is produced, no further rules are
// evaluated"). Triggered-rule names are stable and used as log keys.
func (c Config) Evaluate(tx txn.Transaction, fv txn.FeatureVector, counts Counts) txn.RuleResult {
	var result txn.RuleResult

	if c.denyListHit(tx) {
		result.Triggered = append(result.Triggered, "deny_list")
		result.HardOutcome = txn.HardOutcomeBlock
		result.Reasons = append(result.Reasons, "source matched a deny list entry")
		return result
	}

	if fv[txn.FeatureVelocity1h] >= float64(c.Velocity.UserHourly) {
		result.Triggered = append(result.Triggered, "velocity_user_hourly")
		result.HardOutcome = txn.HardOutcomeBlock
		result.Reasons = append(result.Reasons, "user exceeded hourly transaction cap")
		return result
	}
	if fv[txn.FeatureVelocity1d] >= float64(c.Velocity.UserDaily) {
		result.Triggered = append(result.Triggered, "velocity_user_daily")
		result.HardOutcome = txn.HardOutcomeBlock
		result.Reasons = append(result.Reasons, "user exceeded daily transaction cap")
		return result
	}
	if counts.DeviceHourly >= c.Velocity.DeviceHourly {
		result.Triggered = append(result.Triggered, "velocity_device_hourly")
		result.HardOutcome = txn.HardOutcomeBlock
		result.Reasons = append(result.Reasons, "device exceeded hourly transaction cap")
		return result
	}
	if counts.UserHighValueDaily >= c.Velocity.HighValueDaily {
		result.Triggered = append(result.Triggered, "velocity_high_value_daily")
		result.HardOutcome = txn.HardOutcomeBlock
		result.Reasons = append(result.Reasons, "user exceeded daily high-value transaction cap")
		return result
	}

	distanceKm := fv[txn.FeatureDistanceFromMode]
	// The extractor does not expose inter-transaction gaps, so every move is
	// taken to span 2h: at the default 500 km/h only distances over 1000 km block.
	hoursSinceLastLocation := 2.0
	if distanceKm > 0 && distanceKm/hoursSinceLastLocation > c.Geo.ImpossibleTravelKmh {
		result.Triggered = append(result.Triggered, "impossible_travel")
		result.HardOutcome = txn.HardOutcomeBlock
		result.Reasons = append(result.Reasons, "implied travel speed exceeds possibility")
		return result
	}
	if distanceKm > c.Geo.DistanceKmReview {
		result.Triggered = append(result.Triggered, "distance_from_mode")
		result.HardOutcome = maxOutcome(result.HardOutcome, txn.HardOutcomeReviewMinimum)
		result.Reasons = append(result.Reasons, "transaction location far from usual location")
	}

	hour := int(fv[txn.FeatureHourOfDay])
	if inNightWindow(hour, c.Time.NightWindowStart, c.Time.NightWindowEnd) {
		result.Triggered = append(result.Triggered, "night_window")
	}

	if fv[txn.FeatureDeviceNew] == 1 && isFirstTransaction(fv) && tx.Amount > c.Amount.FirstTransactionStepUp {
		result.Triggered = append(result.Triggered, "first_transaction_high_amount")
		result.HardOutcome = maxOutcome(result.HardOutcome, txn.HardOutcomeStepUpMinimum)
		result.Reasons = append(result.Reasons, "first transaction on this device above step-up threshold")
	}
	if tx.Amount > c.Amount.ReviewAbsolute {
		result.Triggered = append(result.Triggered, "amount_absolute")
		result.HardOutcome = maxOutcome(result.HardOutcome, txn.HardOutcomeReviewMinimum)
		result.Reasons = append(result.Reasons, "amount exceeds absolute review threshold")
	}
	if meanSpend := denormalizeMeanSpend(fv); meanSpend > 0 && tx.Amount > meanSpend*c.Amount.ReviewMultiplierOfMean {
		result.Triggered = append(result.Triggered, "amount_vs_mean")
		result.HardOutcome = maxOutcome(result.HardOutcome, txn.HardOutcomeReviewMinimum)
		result.Reasons = append(result.Reasons, "amount far exceeds user's average spend")
	}

	for _, rule := range c.CustomRules {
		if !rule.Conditions.matches(tx) {
			continue
		}
		result.Triggered = append(result.Triggered, rule.Name)
		if rule.Reason != "" {
			result.Reasons = append(result.Reasons, rule.Reason)
		}
		switch rule.Effect {
		case EffectDeny:
			result.HardOutcome = txn.HardOutcomeBlock
			return result
		case EffectAllow:
			result.HardOutcome = maxOutcome(result.HardOutcome, txn.HardOutcomeAllowOnly)
		}
	}

	return result
}

// matches reports whether tx satisfies every condition set on c. Unset
// fields match anything.
func (c Condition) matches(tx txn.Transaction) bool {
	if len(c.Users) > 0 && !enforce.MatchAny(c.Users, tx.UserID) {
		return false
	}
	if len(c.Merchants) > 0 && !enforce.MatchAny(c.Merchants, tx.MerchantID) {
		return false
	}
	if c.Time != nil && !c.Time.matches(tx.Timestamp.Hour(), weekdayOf(tx)) {
		return false
	}
	return true
}

func weekdayOf(tx txn.Transaction) Weekday {
	switch tx.Timestamp.Weekday().String() {
	case "Monday":
		return Monday
	case "Tuesday":
		return Tuesday
	case "Wednesday":
		return Wednesday
	case "Thursday":
		return Thursday
	case "Friday":
		return Friday
	case "Saturday":
		return Saturday
	default:
		return Sunday
	}
}

// matches reports whether the given hour-of-day and weekday fall inside w.
func (w TimeWindow) matches(hour int, day Weekday) bool {
	if len(w.Days) > 0 {
		found := false
		for _, d := range w.Days {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if w.Hours != nil {
		start := parseHour(w.Hours.Start)
		end := parseHour(w.Hours.End)
		if !inNightWindow(hour, start, end) {
			return false
		}
	}
	return true
}

func parseHour(hhmm string) int {
	h, _, found := strings.Cut(hhmm, ":")
	if !found {
		return 0
	}
	v, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return v
}

// denyListHit reports whether the transaction's user, device, source
// address, or merchant matches a configured deny-list pattern.
func (c Config) denyListHit(tx txn.Transaction) bool {
	return enforce.MatchAny(c.DenyList.Users, tx.UserID) ||
		enforce.MatchAny(c.DenyList.Devices, tx.DeviceID) ||
		enforce.MatchAny(c.DenyList.IPs, tx.SourceIP) ||
		enforce.MatchAny(c.DenyList.Merchants, tx.MerchantID)
}

// outcomeRank orders hard outcomes from least to most severe so a later
// rule never downgrades an outcome an earlier rule already set.
var outcomeRank = map[txn.HardOutcome]int{
	txn.HardOutcomeNone:          0,
	txn.HardOutcomeAllowOnly:     1,
	txn.HardOutcomeStepUpMinimum: 2,
	txn.HardOutcomeReviewMinimum: 3,
	txn.HardOutcomeBlock:         4,
}

func maxOutcome(a, b txn.HardOutcome) txn.HardOutcome {
	if outcomeRank[b] > outcomeRank[a] {
		return b
	}
	return a
}

func inNightWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	// wraps past midnight, e.g. 22-5
	return hour >= start || hour <= end
}

// isFirstTransaction treats an unknown device with zero reuse count as a
// signal of a brand-new device/account pairing.
func isFirstTransaction(fv txn.FeatureVector) bool {
	return fv[txn.FeatureDeviceReuseCount] == 0
}

// denormalizeMeanSpend reverses the extractor's log1p normalisation to
// recover an approximate dollar figure for the amount-vs-mean rule.
func denormalizeMeanSpend(fv txn.FeatureVector) float64 {
	return math.Expm1(fv[txn.FeatureMeanSpend30d])
}
