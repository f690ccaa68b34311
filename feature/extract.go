// Package feature derives the fixed-width feature vector the decision
// pipeline runs its rules and model against. Extraction is pure aside from
// three read-only lookups (user history, device registry, IP reputation);
// a missing lookup entry is not an error, it yields the documented default.
package feature

import (
	"math"
	"time"

	"github.com/byteness/sentinel-fraud/txn"
)

// Caps bound the raw inputs before they are written into the vector, so a
// single corrupt or adversarial input cannot dominate downstream scoring.
const (
	maxDistanceKm      = 10000
	maxVelocity1h      = 50
	maxVelocity1d      = 500
	maxAccountAgeDays  = 3650
	maxFailedLogins15m = 10
)

// Documented defaults used when a historical lookup has no entry.
const (
	defaultMeanSpend = 100
	defaultStdSpend  = 50
	defaultIPRisk    = 0.5
)

// UserHistory answers read-only questions about a user's transaction
// history. Implementations must never block the caller indefinitely;
// a lookup miss is reported via the ok return, not an error.
type UserHistory interface {
	// Stats returns the user's rolling 30-day spend mean/std and their
	// current mode (most frequent) transaction location.
	Stats(userID string) (meanSpend, stdSpend float64, modeLocation string, ok bool)
	// AccountAgeDays returns how long the account has existed.
	AccountAgeDays(userID string) (days float64, ok bool)
	// Velocity returns transaction counts in the trailing 1h and 1d windows.
	Velocity(userID string, now time.Time) (count1h, count1d int)
	// FailedLogins15m returns the count of failed logins in the trailing
	// 15 minutes.
	FailedLogins15m(userID string, now time.Time) int
	// AmountPercentile returns where amount falls within the user's
	// historical amount distribution, in [0,1].
	AmountPercentile(userID string, amount float64) (percentile float64, ok bool)
}

// DeviceRegistry answers read-only questions about device identity.
type DeviceRegistry interface {
	// IsKnown reports whether deviceID has been seen for userID before,
	// and how many distinct users have used this device (reuse count).
	IsKnown(userID, deviceID string) (known bool, reuseCount int)
}

// IPReputation answers read-only questions about a source network address.
type IPReputation interface {
	// Risk returns a risk score in [0,1] for the address/ASN, or ok=false
	// if no reputation data is available.
	Risk(sourceIP string) (risk float64, ok bool)
}

// DistanceFunc computes the great-circle distance, in kilometres, between
// two location labels. Implementations resolve labels to coordinates;
// an unresolvable label pair yields 0, not an error.
type DistanceFunc func(a, b string) float64

// Extract derives the fixed 15-element feature vector for tx. Output
// ordering matches txn.FeatureVector exactly and must match the model's
// expected input order.
func Extract(tx txn.Transaction, history UserHistory, devices DeviceRegistry, ips IPReputation, distance DistanceFunc) txn.FeatureVector {
	var fv txn.FeatureVector

	fv[txn.FeatureAmount] = logNormalize(tx.Amount)

	meanSpend, stdSpend, modeLocation, haveStats := history.Stats(tx.UserID)
	if !haveStats {
		meanSpend, stdSpend = defaultMeanSpend, defaultStdSpend
	}
	fv[txn.FeatureMeanSpend30d] = logNormalize(meanSpend)
	fv[txn.FeatureStdSpend30d] = logNormalize(stdSpend)

	if pct, ok := history.AmountPercentile(tx.UserID, tx.Amount); ok {
		fv[txn.FeatureAmountPercentile] = pct
	} else {
		fv[txn.FeatureAmountPercentile] = amountPercentileFallback(tx.Amount, meanSpend, stdSpend)
	}

	fv[txn.FeatureHourOfDay] = float64(tx.Timestamp.Hour())
	fv[txn.FeatureDayOfWeek] = float64(tx.Timestamp.Weekday())

	known := false
	reuseCount := 0
	if devices != nil {
		known, reuseCount = devices.IsKnown(tx.UserID, tx.DeviceID)
	}
	if known {
		fv[txn.FeatureDeviceNew] = 0
	} else {
		fv[txn.FeatureDeviceNew] = 1
	}
	fv[txn.FeatureDeviceReuseCount] = float64(reuseCount)

	if haveStats && modeLocation != "" && distance != nil {
		fv[txn.FeatureDistanceFromMode] = math.Min(distance(modeLocation, tx.Location), maxDistanceKm)
	}

	risk := defaultIPRisk
	if ips != nil {
		if r, ok := ips.Risk(tx.SourceIP); ok {
			risk = r
		}
	}
	fv[txn.FeatureIPRisk] = risk

	count1h, count1d := history.Velocity(tx.UserID, tx.Timestamp)
	fv[txn.FeatureVelocity1h] = math.Min(float64(count1h), maxVelocity1h)
	fv[txn.FeatureVelocity1d] = math.Min(float64(count1d), maxVelocity1d)

	age, haveAge := history.AccountAgeDays(tx.UserID)
	if !haveAge {
		age = 0
	}
	fv[txn.FeatureAccountAgeDays] = math.Min(age, maxAccountAgeDays)

	fv[txn.FeatureFailedLogins15m] = math.Min(float64(history.FailedLogins15m(tx.UserID, tx.Timestamp)), maxFailedLogins15m)

	// Graph/network fraud features are explicitly out of scope; a single
	// placeholder value is returned.
	fv[txn.FeatureNeighbourRisk] = 0

	return fv
}

// logNormalize compresses a non-negative spend value onto a bounded,
// roughly-linear scale so that large outliers do not dominate the model
// input the way the raw dollar amount would.
func logNormalize(v float64) float64 {
	if v < 0 {
		v = 0
	}
	return math.Log1p(v)
}

// amountPercentileFallback estimates a transaction's percentile within a
// normal approximation of the user's spend distribution when no direct
// historical percentile is available.
func amountPercentileFallback(amount, mean, std float64) float64 {
	if std <= 0 {
		std = defaultStdSpend
	}
	z := (amount - mean) / std
	return clamp01(stdNormalCDF(z))
}

func stdNormalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
