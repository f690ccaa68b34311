// Package txn defines the data model shared by every stage of the decision
// pipeline: the inbound Transaction, the feature vector derived from it, the
// intermediate rule and model outputs, and the final Decision. These types
// are treated as immutable once constructed and are safe to share across
// concurrent requests.
package txn

import "time"

// FeatureCount is the fixed width of a FeatureVector.
const FeatureCount = 15

// Feature vector slot indices, in the fixed order produced by the
// feature extractor and consumed opaquely by the ML scorer.
const (
	FeatureAmount = iota
	FeatureAmountPercentile
	FeatureHourOfDay
	FeatureDayOfWeek
	FeatureDeviceNew
	FeatureDistanceFromMode
	FeatureIPRisk
	FeatureVelocity1h
	FeatureVelocity1d
	FeatureAccountAgeDays
	FeatureFailedLogins15m
	FeatureMeanSpend30d
	FeatureStdSpend30d
	FeatureNeighbourRisk
	FeatureDeviceReuseCount
)

// FeatureNames gives the stable log-key name for each feature slot, in
// FeatureVector order.
var FeatureNames = [FeatureCount]string{
	"amount",
	"amount_percentile_vs_history",
	"hour_of_day",
	"day_of_week",
	"device_new",
	"distance_from_mode_location",
	"ip_asn_risk",
	"velocity_1h",
	"velocity_1d",
	"account_age_days",
	"failed_logins_15m",
	"mean_spend_30d",
	"std_spend_30d",
	"neighbour_risk",
	"device_reuse_count",
}

// FeatureVector is the fixed 15-element numeric summary of a transaction
// and its surrounding history. It is produced once per transaction and
// treated as opaque by the ML scorer.
type FeatureVector [FeatureCount]float64

// Transaction is the immutable input to the decision pipeline. It is
// created by the caller, consumed by the pipeline, and never mutated.
type Transaction struct {
	ID               string
	UserID           string
	DeviceID         string
	SourceIP         string
	MerchantID       string
	Amount           float64
	Currency         string
	Timestamp        time.Time
	Location         string
	Beneficiary      string
	IsNewBeneficiary bool
	SessionID        string
	Metadata         map[string]any
}

// HardOutcome is the deterministic floor a rule match can force on a
// decision, independent of the ML score.
type HardOutcome string

const (
	// HardOutcomeNone means no rule forced an outcome.
	HardOutcomeNone HardOutcome = ""
	// HardOutcomeAllowOnly caps the decision at Allow regardless of score.
	HardOutcomeAllowOnly HardOutcome = "allow-only"
	// HardOutcomeStepUpMinimum forces at least a StepUp decision.
	HardOutcomeStepUpMinimum HardOutcome = "step-up-minimum"
	// HardOutcomeReviewMinimum forces at least a Review decision.
	HardOutcomeReviewMinimum HardOutcome = "review-minimum"
	// HardOutcomeBlock forces a Block decision and ends rule evaluation.
	HardOutcomeBlock HardOutcome = "block"
)

// RuleResult is the output of the rules engine: the set of rule
// identifiers that fired, any hard outcome they forced, and why.
type RuleResult struct {
	Triggered   []string
	HardOutcome HardOutcome
	Reasons     []string
}

// FeatureContribution names a single feature's contribution to an ML
// score, used for the top-3 explanation attached to a Decision.
type FeatureContribution struct {
	Feature      string
	Value        float64
	Contribution float64
}

// MLScore is the output of the model runtime: raw and calibrated
// probabilities plus the most influential features.
type MLScore struct {
	RawProbability        float64
	CalibratedProbability float64
	TopFeatures           []FeatureContribution
}

// Code is the final decision code, increasing in strictness.
type Code int

const (
	// Allow admits the transaction with no further action.
	Allow Code = iota
	// Monitor admits the transaction but flags it for passive review.
	Monitor
	// StepUp requires the caller to complete step-up authentication.
	StepUp
	// Review holds the transaction for analyst disposition.
	Review
	// Block rejects the transaction outright.
	Block
)

// String renders the decision code's readable alias.
func (c Code) String() string {
	switch c {
	case Allow:
		return "allow"
	case Monitor:
		return "monitor"
	case StepUp:
		return "step_up"
	case Review:
		return "review"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Decision is the final output of the decision pipeline for a single
// transaction.
type Decision struct {
	Code        Code
	Score       float64
	Reasons     []string
	LatencyMS   float64
	TopFeatures []FeatureContribution
	Rule        RuleResult
	ML          MLScore
}
