// Package decision combines the deterministic output of the rules
// engine with the calibrated probability from the model runtime into a
// single final Decision, following a fixed, ordered decision table.
package decision

import (
	"fmt"

	"github.com/byteness/sentinel-fraud/txn"
)

// Thresholds are the calibrated-probability cut points and the
// high-amount bar the combiner table is evaluated against. They are
// external configuration, loaded from the same signed document as the
// rules engine config.
type Thresholds struct {
	Block                float64
	Review               float64
	StepUp               float64
	Monitor              float64
	HighAmount           float64
	HighAmountCalibrated float64
}

// DefaultThresholds returns the combiner's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Block:                0.90,
		Review:               0.75,
		StepUp:               0.55,
		Monitor:              0.35,
		HighAmount:           5000,
		HighAmountCalibrated: 0.70,
	}
}

// Validate reports whether the thresholds are internally consistent.
func (t Thresholds) Validate() error {
	if !(0 <= t.Monitor && t.Monitor <= t.StepUp && t.StepUp <= t.Review && t.Review <= t.Block && t.Block <= 1) {
		return fmt.Errorf("decision: thresholds must satisfy 0 <= monitor <= step_up <= review <= block <= 1, got %+v", t)
	}
	if t.HighAmountCalibrated < 0 || t.HighAmountCalibrated > 1 {
		return fmt.Errorf("decision: high_amount_calibrated must be in [0,1], got %v", t.HighAmountCalibrated)
	}
	if t.HighAmount <= 0 {
		return fmt.Errorf("decision: high_amount must be positive, got %v", t.HighAmount)
	}
	return nil
}

type row struct {
	code   txn.Code
	name   string
	mlUsed bool
}

// evaluateRows walks the decision table top to bottom; the first
// matching row wins. HardOutcomeAllowOnly is checked ahead of the
// spec's seven rows: it is a cap an analyst override rule applies
// (policy.Rule with EffectAllow), not one of the original contract's
// named rows, and nothing below it may escalate past Allow once it
// fires.
func evaluateRows(rule txn.RuleResult, ml txn.MLScore, amount float64, t Thresholds) row {
	switch {
	case rule.HardOutcome == txn.HardOutcomeAllowOnly:
		return row{txn.Allow, "rule_allow_only", false}
	case rule.HardOutcome == txn.HardOutcomeBlock:
		return row{txn.Block, "rule_hard_block", false}
	case ml.CalibratedProbability >= t.Block:
		return row{txn.Block, "calibrated_block", true}
	case rule.HardOutcome == txn.HardOutcomeReviewMinimum:
		return row{txn.Review, "rule_review_minimum", false}
	case amount > t.HighAmount && ml.CalibratedProbability > t.HighAmountCalibrated:
		return row{txn.Review, "high_amount_review", true}
	case ml.CalibratedProbability >= t.Review:
		return row{txn.Review, "calibrated_review", true}
	case rule.HardOutcome == txn.HardOutcomeStepUpMinimum:
		return row{txn.StepUp, "rule_step_up_minimum", false}
	case ml.CalibratedProbability >= t.StepUp:
		return row{txn.StepUp, "calibrated_step_up", true}
	case ml.CalibratedProbability >= t.Monitor:
		return row{txn.Monitor, "calibrated_monitor", true}
	default:
		return row{txn.Allow, "allow", false}
	}
}

// Combine produces the final Decision for a transaction given the
// rules engine's result, the model's calibrated score, and the
// transaction amount. It is deterministic: the same three inputs
// always produce the same Decision.
func Combine(ruleResult txn.RuleResult, ml txn.MLScore, amount float64, thresholds Thresholds) txn.Decision {
	matched := evaluateRows(ruleResult, ml, amount, thresholds)

	reasons := make([]string, 0, len(ruleResult.Triggered)+1+len(ml.TopFeatures))
	reasons = append(reasons, ruleResult.Triggered...)
	if matched.mlUsed {
		reasons = append(reasons, fmt.Sprintf("fraud probability: %.0f%%", ml.CalibratedProbability*100))
		for _, f := range ml.TopFeatures {
			reasons = append(reasons, summarizeFeature(f))
		}
	}

	score := ml.CalibratedProbability
	if matched.name == "rule_hard_block" {
		score = 1.0
	}

	return txn.Decision{
		Code:        matched.code,
		Score:       score,
		Reasons:     reasons,
		TopFeatures: ml.TopFeatures,
		Rule:        ruleResult,
		ML:          ml,
	}
}

func summarizeFeature(f txn.FeatureContribution) string {
	return fmt.Sprintf("%s=%.2f (contribution %.3f)", f.Feature, f.Value, f.Contribution)
}
