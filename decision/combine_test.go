package decision_test

import (
	"strings"
	"testing"

	"github.com/byteness/sentinel-fraud/decision"
	"github.com/byteness/sentinel-fraud/txn"
)

func TestCombine_TableRows(t *testing.T) {
	thresholds := decision.DefaultThresholds()

	tests := []struct {
		name   string
		rule   txn.RuleResult
		ml     txn.MLScore
		amount float64
		want   txn.Code
	}{
		{"hard block wins over everything", txn.RuleResult{HardOutcome: txn.HardOutcomeBlock}, txn.MLScore{CalibratedProbability: 0.01}, 10, txn.Block},
		{"calibrated >= 0.90 blocks", txn.RuleResult{}, txn.MLScore{CalibratedProbability: 0.95}, 10, txn.Block},
		{"rule review minimum", txn.RuleResult{HardOutcome: txn.HardOutcomeReviewMinimum}, txn.MLScore{CalibratedProbability: 0.01}, 10, txn.Review},
		{"high amount + moderate calibrated reviews", txn.RuleResult{}, txn.MLScore{CalibratedProbability: 0.71}, 6000, txn.Review},
		{"high amount alone does not review below calibrated bar", txn.RuleResult{}, txn.MLScore{CalibratedProbability: 0.60}, 6000, txn.StepUp},
		{"calibrated >= 0.75 reviews", txn.RuleResult{}, txn.MLScore{CalibratedProbability: 0.80}, 10, txn.Review},
		{"rule step-up minimum", txn.RuleResult{HardOutcome: txn.HardOutcomeStepUpMinimum}, txn.MLScore{CalibratedProbability: 0.01}, 10, txn.StepUp},
		{"calibrated >= 0.55 steps up", txn.RuleResult{}, txn.MLScore{CalibratedProbability: 0.60}, 10, txn.StepUp},
		{"calibrated >= 0.35 monitors", txn.RuleResult{}, txn.MLScore{CalibratedProbability: 0.40}, 10, txn.Monitor},
		{"otherwise allow", txn.RuleResult{}, txn.MLScore{CalibratedProbability: 0.01}, 10, txn.Allow},
		{"allow-only cap beats a high calibrated score", txn.RuleResult{HardOutcome: txn.HardOutcomeAllowOnly}, txn.MLScore{CalibratedProbability: 0.99}, 10, txn.Allow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decision.Combine(tt.rule, tt.ml, tt.amount, thresholds)
			if got.Code != tt.want {
				t.Errorf("Code = %v, want %v", got.Code, tt.want)
			}
		})
	}
}

func TestCombine_ReasonsOrder(t *testing.T) {
	thresholds := decision.DefaultThresholds()
	rule := txn.RuleResult{Triggered: []string{"velocity_user_hourly"}, HardOutcome: txn.HardOutcomeBlock}
	ml := txn.MLScore{
		CalibratedProbability: 0.2,
		TopFeatures: []txn.FeatureContribution{
			{Feature: "amount", Value: 900, Contribution: 0.4},
		},
	}

	got := decision.Combine(rule, ml, 10, thresholds)
	if len(got.Reasons) != 1 || got.Reasons[0] != "velocity_user_hourly" {
		t.Errorf("hard-rule block should not append ML reasons, got %v", got.Reasons)
	}

	ml2 := txn.MLScore{
		CalibratedProbability: 0.92,
		TopFeatures: []txn.FeatureContribution{
			{Feature: "amount", Value: 900, Contribution: 0.4},
		},
	}
	got2 := decision.Combine(txn.RuleResult{}, ml2, 10, thresholds)
	if len(got2.Reasons) != 2 {
		t.Fatalf("expected fraud-probability phrase + 1 feature summary, got %v", got2.Reasons)
	}
	if !strings.HasPrefix(got2.Reasons[0], "fraud probability: 92%") {
		t.Errorf("Reasons[0] = %q, want fraud probability phrase", got2.Reasons[0])
	}
	if !strings.Contains(got2.Reasons[1], "amount") {
		t.Errorf("Reasons[1] = %q, want feature summary", got2.Reasons[1])
	}
}

func TestThresholds_Validate(t *testing.T) {
	good := decision.DefaultThresholds()
	if err := good.Validate(); err != nil {
		t.Fatalf("default thresholds should validate: %v", err)
	}

	bad := good
	bad.Monitor = 0.9
	bad.Block = 0.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for out-of-order thresholds")
	}
}
