// Package mlscore evaluates the fraud model: a small tree-ensemble
// runtime scored against a txn.FeatureVector, a monotonic calibration
// curve, and per-feature attribution weights used to explain the top
// contributing features on a Decision.
package mlscore

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sort"

	"github.com/byteness/sentinel-fraud/txn"
)

// treeNode is one node of a binary decision tree evaluated over a
// txn.FeatureVector. Internal nodes split on Feature/Threshold; leaves
// carry a logit contribution in Value.
type treeNode struct {
	Leaf      bool      `json:"leaf"`
	Value     float64   `json:"value,omitempty"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

func (n *treeNode) eval(fv txn.FeatureVector) float64 {
	for !n.Leaf {
		if n.Left == nil || n.Right == nil {
			return n.Value
		}
		if fv[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// artifact is the on-disk JSON shape of a model artifact: a forest of
// trees plus the attribution weight used to explain each of the 15
// feature slots.
type artifact struct {
	Trees               []*treeNode               `json:"trees"`
	FeatureAttributions [txn.FeatureCount]float64 `json:"feature_attributions"`
}

// ControlPoint is one (raw, calibrated) pair in a calibration curve.
type ControlPoint struct {
	Raw        float64 `json:"raw"`
	Calibrated float64 `json:"calibrated"`
}

type calibratorArtifact struct {
	Points []ControlPoint `json:"points"`
}

// Model is the immutable, process-lifetime model runtime. It is safe
// for concurrent use; Score allocates nothing beyond its returned
// TopFeatures slice.
type Model struct {
	trees        []*treeNode
	attributions [txn.FeatureCount]float64
	calibration  []ControlPoint
	degraded     bool
}

// LoadModel reads the tree-ensemble artifact from modelPath and, if
// calibratorPath is non-empty, the calibration curve from
// calibratorPath.
//
// A missing or malformed model artifact is always a fatal error: the
// caller should treat a non-nil error as a startup failure, never a
// degraded mode. A missing calibrator is not fatal: the Model falls
// back to raw == calibrated and logs the degradation once.
func LoadModel(modelPath, calibratorPath string) (*Model, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("mlscore: model artifact %s: %w", modelPath, err)
	}
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("mlscore: parse model artifact %s: %w", modelPath, err)
	}
	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("mlscore: model artifact %s has no trees", modelPath)
	}

	m := &Model{trees: a.Trees, attributions: a.FeatureAttributions}

	if calibratorPath == "" {
		m.degraded = true
		log.Printf("mlscore: no calibrator configured, running degraded (raw == calibrated)")
		return m, nil
	}
	calData, err := os.ReadFile(calibratorPath)
	if err != nil {
		m.degraded = true
		log.Printf("mlscore: calibrator %s unreadable (%v), running degraded (raw == calibrated)", calibratorPath, err)
		return m, nil
	}
	var c calibratorArtifact
	if err := json.Unmarshal(calData, &c); err != nil {
		return nil, fmt.Errorf("mlscore: parse calibrator %s: %w", calibratorPath, err)
	}
	if err := validateMonotonic(c.Points); err != nil {
		return nil, fmt.Errorf("mlscore: calibrator %s: %w", calibratorPath, err)
	}
	m.calibration = c.Points
	return m, nil
}

func validateMonotonic(points []ControlPoint) error {
	if len(points) < 2 {
		return fmt.Errorf("calibration curve needs at least 2 control points, got %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].Raw <= points[i-1].Raw {
			return fmt.Errorf("raw values must be strictly increasing, points[%d].raw=%v <= points[%d].raw=%v",
				i, points[i].Raw, i-1, points[i-1].Raw)
		}
		if points[i].Calibrated < points[i-1].Calibrated {
			return fmt.Errorf("calibrated values must be non-decreasing, points[%d].calibrated=%v < points[%d].calibrated=%v",
				i, points[i].Calibrated, i-1, points[i-1].Calibrated)
		}
	}
	return nil
}

// Degraded reports whether the model is running without a calibration
// curve.
func (m *Model) Degraded() bool {
	return m.degraded
}

// Score evaluates the tree ensemble over fv, calibrates the raw
// output, and attaches the top-3 feature contributions.
func (m *Model) Score(fv txn.FeatureVector) txn.MLScore {
	var logit float64
	for _, t := range m.trees {
		logit += t.eval(fv)
	}
	raw := sigmoid(logit)
	calibrated := raw
	if !m.degraded {
		calibrated = m.calibrate(raw)
	}
	return txn.MLScore{
		RawProbability:        raw,
		CalibratedProbability: calibrated,
		TopFeatures:           m.topFeatures(fv),
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func (m *Model) calibrate(raw float64) float64 {
	points := m.calibration
	if raw <= points[0].Raw {
		return points[0].Calibrated
	}
	last := points[len(points)-1]
	if raw >= last.Raw {
		return last.Calibrated
	}
	for i := 1; i < len(points); i++ {
		if raw <= points[i].Raw {
			lo, hi := points[i-1], points[i]
			frac := (raw - lo.Raw) / (hi.Raw - lo.Raw)
			return lo.Calibrated + frac*(hi.Calibrated-lo.Calibrated)
		}
	}
	return last.Calibrated
}

func (m *Model) topFeatures(fv txn.FeatureVector) []txn.FeatureContribution {
	contributions := make([]txn.FeatureContribution, txn.FeatureCount)
	for i := 0; i < txn.FeatureCount; i++ {
		contributions[i] = txn.FeatureContribution{
			Feature:      txn.FeatureNames[i],
			Value:        fv[i],
			Contribution: m.attributions[i] * fv[i],
		}
	}
	sort.SliceStable(contributions, func(a, b int) bool {
		return math.Abs(contributions[a].Contribution) > math.Abs(contributions[b].Contribution)
	})
	return contributions[:3]
}
