// Package featurize maps a clinical payload onto the fixed model input vector.
package featurize

import (
	"math"

	"github.com/Skufu/triage/internal/clinical"
	"github.com/Skufu/triage/internal/inference"
	"gonum.org/v1/gonum/stat"
)

const (
	winsorLower = 0.01
	winsorUpper = 0.99

	// maxZ bounds a standardized value. Finite inputs far outside any
	// physiological range would otherwise overflow to Inf in the model.
	maxZ = 1e6
)

// moments are the fixed standardization constants per feature. They are
// documented reference values, not learned.
var moments = map[string]struct{ mean, std float64 }{
	"heartRate":       {75, 12},
	"systolicBP":      {120, 15},
	"diastolicBP":     {80, 10},
	"respiratoryRate": {16, 3},
	"temperature":     {36.8, 0.5},
	"wbc":             {7, 2},
	"crp":             {5, 3},
	"glucose":         {95, 15},
}

// Vector is a standardized feature vector in clinical.FeatureNames order.
type Vector []float64

// Featurizer turns payloads into vectors. It holds no request state and is
// safe for concurrent use.
type Featurizer struct {
	caps inference.Capabilities
}

func New(caps inference.Capabilities) *Featurizer {
	return &Featurizer{caps: caps}
}

// Featurize builds the input vector. Missing or non-numeric fields hold 0.0;
// present fields are optionally winsorized and then standardized.
func (f *Featurizer) Featurize(p clinical.Payload) (Vector, error) {
	if !f.caps.NumericRuntime {
		return nil, inference.ErrRuntimeUnavailable
	}
	out := make(Vector, clinical.NumFeatures)
	for i, feat := range clinical.Features() {
		raw, ok := p.Value(feat.Source, feat.Name)
		if !ok {
			continue
		}
		if p.Winsorize() {
			raw = winsorize(raw)
		}
		out[i] = standardize(feat.Name, raw)
	}
	return out, nil
}

// winsorize clips a value to the [1st, 99th] percentile of its own sample. A
// request carries exactly one observation per feature, so the bounds equal
// the value and this is an identity.
func winsorize(v float64) float64 {
	sample := []float64{v}
	lo := stat.Quantile(winsorLower, stat.Empirical, sample, nil)
	hi := stat.Quantile(winsorUpper, stat.Empirical, sample, nil)
	return max(lo, min(v, hi))
}

func standardize(name string, v float64) float64 {
	m := moments[name]
	std := m.std
	if std == 0 {
		std = 1
	}
	z := (v - m.mean) / std
	if math.IsNaN(z) {
		return 0
	}
	return max(-maxZ, min(z, maxZ))
}
