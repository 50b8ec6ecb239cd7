// Package clinical holds the request-side data model shared by every stage of
// the triage pipeline: the loosely typed payload and the fixed feature layout.
package clinical

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Source says which payload section a field is read from.
type Source string

const (
	SourceVitals Source = "vitals"
	SourceLabs   Source = "labs"
)

// MaxNotesLength bounds the free-text notes accepted by the transport.
const MaxNotesLength = 10000

// ExplainMethod selects the attribution strategy for a request.
type ExplainMethod string

const (
	ExplainAuto      ExplainMethod = "auto"
	ExplainPrimary   ExplainMethod = "primary"
	ExplainSecondary ExplainMethod = "secondary"
	ExplainNone      ExplainMethod = "none"
)

// ParseExplainMethod maps a request value onto a method. The library names
// clients used historically ("captum", "shap") are accepted as aliases and
// anything unrecognised falls back to auto.
func ParseExplainMethod(raw string) ExplainMethod {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "primary", "captum", "ig", "integrated_gradients":
		return ExplainPrimary
	case "secondary", "shap", "kernel_shap":
		return ExplainSecondary
	case "none":
		return ExplainNone
	default:
		return ExplainAuto
	}
}

// Payload is the clinical input as it arrives from manual entry or document
// extraction. Vitals and labs stay untyped: values that are not numeric are
// treated as missing rather than rejected.
type Payload struct {
	Notes             string         `json:"notes,omitempty"`
	Vitals            map[string]any `json:"vitals,omitempty"`
	Labs              map[string]any `json:"labs,omitempty"`
	TopK              *int           `json:"topK,omitempty"`
	ExplainMethod     string         `json:"explainMethod,omitempty"`
	UseWinsorize      bool           `json:"useWinsorize,omitempty"`
	UseScipyWinsorize bool           `json:"useScipyWinsorize,omitempty"`
}

// Method returns the parsed explain method.
func (p Payload) Method() ExplainMethod {
	return ParseExplainMethod(p.ExplainMethod)
}

// Winsorize reports whether outlier clipping was requested under either name.
func (p Payload) Winsorize() bool {
	return p.UseWinsorize || p.UseScipyWinsorize
}

// RequestedK returns the requested top-K, defaulting to numClasses when the
// field is absent or zero. Negative values are passed through for the ranker
// to clamp.
func (p Payload) RequestedK(numClasses int) int {
	if p.TopK == nil || *p.TopK == 0 {
		return numClasses
	}
	return *p.TopK
}

// Value looks up a numeric field. ok is false when the field is absent,
// non-numeric or not finite.
func (p Payload) Value(source Source, name string) (float64, bool) {
	var section map[string]any
	switch source {
	case SourceVitals:
		section = p.Vitals
	case SourceLabs:
		section = p.Labs
	default:
		return 0, false
	}
	raw, found := section[name]
	if !found {
		return 0, false
	}
	return toFloat(raw)
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil, bool:
		return 0, false
	case string:
		raw = strings.TrimSpace(v)
		if raw == "" {
			return 0, false
		}
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
