// Package attribution explains a model output as signed per-feature
// contributions. Two methods are available, tried in a fixed order under
// "auto": a gradient path method and a Shapley value approximation.
package attribution

import (
	"errors"
	"fmt"
	"math"

	"github.com/Skufu/triage/internal/clinical"
	"github.com/Skufu/triage/internal/inference"
)

// ErrUnavailable is returned by a method that could not produce attributions.
var ErrUnavailable = errors.New("attribution unavailable")

const (
	MethodPrimary   = "primary"
	MethodSecondary = "secondary"
	MethodNone      = "none"

	AlgorithmIntegratedGradients = "integrated_gradients"
	AlgorithmGradientXInput      = "gradient_x_input"
	AlgorithmKernelSHAP          = "kernel_shap"
	AlgorithmNone                = "none"
)

// Model is the view of the shared model attribution needs. Every call is one
// serialized pass in the inference engine.
type Model interface {
	Logits(x []float64) ([]float64, error)
	Predict(x []float64) ([]float64, error)
}

// Differentiable models also expose input gradients of a class logit.
type Differentiable interface {
	Model
	Gradient(x []float64, class int) ([]float64, error)
}

// Result is the explainability section of an analysis.
type Result struct {
	Available    bool      `json:"available"`
	Method       string    `json:"method"`
	Algorithm    string    `json:"algorithm"`
	Features     []string  `json:"features"`
	Attributions []float64 `json:"attributions"`
	Reason       string    `json:"reason,omitempty"`
}

// Unavailable is the result reported when no attribution was produced.
func Unavailable(reason string) Result {
	return Result{
		Available: false,
		Method:    MethodNone,
		Algorithm: AlgorithmNone,
		Features:  clinical.FeatureNames(),
		Reason:    reason,
	}
}

func available(method, algorithm string, attrs []float64) Result {
	return Result{
		Available:    true,
		Method:       method,
		Algorithm:    algorithm,
		Features:     clinical.FeatureNames(),
		Attributions: attrs,
	}
}

// Background selects the Kernel SHAP reference sample.
type Background string

const (
	// BackgroundSelf uses the request sample as its own reference. With one
	// sample every coalition evaluates to the same output, so all values are 0.
	BackgroundSelf Background = "self"
	// BackgroundZero uses the all-zero standardized vector, i.e. the
	// population means.
	BackgroundZero Background = "zero"
)

// Options tune the attribution algorithms.
type Options struct {
	Steps      int
	Background Background
}

// DefaultSteps is the integrated gradients path resolution.
const DefaultSteps = 32

// Engine runs attribution methods. It holds no per-request state.
type Engine struct {
	caps inference.Capabilities
	opts Options
}

func New(caps inference.Capabilities, opts Options) *Engine {
	if opts.Steps <= 0 {
		opts.Steps = DefaultSteps
	}
	if opts.Background == "" {
		opts.Background = BackgroundSelf
	}
	return &Engine{caps: caps, opts: opts}
}

// Explain attributes the target class output to the features of x. A negative
// target selects the argmax class of the model on x. It never fails: any
// method error turns into an unavailable result.
func (e *Engine) Explain(m Model, x []float64, target int, method clinical.ExplainMethod) Result {
	if method == clinical.ExplainNone {
		return Unavailable("explanation not requested")
	}
	target, err := resolveTarget(m, x, target)
	if err != nil {
		return Unavailable(err.Error())
	}

	switch method {
	case clinical.ExplainPrimary:
		return orUnavailable(e.Primary(m, x, target))
	case clinical.ExplainSecondary:
		return orUnavailable(e.Secondary(m, x, target))
	default:
		r, primaryErr := e.Primary(m, x, target)
		if primaryErr == nil {
			return r
		}
		r, secondaryErr := e.Secondary(m, x, target)
		if secondaryErr == nil {
			return r
		}
		return Unavailable(fmt.Sprintf("%v; %v", primaryErr, secondaryErr))
	}
}

// Primary runs the gradient path method: integrated gradients from a zero
// baseline, or gradient x input when integrated gradients are switched off.
func (e *Engine) Primary(m Model, x []float64, target int) (r Result, err error) {
	defer recoverInto(&err, MethodPrimary)
	if !e.caps.PrimaryMethod() {
		return Result{}, fmt.Errorf("%s: %w", MethodPrimary, inference.ErrRuntimeUnavailable)
	}
	dm, ok := m.(Differentiable)
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", MethodPrimary, inference.ErrNotDifferentiable)
	}

	algorithm := AlgorithmIntegratedGradients
	var attrs []float64
	if e.caps.IntegratedGradients {
		attrs, err = integratedGradients(dm, x, target, e.opts.Steps)
	} else {
		algorithm = AlgorithmGradientXInput
		attrs, err = gradientTimesInput(dm, x, target)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", MethodPrimary, err)
	}
	if err := validate(attrs); err != nil {
		return Result{}, fmt.Errorf("%s: %w", MethodPrimary, err)
	}
	return available(MethodPrimary, algorithm, attrs), nil
}

// Secondary runs Kernel SHAP against the configured background.
func (e *Engine) Secondary(m Model, x []float64, target int) (r Result, err error) {
	defer recoverInto(&err, MethodSecondary)
	if !e.caps.SecondaryMethod() {
		return Result{}, fmt.Errorf("%s: %w", MethodSecondary, ErrUnavailable)
	}
	background := make([]float64, len(x))
	if e.opts.Background == BackgroundSelf {
		copy(background, x)
	}
	attrs, err := kernelSHAP(m, x, background, target)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", MethodSecondary, err)
	}
	if err := validate(attrs); err != nil {
		return Result{}, fmt.Errorf("%s: %w", MethodSecondary, err)
	}
	return available(MethodSecondary, AlgorithmKernelSHAP, attrs), nil
}

func resolveTarget(m Model, x []float64, target int) (int, error) {
	if target >= 0 {
		return target, nil
	}
	logits, err := m.Logits(x)
	if err != nil {
		return 0, fmt.Errorf("resolve target: %w", err)
	}
	if len(logits) == 0 {
		return 0, fmt.Errorf("resolve target: empty model output: %w", ErrUnavailable)
	}
	return inference.Argmax(logits), nil
}

func orUnavailable(r Result, err error) Result {
	if err != nil {
		return Unavailable(err.Error())
	}
	return r
}

func validate(attrs []float64) error {
	if len(attrs) != clinical.NumFeatures {
		return fmt.Errorf("got %d attributions, want %d: %w", len(attrs), clinical.NumFeatures, ErrUnavailable)
	}
	for _, a := range attrs {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return fmt.Errorf("non-finite attribution: %w", ErrUnavailable)
		}
	}
	return nil
}

func recoverInto(err *error, method string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: panic: %v: %w", method, r, ErrUnavailable)
	}
}
