package inference

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrRuntimeUnavailable is returned when the numeric runtime is switched off.
	ErrRuntimeUnavailable = errors.New("numeric runtime not available")
	// ErrShapeMismatch is returned for inputs that do not match the declared width.
	ErrShapeMismatch = errors.New("input shape mismatch")
	// ErrNotDifferentiable is returned when gradients are requested from a model
	// that cannot provide them.
	ErrNotDifferentiable = errors.New("model does not expose input gradients")
	// ErrInvalidClass is returned for class indices outside the model output.
	ErrInvalidClass = errors.New("class index out of range")
)

// Model is anything that maps a feature vector to class logits. Forward may
// keep mutable state (scratch buffers, device residency) and is only ever
// called from inside the engine's serialization region.
type Model interface {
	Forward(x []float64) ([]float64, error)
	InputDim() int
	NumClasses() int
	Device() string
}

// Differentiable models can return the gradient of one class logit with respect
// to the input. Like Forward, it is called under the engine lock.
type Differentiable interface {
	Model
	InputGradient(x []float64, class int) ([]float64, error)
}

// Softmax converts logits to probabilities.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	lse := floats.LogSumExp(logits)
	probs := make([]float64, len(logits))
	for i, l := range logits {
		probs[i] = math.Exp(l - lse)
	}
	return probs
}

// Argmax returns the index of the largest value, preferring the lowest index
// on ties, or -1 for an empty slice.
func Argmax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	return floats.MaxIdx(values)
}
