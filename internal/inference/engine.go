package inference

import (
	"fmt"
	"sync"

	"github.com/Skufu/triage/internal/clinical"
	"github.com/Skufu/triage/internal/logger"
)

// Loader builds the model instance. It runs at most once successfully per engine.
type Loader func() (Model, error)

// Engine owns the process model. The model is built on first use and every
// pass against it (forward or gradient) runs inside one mutex, so concurrent
// requests queue instead of interleaving on the model's resident state.
type Engine struct {
	caps   Capabilities
	loader Loader

	initMu sync.Mutex
	model  Model

	passMu sync.Mutex
}

// NewEngine returns an engine that loads its model lazily.
func NewEngine(loader Loader, caps Capabilities) *Engine {
	return &Engine{caps: caps, loader: loader}
}

// Capabilities returns the capability set the engine was built with.
func (e *Engine) Capabilities() Capabilities { return e.caps }

// Model returns the shared model, building it on first call. A failed build is
// not cached so a later request can retry.
func (e *Engine) Model() (Model, error) {
	if !e.caps.NumericRuntime {
		return nil, ErrRuntimeUnavailable
	}
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.model != nil {
		return e.model, nil
	}
	m, err := e.loader()
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if m.InputDim() != clinical.NumFeatures || m.NumClasses() != clinical.NumClasses {
		return nil, fmt.Errorf("load model: dims %dx%d, want %dx%d: %w",
			m.InputDim(), m.NumClasses(), clinical.NumFeatures, clinical.NumClasses, ErrShapeMismatch)
	}
	e.model = m
	logger.Info(fmt.Sprintf("Model loaded on device %s (%d inputs, %d classes)", m.Device(), m.InputDim(), m.NumClasses()))
	return m, nil
}

// Loaded reports whether the model has been built, and its device.
func (e *Engine) Loaded() (bool, string) {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.model == nil {
		return false, ""
	}
	return true, e.model.Device()
}

// Logits runs one serialized forward pass.
func (e *Engine) Logits(x []float64) ([]float64, error) {
	m, err := e.Model()
	if err != nil {
		return nil, err
	}
	if len(x) != m.InputDim() {
		return nil, fmt.Errorf("got %d features, want %d: %w", len(x), m.InputDim(), ErrShapeMismatch)
	}
	e.passMu.Lock()
	defer e.passMu.Unlock()
	return m.Forward(x)
}

// Predict returns class probabilities for x.
func (e *Engine) Predict(x []float64) ([]float64, error) {
	logits, err := e.Logits(x)
	if err != nil {
		return nil, err
	}
	return Softmax(logits), nil
}

// Gradient returns d logit[class] / dx through the same serialization region
// as Forward. Gradients never write to the weights.
func (e *Engine) Gradient(x []float64, class int) ([]float64, error) {
	m, err := e.Model()
	if err != nil {
		return nil, err
	}
	dm, ok := m.(Differentiable)
	if !ok {
		return nil, ErrNotDifferentiable
	}
	if len(x) != m.InputDim() {
		return nil, fmt.Errorf("got %d features, want %d: %w", len(x), m.InputDim(), ErrShapeMismatch)
	}
	e.passMu.Lock()
	defer e.passMu.Unlock()
	return dm.InputGradient(x, class)
}
