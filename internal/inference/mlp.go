package inference

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	// ReferenceHiddenDim is the hidden width of the reference network.
	ReferenceHiddenDim = 16
	// ReferenceSeed makes the reference weights reproducible across processes.
	ReferenceSeed = 42
)

// MLP is a two layer perceptron: Linear(in->hidden), ReLU, Linear(hidden->classes).
// The weights are never written after construction. The input, hidden and
// output vectors are resident buffers reused by every pass, which is why
// callers must not run two passes at once.
type MLP struct {
	w1     *mat.Dense
	b1     *mat.VecDense
	w2     *mat.Dense
	b2     *mat.VecDense
	device string

	in     *mat.VecDense
	hidden *mat.VecDense
	out    *mat.VecDense
	grad   *mat.VecDense
	upward *mat.VecDense
}

// NewMLP builds a network from row-major layer weights: w1 is hidden x in,
// w2 is classes x hidden.
func NewMLP(w1 [][]float64, b1 []float64, w2 [][]float64, b2 []float64) (*MLP, error) {
	hidden := len(w1)
	if hidden == 0 || len(b1) != hidden {
		return nil, fmt.Errorf("hidden layer: %d weight rows, %d biases: %w", hidden, len(b1), ErrShapeMismatch)
	}
	classes := len(w2)
	if classes == 0 || len(b2) != classes {
		return nil, fmt.Errorf("output layer: %d weight rows, %d biases: %w", classes, len(b2), ErrShapeMismatch)
	}
	in := len(w1[0])
	if in == 0 {
		return nil, fmt.Errorf("hidden layer has no input columns: %w", ErrShapeMismatch)
	}
	d1, err := flatten(w1, in)
	if err != nil {
		return nil, fmt.Errorf("hidden layer: %w", err)
	}
	d2, err := flatten(w2, hidden)
	if err != nil {
		return nil, fmt.Errorf("output layer: %w", err)
	}
	return newMLP(
		mat.NewDense(hidden, in, d1),
		mat.NewVecDense(hidden, append([]float64(nil), b1...)),
		mat.NewDense(classes, hidden, d2),
		mat.NewVecDense(classes, append([]float64(nil), b2...)),
	), nil
}

// NewReferenceMLP returns the 8->16->3 reference network with uniform
// +-1/sqrt(fan_in) initialisation from a fixed seed.
func NewReferenceMLP(inputDim, numClasses int, seed int64) *MLP {
	rng := rand.New(rand.NewSource(seed))
	w1, b1 := uniformLayer(rng, ReferenceHiddenDim, inputDim)
	w2, b2 := uniformLayer(rng, numClasses, ReferenceHiddenDim)
	return newMLP(w1, b1, w2, b2)
}

func newMLP(w1 *mat.Dense, b1 *mat.VecDense, w2 *mat.Dense, b2 *mat.VecDense) *MLP {
	hidden, in := w1.Dims()
	classes, _ := w2.Dims()
	return &MLP{
		w1:     w1,
		b1:     b1,
		w2:     w2,
		b2:     b2,
		device: DeviceCPU,
		in:     mat.NewVecDense(in, nil),
		hidden: mat.NewVecDense(hidden, nil),
		out:    mat.NewVecDense(classes, nil),
		grad:   mat.NewVecDense(in, nil),
		upward: mat.NewVecDense(hidden, nil),
	}
}

func uniformLayer(rng *rand.Rand, rows, cols int) (*mat.Dense, *mat.VecDense) {
	bound := 1 / math.Sqrt(float64(cols))
	w := make([]float64, rows*cols)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * bound
	}
	b := make([]float64, rows)
	for i := range b {
		b[i] = (rng.Float64()*2 - 1) * bound
	}
	return mat.NewDense(rows, cols, w), mat.NewVecDense(rows, b)
}

func flatten(rows [][]float64, cols int) ([]float64, error) {
	out := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(r), cols, ErrShapeMismatch)
		}
		out = append(out, r...)
	}
	return out, nil
}

func (m *MLP) InputDim() int {
	_, in := m.w1.Dims()
	return in
}

func (m *MLP) NumClasses() int {
	classes, _ := m.w2.Dims()
	return classes
}

func (m *MLP) Device() string { return m.device }

// Forward returns the class logits for x.
func (m *MLP) Forward(x []float64) ([]float64, error) {
	if err := m.load(x); err != nil {
		return nil, err
	}
	m.activate()
	m.out.MulVec(m.w2, m.hidden)
	m.out.AddVec(m.out, m.b2)
	return copyOut(m.out), nil
}

// InputGradient returns d logit[class] / dx at x.
func (m *MLP) InputGradient(x []float64, class int) ([]float64, error) {
	if class < 0 || class >= m.NumClasses() {
		return nil, fmt.Errorf("class %d: %w", class, ErrInvalidClass)
	}
	if err := m.load(x); err != nil {
		return nil, err
	}
	m.hidden.MulVec(m.w1, m.in)
	m.hidden.AddVec(m.hidden, m.b1)
	for j := 0; j < m.hidden.Len(); j++ {
		g := 0.0
		if m.hidden.AtVec(j) > 0 {
			g = m.w2.At(class, j)
		}
		m.upward.SetVec(j, g)
	}
	m.grad.MulVec(m.w1.T(), m.upward)
	return copyOut(m.grad), nil
}

// load moves x into the resident input buffer.
func (m *MLP) load(x []float64) error {
	if len(x) != m.in.Len() {
		return fmt.Errorf("got %d features, want %d: %w", len(x), m.in.Len(), ErrShapeMismatch)
	}
	for i, v := range x {
		m.in.SetVec(i, v)
	}
	return nil
}

func (m *MLP) activate() {
	m.hidden.MulVec(m.w1, m.in)
	m.hidden.AddVec(m.hidden, m.b1)
	for j := 0; j < m.hidden.Len(); j++ {
		if m.hidden.AtVec(j) < 0 {
			m.hidden.SetVec(j, 0)
		}
	}
}

func copyOut(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
