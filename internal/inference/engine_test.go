package inference

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func sampleVector() []float64 {
	return []float64{0.5, -1.2, 0.3, 2.0, 5.4, -0.7, 1.1, 0.0}
}

func TestPredictIsDeterministic(t *testing.T) {
	e := NewEngine(NewLoader(""), DetectCapabilities(CapabilityOptions{}))

	first, err := e.Predict(sampleVector())
	require.NoError(t, err)
	second, err := e.Predict(sampleVector())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	sum := 0.0
	for _, p := range first {
		assert.GreaterOrEqual(t, p, 0.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestReferenceModelIsReproducible(t *testing.T) {
	a := NewReferenceMLP(8, 3, ReferenceSeed)
	b := NewReferenceMLP(8, 3, ReferenceSeed)
	la, err := a.Forward(sampleVector())
	require.NoError(t, err)
	lb, err := b.Forward(sampleVector())
	require.NoError(t, err)
	assert.Equal(t, la, lb)
}

func TestPredictRuntimeUnavailable(t *testing.T) {
	var loads int32
	loader := func() (Model, error) {
		atomic.AddInt32(&loads, 1)
		return NewReferenceMLP(8, 3, 1), nil
	}
	e := NewEngine(loader, DetectCapabilities(CapabilityOptions{DisableNumericRuntime: true}))

	_, err := e.Predict(sampleVector())
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
	assert.Zero(t, atomic.LoadInt32(&loads))
	loaded, _ := e.Loaded()
	assert.False(t, loaded)
}

func TestPredictRejectsWrongShape(t *testing.T) {
	e := NewEngine(NewLoader(""), DetectCapabilities(CapabilityOptions{}))
	_, err := e.Predict([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestModelLoadsOnceUnderRace(t *testing.T) {
	var loads int32
	loader := func() (Model, error) {
		atomic.AddInt32(&loads, 1)
		return NewReferenceMLP(8, 3, ReferenceSeed), nil
	}
	e := NewEngine(loader, DetectCapabilities(CapabilityOptions{}))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Model()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&loads))
	loaded, device := e.Loaded()
	assert.True(t, loaded)
	assert.Equal(t, DeviceCPU, device)
}

func TestFailedLoadIsRetried(t *testing.T) {
	calls := 0
	loader := func() (Model, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("weights not mounted yet")
		}
		return NewReferenceMLP(8, 3, ReferenceSeed), nil
	}
	e := NewEngine(loader, DetectCapabilities(CapabilityOptions{}))

	_, err := e.Model()
	require.Error(t, err)
	_, err = e.Model()
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLoaderRejectsWrongDims(t *testing.T) {
	e := NewEngine(func() (Model, error) { return NewReferenceMLP(4, 3, 1), nil }, DetectCapabilities(CapabilityOptions{}))
	_, err := e.Model()
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestConcurrentPredictMatchesSerial(t *testing.T) {
	e := NewEngine(NewLoader(""), DetectCapabilities(CapabilityOptions{}))

	inputs := make([][]float64, 50)
	want := make([][]float64, 50)
	for i := range inputs {
		v := sampleVector()
		v[i%8] += float64(i) / 10
		inputs[i] = v
		p, err := e.Predict(v)
		require.NoError(t, err)
		want[i] = p
	}

	got := make([][]float64, 50)
	var g errgroup.Group
	for i := range inputs {
		i := i
		g.Go(func() error {
			p, err := e.Predict(inputs[i])
			got[i] = p
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, want, got)
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	e := NewEngine(NewLoader(""), DetectCapabilities(CapabilityOptions{}))
	x := sampleVector()
	class := 1

	grad, err := e.Gradient(x, class)
	require.NoError(t, err)
	require.Len(t, grad, 8)

	const h = 1e-6
	for i := range x {
		up := append([]float64(nil), x...)
		down := append([]float64(nil), x...)
		up[i] += h
		down[i] -= h
		lu, err := e.Logits(up)
		require.NoError(t, err)
		ld, err := e.Logits(down)
		require.NoError(t, err)
		numeric := (lu[class] - ld[class]) / (2 * h)
		assert.InDelta(t, numeric, grad[i], 1e-4, "feature %d", i)
	}
}

func TestGradientRejectsBadClass(t *testing.T) {
	e := NewEngine(NewLoader(""), DetectCapabilities(CapabilityOptions{}))
	_, err := e.Gradient(sampleVector(), 3)
	assert.ErrorIs(t, err, ErrInvalidClass)
}

type opaqueModel struct{ Model }

func TestGradientNotDifferentiable(t *testing.T) {
	e := NewEngine(func() (Model, error) {
		return opaqueModel{NewReferenceMLP(8, 3, 1)}, nil
	}, DetectCapabilities(CapabilityOptions{}))
	_, err := e.Gradient(sampleVector(), 0)
	assert.ErrorIs(t, err, ErrNotDifferentiable)
}

func TestLoadWeights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	body := `hidden:
  weights:
    - [1, 0, 0, 0, 0, 0, 0, 0]
    - [0, 1, 0, 0, 0, 0, 0, 0]
  bias: [0, 0]
output:
  weights:
    - [1, 0]
    - [0, 1]
    - [0, 0]
  bias: [0, 0, 0.5]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	m, err := LoadWeights(path)
	require.NoError(t, err)
	assert.Equal(t, 8, m.InputDim())
	assert.Equal(t, 3, m.NumClasses())

	logits, err := m.Forward([]float64{2, -3, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0, 0.5}, logits)
}

func TestLoadWeightsRejectsRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hidden:\n  weights: [[1, 2], [3]]\n  bias: [0, 0]\noutput:\n  weights: [[1, 1]]\n  bias: [0]\n"), 0o600))
	_, err := LoadWeights(path)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSoftmaxAndArgmax(t *testing.T) {
	p := Softmax([]float64{1000, 1000, 999})
	assert.False(t, math.IsNaN(p[0]))
	assert.InDelta(t, p[0], p[1], 1e-12)
	assert.Equal(t, 0, Argmax(p))
	assert.Equal(t, -1, Argmax(nil))
	assert.Nil(t, Softmax(nil))
}

func TestCapabilities(t *testing.T) {
	caps := DetectCapabilities(CapabilityOptions{DisableIntegratedGradients: true})
	assert.True(t, caps.PrimaryMethod())
	assert.True(t, caps.SecondaryMethod())
	assert.False(t, caps.IntegratedGradients)
	assert.False(t, caps.Accelerator)

	off := DetectCapabilities(CapabilityOptions{DisableNumericRuntime: true})
	assert.False(t, off.PrimaryMethod())
	assert.False(t, off.SecondaryMethod())
}
