package featurize

import (
	"math"
	"testing"

	"github.com/Skufu/triage/internal/clinical"
	"github.com/Skufu/triage/internal/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeaturizer() *Featurizer {
	return New(inference.DetectCapabilities(inference.CapabilityOptions{}))
}

func TestFeaturizeStandardizes(t *testing.T) {
	p := clinical.Payload{
		Vitals: map[string]any{
			"heartRate": 87.0, "systolicBP": 150.0, "diastolicBP": 90.0,
			"respiratoryRate": 22.0, "temperature": 38.8,
		},
		Labs: map[string]any{"wbc": 15.0, "crp": 20.0, "glucose": 125.0},
	}
	v, err := newFeaturizer().Featurize(p)
	require.NoError(t, err)

	want := []float64{1, 2, 1, 2, 4, 4, 5, 2}
	require.Len(t, v, clinical.NumFeatures)
	for i := range want {
		assert.InDelta(t, want[i], v[i], 1e-9, clinical.FeatureNames()[i])
	}
}

func TestFeaturizeMissingFieldsAreZero(t *testing.T) {
	tests := []struct {
		name    string
		payload clinical.Payload
		present map[int]float64
	}{
		{
			name:    "empty payload",
			payload: clinical.Payload{},
			present: map[int]float64{},
		},
		{
			name: "only temperature",
			payload: clinical.Payload{
				Vitals: map[string]any{"temperature": 39.5},
			},
			present: map[int]float64{4: 5.4},
		},
		{
			name: "non-numeric values",
			payload: clinical.Payload{
				Vitals: map[string]any{"heartRate": "tachy", "systolicBP": "135"},
				Labs:   map[string]any{"glucose": nil, "crp": 8},
			},
			present: map[int]float64{1: 1, 6: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := newFeaturizer().Featurize(tt.payload)
			require.NoError(t, err)
			for i := range v {
				if want, ok := tt.present[i]; ok {
					assert.InDelta(t, want, v[i], 1e-9, "position %d", i)
				} else {
					assert.Zero(t, v[i], "position %d", i)
				}
			}
		})
	}
}

func TestWinsorizeIsIdentityOnSingleSample(t *testing.T) {
	for _, v := range []float64{-1000, 0, 36.6, 1e9} {
		assert.Equal(t, v, winsorize(v))
	}

	p := clinical.Payload{Vitals: map[string]any{"heartRate": 300.0}, Labs: map[string]any{"glucose": 900.0}}
	plain, err := newFeaturizer().Featurize(p)
	require.NoError(t, err)
	p.UseWinsorize = true
	clipped, err := newFeaturizer().Featurize(p)
	require.NoError(t, err)
	assert.Equal(t, plain, clipped)
}

func TestFeaturizeRuntimeUnavailable(t *testing.T) {
	f := New(inference.DetectCapabilities(inference.CapabilityOptions{DisableNumericRuntime: true}))
	v, err := f.Featurize(clinical.Payload{})
	assert.ErrorIs(t, err, inference.ErrRuntimeUnavailable)
	assert.Nil(t, v)
}

func TestMomentsCoverEveryFeature(t *testing.T) {
	for _, name := range clinical.FeatureNames() {
		m, ok := moments[name]
		require.True(t, ok, name)
		assert.NotZero(t, m.std, name)
	}
}

func TestFeaturizeBoundsExtremeValues(t *testing.T) {
	v, err := newFeaturizer().Featurize(clinical.Payload{
		Vitals: map[string]any{"temperature": 1e308, "heartRate": -1e308},
		Labs:   map[string]any{"glucose": "1e300"},
	})
	require.NoError(t, err)
	for i, x := range v {
		assert.False(t, math.IsInf(x, 0) || math.IsNaN(x), "position %d", i)
	}
	assert.Equal(t, maxZ, v[4])
	assert.Equal(t, -maxZ, v[0])
	assert.Equal(t, maxZ, v[7])
}
