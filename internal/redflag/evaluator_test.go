package redflag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Skufu/triage/internal/clinical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conditions(flags []RedFlag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = f.Condition
	}
	return out
}

func TestHyperpyrexiaThreshold(t *testing.T) {
	tests := []struct {
		name string
		temp any
		want bool
	}{
		{"exactly 39.0", 39.0, true},
		{"39.5", 39.5, true},
		{"38.9", 38.9, false},
		{"string 39", "39", true},
		{"non-numeric", "febrile", false},
		{"null", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := Default().Evaluate(clinical.Payload{Vitals: map[string]any{"temperature": tt.temp}})
			if !tt.want {
				assert.NotContains(t, conditions(flags), "Hyperpyrexia")
				return
			}
			require.Len(t, flags, 1)
			assert.Equal(t, RedFlag{Condition: "Hyperpyrexia", Triggered: true, Rationale: []string{"temperature >= 39C"}}, flags[0])
		})
	}
}

func TestEmptyPayloadTriggersNothing(t *testing.T) {
	flags := Default().Evaluate(clinical.Payload{})
	assert.NotNil(t, flags)
	assert.Empty(t, flags)
}

func TestFlagsCoOccurAndMerge(t *testing.T) {
	p := clinical.Payload{
		Vitals: map[string]any{"temperature": 40.1, "heartRate": 140, "systolicBP": 82},
		Labs:   map[string]any{"lactate": 5.2, "glucose": 35},
	}
	flags := Default().Evaluate(p)
	assert.Equal(t, []string{"Hyperpyrexia", "Hypotension", "Tachycardia", "CriticalGlucose", "Hyperlactatemia"}, conditions(flags))
	for _, f := range flags {
		assert.True(t, f.Triggered)
		assert.NotEmpty(t, f.Rationale)
	}
}

func TestRulesForOneConditionMerge(t *testing.T) {
	e, err := New([]Rule{
		{ID: "a", Condition: "Sepsis", Source: clinical.SourceVitals, Field: "temperature", Op: OpGT, Threshold: 38},
		{ID: "b", Condition: "Sepsis", Source: clinical.SourceVitals, Field: "heartRate", Op: OpGT, Threshold: 90},
	})
	require.NoError(t, err)

	flags := e.Evaluate(clinical.Payload{Vitals: map[string]any{"temperature": 38.5, "heartRate": 95}})
	require.Len(t, flags, 1)
	assert.Equal(t, []string{"temperature > 38", "heartRate > 90"}, flags[0].Rationale)
}

func TestNewRejectsMalformedRules(t *testing.T) {
	_, err := New([]Rule{{ID: "x", Condition: "C", Source: "imaging", Field: "f", Op: OpGT}})
	assert.Error(t, err)
	_, err = New([]Rule{{ID: "y", Condition: "C", Source: clinical.SourceLabs, Field: "f", Op: "=="}})
	assert.Error(t, err)
	_, err = New([]Rule{{ID: "z", Source: clinical.SourceLabs, Op: OpGT}})
	assert.Error(t, err)
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	body := `rules:
  - id: spo2-low
    condition: Hypoxemia
    source: vitals
    field: spo2
    op: "<"
    threshold: 90
    rationale: "SpO2 < 90%"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	e, err := New(append(append([]Rule(nil), DefaultRules...), rules...))
	require.NoError(t, err)
	flags := e.Evaluate(clinical.Payload{Vitals: map[string]any{"spo2": 86}})
	assert.Equal(t, []string{"Hypoxemia"}, conditions(flags))
}

func TestLoadRulesRejectsBadOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - {id: a, condition: C, source: labs, field: k, op: \"~\", threshold: 1}\n"), 0o600))
	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestCriticalLabRanges(t *testing.T) {
	tests := []struct {
		lab       string
		value     float64
		condition string
	}{
		{"creatinine", 5.0, "CriticalCreatinine"},
		{"creatinine", 0.2, "CriticalCreatinine"},
		{"hemoglobin", 20, "CriticalHemoglobin"},
		{"hemoglobin", 6, "CriticalHemoglobin"},
		{"platelets", 1000, "CriticalPlatelets"},
		{"platelets", 20, "CriticalPlatelets"},
		{"ammonia", 100, "Hyperammonemia"},
	}
	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			flags := Default().Evaluate(clinical.Payload{Labs: map[string]any{tt.lab: tt.value}})
			assert.Equal(t, []string{tt.condition}, conditions(flags))
		})
	}

	normal := clinical.Payload{Labs: map[string]any{"creatinine": 1.0, "hemoglobin": 14, "platelets": 250, "ammonia": 0}}
	assert.Empty(t, Default().Evaluate(normal))
}

func TestHypothermia(t *testing.T) {
	flags := Default().Evaluate(clinical.Payload{Vitals: map[string]any{"temperature": 34.2}})
	assert.Equal(t, []string{"Hypothermia"}, conditions(flags))
}
