// Package redflag flags urgent conditions from raw vitals and labs with a
// declarative rule table. It never depends on model availability.
package redflag

import (
	"fmt"
	"os"

	"github.com/Skufu/triage/internal/clinical"
	"gopkg.in/yaml.v3"
)

// Op compares a field value against a rule threshold.
type Op string

const (
	OpGTE Op = ">="
	OpGT  Op = ">"
	OpLTE Op = "<="
	OpLT  Op = "<"
)

func (o Op) holds(v, threshold float64) bool {
	switch o {
	case OpGTE:
		return v >= threshold
	case OpGT:
		return v > threshold
	case OpLTE:
		return v <= threshold
	case OpLT:
		return v < threshold
	default:
		return false
	}
}

// Rule triggers Condition when Field in Source compares true against Threshold.
type Rule struct {
	ID        string          `yaml:"id" json:"id"`
	Condition string          `yaml:"condition" json:"condition"`
	Source    clinical.Source `yaml:"source" json:"source"`
	Field     string          `yaml:"field" json:"field"`
	Op        Op              `yaml:"op" json:"op"`
	Threshold float64         `yaml:"threshold" json:"threshold"`
	Rationale string          `yaml:"rationale" json:"rationale"`
}

func (r Rule) validate() error {
	if r.Condition == "" || r.Field == "" {
		return fmt.Errorf("rule %q: condition and field are required", r.ID)
	}
	if r.Source != clinical.SourceVitals && r.Source != clinical.SourceLabs {
		return fmt.Errorf("rule %q: unknown source %q", r.ID, r.Source)
	}
	switch r.Op {
	case OpGTE, OpGT, OpLTE, OpLT:
	default:
		return fmt.Errorf("rule %q: unknown op %q", r.ID, r.Op)
	}
	return nil
}

func (r Rule) rationale() string {
	if r.Rationale != "" {
		return r.Rationale
	}
	return fmt.Sprintf("%s %s %g", r.Field, r.Op, r.Threshold)
}

// DefaultRules is the built-in table. Lab thresholds are the critical values
// from the lab reference ranges.
var DefaultRules = []Rule{
	{ID: "temp-high", Condition: "Hyperpyrexia", Source: clinical.SourceVitals, Field: "temperature", Op: OpGTE, Threshold: 39.0, Rationale: "temperature >= 39C"},
	{ID: "temp-low", Condition: "Hypothermia", Source: clinical.SourceVitals, Field: "temperature", Op: OpLT, Threshold: 35.0, Rationale: "temperature < 35C"},
	{ID: "sbp-low", Condition: "Hypotension", Source: clinical.SourceVitals, Field: "systolicBP", Op: OpLT, Threshold: 90, Rationale: "systolic BP < 90 mmHg"},
	{ID: "hr-high", Condition: "Tachycardia", Source: clinical.SourceVitals, Field: "heartRate", Op: OpGTE, Threshold: 130, Rationale: "heart rate >= 130 bpm"},
	{ID: "rr-high", Condition: "Tachypnea", Source: clinical.SourceVitals, Field: "respiratoryRate", Op: OpGTE, Threshold: 30, Rationale: "respiratory rate >= 30/min"},
	{ID: "glucose-high", Condition: "CriticalGlucose", Source: clinical.SourceLabs, Field: "glucose", Op: OpGTE, Threshold: 400, Rationale: "glucose >= 400 mg/dL"},
	{ID: "glucose-low", Condition: "CriticalGlucose", Source: clinical.SourceLabs, Field: "glucose", Op: OpLTE, Threshold: 40, Rationale: "glucose <= 40 mg/dL"},
	{ID: "potassium-high", Condition: "CriticalPotassium", Source: clinical.SourceLabs, Field: "potassium", Op: OpGTE, Threshold: 6.5, Rationale: "potassium >= 6.5 mmol/L"},
	{ID: "potassium-low", Condition: "CriticalPotassium", Source: clinical.SourceLabs, Field: "potassium", Op: OpLTE, Threshold: 2.5, Rationale: "potassium <= 2.5 mmol/L"},
	{ID: "sodium-high", Condition: "CriticalSodium", Source: clinical.SourceLabs, Field: "sodium", Op: OpGTE, Threshold: 160, Rationale: "sodium >= 160 mmol/L"},
	{ID: "sodium-low", Condition: "CriticalSodium", Source: clinical.SourceLabs, Field: "sodium", Op: OpLTE, Threshold: 120, Rationale: "sodium <= 120 mmol/L"},
	{ID: "wbc-high", Condition: "CriticalWBC", Source: clinical.SourceLabs, Field: "wbc", Op: OpGTE, Threshold: 30, Rationale: "wbc >= 30 x10^3/uL"},
	{ID: "wbc-low", Condition: "CriticalWBC", Source: clinical.SourceLabs, Field: "wbc", Op: OpLTE, Threshold: 1, Rationale: "wbc <= 1 x10^3/uL"},
	{ID: "creatinine-high", Condition: "CriticalCreatinine", Source: clinical.SourceLabs, Field: "creatinine", Op: OpGTE, Threshold: 5.0, Rationale: "creatinine >= 5 mg/dL"},
	{ID: "creatinine-low", Condition: "CriticalCreatinine", Source: clinical.SourceLabs, Field: "creatinine", Op: OpLTE, Threshold: 0.2, Rationale: "creatinine <= 0.2 mg/dL"},
	{ID: "hemoglobin-high", Condition: "CriticalHemoglobin", Source: clinical.SourceLabs, Field: "hemoglobin", Op: OpGTE, Threshold: 20, Rationale: "hemoglobin >= 20 g/dL"},
	{ID: "hemoglobin-low", Condition: "CriticalHemoglobin", Source: clinical.SourceLabs, Field: "hemoglobin", Op: OpLTE, Threshold: 6, Rationale: "hemoglobin <= 6 g/dL"},
	{ID: "platelets-high", Condition: "CriticalPlatelets", Source: clinical.SourceLabs, Field: "platelets", Op: OpGTE, Threshold: 1000, Rationale: "platelets >= 1000 x10^3/uL"},
	{ID: "platelets-low", Condition: "CriticalPlatelets", Source: clinical.SourceLabs, Field: "platelets", Op: OpLTE, Threshold: 20, Rationale: "platelets <= 20 x10^3/uL"},
	{ID: "troponin-high", Condition: "MyocardialInjury", Source: clinical.SourceLabs, Field: "troponin", Op: OpGTE, Threshold: 0.1, Rationale: "troponin >= 0.1 ng/mL"},
	{ID: "lactate-high", Condition: "Hyperlactatemia", Source: clinical.SourceLabs, Field: "lactate", Op: OpGTE, Threshold: 4.0, Rationale: "lactate >= 4 mmol/L"},
	{ID: "ammonia-high", Condition: "Hyperammonemia", Source: clinical.SourceLabs, Field: "ammonia", Op: OpGTE, Threshold: 100, Rationale: "ammonia >= 100 umol/L"},
}

// RuleSet is the YAML form of additional rules:
//
//	rules:
//	  - {id: spo2-low, condition: Hypoxemia, source: vitals, field: spo2, op: "<", threshold: 90}
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads and validates rules from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read red flag rules: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("decode red flag rules %s: %w", path, err)
	}
	for _, r := range rs.Rules {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return rs.Rules, nil
}
