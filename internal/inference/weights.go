package inference

import (
	"fmt"
	"os"

	"github.com/Skufu/triage/internal/clinical"
	"gopkg.in/yaml.v3"
)

// Layer is one dense layer in a weights file.
type Layer struct {
	Weights [][]float64 `yaml:"weights"`
	Bias    []float64   `yaml:"bias"`
}

// WeightsFile is the on-disk form of a trained reference network:
//
//	hidden: {weights: [[...] x16], bias: [...]}
//	output: {weights: [[...] x3], bias: [...]}
type WeightsFile struct {
	Hidden Layer `yaml:"hidden"`
	Output Layer `yaml:"output"`
}

// LoadWeights reads a YAML weights file and builds the network it describes.
func LoadWeights(path string) (*MLP, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	var wf WeightsFile
	if err := yaml.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("decode weights %s: %w", path, err)
	}
	m, err := NewMLP(wf.Hidden.Weights, wf.Hidden.Bias, wf.Output.Weights, wf.Output.Bias)
	if err != nil {
		return nil, fmt.Errorf("weights %s: %w", path, err)
	}
	return m, nil
}

// NewLoader returns the loader the service uses: the YAML weights at path when
// set, otherwise the seeded reference network.
func NewLoader(path string) Loader {
	return func() (Model, error) {
		if path == "" {
			return NewReferenceMLP(clinical.NumFeatures, clinical.NumClasses, ReferenceSeed), nil
		}
		return LoadWeights(path)
	}
}
