package clinical

// Feature is one position of the model input vector.
type Feature struct {
	Name   string
	Source Source
}

// NumFeatures is the model input width.
const NumFeatures = 8

// features is the single ordered layout used by featurization and attribution.
var features = [NumFeatures]Feature{
	{Name: "heartRate", Source: SourceVitals},
	{Name: "systolicBP", Source: SourceVitals},
	{Name: "diastolicBP", Source: SourceVitals},
	{Name: "respiratoryRate", Source: SourceVitals},
	{Name: "temperature", Source: SourceVitals},
	{Name: "wbc", Source: SourceLabs},
	{Name: "crp", Source: SourceLabs},
	{Name: "glucose", Source: SourceLabs},
}

// Features returns the feature layout in vector order.
func Features() []Feature {
	out := make([]Feature, NumFeatures)
	copy(out, features[:])
	return out
}

// FeatureNames returns the feature names in vector order.
func FeatureNames() []string {
	names := make([]string, NumFeatures)
	for i, f := range features {
		names[i] = f.Name
	}
	return names
}

// Labels are the condition names, aligned with the model output index.
var labels = [...]string{"Condition A", "Condition B", "Condition C"}

// NumClasses is the model output width.
const NumClasses = len(labels)

// Label returns the condition name for an output index.
func Label(index int) string {
	if index < 0 || index >= len(labels) {
		return ""
	}
	return labels[index]
}
