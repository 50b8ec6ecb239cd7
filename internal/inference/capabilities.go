package inference

// DeviceCPU is the only placement the gonum backend supports.
const DeviceCPU = "cpu"

// Capabilities is the set of numeric features available to this process. It
// is resolved once at startup and consulted by every stage instead of probing
// for optional support per request.
type Capabilities struct {
	// NumericRuntime gates featurization, inference and attribution as a whole.
	NumericRuntime bool
	// Accelerator reports an accelerated compute device. gonum runs on the host
	// CPU only, so detection always leaves it off.
	Accelerator bool
	// IntegratedGradients selects path-integrated gradients for the primary
	// attribution method; without it primary degrades to gradient x input.
	IntegratedGradients bool
	// KernelSHAP enables the secondary attribution method.
	KernelSHAP bool
}

// CapabilityOptions are the operator switches capabilities are derived from.
type CapabilityOptions struct {
	DisableNumericRuntime      bool
	DisableIntegratedGradients bool
	DisableKernelSHAP          bool
}

// DetectCapabilities resolves the capability set.
func DetectCapabilities(opts CapabilityOptions) Capabilities {
	runtime := !opts.DisableNumericRuntime
	return Capabilities{
		NumericRuntime:      runtime,
		Accelerator:         false,
		IntegratedGradients: runtime && !opts.DisableIntegratedGradients,
		KernelSHAP:          runtime && !opts.DisableKernelSHAP,
	}
}

// PrimaryMethod reports whether a gradient based attribution can run. Integrated
// gradients being off only lowers fidelity, it does not remove the method.
func (c Capabilities) PrimaryMethod() bool {
	return c.NumericRuntime
}

// SecondaryMethod reports whether Kernel SHAP can run.
func (c Capabilities) SecondaryMethod() bool {
	return c.NumericRuntime && c.KernelSHAP
}

// Device is the compute device models are placed on.
func (c Capabilities) Device() string {
	return DeviceCPU
}
