package embedding

// Device identifies the compute device a model runs on. It is resolved once per
// invocation and passed into the embedder constructor rather than read ad hoc.
type Device string

const (
	// DeviceCPU runs inference on the default CPU execution provider.
	DeviceCPU Device = "cpu"
	// DeviceCUDA runs inference on the CUDA execution provider when available.
	DeviceCUDA Device = "cuda"
)

func (d Device) String() string {
	return string(d)
}
