// Package device defines the Accelerator contract that compiled
// executables dispatch kernels against, plus discovery of the default
// device for the process.
package device

import (
	"fmt"
	"sync"

	"github.com/weft-ml/weft/internal/tensor"
)

// Accelerator executes primitive tensor kernels. Inputs are fully
// resolved host values; every kernel allocates and returns its result.
// Binary kernels require operands of equal shape; broadcasting is
// materialized by the caller before dispatch.
type Accelerator interface {
	// Name identifies the backend, e.g. "cpu" or "webgpu".
	Name() string

	Add(a, b *tensor.TensorData) (*tensor.TensorData, error)
	Subtract(a, b *tensor.TensorData) (*tensor.TensorData, error)
	Multiply(a, b *tensor.TensorData) (*tensor.TensorData, error)
	Divide(a, b *tensor.TensorData) (*tensor.TensorData, error)

	MatMul(a, b *tensor.TensorData) (*tensor.TensorData, error)
	Transpose(x *tensor.TensorData) (*tensor.TensorData, error)

	Neg(x *tensor.TensorData) (*tensor.TensorData, error)
	Exp(x *tensor.TensorData) (*tensor.TensorData, error)
	Sqrt(x *tensor.TensorData) (*tensor.TensorData, error)
	ReLU(x *tensor.TensorData) (*tensor.TensorData, error)
	Sigmoid(x *tensor.TensorData) (*tensor.TensorData, error)
	Tanh(x *tensor.TensorData) (*tensor.TensorData, error)

	// Synchronize blocks until all previously dispatched work is
	// observable by the host. A no-op on synchronous backends.
	Synchronize() error
}

// Device wraps an Accelerator with identity for logging and selection.
type Device struct {
	accel Accelerator
}

// NewDevice wraps an accelerator.
func NewDevice(accel Accelerator) *Device {
	return &Device{accel: accel}
}

// Accelerator returns the wrapped backend.
func (d *Device) Accelerator() Accelerator { return d.accel }

// Name returns the backend name.
func (d *Device) Name() string { return d.accel.Name() }

func (d *Device) String() string {
	return fmt.Sprintf("Device(%s)", d.accel.Name())
}

var (
	defaultOnce   sync.Once
	defaultDevice *Device

	// defaultFactory is installed by the cpu package's init. Backends
	// avoid importing this package, so registration runs the other way.
	defaultFactory func() Accelerator
	factoryMu      sync.Mutex
)

// RegisterDefault installs the factory used by Default. The CPU backend
// calls this from init; later registrations are ignored once Default
// has resolved.
func RegisterDefault(f func() Accelerator) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if defaultFactory == nil {
		defaultFactory = f
	}
}

// Default returns the process-wide default device. Callers wanting a
// specific backend construct it directly instead.
func Default() *Device {
	defaultOnce.Do(func() {
		factoryMu.Lock()
		f := defaultFactory
		factoryMu.Unlock()
		if f == nil {
			panic("no default accelerator registered")
		}
		defaultDevice = NewDevice(f())
	})
	return defaultDevice
}
