// Package cpu implements the Accelerator contract with plain Go loops.
// It is the reference backend: always available, bitwise deterministic,
// and the one every other backend is validated against.
package cpu

import (
	"fmt"
	"math"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/tensor"
)

func init() {
	device.RegisterDefault(func() device.Accelerator { return New() })
}

// Accelerator is the CPU backend. The zero value is usable; it holds no
// state and is safe for concurrent use.
type Accelerator struct{}

// New returns a CPU accelerator.
func New() *Accelerator {
	return &Accelerator{}
}

// Name returns "cpu".
func (a *Accelerator) Name() string { return "cpu" }

// Synchronize is a no-op: CPU kernels complete before returning.
func (a *Accelerator) Synchronize() error { return nil }

// broadcastPair materializes both operands to their common shape.
// Returned values are owned by the caller.
func broadcastPair(x, y *tensor.TensorData) (*tensor.TensorData, *tensor.TensorData, error) {
	if x.DType() != y.DType() {
		return nil, nil, fmt.Errorf("dtype mismatch: %s vs %s", x.DType(), y.DType())
	}
	out, _, err := tensor.BroadcastShapes(x.Shape(), y.Shape())
	if err != nil {
		return nil, nil, err
	}
	xe, err := tensor.Expand(x, out)
	if err != nil {
		return nil, nil, err
	}
	ye, err := tensor.Expand(y, out)
	if err != nil {
		xe.Release()
		return nil, nil, err
	}
	return xe, ye, nil
}

// binaryKernel applies f element-wise over equal-length slices.
func binaryKernel[T tensor.DType](dst, x, y []T, f func(a, b T) T) {
	for i := range dst {
		dst[i] = f(x[i], y[i])
	}
}

func binaryFloat(op string, x, y *tensor.TensorData,
	f32 func(a, b float32) float32, f64 func(a, b float64) float64,
	i32 func(a, b int32) int32, i64 func(a, b int64) int64,
) (*tensor.TensorData, error) {
	xe, ye, err := broadcastPair(x, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer xe.Release()
	defer ye.Release()

	out, err := tensor.NewTensorData(xe.Shape(), xe.DType())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch xe.DType() {
	case tensor.Float32:
		binaryKernel(out.AsFloat32(), xe.AsFloat32(), ye.AsFloat32(), f32)
	case tensor.Float64:
		binaryKernel(out.AsFloat64(), xe.AsFloat64(), ye.AsFloat64(), f64)
	case tensor.Int32:
		if i32 == nil {
			out.Release()
			return nil, fmt.Errorf("%s: unsupported dtype %s", op, xe.DType())
		}
		binaryKernel(out.AsInt32(), xe.AsInt32(), ye.AsInt32(), i32)
	case tensor.Int64:
		if i64 == nil {
			out.Release()
			return nil, fmt.Errorf("%s: unsupported dtype %s", op, xe.DType())
		}
		binaryKernel(out.AsInt64(), xe.AsInt64(), ye.AsInt64(), i64)
	default:
		out.Release()
		return nil, fmt.Errorf("%s: unsupported dtype %s", op, xe.DType())
	}
	return out, nil
}

// Add computes x + y element-wise.
func (a *Accelerator) Add(x, y *tensor.TensorData) (*tensor.TensorData, error) {
	return binaryFloat("add", x, y,
		func(p, q float32) float32 { return p + q },
		func(p, q float64) float64 { return p + q },
		func(p, q int32) int32 { return p + q },
		func(p, q int64) int64 { return p + q })
}

// Subtract computes x - y element-wise.
func (a *Accelerator) Subtract(x, y *tensor.TensorData) (*tensor.TensorData, error) {
	return binaryFloat("subtract", x, y,
		func(p, q float32) float32 { return p - q },
		func(p, q float64) float64 { return p - q },
		func(p, q int32) int32 { return p - q },
		func(p, q int64) int64 { return p - q })
}

// Multiply computes x * y element-wise.
func (a *Accelerator) Multiply(x, y *tensor.TensorData) (*tensor.TensorData, error) {
	return binaryFloat("multiply", x, y,
		func(p, q float32) float32 { return p * q },
		func(p, q float64) float64 { return p * q },
		func(p, q int32) int32 { return p * q },
		func(p, q int64) int64 { return p * q })
}

// Divide computes x / y element-wise. Integer division by zero is an
// error; float division follows IEEE semantics.
func (a *Accelerator) Divide(x, y *tensor.TensorData) (*tensor.TensorData, error) {
	switch x.DType() {
	case tensor.Int32, tensor.Int64:
		return nil, fmt.Errorf("divide: unsupported dtype %s", x.DType())
	}
	return binaryFloat("divide", x, y,
		func(p, q float32) float32 { return p / q },
		func(p, q float64) float64 { return p / q },
		nil, nil)
}

// MatMul computes the rank-2 matrix product with naive triple loops.
func (a *Accelerator) MatMul(x, y *tensor.TensorData) (*tensor.TensorData, error) {
	xs, ys := x.Shape(), y.Shape()
	if len(xs) != 2 || len(ys) != 2 {
		return nil, fmt.Errorf("matmul: requires rank-2 tensors, got %v and %v", xs, ys)
	}
	if xs[1] != ys[0] {
		return nil, fmt.Errorf("matmul: inner dimensions disagree: %v @ %v", xs, ys)
	}
	if x.DType() != y.DType() {
		return nil, fmt.Errorf("matmul: dtype mismatch: %s vs %s", x.DType(), y.DType())
	}

	m, k, n := xs[0], xs[1], ys[1]
	out, err := tensor.NewTensorData(tensor.Shape{m, n}, x.DType())
	if err != nil {
		return nil, fmt.Errorf("matmul: %w", err)
	}
	switch x.DType() {
	case tensor.Float32:
		matmulKernel(out.AsFloat32(), x.AsFloat32(), y.AsFloat32(), m, k, n)
	case tensor.Float64:
		matmulKernel(out.AsFloat64(), x.AsFloat64(), y.AsFloat64(), m, k, n)
	default:
		out.Release()
		return nil, fmt.Errorf("matmul: unsupported dtype %s", x.DType())
	}
	return out, nil
}

func matmulKernel[T float32 | float64](dst, x, y []T, m, k, n int) {
	for i := 0; i < m; i++ {
		for p := 0; p < k; p++ {
			xv := x[i*k+p]
			if xv == 0 {
				continue
			}
			row := y[p*n:]
			drow := dst[i*n:]
			for j := 0; j < n; j++ {
				drow[j] += xv * row[j]
			}
		}
	}
}

// Transpose swaps the two axes of a rank-2 tensor.
func (a *Accelerator) Transpose(x *tensor.TensorData) (*tensor.TensorData, error) {
	xs := x.Shape()
	if len(xs) != 2 {
		return nil, fmt.Errorf("transpose: requires a rank-2 tensor, got %v", xs)
	}
	rows, cols := xs[0], xs[1]
	out, err := tensor.NewTensorData(tensor.Shape{cols, rows}, x.DType())
	if err != nil {
		return nil, fmt.Errorf("transpose: %w", err)
	}

	// Byte-wise so every dtype works through one loop.
	es := x.DType().Size()
	src, dst := x.Bytes(), out.Bytes()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			copy(dst[(j*rows+i)*es:(j*rows+i+1)*es], src[(i*cols+j)*es:(i*cols+j+1)*es])
		}
	}
	return out, nil
}

func unaryFloat(op string, x *tensor.TensorData, f64 func(v float64) float64) (*tensor.TensorData, error) {
	out, err := tensor.NewTensorData(x.Shape(), x.DType())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), out.AsFloat32()
		for i := range src {
			dst[i] = float32(f64(float64(src[i])))
		}
	case tensor.Float64:
		src, dst := x.AsFloat64(), out.AsFloat64()
		for i := range src {
			dst[i] = f64(src[i])
		}
	default:
		out.Release()
		return nil, fmt.Errorf("%s: unsupported dtype %s", op, x.DType())
	}
	return out, nil
}

// Neg computes -x.
func (a *Accelerator) Neg(x *tensor.TensorData) (*tensor.TensorData, error) {
	switch x.DType() {
	case tensor.Int32:
		out, err := tensor.NewTensorData(x.Shape(), x.DType())
		if err != nil {
			return nil, err
		}
		src, dst := x.AsInt32(), out.AsInt32()
		for i := range src {
			dst[i] = -src[i]
		}
		return out, nil
	case tensor.Int64:
		out, err := tensor.NewTensorData(x.Shape(), x.DType())
		if err != nil {
			return nil, err
		}
		src, dst := x.AsInt64(), out.AsInt64()
		for i := range src {
			dst[i] = -src[i]
		}
		return out, nil
	}
	return unaryFloat("neg", x, func(v float64) float64 { return -v })
}

// Exp computes e^x element-wise.
func (a *Accelerator) Exp(x *tensor.TensorData) (*tensor.TensorData, error) {
	return unaryFloat("exp", x, math.Exp)
}

// Sqrt computes the element-wise square root.
func (a *Accelerator) Sqrt(x *tensor.TensorData) (*tensor.TensorData, error) {
	return unaryFloat("sqrt", x, math.Sqrt)
}

// ReLU computes max(x, 0) element-wise.
func (a *Accelerator) ReLU(x *tensor.TensorData) (*tensor.TensorData, error) {
	switch x.DType() {
	case tensor.Int32:
		out, err := tensor.NewTensorData(x.Shape(), x.DType())
		if err != nil {
			return nil, err
		}
		src, dst := x.AsInt32(), out.AsInt32()
		for i := range src {
			if src[i] > 0 {
				dst[i] = src[i]
			}
		}
		return out, nil
	case tensor.Int64:
		out, err := tensor.NewTensorData(x.Shape(), x.DType())
		if err != nil {
			return nil, err
		}
		src, dst := x.AsInt64(), out.AsInt64()
		for i := range src {
			if src[i] > 0 {
				dst[i] = src[i]
			}
		}
		return out, nil
	}
	return unaryFloat("relu", x, func(v float64) float64 { return math.Max(v, 0) })
}

// Sigmoid computes 1/(1+e^-x) element-wise.
func (a *Accelerator) Sigmoid(x *tensor.TensorData) (*tensor.TensorData, error) {
	return unaryFloat("sigmoid", x, func(v float64) float64 { return 1 / (1 + math.Exp(-v)) })
}

// Tanh computes the element-wise hyperbolic tangent.
func (a *Accelerator) Tanh(x *tensor.TensorData) (*tensor.TensorData, error) {
	return unaryFloat("tanh", x, math.Tanh)
}
