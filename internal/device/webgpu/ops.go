package webgpu

import (
	"fmt"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/tensor"
)

var _ device.Accelerator = (*Backend)(nil)

// binary broadcasts both operands to their common shape and dispatches
// the kernel.
func (b *Backend) binary(op, shaderName, shaderCode string, x, y *tensor.TensorData) (*tensor.TensorData, error) {
	if x.DType() != y.DType() {
		return nil, fmt.Errorf("webgpu: %s: dtype mismatch: %s vs %s", op, x.DType(), y.DType())
	}
	out, _, err := tensor.BroadcastShapes(x.Shape(), y.Shape())
	if err != nil {
		return nil, fmt.Errorf("webgpu: %s: %w", op, err)
	}
	xe, err := tensor.Expand(x, out)
	if err != nil {
		return nil, fmt.Errorf("webgpu: %s: %w", op, err)
	}
	defer xe.Release()
	ye, err := tensor.Expand(y, out)
	if err != nil {
		return nil, fmt.Errorf("webgpu: %s: %w", op, err)
	}
	defer ye.Release()

	return b.runBinaryOp(xe, ye, shaderName, shaderCode)
}

// Add computes x + y element-wise.
func (b *Backend) Add(x, y *tensor.TensorData) (*tensor.TensorData, error) {
	return b.binary("add", "add", addShader, x, y)
}

// Subtract computes x - y element-wise.
func (b *Backend) Subtract(x, y *tensor.TensorData) (*tensor.TensorData, error) {
	return b.binary("subtract", "sub", subShader, x, y)
}

// Multiply computes x * y element-wise.
func (b *Backend) Multiply(x, y *tensor.TensorData) (*tensor.TensorData, error) {
	return b.binary("multiply", "mul", mulShader, x, y)
}

// Divide computes x / y element-wise with IEEE semantics.
func (b *Backend) Divide(x, y *tensor.TensorData) (*tensor.TensorData, error) {
	return b.binary("divide", "div", divShader, x, y)
}

// MatMul computes the rank-2 matrix product.
func (b *Backend) MatMul(x, y *tensor.TensorData) (*tensor.TensorData, error) {
	return b.runMatMul(x, y)
}

// Transpose swaps the two axes of a rank-2 tensor.
func (b *Backend) Transpose(x *tensor.TensorData) (*tensor.TensorData, error) {
	return b.runTranspose(x)
}

// Neg computes -x.
func (b *Backend) Neg(x *tensor.TensorData) (*tensor.TensorData, error) {
	return b.runUnaryOp(x, "neg", negShader)
}

// Exp computes e^x element-wise.
func (b *Backend) Exp(x *tensor.TensorData) (*tensor.TensorData, error) {
	return b.runUnaryOp(x, "exp", expShader)
}

// Sqrt computes the element-wise square root.
func (b *Backend) Sqrt(x *tensor.TensorData) (*tensor.TensorData, error) {
	return b.runUnaryOp(x, "sqrt", sqrtShader)
}

// ReLU computes max(x, 0) element-wise.
func (b *Backend) ReLU(x *tensor.TensorData) (*tensor.TensorData, error) {
	return b.runUnaryOp(x, "relu", reluShader)
}

// Sigmoid computes 1/(1+e^-x) element-wise.
func (b *Backend) Sigmoid(x *tensor.TensorData) (*tensor.TensorData, error) {
	return b.runUnaryOp(x, "sigmoid", sigmoidShader)
}

// Tanh computes the element-wise hyperbolic tangent.
func (b *Backend) Tanh(x *tensor.TensorData) (*tensor.TensorData, error) {
	return b.runUnaryOp(x, "tanh", tanhShader)
}
