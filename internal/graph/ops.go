package graph

import (
	"fmt"

	"github.com/weft-ml/weft/internal/tensor"
)

// Operation constructors. Each validates only what the underlying op
// requires (dtype agreement, broadcast compatibility, inner dimensions)
// and otherwise trusts the caller. Shapes involving unranked inputs stay
// unranked until compilation resolves them against concrete feeds.

func isFloat(dt tensor.DataType) bool {
	return dt == tensor.Float32 || dt == tensor.Float16 || dt == tensor.Float64
}

func isNumeric(dt tensor.DataType) bool {
	return dt != tensor.Bool
}

// binaryOut infers the output type of an element-wise binary op.
func binaryOut(kind OpKind, a, b *Tensor) (tensor.ShapedType, error) {
	if a.DType() != b.DType() {
		return tensor.ShapedType{}, fmt.Errorf("%s: dtype mismatch: %s vs %s", kind, a.DType(), b.DType())
	}
	if !isNumeric(a.DType()) {
		return tensor.ShapedType{}, fmt.Errorf("%s: unsupported dtype %s", kind, a.DType())
	}
	if a.Shape() == nil || b.Shape() == nil {
		return tensor.ShapedType{Shape: nil, DType: a.DType()}, nil
	}
	out, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return tensor.ShapedType{}, fmt.Errorf("%s: %w", kind, err)
	}
	return tensor.ShapedType{Shape: out, DType: a.DType()}, nil
}

func (g *Graph) binary(kind OpKind, a, b *Tensor, name string) (*Tensor, error) {
	out, err := binaryOut(kind, a, b)
	if err != nil {
		return nil, err
	}
	op := &Operation{kind: kind, name: name, inputs: []*Tensor{a, b}}
	return g.appendSingle(op, out, name)
}

// Add returns a + b with trailing-dimension broadcasting.
func (g *Graph) Add(a, b *Tensor, name string) (*Tensor, error) {
	return g.binary(OpAdd, a, b, name)
}

// Subtract returns a - b with broadcasting.
func (g *Graph) Subtract(a, b *Tensor, name string) (*Tensor, error) {
	return g.binary(OpSubtract, a, b, name)
}

// Multiply returns a * b element-wise with broadcasting.
func (g *Graph) Multiply(a, b *Tensor, name string) (*Tensor, error) {
	return g.binary(OpMultiply, a, b, name)
}

// Divide returns a / b element-wise with broadcasting.
func (g *Graph) Divide(a, b *Tensor, name string) (*Tensor, error) {
	return g.binary(OpDivide, a, b, name)
}

// MatMul returns the matrix product of two rank-2 tensors.
func (g *Graph) MatMul(a, b *Tensor, name string) (*Tensor, error) {
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("matmul: dtype mismatch: %s vs %s", a.DType(), b.DType())
	}
	if !isFloat(a.DType()) {
		return nil, fmt.Errorf("matmul: unsupported dtype %s", a.DType())
	}

	out := tensor.ShapedType{Shape: nil, DType: a.DType()}
	as, bs := a.Shape(), b.Shape()
	if as != nil && bs != nil {
		if len(as) != 2 || len(bs) != 2 {
			return nil, fmt.Errorf("matmul: requires rank-2 tensors, got %v and %v", as, bs)
		}
		if as[1] != tensor.DynamicDim && bs[0] != tensor.DynamicDim && as[1] != bs[0] {
			return nil, fmt.Errorf("matmul: inner dimensions disagree: %v @ %v", as, bs)
		}
		out.Shape = tensor.Shape{as[0], bs[1]}
	}

	op := &Operation{kind: OpMatMul, name: name, inputs: []*Tensor{a, b}}
	return g.appendSingle(op, out, name)
}

// Transpose returns the transpose of a rank-2 tensor.
func (g *Graph) Transpose(x *Tensor, name string) (*Tensor, error) {
	out := tensor.ShapedType{Shape: nil, DType: x.DType()}
	if s := x.Shape(); s != nil {
		if len(s) != 2 {
			return nil, fmt.Errorf("transpose: requires a rank-2 tensor, got %v", s)
		}
		out.Shape = tensor.Shape{s[1], s[0]}
	}
	op := &Operation{kind: OpTranspose, name: name, inputs: []*Tensor{x}}
	return g.appendSingle(op, out, name)
}

// Reshape reinterprets x with a new resolved shape of equal element
// count. Reshape moves no data.
func (g *Graph) Reshape(x *Tensor, shape tensor.Shape, name string) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	if !shape.IsResolved() {
		return nil, fmt.Errorf("reshape: target shape %v is not resolved", shape)
	}
	if s := x.Shape(); s != nil && s.IsResolved() && s.NumElements() != shape.NumElements() {
		return nil, fmt.Errorf("reshape: cannot reshape %v to %v", s, shape)
	}
	op := &Operation{kind: OpReshape, name: name, inputs: []*Tensor{x}, newShape: shape.Clone()}
	return g.appendSingle(op, tensor.ShapedType{Shape: shape.Clone(), DType: x.DType()}, name)
}

func (g *Graph) unary(kind OpKind, x *Tensor, name string, floatOnly bool) (*Tensor, error) {
	if floatOnly && !isFloat(x.DType()) {
		return nil, fmt.Errorf("%s: unsupported dtype %s", kind, x.DType())
	}
	if !floatOnly && !isNumeric(x.DType()) {
		return nil, fmt.Errorf("%s: unsupported dtype %s", kind, x.DType())
	}
	op := &Operation{kind: kind, name: name, inputs: []*Tensor{x}}
	return g.appendSingle(op, tensor.ShapedType{Shape: x.Shape().Clone(), DType: x.DType()}, name)
}

// Neg returns -x.
func (g *Graph) Neg(x *Tensor, name string) (*Tensor, error) {
	return g.unary(OpNeg, x, name, false)
}

// Exp returns e^x element-wise.
func (g *Graph) Exp(x *Tensor, name string) (*Tensor, error) {
	return g.unary(OpExp, x, name, true)
}

// Sqrt returns the element-wise square root.
func (g *Graph) Sqrt(x *Tensor, name string) (*Tensor, error) {
	return g.unary(OpSqrt, x, name, true)
}

// ReLU returns max(x, 0) element-wise.
func (g *Graph) ReLU(x *Tensor, name string) (*Tensor, error) {
	return g.unary(OpReLU, x, name, false)
}

// Sigmoid returns 1/(1+e^-x) element-wise.
func (g *Graph) Sigmoid(x *Tensor, name string) (*Tensor, error) {
	return g.unary(OpSigmoid, x, name, true)
}

// Tanh returns the element-wise hyperbolic tangent.
func (g *Graph) Tanh(x *Tensor, name string) (*Tensor, error) {
	return g.unary(OpTanh, x, name, true)
}

// Call invokes a named callable registered on the compilation
// descriptor. resultTypes declare the callee's outputs; they are checked
// against the callable's actual targets at compilation, which is when
// the symbol is resolved.
func (g *Graph) Call(symbol string, inputs []*Tensor, resultTypes []tensor.ShapedType, name string) ([]*Tensor, error) {
	if symbol == "" {
		return nil, fmt.Errorf("call: empty symbol")
	}
	if len(resultTypes) == 0 {
		return nil, fmt.Errorf("call %q: at least one result type required", symbol)
	}
	op := &Operation{kind: OpCall, name: name, inputs: inputs, callee: symbol}
	return g.append(op, resultTypes, name)
}
