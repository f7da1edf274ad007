package graph

import (
	"fmt"

	"github.com/weft-ml/weft/internal/tensor"
)

// OpKind identifies what an operation computes. The set is intentionally
// small; every kind follows the same build-node-return-tensor pattern, so
// adding one is mechanical.
type OpKind int

// Operation kinds.
const (
	OpPlaceholder OpKind = iota
	OpConstant
	OpVariable
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpMatMul
	OpTranspose
	OpReshape
	OpNeg
	OpExp
	OpSqrt
	OpReLU
	OpSigmoid
	OpTanh
	OpCall
)

var opKindNames = map[OpKind]string{
	OpPlaceholder: "placeholder",
	OpConstant:    "constant",
	OpVariable:    "variable",
	OpAdd:         "add",
	OpSubtract:    "subtract",
	OpMultiply:    "multiply",
	OpDivide:      "divide",
	OpMatMul:      "matmul",
	OpTranspose:   "transpose",
	OpReshape:     "reshape",
	OpNeg:         "neg",
	OpExp:         "exp",
	OpSqrt:        "sqrt",
	OpReLU:        "relu",
	OpSigmoid:     "sigmoid",
	OpTanh:        "tanh",
	OpCall:        "call",
}

// String returns the stable lowercase name of the kind. These names are
// part of the serialized package format.
func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("opkind(%d)", int(k))
}

// ParseOpKind is the inverse of String.
func ParseOpKind(s string) (OpKind, bool) {
	for k, name := range opKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Operation is one node of the DAG. It consumes tensors already present
// in its graph and produces at least one fresh tensor. Operations are
// immutable once appended.
type Operation struct {
	graph   *Graph
	kind    OpKind
	name    string
	inputs  []*Tensor
	outputs []*Tensor

	// Kind-specific payloads.
	constData *tensor.TensorData // OpConstant, OpVariable
	newShape  tensor.Shape       // OpReshape
	callee    string             // OpCall: symbol of the compiled callable
}

// Kind returns the operation kind.
func (op *Operation) Kind() OpKind { return op.kind }

// Name returns the operation's optional debug name.
func (op *Operation) Name() string { return op.name }

// Graph returns the owning graph.
func (op *Operation) Graph() *Graph { return op.graph }

// InputTensors returns the consumed tensors in argument order.
func (op *Operation) InputTensors() []*Tensor { return op.inputs }

// OutputTensors returns the produced tensors.
func (op *Operation) OutputTensors() []*Tensor { return op.outputs }

// ConstData returns the baked value of a constant or variable node,
// nil for every other kind.
func (op *Operation) ConstData() *tensor.TensorData { return op.constData }

// NewShape returns the target shape of a reshape node.
func (op *Operation) NewShape() tensor.Shape { return op.newShape }

// Callee returns the callable symbol of a call node.
func (op *Operation) Callee() string { return op.callee }

// Tensor is a symbolic value: the output of exactly one operation at a
// fixed position. Identity is pointer identity; a Tensor belongs to one
// graph for its whole lifetime and is immutable.
type Tensor struct {
	op    *Operation
	index int
	shape tensor.Shape
	dtype tensor.DataType
	name  string
}

// Op returns the producing operation.
func (t *Tensor) Op() *Operation { return t.op }

// Index returns the tensor's position among its operation's outputs.
func (t *Tensor) Index() int { return t.index }

// Graph returns the owning graph.
func (t *Tensor) Graph() *Graph { return t.op.graph }

// Shape returns the declared shape; nil means unranked.
func (t *Tensor) Shape() tensor.Shape { return t.shape }

// DType returns the element type.
func (t *Tensor) DType() tensor.DataType { return t.dtype }

// Name returns the tensor's optional name.
func (t *Tensor) Name() string { return t.name }

// ShapedType returns the tensor's declared type contract.
func (t *Tensor) ShapedType() tensor.ShapedType {
	return tensor.ShapedType{Shape: t.shape.Clone(), DType: t.dtype}
}

// String returns e.g. "add_3:0 float32[2 2]".
func (t *Tensor) String() string {
	label := t.name
	if label == "" {
		label = t.op.kind.String()
	}
	return fmt.Sprintf("%s:%d %s", label, t.index, t.ShapedType())
}
