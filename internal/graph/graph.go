// Package graph implements the symbolic tensor DAG: operations, tensor
// handles and the graph arena that owns them. Graphs are append-only; an
// operation can only consume tensors created earlier in the same graph,
// which makes the DAG acyclic by construction.
//
// A *Graph is a shared handle. Multiple owners may build on the same
// graph as long as they serialize their writes; the graph itself holds
// no lock.
package graph

import (
	"fmt"

	"github.com/weft-ml/weft/internal/tensor"
)

// Graph owns an ordered list of operations. It is long-lived and may be
// compiled any number of times; compilation never mutates it.
type Graph struct {
	ops []*Operation
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// Operations returns the graph's operations in creation order.
func (g *Graph) Operations() []*Operation {
	return g.ops
}

// NumOperations returns the number of operations appended so far.
func (g *Graph) NumOperations() int {
	return len(g.ops)
}

// append validates that every input belongs to this graph, then appends
// the operation and materializes its output tensors.
func (g *Graph) append(op *Operation, outTypes []tensor.ShapedType, outName string) ([]*Tensor, error) {
	for i, in := range op.inputs {
		if in == nil {
			return nil, fmt.Errorf("%s: input %d is nil", op.kind, i)
		}
		if in.op.graph != g {
			return nil, fmt.Errorf("%s: input %d belongs to a different graph", op.kind, i)
		}
	}

	op.graph = g
	op.outputs = make([]*Tensor, len(outTypes))
	for i, ot := range outTypes {
		name := outName
		if len(outTypes) > 1 && name != "" {
			name = fmt.Sprintf("%s_%d", outName, i)
		}
		op.outputs[i] = &Tensor{
			op:    op,
			index: i,
			shape: ot.Shape,
			dtype: ot.DType,
			name:  name,
		}
	}
	g.ops = append(g.ops, op)
	return op.outputs, nil
}

// appendSingle is append for the common one-output case.
func (g *Graph) appendSingle(op *Operation, out tensor.ShapedType, name string) (*Tensor, error) {
	outs, err := g.append(op, []tensor.ShapedType{out}, name)
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

// Placeholder creates an input tensor with no data. A nil shape declares
// an unranked placeholder; dimensions may be tensor.DynamicDim. The
// concrete type is fixed by the feed supplied at compilation.
func (g *Graph) Placeholder(dtype tensor.DataType, shape tensor.Shape, name string) *Tensor {
	op := &Operation{kind: OpPlaceholder, name: name}
	out, err := g.appendSingle(op, tensor.ShapedType{Shape: shape.Clone(), DType: dtype}, name)
	if err != nil {
		// No inputs, so append cannot fail.
		panic(err)
	}
	return out
}

// Constant creates a tensor whose value is baked into the graph.
func (g *Graph) Constant(data []byte, shape tensor.Shape, dtype tensor.DataType) (*Tensor, error) {
	td, err := tensor.FromBytes(data, shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("constant: %w", err)
	}
	op := &Operation{kind: OpConstant, constData: td}
	return g.appendSingle(op, td.ShapedType(), "")
}

// ConstantData creates a constant from an existing value. The value is
// retained by the graph.
func (g *Graph) ConstantData(td *tensor.TensorData) (*Tensor, error) {
	if td == nil {
		return nil, fmt.Errorf("constant: nil tensor data")
	}
	op := &Operation{kind: OpConstant, constData: td.Retain()}
	return g.appendSingle(op, td.ShapedType(), "")
}

// ConstantScalar creates a rank-0 constant from a float64 value,
// converted to the requested dtype.
func (g *Graph) ConstantScalar(value float64, dtype tensor.DataType) (*Tensor, error) {
	var td *tensor.TensorData
	var err error
	switch dtype {
	case tensor.Float32:
		td, err = tensor.FromSlice([]float32{float32(value)}, tensor.Shape{})
	case tensor.Float64:
		td, err = tensor.FromSlice([]float64{value}, tensor.Shape{})
	case tensor.Int32:
		td, err = tensor.FromSlice([]int32{int32(value)}, tensor.Shape{})
	case tensor.Int64:
		td, err = tensor.FromSlice([]int64{int64(value)}, tensor.Shape{})
	default:
		return nil, fmt.Errorf("constant: unsupported scalar dtype %s", dtype)
	}
	if err != nil {
		return nil, err
	}
	op := &Operation{kind: OpConstant, constData: td}
	return g.appendSingle(op, td.ShapedType(), "")
}

// Variable creates a named, device-resident mutable tensor whose initial
// value is baked at compilation. Weft exposes variables as graph nodes
// only; there is no training machinery behind them.
func (g *Graph) Variable(data []byte, shape tensor.Shape, dtype tensor.DataType, name string) (*Tensor, error) {
	td, err := tensor.FromBytes(data, shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("variable: %w", err)
	}
	op := &Operation{kind: OpVariable, name: name, constData: td}
	return g.appendSingle(op, td.ShapedType(), name)
}

// PlaceholderTensors returns every placeholder in creation order.
func (g *Graph) PlaceholderTensors() []*Tensor {
	var out []*Tensor
	for _, op := range g.ops {
		if op.kind == OpPlaceholder {
			out = append(out, op.outputs[0])
		}
	}
	return out
}
