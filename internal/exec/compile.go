package exec

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// Compile lowers a graph into an executable for the given device.
//
// feeds declares the concrete type of every placeholder the targets
// depend on; compilation fails with ErrMissingFeed when one is absent
// and with ErrShapeMismatch when a declared type cannot satisfy a
// placeholder's contract. Operations the targets do not depend on are
// never compiled. The source graph is not mutated and may keep growing
// after compilation.
func Compile(dev *device.Device, g *graph.Graph, feeds map[*graph.Tensor]tensor.ShapedType, targets []*graph.Tensor, desc *CompilationDescriptor) (*Executable, error) {
	if dev == nil {
		return nil, fmt.Errorf("compile: nil device")
	}
	if g == nil {
		return nil, fmt.Errorf("compile: nil graph")
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("compile: no targets")
	}
	if desc == nil {
		desc = &CompilationDescriptor{}
	}

	for i, t := range targets {
		if t == nil || t.Graph() != g {
			return nil, fmt.Errorf("compile: target %d does not belong to the graph", i)
		}
	}
	for t, ft := range feeds {
		if t == nil || t.Graph() != g {
			return nil, fmt.Errorf("compile: feed key does not belong to the graph")
		}
		if t.Op().Kind() != graph.OpPlaceholder {
			return nil, fmt.Errorf("compile: feed key %q is not a placeholder", t.Name())
		}
		if !ft.IsResolved() {
			return nil, fmt.Errorf("%w: feed type for %q must be fully resolved, got %s", ErrShapeMismatch, t.Name(), ft)
		}
		if !t.ShapedType().Accepts(ft) {
			return nil, fmt.Errorf("%w: placeholder %q declares %s, feed provides %s", ErrShapeMismatch, t.Name(), t.ShapedType(), ft)
		}
	}

	// Backward reachability from the targets.
	needed := make(map[*graph.Operation]bool)
	var visit func(op *graph.Operation)
	visit = func(op *graph.Operation) {
		if needed[op] {
			return
		}
		needed[op] = true
		for _, in := range op.InputTensors() {
			visit(in.Op())
		}
	}
	for _, t := range targets {
		visit(t.Op())
	}

	// Forward type resolution over the reachable subgraph. Fed but
	// unreachable placeholders still get slots so the feed order stays
	// the caller's contract.
	resolved := make(map[*graph.Tensor]tensor.ShapedType)
	slotOf := make(map[*graph.Tensor]int)
	prog := &program{consts: make(map[int]*tensor.TensorData)}

	addSlot := func(t *graph.Tensor, typ tensor.ShapedType) int {
		slot := len(prog.slots)
		prog.slots = append(prog.slots, valueSlot{typ: typ, name: t.Name(), kind: t.Op().Kind()})
		slotOf[t] = slot
		resolved[t] = typ
		return slot
	}

	var feedTensors []*graph.Tensor
	logger := desc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, op := range g.Operations() {
		fedPlaceholder := false
		if op.Kind() == graph.OpPlaceholder {
			_, fedPlaceholder = feeds[op.OutputTensors()[0]]
		}
		if !needed[op] && !fedPlaceholder {
			continue
		}

		switch op.Kind() {
		case graph.OpPlaceholder:
			t := op.OutputTensors()[0]
			ft, ok := feeds[t]
			if !ok {
				return nil, fmt.Errorf("%w: placeholder %q is required by the targets", ErrMissingFeed, t.Name())
			}
			slot := addSlot(t, ft)
			prog.feeds = append(prog.feeds, slot)
			feedTensors = append(feedTensors, t)

		case graph.OpConstant, graph.OpVariable:
			t := op.OutputTensors()[0]
			slot := addSlot(t, op.ConstData().ShapedType())
			prog.consts[slot] = op.ConstData().Retain()

		default:
			outTypes, err := resolveOp(op, resolved, desc)
			if err != nil {
				return nil, err
			}
			in := instruction{kind: op.Kind(), newShape: op.NewShape(), callee: op.Callee()}
			for _, inp := range op.InputTensors() {
				in.inputs = append(in.inputs, slotOf[inp])
			}
			for i, out := range op.OutputTensors() {
				in.outputs = append(in.outputs, addSlot(out, outTypes[i]))
			}
			prog.instrs = append(prog.instrs, in)
			if desc.DebugCompile {
				logger.Debug("compiled instruction",
					zap.String("op", op.Kind().String()),
					zap.Ints("inputs", in.inputs),
					zap.Ints("outputs", in.outputs))
			}
		}
	}

	outputTypes := make([]tensor.ShapedType, len(targets))
	for i, t := range targets {
		prog.targets = append(prog.targets, slotOf[t])
		outputTypes[i] = resolved[t]
	}

	return &Executable{
		device:        dev,
		prog:          prog,
		feedTensors:   feedTensors,
		targetTensors: append([]*graph.Tensor(nil), targets...),
		outputTypes:   outputTypes,
		callables:     desc.Callables(),
		optimization:  desc.OptimizationLevel,
	}, nil
}

// resolveOp computes the concrete output types of a compute operation
// from its already-resolved inputs.
func resolveOp(op *graph.Operation, resolved map[*graph.Tensor]tensor.ShapedType, desc *CompilationDescriptor) ([]tensor.ShapedType, error) {
	in := make([]tensor.ShapedType, len(op.InputTensors()))
	for i, t := range op.InputTensors() {
		typ, ok := resolved[t]
		if !ok {
			return nil, fmt.Errorf("compile: %s input %d has no resolved type", op.Kind(), i)
		}
		in[i] = typ
	}

	switch op.Kind() {
	case graph.OpAdd, graph.OpSubtract, graph.OpMultiply, graph.OpDivide:
		out, _, err := tensor.BroadcastShapes(in[0].Shape, in[1].Shape)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrShapeMismatch, op.Kind(), err)
		}
		return []tensor.ShapedType{{Shape: out, DType: in[0].DType}}, nil

	case graph.OpMatMul:
		a, b := in[0].Shape, in[1].Shape
		if len(a) != 2 || len(b) != 2 || a[1] != b[0] {
			return nil, fmt.Errorf("%w: matmul: %v @ %v", ErrShapeMismatch, a, b)
		}
		return []tensor.ShapedType{{Shape: tensor.Shape{a[0], b[1]}, DType: in[0].DType}}, nil

	case graph.OpTranspose:
		s := in[0].Shape
		if len(s) != 2 {
			return nil, fmt.Errorf("%w: transpose: %v is not rank-2", ErrShapeMismatch, s)
		}
		return []tensor.ShapedType{{Shape: tensor.Shape{s[1], s[0]}, DType: in[0].DType}}, nil

	case graph.OpReshape:
		target := op.NewShape()
		if in[0].Shape.NumElements() != target.NumElements() {
			return nil, fmt.Errorf("%w: reshape: cannot reshape %v to %v", ErrShapeMismatch, in[0].Shape, target)
		}
		return []tensor.ShapedType{{Shape: target.Clone(), DType: in[0].DType}}, nil

	case graph.OpNeg, graph.OpExp, graph.OpSqrt, graph.OpReLU, graph.OpSigmoid, graph.OpTanh:
		return []tensor.ShapedType{in[0]}, nil

	case graph.OpCall:
		callee, ok := desc.callables[op.Callee()]
		if !ok {
			return nil, fmt.Errorf("compile: call %q: callable not registered on the descriptor", op.Callee())
		}
		if len(in) != len(callee.feedTensors) {
			return nil, fmt.Errorf("compile: call %q: %d arguments, callable takes %d", op.Callee(), len(in), len(callee.feedTensors))
		}
		for i, ft := range callee.feedTensors {
			want := callee.prog.slots[callee.prog.feeds[i]].typ
			if want.DType != in[i].DType || !want.Shape.Matches(in[i].Shape) {
				return nil, fmt.Errorf("%w: call %q: argument %d is %s, callable %q expects %s",
					ErrShapeMismatch, op.Callee(), i, in[i], ft.Name(), want)
			}
		}
		if len(callee.outputTypes) != len(op.OutputTensors()) {
			return nil, fmt.Errorf("compile: call %q: declares %d results, callable produces %d",
				op.Callee(), len(op.OutputTensors()), len(callee.outputTypes))
		}
		out := make([]tensor.ShapedType, len(callee.outputTypes))
		for i, ot := range callee.outputTypes {
			declared := op.OutputTensors()[i].ShapedType()
			if declared.DType != ot.DType || !declared.Shape.Matches(ot.Shape) {
				return nil, fmt.Errorf("%w: call %q: result %d declared %s, callable produces %s",
					ErrShapeMismatch, op.Callee(), i, declared, ot)
			}
			out[i] = ot
		}
		return out, nil

	default:
		return nil, fmt.Errorf("compile: unsupported operation %s", op.Kind())
	}
}
