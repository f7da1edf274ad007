package exec

import (
	"fmt"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// valueSlot is one value in the compiled program's register file. Every
// tensor reachable from the targets gets a slot; its type is fully
// resolved at compile time.
type valueSlot struct {
	typ  tensor.ShapedType
	name string
	// kind of the producing operation. Source slots (placeholder,
	// constant, variable) have no instruction.
	kind graph.OpKind
}

// instruction is one compute step. Source ops are not instructions;
// their slots are bound before interpretation starts.
type instruction struct {
	kind     graph.OpKind
	inputs   []int
	outputs  []int
	newShape tensor.Shape // OpReshape
	callee   string       // OpCall
}

// program is the device-independent compiled form of a graph: a slot
// file, baked constants and a straight-line instruction list in
// topological order.
type program struct {
	slots  []valueSlot
	consts map[int]*tensor.TensorData // slot -> baked value, retained by the program
	instrs []instruction

	feeds   []int // slot per feed tensor, in feed order
	targets []int // slot per target tensor, in target order
}

// release drops the program's references to its baked constants.
func (p *program) release() {
	for _, td := range p.consts {
		td.Release()
	}
	p.consts = nil
}

// run interprets the program. inputs are the feed values in feed order;
// they are borrowed, not retained. The returned target values are owned
// by the caller.
func (p *program) run(accel device.Accelerator, inputs []*tensor.TensorData, callables map[string]*Executable) ([]*tensor.TensorData, error) {
	if len(inputs) != len(p.feeds) {
		return nil, fmt.Errorf("program requires %d inputs, got %d", len(p.feeds), len(inputs))
	}

	env := make([]*tensor.TensorData, len(p.slots))
	// owned marks values the interpreter allocated and must release.
	owned := make([]bool, len(p.slots))
	defer func() {
		for i, td := range env {
			if td != nil && owned[i] {
				td.Release()
			}
		}
	}()

	for slot, td := range p.consts {
		env[slot] = td
	}
	for i, slot := range p.feeds {
		if inputs[i] == nil {
			return nil, fmt.Errorf("%w: input %d is nil", ErrMissingFeed, i)
		}
		env[slot] = inputs[i]
	}

	for _, in := range p.instrs {
		if err := p.step(accel, env, owned, in, callables); err != nil {
			return nil, err
		}
	}

	results := make([]*tensor.TensorData, len(p.targets))
	for i, slot := range p.targets {
		td := env[slot]
		if td == nil {
			return nil, fmt.Errorf("target slot %d was never produced", slot)
		}
		results[i] = td.Retain()
	}
	return results, nil
}

func (p *program) step(accel device.Accelerator, env []*tensor.TensorData, owned []bool, in instruction, callables map[string]*Executable) error {
	arg := func(i int) *tensor.TensorData { return env[in.inputs[i]] }
	store := func(i int, td *tensor.TensorData) {
		env[in.outputs[i]] = td
		owned[in.outputs[i]] = true
	}

	switch in.kind {
	case graph.OpAdd, graph.OpSubtract, graph.OpMultiply, graph.OpDivide, graph.OpMatMul:
		var out *tensor.TensorData
		var err error
		switch in.kind {
		case graph.OpAdd:
			out, err = accel.Add(arg(0), arg(1))
		case graph.OpSubtract:
			out, err = accel.Subtract(arg(0), arg(1))
		case graph.OpMultiply:
			out, err = accel.Multiply(arg(0), arg(1))
		case graph.OpDivide:
			out, err = accel.Divide(arg(0), arg(1))
		case graph.OpMatMul:
			out, err = accel.MatMul(arg(0), arg(1))
		}
		if err != nil {
			return fmt.Errorf("%s: %w", in.kind, err)
		}
		store(0, out)

	case graph.OpTranspose:
		out, err := accel.Transpose(arg(0))
		if err != nil {
			return fmt.Errorf("transpose: %w", err)
		}
		store(0, out)

	case graph.OpReshape:
		out, err := arg(0).WithShape(in.newShape)
		if err != nil {
			return fmt.Errorf("reshape: %w", err)
		}
		store(0, out)

	case graph.OpNeg, graph.OpExp, graph.OpSqrt, graph.OpReLU, graph.OpSigmoid, graph.OpTanh:
		var out *tensor.TensorData
		var err error
		switch in.kind {
		case graph.OpNeg:
			out, err = accel.Neg(arg(0))
		case graph.OpExp:
			out, err = accel.Exp(arg(0))
		case graph.OpSqrt:
			out, err = accel.Sqrt(arg(0))
		case graph.OpReLU:
			out, err = accel.ReLU(arg(0))
		case graph.OpSigmoid:
			out, err = accel.Sigmoid(arg(0))
		case graph.OpTanh:
			out, err = accel.Tanh(arg(0))
		}
		if err != nil {
			return fmt.Errorf("%s: %w", in.kind, err)
		}
		store(0, out)

	case graph.OpCall:
		callee, ok := callables[in.callee]
		if !ok {
			return fmt.Errorf("call %q: callable not registered", in.callee)
		}
		args := make([]*tensor.TensorData, len(in.inputs))
		for i := range in.inputs {
			args[i] = arg(i)
		}
		outs, err := callee.runWith(accel, args)
		if err != nil {
			return fmt.Errorf("call %q: %w", in.callee, err)
		}
		if len(outs) != len(in.outputs) {
			for _, o := range outs {
				o.Release()
			}
			return fmt.Errorf("call %q: produced %d outputs, expected %d", in.callee, len(outs), len(in.outputs))
		}
		for i, o := range outs {
			store(i, o)
		}

	default:
		return fmt.Errorf("unsupported instruction %s", in.kind)
	}
	return nil
}
