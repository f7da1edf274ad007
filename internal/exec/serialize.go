package exec

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/pack"
	"github.com/weft-ml/weft/internal/tensor"
)

// SerializeToPackage writes the executable's compiled program and baked
// constants to a package directory. Callables are not serialized: a
// call instruction stores only its symbol, and loading a package with
// calls requires the same symbols registered on the load descriptor.
func SerializeToPackage(exe *Executable, dir string, desc *SerializationDescriptor) error {
	if desc == nil {
		desc = &SerializationDescriptor{}
	}

	w, err := pack.NewWriter(dir, desc.Append)
	if err != nil {
		return err
	}

	m := &pack.Manifest{
		PackageID:         uuid.NewString(),
		CreatedAt:         time.Now().UTC(),
		DeviceName:        exe.device.Name(),
		OptimizationLevel: int(exe.optimization),
		DeploymentTarget:  desc.DeploymentTarget,
		Feeds:             append([]int(nil), exe.prog.feeds...),
		Targets:           append([]int(nil), exe.prog.targets...),
	}

	for i, slot := range exe.prog.slots {
		meta := pack.SlotMeta{
			Kind:  slot.kind.String(),
			Name:  slot.name,
			DType: slot.typ.DType.String(),
			Shape: dimsFromShape(slot.typ.Shape),
		}
		if td, ok := exe.prog.consts[i]; ok {
			offset, err := w.AddBlob(td.Bytes())
			if err != nil {
				return err
			}
			meta.HasConst = true
			meta.ConstOffset = offset
			meta.ConstSize = int64(td.ByteSize())
		}
		m.Slots = append(m.Slots, meta)
	}

	for _, in := range exe.prog.instrs {
		m.Instructions = append(m.Instructions, pack.InstrMeta{
			Kind:     in.kind.String(),
			Inputs:   append([]int(nil), in.inputs...),
			Outputs:  append([]int(nil), in.outputs...),
			NewShape: dimsFromShape(in.newShape),
			Callee:   in.callee,
		})
	}

	return w.Finish(m)
}

// dimsFromShape copies a shape for the manifest. nil (unranked) and
// empty (rank-0) must stay distinct so they survive JSON as null vs [].
func dimsFromShape(s tensor.Shape) []int {
	if s == nil {
		return nil
	}
	return append([]int{}, s...)
}

// shapeFromDims is the manifest-side inverse of dimsFromShape.
func shapeFromDims(d []int) tensor.Shape {
	if d == nil {
		return nil
	}
	return append(tensor.Shape{}, d...)
}

// LoadPackage reads a package directory, rebuilds its graph and
// recompiles it for the given device. Recompiling instead of trusting
// the stored program revalidates every contract against the loading
// process's operator set. A nil descriptor loads with the package's
// recorded optimization level.
func LoadPackage(dev *device.Device, dir string, desc *CompilationDescriptor) (*Executable, error) {
	p, err := pack.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPackage, err)
	}
	m := p.Manifest()

	if desc == nil {
		desc = &CompilationDescriptor{OptimizationLevel: OptimizationLevel(m.OptimizationLevel)}
	}

	g := graph.New()
	slotTensor := make([]*graph.Tensor, len(m.Slots))
	feedTypes := make(map[*graph.Tensor]tensor.ShapedType)

	// Source slots first; instructions reference them by index.
	for i, meta := range m.Slots {
		kind, ok := graph.ParseOpKind(meta.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: slot %d has unknown kind %q", ErrBadPackage, i, meta.Kind)
		}
		dtype, ok := tensor.ParseDataType(meta.DType)
		if !ok {
			return nil, fmt.Errorf("%w: slot %d has unknown dtype %q", ErrBadPackage, i, meta.DType)
		}
		shape := shapeFromDims(meta.Shape)

		switch kind {
		case graph.OpPlaceholder:
			t := g.Placeholder(dtype, shape, meta.Name)
			slotTensor[i] = t
			feedTypes[t] = tensor.NewShapedType(shape, dtype)

		case graph.OpConstant, graph.OpVariable:
			if !meta.HasConst {
				return nil, fmt.Errorf("%w: %s slot %d has no baked data", ErrBadPackage, meta.Kind, i)
			}
			blob, err := p.Blob(meta.ConstOffset, meta.ConstSize)
			if err != nil {
				return nil, fmt.Errorf("%w: slot %d: %v", ErrBadPackage, i, err)
			}
			var t *graph.Tensor
			if kind == graph.OpVariable {
				t, err = g.Variable(blob, shape, dtype, meta.Name)
			} else {
				t, err = g.Constant(blob, shape, dtype)
			}
			if err != nil {
				return nil, fmt.Errorf("%w: slot %d: %v", ErrBadPackage, i, err)
			}
			slotTensor[i] = t
		}
	}

	for idx, im := range m.Instructions {
		kind, ok := graph.ParseOpKind(im.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: instruction %d has unknown kind %q", ErrBadPackage, idx, im.Kind)
		}

		args := make([]*graph.Tensor, len(im.Inputs))
		for i, slot := range im.Inputs {
			if slot < 0 || slot >= len(slotTensor) || slotTensor[slot] == nil {
				return nil, fmt.Errorf("%w: instruction %d input %d references missing slot %d", ErrBadPackage, idx, i, slot)
			}
			args[i] = slotTensor[slot]
		}
		name := ""
		if len(im.Outputs) > 0 {
			name = m.Slots[im.Outputs[0]].Name
		}

		outs, err := rebuildOp(g, kind, im, args, m, name)
		if err != nil {
			return nil, err
		}
		if len(outs) != len(im.Outputs) {
			return nil, fmt.Errorf("%w: instruction %d rebuilt with %d outputs, manifest has %d", ErrBadPackage, idx, len(outs), len(im.Outputs))
		}
		for i, out := range outs {
			slotTensor[im.Outputs[i]] = out
		}
	}

	targets := make([]*graph.Tensor, len(m.Targets))
	for i, slot := range m.Targets {
		if slot < 0 || slot >= len(slotTensor) || slotTensor[slot] == nil {
			return nil, fmt.Errorf("%w: target %d references missing slot %d", ErrBadPackage, i, slot)
		}
		targets[i] = slotTensor[slot]
	}

	exe, err := Compile(dev, g, feedTypes, targets, desc)
	if err != nil {
		return nil, fmt.Errorf("recompiling package: %w", err)
	}
	return exe, nil
}

func rebuildOp(g *graph.Graph, kind graph.OpKind, im pack.InstrMeta, args []*graph.Tensor, m *pack.Manifest, name string) ([]*graph.Tensor, error) {
	single := func(t *graph.Tensor, err error) ([]*graph.Tensor, error) {
		if err != nil {
			return nil, fmt.Errorf("%w: rebuilding %s: %v", ErrBadPackage, kind, err)
		}
		return []*graph.Tensor{t}, nil
	}

	switch kind {
	case graph.OpAdd:
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %s expects 2 inputs", ErrBadPackage, kind)
		}
		return single(g.Add(args[0], args[1], name))
	case graph.OpSubtract:
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %s expects 2 inputs", ErrBadPackage, kind)
		}
		return single(g.Subtract(args[0], args[1], name))
	case graph.OpMultiply:
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %s expects 2 inputs", ErrBadPackage, kind)
		}
		return single(g.Multiply(args[0], args[1], name))
	case graph.OpDivide:
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %s expects 2 inputs", ErrBadPackage, kind)
		}
		return single(g.Divide(args[0], args[1], name))
	case graph.OpMatMul:
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %s expects 2 inputs", ErrBadPackage, kind)
		}
		return single(g.MatMul(args[0], args[1], name))
	case graph.OpTranspose:
		return single(g.Transpose(args[0], name))
	case graph.OpReshape:
		return single(g.Reshape(args[0], shapeFromDims(im.NewShape), name))
	case graph.OpNeg:
		return single(g.Neg(args[0], name))
	case graph.OpExp:
		return single(g.Exp(args[0], name))
	case graph.OpSqrt:
		return single(g.Sqrt(args[0], name))
	case graph.OpReLU:
		return single(g.ReLU(args[0], name))
	case graph.OpSigmoid:
		return single(g.Sigmoid(args[0], name))
	case graph.OpTanh:
		return single(g.Tanh(args[0], name))
	case graph.OpCall:
		resultTypes := make([]tensor.ShapedType, len(im.Outputs))
		for i, slot := range im.Outputs {
			dtype, ok := tensor.ParseDataType(m.Slots[slot].DType)
			if !ok {
				return nil, fmt.Errorf("%w: call result slot %d has unknown dtype", ErrBadPackage, slot)
			}
			resultTypes[i] = tensor.NewShapedType(shapeFromDims(m.Slots[slot].Shape), dtype)
		}
		outs, err := g.Call(im.Callee, args, resultTypes, name)
		if err != nil {
			return nil, fmt.Errorf("%w: rebuilding call %q: %v", ErrBadPackage, im.Callee, err)
		}
		return outs, nil
	default:
		return nil, fmt.Errorf("%w: unsupported instruction kind %s", ErrBadPackage, kind)
	}
}
