package exec

import (
	"fmt"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// Executable is a compiled program bound to a device. It is immutable
// and safe for concurrent use: every run gets its own value
// environment, so one executable can serve many goroutines and many
// command buffers at once.
type Executable struct {
	device *device.Device
	prog   *program

	feedTensors   []*graph.Tensor
	targetTensors []*graph.Tensor
	outputTypes   []tensor.ShapedType
	callables     map[string]*Executable
	optimization  OptimizationLevel
}

// Device returns the device the executable was compiled for.
func (e *Executable) Device() *device.Device { return e.device }

// FeedTensors returns the placeholders the executable binds, in feed
// order. Run inputs are matched positionally against this list.
func (e *Executable) FeedTensors() []*graph.Tensor {
	return append([]*graph.Tensor(nil), e.feedTensors...)
}

// TargetTensors returns the compiled targets in result order.
func (e *Executable) TargetTensors() []*graph.Tensor {
	return append([]*graph.Tensor(nil), e.targetTensors...)
}

// FeedTensorNamed returns the feed tensor with the given name, nil if
// none matches. Position is the primary binding contract; names are a
// convenience for callers that lost the tensor handles.
func (e *Executable) FeedTensorNamed(name string) *graph.Tensor {
	for _, t := range e.feedTensors {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// OutputTypes returns the fully resolved type of every target, in
// target order.
func (e *Executable) OutputTypes() []tensor.ShapedType {
	out := make([]tensor.ShapedType, len(e.outputTypes))
	copy(out, e.outputTypes)
	return out
}

// OptimizationLevel returns the level the executable was compiled with.
func (e *Executable) OptimizationLevel() OptimizationLevel { return e.optimization }

// Specialize checks a prospective feed set against the compiled
// contracts without running anything. It returns nil when a run with
// values of these types would bind cleanly.
func (e *Executable) Specialize(feeds map[*graph.Tensor]tensor.ShapedType) error {
	for i, t := range e.feedTensors {
		ft, ok := feeds[t]
		if !ok {
			return fmt.Errorf("%w: feed %d (%q)", ErrMissingFeed, i, t.Name())
		}
		compiled := e.prog.slots[e.prog.feeds[i]].typ
		if compiled.DType != ft.DType || !compiled.Shape.Matches(ft.Shape) {
			return fmt.Errorf("%w: feed %q compiled as %s, offered %s", ErrShapeMismatch, t.Name(), compiled, ft)
		}
	}
	return nil
}

// runWith interprets the program on the given accelerator. inputs are
// borrowed; results are owned by the caller.
func (e *Executable) runWith(accel device.Accelerator, inputs []*tensor.TensorData) ([]*tensor.TensorData, error) {
	return e.prog.run(accel, inputs, e.callables)
}

// validateInputs checks run-time values against the compiled feed
// contracts and returns them in feed order.
func (e *Executable) validateInputs(inputs []*tensor.TensorData) error {
	if len(inputs) != len(e.feedTensors) {
		return fmt.Errorf("%w: executable takes %d inputs, got %d", ErrMissingFeed, len(e.feedTensors), len(inputs))
	}
	for i, td := range inputs {
		if td == nil {
			return fmt.Errorf("%w: input %d (%q) is nil", ErrMissingFeed, i, e.feedTensors[i].Name())
		}
		compiled := e.prog.slots[e.prog.feeds[i]].typ
		if compiled.DType != td.DType() || !compiled.Shape.Matches(td.Shape()) {
			return fmt.Errorf("%w: input %d (%q) compiled as %s, got %s",
				ErrShapeMismatch, i, e.feedTensors[i].Name(), compiled, td.ShapedType())
		}
	}
	return nil
}

// Run executes synchronously with a feed dictionary and returns the
// target values keyed by target tensor. The caller owns the results.
func (e *Executable) Run(feeds map[*graph.Tensor]*tensor.TensorData) (map[*graph.Tensor]*tensor.TensorData, error) {
	inputs, err := e.marshalFeeds(feeds)
	if err != nil {
		return nil, err
	}
	outs, err := e.RunInputs(inputs)
	if err != nil {
		return nil, err
	}
	results := make(map[*graph.Tensor]*tensor.TensorData, len(outs))
	for i, td := range outs {
		results[e.targetTensors[i]] = td
	}
	return results, nil
}

// RunInputs executes synchronously with positional inputs matching
// FeedTensors order. The caller owns the results.
func (e *Executable) RunInputs(inputs []*tensor.TensorData) ([]*tensor.TensorData, error) {
	if err := e.validateInputs(inputs); err != nil {
		return nil, err
	}
	outs, err := e.runWith(e.device.Accelerator(), inputs)
	if err != nil {
		return nil, err
	}
	if err := e.device.Accelerator().Synchronize(); err != nil {
		for _, o := range outs {
			o.Release()
		}
		return nil, err
	}
	return outs, nil
}

// RunAsync encodes one run onto a fresh command buffer of the queue,
// commits it and returns the buffer. Results are delivered through
// completion handlers on the descriptor or via the buffer's Results
// method after completion. When the descriptor prefers synchronous
// execution the call blocks until the buffer is terminal.
func (e *Executable) RunAsync(q *CommandQueue, feeds map[*graph.Tensor]*tensor.TensorData, desc *ExecutionDescriptor) (*CommandBuffer, error) {
	inputs, err := e.marshalFeeds(feeds)
	if err != nil {
		return nil, err
	}
	cb := q.CommandBuffer()
	if err := e.Encode(cb, inputs, nil, desc); err != nil {
		return nil, err
	}
	if err := cb.Commit(); err != nil {
		return nil, err
	}
	if desc.synchronous() {
		if err := cb.WaitUntilCompleted(); err != nil {
			return cb, err
		}
	}
	return cb, nil
}

// Encode appends one run of the executable to an uncommitted command
// buffer. inputs are positional and validated against the compiled
// contracts now, so Commit cannot fail on binding. outputs, when
// non-nil, supplies preallocated destinations of the exact output
// types; pass nil to let the run allocate its results.
//
// The buffer retains every input and output until its completion
// handlers have returned.
func (e *Executable) Encode(cb *CommandBuffer, inputs, outputs []*tensor.TensorData, desc *ExecutionDescriptor) error {
	if err := e.validateInputs(inputs); err != nil {
		return err
	}
	if outputs != nil {
		if len(outputs) != len(e.outputTypes) {
			return fmt.Errorf("%w: executable produces %d outputs, got %d destinations", ErrShapeMismatch, len(e.outputTypes), len(outputs))
		}
		for i, td := range outputs {
			if td == nil {
				return fmt.Errorf("output destination %d is nil", i)
			}
			want := e.outputTypes[i]
			if want.DType != td.DType() || !want.Shape.Matches(td.Shape()) {
				return fmt.Errorf("%w: output %d is %s, destination is %s", ErrShapeMismatch, i, want, td.ShapedType())
			}
		}
	}
	return cb.encode(e, inputs, outputs, desc)
}

// marshalFeeds orders a feed dictionary into positional inputs.
// Every compiled feed must be present; unknown keys are an error.
func (e *Executable) marshalFeeds(feeds map[*graph.Tensor]*tensor.TensorData) ([]*tensor.TensorData, error) {
	inputs := make([]*tensor.TensorData, len(e.feedTensors))
	matched := 0
	for i, t := range e.feedTensors {
		td, ok := feeds[t]
		if !ok {
			return nil, fmt.Errorf("%w: placeholder %q", ErrMissingFeed, t.Name())
		}
		inputs[i] = td
		matched++
	}
	if matched != len(feeds) {
		for t := range feeds {
			if e.slotFor(t) < 0 {
				return nil, fmt.Errorf("feed key %q is not a feed of this executable", t.Name())
			}
		}
	}
	return inputs, nil
}

func (e *Executable) slotFor(t *graph.Tensor) int {
	for i, ft := range e.feedTensors {
		if ft == t {
			return i
		}
	}
	return -1
}
