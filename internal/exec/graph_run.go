package exec

import (
	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// Direct run paths: compile-and-run in one call. They behave exactly
// like Compile followed by the corresponding Executable method; the
// compiled form is simply not handed back.

// feedTypes derives compile-time contracts from concrete feed values.
func feedTypes(feeds map[*graph.Tensor]*tensor.TensorData) map[*graph.Tensor]tensor.ShapedType {
	types := make(map[*graph.Tensor]tensor.ShapedType, len(feeds))
	for t, td := range feeds {
		types[t] = td.ShapedType()
	}
	return types
}

// Run compiles the targets against the feeds and executes synchronously
// on the device. The caller owns the results.
func Run(dev *device.Device, g *graph.Graph, feeds map[*graph.Tensor]*tensor.TensorData, targets []*graph.Tensor) (map[*graph.Tensor]*tensor.TensorData, error) {
	exe, err := Compile(dev, g, feedTypes(feeds), targets, nil)
	if err != nil {
		return nil, err
	}
	defer exe.prog.release()
	return exe.Run(feeds)
}

// RunAsync compiles the targets and submits one run to the queue,
// returning the committed command buffer. Results arrive through the
// descriptor's completion handlers or the buffer's Results method.
func RunAsync(q *CommandQueue, g *graph.Graph, feeds map[*graph.Tensor]*tensor.TensorData, targets []*graph.Tensor, desc *ExecutionDescriptor) (*CommandBuffer, error) {
	exe, err := Compile(q.Device(), g, feedTypes(feeds), targets, nil)
	if err != nil {
		return nil, err
	}
	return exe.RunAsync(q, feeds, desc)
}

// EncodeGraph compiles the targets and appends one run to an
// uncommitted command buffer without committing it.
func EncodeGraph(cb *CommandBuffer, g *graph.Graph, feeds map[*graph.Tensor]*tensor.TensorData, targets []*graph.Tensor, desc *ExecutionDescriptor) error {
	exe, err := Compile(cb.queue.Device(), g, feedTypes(feeds), targets, nil)
	if err != nil {
		return err
	}
	inputs, err := exe.marshalFeeds(feeds)
	if err != nil {
		return err
	}
	return exe.Encode(cb, inputs, nil, desc)
}
