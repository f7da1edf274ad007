package exec

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

func newQueue(t *testing.T) *CommandQueue {
	t.Helper()
	q := NewCommandQueue(cpuDevice())
	t.Cleanup(q.Close)
	return q
}

func TestCommandBufferLifecycle(t *testing.T) {
	exe, _, _, _ := addExecutable(t)
	q := newQueue(t)

	cb := q.CommandBufferWithLabel("lifecycle")
	assert.Equal(t, NotEnqueued, cb.Status())

	require.NoError(t, cb.Enqueue())
	assert.Equal(t, Enqueued, cb.Status())

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2})
	require.NoError(t, exe.Encode(cb, []*tensor.TensorData{x, y}, nil, nil))

	require.NoError(t, cb.Commit())
	require.NoError(t, cb.WaitUntilCompleted())
	assert.Equal(t, Completed, cb.Status())

	results, err := cb.Results()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []float32{6, 8, 10, 12}, results[0].AsFloat32())
}

func TestDoubleCommit(t *testing.T) {
	q := newQueue(t)
	cb := q.CommandBuffer()
	require.NoError(t, cb.Commit())
	require.ErrorIs(t, cb.Commit(), ErrAlreadyCommitted)
}

func TestWaitBeforeCommit(t *testing.T) {
	q := newQueue(t)
	cb := q.CommandBuffer()
	require.ErrorIs(t, cb.WaitUntilCompleted(), ErrNotCommitted)
}

func TestEncodeAfterCommit(t *testing.T) {
	exe, _, _, _ := addExecutable(t)
	q := newQueue(t)

	cb := q.CommandBuffer()
	require.NoError(t, cb.Commit())

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	err := exe.Encode(cb, []*tensor.TensorData{x, x}, nil, nil)
	require.ErrorIs(t, err, ErrAlreadyCommitted)
}

func TestHandlersAfterCommitRejected(t *testing.T) {
	q := newQueue(t)
	cb := q.CommandBuffer()
	require.NoError(t, cb.Commit())

	require.ErrorIs(t, cb.AddScheduledHandler(func() {}), ErrAlreadyCommitted)
	require.ErrorIs(t, cb.AddCompletionHandler(func([]*tensor.TensorData, error) {}), ErrAlreadyCommitted)
}

func TestCompletionHandlerFiresOnce(t *testing.T) {
	exe, _, _, _ := addExecutable(t)
	q := newQueue(t)

	cb := q.CommandBuffer()
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2})
	require.NoError(t, exe.Encode(cb, []*tensor.TensorData{x, y}, nil, nil))

	var fired atomic.Int32
	var got []float32
	done := make(chan struct{})
	require.NoError(t, cb.AddCompletionHandler(func(results []*tensor.TensorData, err error) {
		fired.Add(1)
		if err == nil && len(results) == 1 {
			got = append([]float32(nil), results[0].AsFloat32()...)
		}
		close(done)
	}))

	require.NoError(t, cb.Commit())
	<-done
	require.NoError(t, cb.WaitUntilCompleted())

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, []float32{6, 8, 10, 12}, got)
}

func TestScheduledBeforeCompletion(t *testing.T) {
	exe, _, _, _ := addExecutable(t)
	q := newQueue(t)

	cb := q.CommandBuffer()
	x, _ := tensor.FromSlice([]float32{0, 0, 0, 0}, tensor.Shape{2, 2})
	require.NoError(t, exe.Encode(cb, []*tensor.TensorData{x, x}, nil, nil))

	var order []string
	done := make(chan struct{})
	require.NoError(t, cb.AddScheduledHandler(func() {
		order = append(order, "scheduled")
	}))
	require.NoError(t, cb.AddCompletionHandler(func([]*tensor.TensorData, error) {
		order = append(order, "completed")
		close(done)
	}))

	require.NoError(t, cb.Commit())
	<-done
	assert.Equal(t, []string{"scheduled", "completed"}, order)
}

func TestInputsRetainedUntilCompletion(t *testing.T) {
	exe, _, _, _ := addExecutable(t)
	q := newQueue(t)

	cb := q.CommandBuffer()
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2})
	require.NoError(t, exe.Encode(cb, []*tensor.TensorData{x, y}, nil, nil))

	// The buffer holds its own references on top of ours.
	assert.Equal(t, int32(2), x.Refs())
	assert.Equal(t, int32(2), y.Refs())

	// Drop the host references: the in-flight buffer keeps the values
	// alive until its handlers have run.
	x.Release()
	y.Release()

	require.NoError(t, cb.Commit())
	require.NoError(t, cb.WaitUntilCompleted())

	results, err := cb.Results()
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 8, 10, 12}, results[0].AsFloat32())
	assert.Equal(t, int32(0), x.Refs(), "buffer must release inputs after completion")
}

func TestEncodeWithOutputDestinations(t *testing.T) {
	exe, _, _, _ := addExecutable(t)
	q := newQueue(t)

	cb := q.CommandBuffer()
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2})
	dst, err := tensor.NewTensorData(tensor.Shape{2, 2}, tensor.Float32)
	require.NoError(t, err)

	require.NoError(t, exe.Encode(cb, []*tensor.TensorData{x, y}, []*tensor.TensorData{dst}, nil))
	require.NoError(t, cb.Commit())
	require.NoError(t, cb.WaitUntilCompleted())

	assert.Equal(t, []float32{6, 8, 10, 12}, dst.AsFloat32())
}

func TestEncodeBadOutputDestination(t *testing.T) {
	exe, _, _, _ := addExecutable(t)
	q := newQueue(t)

	cb := q.CommandBuffer()
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	bad, err := tensor.NewTensorData(tensor.Shape{3, 3}, tensor.Float32)
	require.NoError(t, err)

	err = exe.Encode(cb, []*tensor.TensorData{x, x}, []*tensor.TensorData{bad}, nil)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCommitAndContinue(t *testing.T) {
	exe, _, _, _ := addExecutable(t)
	q := newQueue(t)

	cb1 := q.CommandBuffer()
	x, _ := tensor.FromSlice([]float32{1, 1, 1, 1}, tensor.Shape{2, 2})
	require.NoError(t, exe.Encode(cb1, []*tensor.TensorData{x, x}, nil, nil))

	cb2, err := cb1.CommitAndContinue()
	require.NoError(t, err)
	require.NotNil(t, cb2)
	assert.Equal(t, NotEnqueued, cb2.Status())

	// The continuation encodes while cb1 runs behind it.
	y, _ := tensor.FromSlice([]float32{2, 2, 2, 2}, tensor.Shape{2, 2})
	require.NoError(t, exe.Encode(cb2, []*tensor.TensorData{y, y}, nil, nil))
	require.NoError(t, cb2.Commit())

	require.NoError(t, cb1.WaitUntilCompleted())
	require.NoError(t, cb2.WaitUntilCompleted())

	r1, err := cb1.Results()
	require.NoError(t, err)
	r2, err := cb2.Results()
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2, 2, 2}, r1[0].AsFloat32())
	assert.Equal(t, []float32{4, 4, 4, 4}, r2[0].AsFloat32())
}

func TestQueueOrdering(t *testing.T) {
	exe, _, _, _ := addExecutable(t)
	q := newQueue(t)

	var order []int
	const n = 5
	buffers := make([]*CommandBuffer, n)
	for i := 0; i < n; i++ {
		i := i
		cb := q.CommandBuffer()
		x, _ := tensor.FromSlice([]float32{0, 0, 0, 0}, tensor.Shape{2, 2})
		require.NoError(t, exe.Encode(cb, []*tensor.TensorData{x, x}, nil, nil))
		require.NoError(t, cb.AddScheduledHandler(func() {
			order = append(order, i)
		}))
		require.NoError(t, cb.Commit())
		buffers[i] = cb
	}
	for _, cb := range buffers {
		require.NoError(t, cb.WaitUntilCompleted())
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order, "buffers must execute in commit order")
}

func TestRunAsync(t *testing.T) {
	exe, a, b, _ := addExecutable(t)
	q := newQueue(t)

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2})

	var got []float32
	done := make(chan struct{})
	desc := &ExecutionDescriptor{}
	desc.AddCompletionHandler(func(results []*tensor.TensorData, err error) {
		if err == nil {
			got = append([]float32(nil), results[0].AsFloat32()...)
		}
		close(done)
	})

	cb, err := exe.RunAsync(q, map[*graph.Tensor]*tensor.TensorData{a: x, b: y}, desc)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("completion handler never fired")
	}
	require.NoError(t, cb.WaitUntilCompleted())
	assert.Equal(t, []float32{6, 8, 10, 12}, got)
}

func TestRunAsyncSynchronousPreference(t *testing.T) {
	exe, a, b, _ := addExecutable(t)
	q := newQueue(t)

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2})

	desc := &ExecutionDescriptor{}
	desc.PreferSynchronousExecution()

	cb, err := exe.RunAsync(q, map[*graph.Tensor]*tensor.TensorData{a: x, b: y}, desc)
	require.NoError(t, err)
	// Synchronous preference: the buffer is terminal on return.
	assert.True(t, cb.Status().Terminal())

	results, err := cb.Results()
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 8, 10, 12}, results[0].AsFloat32())
}

func TestGraphRunAsync(t *testing.T) {
	g := graph.New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2}, "a")
	b, err := g.Neg(a, "b")
	require.NoError(t, err)

	q := newQueue(t)
	x, _ := tensor.FromSlice([]float32{1, -2}, tensor.Shape{2})

	desc := &ExecutionDescriptor{}
	desc.SetWaitUntilCompleted(true)

	cb, err := RunAsync(q, g, map[*graph.Tensor]*tensor.TensorData{a: x}, []*graph.Tensor{b}, desc)
	require.NoError(t, err)

	results, err := cb.Results()
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, 2}, results[0].AsFloat32())
}

func TestEncodeGraphMultipleRuns(t *testing.T) {
	g := graph.New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2}, "a")
	b, err := g.Neg(a, "b")
	require.NoError(t, err)

	q := newQueue(t)
	cb := q.CommandBuffer()

	x1, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2})
	x2, _ := tensor.FromSlice([]float32{3, 4}, tensor.Shape{2})
	require.NoError(t, EncodeGraph(cb, g, map[*graph.Tensor]*tensor.TensorData{a: x1}, []*graph.Tensor{b}, nil))
	require.NoError(t, EncodeGraph(cb, g, map[*graph.Tensor]*tensor.TensorData{a: x2}, []*graph.Tensor{b}, nil))

	require.NoError(t, cb.Commit())
	require.NoError(t, cb.WaitUntilCompleted())

	// Results reflect the last encoded run.
	results, err := cb.Results()
	require.NoError(t, err)
	assert.Equal(t, []float32{-3, -4}, results[0].AsFloat32())
}

func TestCommandBufferErrorState(t *testing.T) {
	// Integer division builds and compiles but the CPU kernel rejects
	// it, so the buffer must land in Error at execution time.
	g := graph.New()
	a := g.Placeholder(tensor.Int32, tensor.Shape{2}, "a")
	b := g.Placeholder(tensor.Int32, tensor.Shape{2}, "b")
	c, err := g.Divide(a, b, "c")
	require.NoError(t, err)

	i32 := tensor.NewShapedType(tensor.Shape{2}, tensor.Int32)
	exe, err := Compile(cpuDevice(), g, map[*graph.Tensor]tensor.ShapedType{a: i32, b: i32}, []*graph.Tensor{c}, nil)
	require.NoError(t, err)

	q := newQueue(t)
	cb := q.CommandBuffer()
	x, _ := tensor.FromSlice([]int32{6, 9}, tensor.Shape{2})
	y, _ := tensor.FromSlice([]int32{2, 3}, tensor.Shape{2})
	require.NoError(t, exe.Encode(cb, []*tensor.TensorData{x, y}, nil, nil))

	var fired atomic.Int32
	var handlerErr error
	var handlerResults []*tensor.TensorData
	done := make(chan struct{})
	require.NoError(t, cb.AddCompletionHandler(func(results []*tensor.TensorData, err error) {
		fired.Add(1)
		handlerErr = err
		handlerResults = results
		close(done)
	}))

	require.NoError(t, cb.Commit())
	<-done

	require.Error(t, cb.WaitUntilCompleted())
	assert.Equal(t, Error, cb.Status())
	assert.Equal(t, int32(1), fired.Load(), "completion handler must fire exactly once on failure")
	require.Error(t, handlerErr)
	assert.Nil(t, handlerResults)

	_, err = cb.Results()
	require.Error(t, err)

	// The failure is confined to the buffer: inputs are released and
	// the queue keeps serving other work.
	assert.Equal(t, int32(1), x.Refs())
	assert.Equal(t, int32(1), y.Refs())

	add, _, _, _ := addExecutable(t)
	v, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	cb2 := q.CommandBuffer()
	require.NoError(t, add.Encode(cb2, []*tensor.TensorData{v, v}, nil, nil))
	require.NoError(t, cb2.Commit())
	require.NoError(t, cb2.WaitUntilCompleted())
	assert.Equal(t, Completed, cb2.Status())
}

func TestStatusMonotonic(t *testing.T) {
	exe, _, _, _ := addExecutable(t)
	q := newQueue(t)

	cb := q.CommandBuffer()
	x, _ := tensor.FromSlice([]float32{0, 0, 0, 0}, tensor.Shape{2, 2})
	require.NoError(t, exe.Encode(cb, []*tensor.TensorData{x, x}, nil, nil))

	seen := []Status{cb.Status()}
	require.NoError(t, cb.Commit())
	seen = append(seen, cb.Status())
	require.NoError(t, cb.WaitUntilCompleted())
	seen = append(seen, cb.Status())

	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1], "status must never regress")
	}
	assert.Equal(t, Completed, seen[len(seen)-1])
}

func TestFeedListDuplicate(t *testing.T) {
	g := graph.New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2}, "a")
	x, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2})

	fl := NewFeedList()
	require.NoError(t, fl.Add(a, x))
	require.Error(t, fl.Add(a, x), "duplicate binding must be rejected")
	assert.Equal(t, 1, fl.Len())
	assert.Len(t, fl.Map(), 1)
	assert.Len(t, fl.Types(), 1)
}
