package exec

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// addExecutable compiles c = a + b over [2 2] float32.
func addExecutable(t *testing.T) (*Executable, *graph.Tensor, *graph.Tensor, *graph.Tensor) {
	t.Helper()
	g := graph.New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2, 2}, "a")
	b := g.Placeholder(tensor.Float32, tensor.Shape{2, 2}, "b")
	c, err := g.Add(a, b, "c")
	require.NoError(t, err)

	exe, err := Compile(cpuDevice(), g, map[*graph.Tensor]tensor.ShapedType{
		a: f32type(2, 2),
		b: f32type(2, 2),
	}, []*graph.Tensor{c}, nil)
	require.NoError(t, err)
	return exe, a, b, c
}

func TestRunSynchronous(t *testing.T) {
	exe, a, b, c := addExecutable(t)

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2})

	results, err := exe.Run(map[*graph.Tensor]*tensor.TensorData{a: x, b: y})
	require.NoError(t, err)
	require.Contains(t, results, c)
	assert.Equal(t, []float32{6, 8, 10, 12}, results[c].AsFloat32())
	assert.True(t, results[c].Shape().Equal(tensor.Shape{2, 2}))
}

func TestRunMissingFeed(t *testing.T) {
	exe, a, _, _ := addExecutable(t)

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	_, err := exe.Run(map[*graph.Tensor]*tensor.TensorData{a: x})
	require.ErrorIs(t, err, ErrMissingFeed)
}

func TestRunShapeMismatch(t *testing.T) {
	exe, a, b, _ := addExecutable(t)

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	_, err := exe.Run(map[*graph.Tensor]*tensor.TensorData{a: x, b: y})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestRunUnknownFeedKey(t *testing.T) {
	exe, a, b, _ := addExecutable(t)

	g2 := graph.New()
	stranger := g2.Placeholder(tensor.Float32, tensor.Shape{2, 2}, "stranger")

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	_, err := exe.Run(map[*graph.Tensor]*tensor.TensorData{a: x, b: x, stranger: x})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stranger")
}

func TestRunRepeatedly(t *testing.T) {
	exe, a, b, c := addExecutable(t)

	for i := 0; i < 10; i++ {
		v := float32(i)
		x, _ := tensor.FromSlice([]float32{v, v, v, v}, tensor.Shape{2, 2})
		y, _ := tensor.FromSlice([]float32{1, 1, 1, 1}, tensor.Shape{2, 2})

		results, err := exe.Run(map[*graph.Tensor]*tensor.TensorData{a: x, b: y})
		require.NoError(t, err)
		assert.Equal(t, v+1, results[c].AsFloat32()[0])
	}
}

func TestRunConcurrently(t *testing.T) {
	exe, a, b, c := addExecutable(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v float32) {
			defer wg.Done()
			x, _ := tensor.FromSlice([]float32{v, v, v, v}, tensor.Shape{2, 2})
			y, _ := tensor.FromSlice([]float32{v, v, v, v}, tensor.Shape{2, 2})

			results, err := exe.Run(map[*graph.Tensor]*tensor.TensorData{a: x, b: y})
			if assert.NoError(t, err) {
				assert.Equal(t, 2*v, results[c].AsFloat32()[0])
			}
		}(float32(i + 1))
	}
	wg.Wait()
}

func TestRunInputsPositional(t *testing.T) {
	exe, _, _, _ := addExecutable(t)

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{10, 20, 30, 40}, tensor.Shape{2, 2})

	outs, err := exe.RunInputs([]*tensor.TensorData{x, y})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, []float32{11, 22, 33, 44}, outs[0].AsFloat32())
}

func TestRunInputsWrongArity(t *testing.T) {
	exe, _, _, _ := addExecutable(t)

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	_, err := exe.RunInputs([]*tensor.TensorData{x})
	require.ErrorIs(t, err, ErrMissingFeed)
}

func TestDirectRun(t *testing.T) {
	g := graph.New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2, 2}, "a")
	b := g.Placeholder(tensor.Float32, tensor.Shape{2, 2}, "b")
	c, err := g.Add(a, b, "c")
	require.NoError(t, err)

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2})

	results, err := Run(cpuDevice(), g, map[*graph.Tensor]*tensor.TensorData{a: x, b: y}, []*graph.Tensor{c})
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 8, 10, 12}, results[c].AsFloat32())
}

func TestRunPipeline(t *testing.T) {
	// relu(x @ w + bias): a realistic single-layer inference chain.
	g := graph.New()
	x := g.Placeholder(tensor.Float32, tensor.Shape{1, 2}, "x")
	w, err := g.Variable(floatBytes(1, -1, 0.5, 2), tensor.Shape{2, 2}, tensor.Float32, "w")
	require.NoError(t, err)
	bias, err := g.Variable(floatBytes(0.5, -10), tensor.Shape{2}, tensor.Float32, "bias")
	require.NoError(t, err)

	h, err := g.MatMul(x, w, "h")
	require.NoError(t, err)
	hb, err := g.Add(h, bias, "hb")
	require.NoError(t, err)
	out, err := g.ReLU(hb, "out")
	require.NoError(t, err)

	exe, err := Compile(cpuDevice(), g, map[*graph.Tensor]tensor.ShapedType{x: f32type(1, 2)}, []*graph.Tensor{out}, nil)
	require.NoError(t, err)

	in, _ := tensor.FromSlice([]float32{2, 4}, tensor.Shape{1, 2})
	results, err := exe.Run(map[*graph.Tensor]*tensor.TensorData{x: in})
	require.NoError(t, err)

	// h = [2*1+4*0.5, 2*-1+4*2] = [4, 6]; +bias = [4.5, -4]; relu = [4.5, 0]
	assert.Equal(t, []float32{4.5, 0}, results[out].AsFloat32())
}

func TestInputRefcountsBalanced(t *testing.T) {
	exe, a, b, _ := addExecutable(t)

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2})

	results, err := exe.Run(map[*graph.Tensor]*tensor.TensorData{a: x, b: y})
	require.NoError(t, err)
	for _, td := range results {
		td.Release()
	}

	assert.Equal(t, int32(1), x.Refs(), "sync run must not leak input references")
	assert.Equal(t, int32(1), y.Refs())
}
