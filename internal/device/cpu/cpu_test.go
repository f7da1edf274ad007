package cpu

import (
	"math"
	"testing"

	"github.com/weft-ml/weft/internal/tensor"
)

func f32(t *testing.T, data []float32, shape tensor.Shape) *tensor.TensorData {
	t.Helper()
	td, err := tensor.FromSlice(data, shape)
	if err != nil {
		t.Fatal(err)
	}
	return td
}

func checkF32(t *testing.T, got *tensor.TensorData, want []float32) {
	t.Helper()
	data := got.AsFloat32()
	if len(data) != len(want) {
		t.Fatalf("length = %d, want %d", len(data), len(want))
	}
	for i := range want {
		if math.Abs(float64(data[i]-want[i])) > 1e-5 {
			t.Fatalf("data[%d] = %v, want %v", i, data[i], want[i])
		}
	}
}

func TestAdd(t *testing.T) {
	a := New()
	x := f32(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y := f32(t, []float32{5, 6, 7, 8}, tensor.Shape{2, 2})

	out, err := a.Add(x, y)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	checkF32(t, out, []float32{6, 8, 10, 12})
}

func TestAddBroadcast(t *testing.T) {
	a := New()
	x := f32(t, []float32{1, 2, 3}, tensor.Shape{3, 1})
	y := f32(t, []float32{10, 20}, tensor.Shape{2})

	out, err := a.Add(x, y)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !out.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", out.Shape())
	}
	checkF32(t, out, []float32{11, 21, 12, 22, 13, 23})
}

func TestAddDTypeMismatch(t *testing.T) {
	a := New()
	x := f32(t, []float32{1}, tensor.Shape{1})
	y, _ := tensor.FromSlice([]float64{1}, tensor.Shape{1})
	if _, err := a.Add(x, y); err == nil {
		t.Error("expected dtype mismatch error")
	}
}

func TestSubtractMultiplyDivide(t *testing.T) {
	a := New()
	x := f32(t, []float32{8, 6, 4, 2}, tensor.Shape{4})
	y := f32(t, []float32{2, 2, 2, 2}, tensor.Shape{4})

	sub, err := a.Subtract(x, y)
	if err != nil {
		t.Fatal(err)
	}
	checkF32(t, sub, []float32{6, 4, 2, 0})

	mul, err := a.Multiply(x, y)
	if err != nil {
		t.Fatal(err)
	}
	checkF32(t, mul, []float32{16, 12, 8, 4})

	div, err := a.Divide(x, y)
	if err != nil {
		t.Fatal(err)
	}
	checkF32(t, div, []float32{4, 3, 2, 1})
}

func TestIntAdd(t *testing.T) {
	a := New()
	x, _ := tensor.FromSlice([]int32{1, 2, 3}, tensor.Shape{3})
	y, _ := tensor.FromSlice([]int32{10, 20, 30}, tensor.Shape{3})

	out, err := a.Add(x, y)
	if err != nil {
		t.Fatal(err)
	}
	got := out.AsInt32()
	for i, want := range []int32{11, 22, 33} {
		if got[i] != want {
			t.Fatalf("data[%d] = %d, want %d", i, got[i], want)
		}
	}
}

func TestIntDivideRejected(t *testing.T) {
	a := New()
	x, _ := tensor.FromSlice([]int32{4}, tensor.Shape{1})
	y, _ := tensor.FromSlice([]int32{2}, tensor.Shape{1})
	if _, err := a.Divide(x, y); err == nil {
		t.Error("integer division should be rejected")
	}
}

func TestMatMul(t *testing.T) {
	a := New()
	// [[1 2] [3 4]] @ [[5 6] [7 8]] = [[19 22] [43 50]]
	x := f32(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y := f32(t, []float32{5, 6, 7, 8}, tensor.Shape{2, 2})

	out, err := a.MatMul(x, y)
	if err != nil {
		t.Fatalf("MatMul: %v", err)
	}
	checkF32(t, out, []float32{19, 22, 43, 50})
}

func TestMatMulRectangular(t *testing.T) {
	a := New()
	x := f32(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	y := f32(t, []float32{7, 8, 9, 10, 11, 12}, tensor.Shape{3, 2})

	out, err := a.MatMul(x, y)
	if err != nil {
		t.Fatalf("MatMul: %v", err)
	}
	if !out.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("shape = %v, want [2 2]", out.Shape())
	}
	checkF32(t, out, []float32{58, 64, 139, 154})
}

func TestMatMulInnerDimMismatch(t *testing.T) {
	a := New()
	x := f32(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y := f32(t, []float32{1, 2, 3}, tensor.Shape{3, 1})
	if _, err := a.MatMul(x, y); err == nil {
		t.Error("expected inner dimension mismatch error")
	}
}

func TestTranspose(t *testing.T) {
	a := New()
	x := f32(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	out, err := a.Transpose(x)
	if err != nil {
		t.Fatalf("Transpose: %v", err)
	}
	if !out.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", out.Shape())
	}
	checkF32(t, out, []float32{1, 4, 2, 5, 3, 6})
}

func TestUnaryOps(t *testing.T) {
	a := New()
	x := f32(t, []float32{-1, 0, 1, 4}, tensor.Shape{4})

	neg, err := a.Neg(x)
	if err != nil {
		t.Fatal(err)
	}
	checkF32(t, neg, []float32{1, 0, -1, -4})

	relu, err := a.ReLU(x)
	if err != nil {
		t.Fatal(err)
	}
	checkF32(t, relu, []float32{0, 0, 1, 4})

	sqrt, err := a.Sqrt(f32(t, []float32{0, 1, 4, 9}, tensor.Shape{4}))
	if err != nil {
		t.Fatal(err)
	}
	checkF32(t, sqrt, []float32{0, 1, 2, 3})

	exp, err := a.Exp(f32(t, []float32{0, 1}, tensor.Shape{2}))
	if err != nil {
		t.Fatal(err)
	}
	checkF32(t, exp, []float32{1, float32(math.E)})

	sig, err := a.Sigmoid(f32(t, []float32{0}, tensor.Shape{1}))
	if err != nil {
		t.Fatal(err)
	}
	checkF32(t, sig, []float32{0.5})

	tanh, err := a.Tanh(f32(t, []float32{0}, tensor.Shape{1}))
	if err != nil {
		t.Fatal(err)
	}
	checkF32(t, tanh, []float32{0})
}

func TestFloat64Kernels(t *testing.T) {
	a := New()
	x, _ := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{2, 2})
	y, _ := tensor.FromSlice([]float64{5, 6, 7, 8}, tensor.Shape{2, 2})

	out, err := a.MatMul(x, y)
	if err != nil {
		t.Fatal(err)
	}
	got := out.AsFloat64()
	for i, want := range []float64{19, 22, 43, 50} {
		if got[i] != want {
			t.Fatalf("data[%d] = %v, want %v", i, got[i], want)
		}
	}
}
