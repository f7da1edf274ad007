package graph

import (
	"testing"

	"github.com/weft-ml/weft/internal/tensor"
)

func TestPlaceholder(t *testing.T) {
	g := New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2, 2}, "a")

	if a.DType() != tensor.Float32 {
		t.Errorf("dtype = %s, want float32", a.DType())
	}
	if !a.Shape().Equal(tensor.Shape{2, 2}) {
		t.Errorf("shape = %v, want [2 2]", a.Shape())
	}
	if a.Name() != "a" {
		t.Errorf("name = %q, want a", a.Name())
	}
	if a.Op().Kind() != OpPlaceholder {
		t.Errorf("kind = %s, want placeholder", a.Op().Kind())
	}
	if a.Graph() != g {
		t.Error("tensor must belong to its graph")
	}
}

func TestUnrankedPlaceholder(t *testing.T) {
	g := New()
	p := g.Placeholder(tensor.Float32, nil, "p")
	if p.Shape() != nil {
		t.Errorf("unranked placeholder shape = %v, want nil", p.Shape())
	}
	if p.ShapedType().IsRanked() {
		t.Error("shaped type should be unranked")
	}
}

func TestConstant(t *testing.T) {
	g := New()
	td, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	c, err := g.ConstantData(td)
	if err != nil {
		t.Fatalf("ConstantData: %v", err)
	}
	if c.Op().Kind() != OpConstant {
		t.Errorf("kind = %s, want constant", c.Op().Kind())
	}
	if c.Op().ConstData().AsFloat32()[3] != 4 {
		t.Error("constant must keep its baked value")
	}
}

func TestConstantBadLength(t *testing.T) {
	g := New()
	if _, err := g.Constant(make([]byte, 12), tensor.Shape{2, 2}, tensor.Float32); err == nil {
		t.Error("expected error: 2x2 float32 needs 16 bytes")
	}
}

func TestAddShapeInference(t *testing.T) {
	g := New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{3, 1}, "a")
	b := g.Placeholder(tensor.Float32, tensor.Shape{3, 5}, "b")
	c, err := g.Add(a, b, "c")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !c.Shape().Equal(tensor.Shape{3, 5}) {
		t.Errorf("broadcast shape = %v, want [3 5]", c.Shape())
	}
}

func TestAddRejectsDTypeMismatch(t *testing.T) {
	g := New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2}, "a")
	b := g.Placeholder(tensor.Float64, tensor.Shape{2}, "b")
	if _, err := g.Add(a, b, ""); err == nil {
		t.Error("expected dtype mismatch error; types are never coerced")
	}
}

func TestAddRejectsIncompatibleShapes(t *testing.T) {
	g := New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{3, 4}, "a")
	b := g.Placeholder(tensor.Float32, tensor.Shape{3, 5}, "b")
	if _, err := g.Add(a, b, ""); err == nil {
		t.Error("expected broadcast error")
	}
}

func TestCrossGraphInputRejected(t *testing.T) {
	g1 := New()
	g2 := New()
	a := g1.Placeholder(tensor.Float32, tensor.Shape{2}, "a")
	b := g2.Placeholder(tensor.Float32, tensor.Shape{2}, "b")
	if _, err := g1.Add(a, b, ""); err == nil {
		t.Error("a tensor from another graph must be rejected at construction")
	}
	if g1.NumOperations() != 1 {
		t.Errorf("failed construction must not append: %d ops", g1.NumOperations())
	}
}

func TestMatMulShapes(t *testing.T) {
	g := New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2, 3}, "a")
	b := g.Placeholder(tensor.Float32, tensor.Shape{3, 5}, "b")
	c, err := g.MatMul(a, b, "")
	if err != nil {
		t.Fatalf("MatMul: %v", err)
	}
	if !c.Shape().Equal(tensor.Shape{2, 5}) {
		t.Errorf("matmul shape = %v, want [2 5]", c.Shape())
	}

	bad := g.Placeholder(tensor.Float32, tensor.Shape{4, 5}, "bad")
	if _, err := g.MatMul(a, bad, ""); err == nil {
		t.Error("expected inner dimension mismatch error")
	}
}

func TestReshapeValidation(t *testing.T) {
	g := New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2, 3}, "a")

	r, err := g.Reshape(a, tensor.Shape{3, 2}, "")
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	if !r.Shape().Equal(tensor.Shape{3, 2}) {
		t.Errorf("shape = %v, want [3 2]", r.Shape())
	}

	if _, err := g.Reshape(a, tensor.Shape{4, 2}, ""); err == nil {
		t.Error("expected element count mismatch error")
	}
	if _, err := g.Reshape(a, tensor.Shape{tensor.DynamicDim, 2}, ""); err == nil {
		t.Error("expected unresolved target shape error")
	}
}

func TestPlaceholderTensors(t *testing.T) {
	g := New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2}, "a")
	_, _ = g.ConstantScalar(1, tensor.Float32)
	b := g.Placeholder(tensor.Float32, tensor.Shape{2}, "b")

	ph := g.PlaceholderTensors()
	if len(ph) != 2 || ph[0] != a || ph[1] != b {
		t.Errorf("PlaceholderTensors = %v", ph)
	}
}

// Acyclicity: walking producing-operation inputs from any tensor must
// only ever reach operations appended strictly earlier.
func TestAcyclicByConstruction(t *testing.T) {
	g := New()
	a := g.Placeholder(tensor.Float32, tensor.Shape{2, 2}, "a")
	b := g.Placeholder(tensor.Float32, tensor.Shape{2, 2}, "b")
	c, _ := g.Add(a, b, "c")
	d, _ := g.Multiply(c, a, "d")
	e, _ := g.Subtract(d, c, "e")

	pos := make(map[*Operation]int)
	for i, op := range g.Operations() {
		pos[op] = i
	}

	var walk func(t *Tensor, seen map[*Operation]bool)
	walk = func(t *Tensor, seen map[*Operation]bool) {
		op := t.Op()
		if seen[op] {
			return
		}
		seen[op] = true
		for _, in := range op.InputTensors() {
			if pos[in.Op()] >= pos[op] {
				panic("forward reference in DAG")
			}
			walk(in, seen)
		}
	}
	walk(e, map[*Operation]bool{})
}

func TestCallConstruction(t *testing.T) {
	g := New()
	x := g.Placeholder(tensor.Float32, tensor.Shape{2}, "x")
	outs, err := g.Call("double", []*Tensor{x}, []tensor.ShapedType{
		tensor.NewShapedType(tensor.Shape{2}, tensor.Float32),
	}, "call0")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(outs))
	}
	if outs[0].Op().Callee() != "double" {
		t.Errorf("callee = %q, want double", outs[0].Op().Callee())
	}

	if _, err := g.Call("", []*Tensor{x}, []tensor.ShapedType{outs[0].ShapedType()}, ""); err == nil {
		t.Error("empty symbol must be rejected")
	}
}
