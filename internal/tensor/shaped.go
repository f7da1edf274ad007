package tensor

import "fmt"

// ShapedType pairs a shape with an element type. It is the compile-time
// contract between a placeholder and the data that will feed it: dtype
// must always match exactly, and the shape must match exactly unless the
// placeholder side is unranked or carries dynamic dimensions.
type ShapedType struct {
	Shape Shape
	DType DataType
}

// NewShapedType builds a ShapedType. A nil shape means unranked.
func NewShapedType(shape Shape, dtype DataType) ShapedType {
	return ShapedType{Shape: shape.Clone(), DType: dtype}
}

// IsRanked reports whether the shape is known. Unranked types are legal
// only on placeholders; they must be resolved by a concrete feed type at
// compilation.
func (st ShapedType) IsRanked() bool {
	return st.Shape != nil
}

// IsResolved reports whether the type is ranked with all extents known.
func (st ShapedType) IsResolved() bool {
	return st.Shape != nil && st.Shape.IsResolved()
}

// Equal requires both shape and dtype to match. There is no implicit
// "compatible" matching; callers that want dynamic-dimension acceptance
// use Accepts.
func (st ShapedType) Equal(other ShapedType) bool {
	if st.DType != other.DType {
		return false
	}
	if (st.Shape == nil) != (other.Shape == nil) {
		return false
	}
	return st.Shape.Equal(other.Shape)
}

// Accepts reports whether a concrete feed type satisfies this declared
// type: dtype exact; any resolved shape if unranked; otherwise rank must
// match and dynamic dimensions accept any extent.
func (st ShapedType) Accepts(feed ShapedType) bool {
	if st.DType != feed.DType || !feed.IsResolved() {
		return false
	}
	if !st.IsRanked() {
		return true
	}
	return st.Shape.Matches(feed.Shape)
}

// ByteSize returns the buffer size required for the type.
// Only meaningful for resolved types.
func (st ShapedType) ByteSize() int {
	return st.Shape.NumElements() * st.DType.Size()
}

// String returns e.g. "float32[2 2]" or "int64[?]" for unranked types.
func (st ShapedType) String() string {
	if !st.IsRanked() {
		return fmt.Sprintf("%s[?]", st.DType)
	}
	return fmt.Sprintf("%s%v", st.DType, st.Shape)
}
