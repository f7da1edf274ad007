package tensor

import "fmt"

// DynamicDim marks a dimension whose extent is unknown at graph-build time.
// A shape containing DynamicDim must be resolved against a concrete feed
// shape before it can be used for compilation or data allocation.
const DynamicDim = -1

// Shape represents the dimensions of a tensor. A nil Shape is unranked:
// both rank and extents are unknown until compilation resolves them.
type Shape []int

// NumElements returns the total number of elements.
// A scalar (rank 0) has 1 element. The result is only meaningful for
// resolved shapes; unresolved dimensions make it negative.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// IsResolved reports whether every dimension has a concrete extent.
func (s Shape) IsResolved() bool {
	for _, dim := range s {
		if dim < 0 {
			return false
		}
	}
	return true
}

// Validate checks that every dimension is either positive or DynamicDim.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 && dim != DynamicDim {
			return fmt.Errorf("invalid dimension at index %d: %d", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes have the same rank and extents.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Matches reports whether a concrete shape satisfies this (possibly
// dynamic) shape: ranks must agree and every resolved dimension must
// match exactly; DynamicDim accepts any extent.
func (s Shape) Matches(concrete Shape) bool {
	if len(s) != len(concrete) {
		return false
	}
	for i := range s {
		if s[i] != DynamicDim && s[i] != concrete[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// BroadcastShapes implements trailing-dimension broadcasting.
//
// Shapes are compared element-wise from right to left; dimensions are
// compatible if they are equal or one of them is 1, and missing leading
// dimensions are treated as 1. Dynamic dimensions broadcast against
// anything and stay dynamic in the result.
//
// Returns the broadcast shape, whether any expansion is needed, and an
// error if the shapes are incompatible.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)
	needsBroadcast := len(a) != len(b)

	for i := 0; i < maxLen; i++ {
		aDim, bDim := 1, 1
		if idx := len(a) - 1 - i; idx >= 0 {
			aDim = a[idx]
		}
		if idx := len(b) - 1 - i; idx >= 0 {
			bDim = b[idx]
		}

		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == DynamicDim || bDim == DynamicDim:
			result[maxLen-1-i] = DynamicDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[maxLen-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, maxLen-1-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}
