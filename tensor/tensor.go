// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for tensor values in Weft.
//
// The package defines the host-side data containers that flow through
// graph execution:
//   - TensorData: a reference-counted, densely packed host buffer
//   - Shape, DataType, ShapedType: the type vocabulary of the graph
//
// Example:
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	if err != nil {
//		...
//	}
//	defer x.Release()
package tensor

import (
	"github.com/weft-ml/weft/internal/tensor"
)

// DType is a constraint for tensor element types.
// Supported types: float32, float64, int32, int64, uint8, bool.
type DType = tensor.DType

// DataType identifies the element type of a tensor at runtime.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Shape represents the dimensions of a tensor.
// A nil Shape is unranked; an empty Shape is a scalar.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// DynamicDim marks a dimension whose extent is unknown until a
// concrete value is fed.
const DynamicDim = tensor.DynamicDim

// ShapedType pairs a shape with an element type. It is the static type
// of every graph tensor.
type ShapedType = tensor.ShapedType

// NewShapedType builds a ShapedType from a shape and element type.
func NewShapedType(shape Shape, dtype DataType) ShapedType {
	return tensor.NewShapedType(shape, dtype)
}

// TensorData is a reference-counted host buffer with a shape and an
// element type. It is the currency of graph execution: feeds, results
// and constants are all TensorData.
type TensorData = tensor.TensorData

// Creation functions

// NewTensorData allocates a zero-filled tensor.
//
// Example:
//
//	x, err := tensor.NewTensorData(tensor.Shape{2, 3}, tensor.Float32)
func NewTensorData(shape Shape, dtype DataType) (*TensorData, error) {
	return tensor.NewTensorData(shape, dtype)
}

// FromSlice creates a tensor from a Go slice, inferring the element
// type from T.
//
// Example:
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
func FromSlice[T DType](data []T, shape Shape) (*TensorData, error) {
	return tensor.FromSlice(data, shape)
}

// FromBytes creates a tensor from raw little-endian bytes.
//
// This is a low-level function. Most users should use FromSlice or
// NewTensorData instead.
func FromBytes(data []byte, shape Shape, dtype DataType) (*TensorData, error) {
	return tensor.FromBytes(data, shape, dtype)
}

// Shape functions

// BroadcastShapes computes the broadcast result of two shapes. The
// second result reports whether broadcasting was required.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}

// Expand materializes a tensor broadcast to a larger shape.
func Expand(td *TensorData, to Shape) (*TensorData, error) {
	return tensor.Expand(td, to)
}

// ParseDataType maps a stable lowercase name back to its DataType.
func ParseDataType(s string) (DataType, bool) {
	return tensor.ParseDataType(s)
}
