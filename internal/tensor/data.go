package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// sharedBuffer is a reference-counted byte buffer. TensorData handles
// share it across clones, feed dictionaries and in-flight command
// buffers; the storage is dropped when the last reference is released.
type sharedBuffer struct {
	data []byte
	refs atomic.Int32
	mu   sync.Mutex // guards deallocation
}

func newSharedBuffer(size int) *sharedBuffer {
	buf := &sharedBuffer{data: make([]byte, size)}
	buf.refs.Store(1)
	return buf
}

func (sb *sharedBuffer) retain() {
	sb.refs.Add(1)
}

func (sb *sharedBuffer) release() {
	if sb.refs.Add(-1) == 0 {
		sb.mu.Lock()
		defer sb.mu.Unlock()
		sb.data = nil
	}
}

// TensorData is a concrete tensor value: a shape/dtype pair over a
// reference-counted backing buffer. It is the runtime counterpart of a
// symbolic graph Tensor, bound to placeholders at execution time.
//
// The backing buffer must not be mutated by the host while the value is
// referenced by a command buffer that has not yet completed.
type TensorData struct {
	buf   *sharedBuffer
	shape Shape
	dtype DataType
}

// NewTensorData allocates zeroed tensor data for a resolved shape.
func NewTensorData(shape Shape, dtype DataType) (*TensorData, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if !shape.IsResolved() {
		return nil, fmt.Errorf("cannot allocate data for unresolved shape %v", shape)
	}

	return &TensorData{
		buf:   newSharedBuffer(shape.NumElements() * dtype.Size()),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// FromSlice creates tensor data from a host slice. The slice is copied.
func FromSlice[T DType](data []T, shape Shape) (*TensorData, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, got %d", shape, shape.NumElements(), len(data))
	}

	var dummy T
	td, err := NewTensorData(shape, inferDataType(dummy))
	if err != nil {
		return nil, err
	}
	copy(unsafe.Slice((*T)(unsafe.Pointer(&td.buf.data[0])), len(data)), data)
	return td, nil
}

// FromBytes creates tensor data from raw bytes. The bytes are copied.
// The byte length must equal product(shape) * sizeof(dtype).
func FromBytes(data []byte, shape Shape, dtype DataType) (*TensorData, error) {
	td, err := NewTensorData(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(data) != len(td.buf.data) {
		return nil, fmt.Errorf("shape %v of %s requires %d bytes, got %d", shape, dtype, len(td.buf.data), len(data))
	}
	copy(td.buf.data, data)
	return td, nil
}

// Shape returns the tensor's shape.
func (td *TensorData) Shape() Shape {
	return td.shape
}

// DType returns the element type.
func (td *TensorData) DType() DataType {
	return td.dtype
}

// ShapedType returns the value's shape/dtype contract.
func (td *TensorData) ShapedType() ShapedType {
	return ShapedType{Shape: td.shape.Clone(), DType: td.dtype}
}

// NumElements returns the total number of elements.
func (td *TensorData) NumElements() int {
	return td.shape.NumElements()
}

// ByteSize returns the backing buffer length in bytes.
func (td *TensorData) ByteSize() int {
	return td.NumElements() * td.dtype.Size()
}

// Bytes returns the raw backing bytes.
// WARNING: direct access to shared memory; see the mutation rule above.
func (td *TensorData) Bytes() []byte {
	return td.buf.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the dtype is not Float32.
func (td *TensorData) AsFloat32() []float32 {
	if td.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", td.dtype))
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&td.buf.data[0])), td.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the dtype is not Float64.
func (td *TensorData) AsFloat64() []float64 {
	if td.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", td.dtype))
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&td.buf.data[0])), td.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the dtype is not Int32.
func (td *TensorData) AsInt32() []int32 {
	if td.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", td.dtype))
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&td.buf.data[0])), td.NumElements())
}

// AsInt64 interprets the data as []int64.
// Panics if the dtype is not Int64.
func (td *TensorData) AsInt64() []int64 {
	if td.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", td.dtype))
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&td.buf.data[0])), td.NumElements())
}

// AsUint8 interprets the data as []uint8.
// Panics if the dtype is not Uint8.
func (td *TensorData) AsUint8() []uint8 {
	if td.dtype != Uint8 {
		panic(fmt.Sprintf("tensor dtype is %s, not uint8", td.dtype))
	}
	return td.buf.data
}

// AsBool interprets the data as []bool.
// Panics if the dtype is not Bool.
func (td *TensorData) AsBool() []bool {
	if td.dtype != Bool {
		panic(fmt.Sprintf("tensor dtype is %s, not bool", td.dtype))
	}
	return unsafe.Slice((*bool)(unsafe.Pointer(&td.buf.data[0])), td.NumElements())
}

// Retain increments the reference count. Every structure that stores a
// TensorData across a call boundary (feed dictionaries, command buffer
// encodings, handler closures) retains it and releases it when the
// structure itself is torn down.
func (td *TensorData) Retain() *TensorData {
	td.buf.retain()
	return td
}

// Release decrements the reference count, freeing the backing buffer
// when it reaches zero. Releasing more times than retained corrupts the
// value for the remaining holders; the Refs accessor exists so tests can
// verify balance.
func (td *TensorData) Release() {
	td.buf.release()
}

// Refs returns the current reference count of the backing buffer.
func (td *TensorData) Refs() int32 {
	return td.buf.refs.Load()
}

// Clone returns a new handle sharing the same backing buffer.
func (td *TensorData) Clone() *TensorData {
	td.buf.retain()
	return &TensorData{
		buf:   td.buf,
		shape: td.shape.Clone(),
		dtype: td.dtype,
	}
}

// WithShape returns a handle over the same buffer reinterpreted with a
// different shape of equal element count. Used for reshape, which moves
// no data.
func (td *TensorData) WithShape(shape Shape) (*TensorData, error) {
	if !shape.IsResolved() || shape.NumElements() != td.NumElements() {
		return nil, fmt.Errorf("cannot reinterpret %v as %v", td.shape, shape)
	}
	td.buf.retain()
	return &TensorData{
		buf:   td.buf,
		shape: shape.Clone(),
		dtype: td.dtype,
	}, nil
}

// CopyFrom copies another value's bytes into this one.
// Shapes and dtypes must match exactly.
func (td *TensorData) CopyFrom(src *TensorData) error {
	if td.dtype != src.dtype || !td.shape.Equal(src.shape) {
		return fmt.Errorf("cannot copy %s into %s", src.ShapedType(), td.ShapedType())
	}
	copy(td.buf.data, src.buf.data)
	return nil
}

// String returns a human-readable description of the value.
func (td *TensorData) String() string {
	return fmt.Sprintf("TensorData[%s]%v", td.dtype, td.shape)
}
