package tensor

import "fmt"

// Expand materializes a broadcast: it copies td into a new value of the
// given shape, replicating along dimensions where td has extent 1 (or is
// missing a leading dimension). Works byte-wise, so it supports every
// dtype including float16.
func Expand(td *TensorData, to Shape) (*TensorData, error) {
	from := td.Shape()
	if from.Equal(to) {
		return td.Clone(), nil
	}
	broadcast, _, err := BroadcastShapes(from, to)
	if err != nil || !broadcast.Equal(to) {
		return nil, fmt.Errorf("cannot expand %v to %v", from, to)
	}

	out, err := NewTensorData(to, td.DType())
	if err != nil {
		return nil, err
	}

	elemSize := td.DType().Size()
	srcStrides := from.ComputeStrides()
	dstShape := to
	src := td.Bytes()
	dst := out.Bytes()

	// Align ranks: missing leading source dimensions behave as extent 1.
	offset := len(to) - len(from)

	idx := make([]int, len(dstShape))
	total := to.NumElements()
	for flat := 0; flat < total; flat++ {
		srcIdx := 0
		for d, i := range idx {
			sd := d - offset
			if sd < 0 {
				continue
			}
			if from[sd] != 1 {
				srcIdx += i * srcStrides[sd]
			}
		}
		copy(dst[flat*elemSize:(flat+1)*elemSize], src[srcIdx*elemSize:srcIdx*elemSize+elemSize])

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < dstShape[d] {
				break
			}
			idx[d] = 0
		}
	}

	return out, nil
}
