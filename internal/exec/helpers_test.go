package exec

import (
	"encoding/binary"
	"math"
)

// floatBytes encodes float32 values little endian, the layout Constant
// and Variable expect.
func floatBytes(vals ...float32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
