package tensor

import (
	"encoding/binary"
	"math"
)

// DType identifies the element encoding of a tensor's raw storage. The
// names follow the safetensors header convention.
type DType string

const (
	DTypeF32  DType = "F32"
	DTypeF16  DType = "F16"
	DTypeBF16 DType = "BF16"
)

func dtypeElemSize(dt DType) (int, bool) {
	switch dt {
	case DTypeF32:
		return 4, true
	case DTypeF16, DTypeBF16:
		return 2, true
	default:
		return 0, false
	}
}

var (
	bf16Table [1 << 16]float32
	fp16Table [1 << 16]float32
)

func init() {
	for u := 0; u < 1<<16; u++ {
		bf16Table[u] = bf16ToF32(uint16(u))
		fp16Table[u] = fp16ToF32(uint16(u))
	}
}

func bf16ToF32Table(u uint16) float32 { return bf16Table[u] }
func fp16ToF32Table(u uint16) float32 { return fp16Table[u] }

func bf16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}

func fp16ToF32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			// subnormal: renormalize
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		e := exp + (127 - 15)
		f = (sign << 31) | (e << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}

func u16le(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off:])
}

func f32le(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}
