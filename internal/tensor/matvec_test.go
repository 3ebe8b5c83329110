package tensor

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestMatVecIdentity(t *testing.T) {
	m := NewMat(3, 3)
	for i := 0; i < 3; i++ {
		m.Data[i*3+i] = 1
	}
	x := []float32{1, 2, 3}
	dst := make([]float32, 3)
	MatVec(dst, &m, x)
	for i := range x {
		if dst[i] != x[i] {
			t.Fatalf("identity matvec: got %v, want %v", dst, x)
		}
	}
}

func TestMatVecAgainstNaive(t *testing.T) {
	const r, c = 17, 33
	m := NewMat(r, c)
	FillRand(&m, 1)
	x := make([]float32, c)
	for i := range x {
		x[i] = float32(i%7) - 3
	}

	want := make([]float32, r)
	for i := 0; i < r; i++ {
		var sum float32
		for j := 0; j < c; j++ {
			sum += m.Data[i*c+j] * x[j]
		}
		want[i] = sum
	}

	got := make([]float32, r)
	MatVec(got, &m, x)
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-5 {
			t.Fatalf("row %d: got %f want %f", i, got[i], want[i])
		}
	}
}

func TestMatVecBF16MatchesF32(t *testing.T) {
	const r, c = 4, 16
	f32 := NewMat(r, c)
	FillRand(&f32, 2)

	raw := make([]byte, r*c*2)
	for i, v := range f32.Data {
		u := uint16(math.Float32bits(v) >> 16)
		binary.LittleEndian.PutUint16(raw[i*2:], u)
		// keep the f32 copy truncated the same way so results match exactly
		f32.Data[i] = math.Float32frombits(uint32(u) << 16)
	}
	bf16, err := NewMatFromRaw(r, c, DTypeBF16, raw)
	if err != nil {
		t.Fatalf("NewMatFromRaw: %v", err)
	}

	x := make([]float32, c)
	for i := range x {
		x[i] = float32(i) * 0.25
	}
	want := make([]float32, r)
	got := make([]float32, r)
	MatVec(want, &f32, x)
	MatVec(got, &bf16, x)
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-5 {
			t.Fatalf("row %d: bf16 %f vs f32 %f", i, got[i], want[i])
		}
	}
}

func TestMatVecShapeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on shape mismatch")
		}
	}()
	m := NewMat(2, 4)
	MatVec(make([]float32, 1), &m, make([]float32, 4))
}

func TestRowToDecodesF16(t *testing.T) {
	// 1.0 in fp16 is 0x3C00, 2.0 is 0x4000
	raw := []byte{0x00, 0x3C, 0x00, 0x40}
	m, err := NewMatFromRaw(1, 2, DTypeF16, raw)
	if err != nil {
		t.Fatalf("NewMatFromRaw: %v", err)
	}
	row := m.Row(0)
	if row[0] != 1 || row[1] != 2 {
		t.Fatalf("decoded row = %v, want [1 2]", row)
	}
}

func TestNewMatFromRawSizeMismatch(t *testing.T) {
	if _, err := NewMatFromRaw(2, 2, DTypeBF16, make([]byte, 6)); err == nil {
		t.Fatal("expected error for short raw buffer")
	}
}
