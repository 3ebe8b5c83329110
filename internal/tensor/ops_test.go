package tensor

import (
	"math"
	"testing"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	Softmax(x)
	var sum float32
	for _, v := range x {
		sum += v
	}
	if math.Abs(float64(sum-1)) > 1e-5 {
		t.Fatalf("softmax sum = %f, want 1", sum)
	}
	for i := 1; i < len(x); i++ {
		if x[i] <= x[i-1] {
			t.Fatalf("softmax not monotone for monotone input: %v", x)
		}
	}
}

func TestSoftmaxEmpty(t *testing.T) {
	Softmax(nil) // must not panic
}

func TestRMSNorm(t *testing.T) {
	src := []float32{3, 4}
	weight := []float32{1, 1}
	dst := make([]float32, 2)
	RMSNorm(dst, src, weight, 0)

	// rms of (3,4) is sqrt(25/2)
	rms := float32(math.Sqrt(12.5))
	want0 := 3 / rms
	want1 := 4 / rms
	if math.Abs(float64(dst[0]-want0)) > 1e-5 || math.Abs(float64(dst[1]-want1)) > 1e-5 {
		t.Fatalf("RMSNorm = %v, want [%f %f]", dst, want0, want1)
	}
}

func TestSiluZero(t *testing.T) {
	if Silu(0) != 0 {
		t.Fatalf("Silu(0) = %f, want 0", Silu(0))
	}
	// silu(x) -> x for large x
	if math.Abs(float64(Silu(20)-20)) > 1e-3 {
		t.Fatalf("Silu(20) = %f, want ~20", Silu(20))
	}
}

func TestSiluAndMul(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	dst := make([]float32, 2)
	SiluAndMul(dst, x)
	want0 := Silu(1) * 3
	want1 := Silu(2) * 4
	if math.Abs(float64(dst[0]-want0)) > 1e-6 || math.Abs(float64(dst[1]-want1)) > 1e-6 {
		t.Fatalf("SiluAndMul = %v, want [%f %f]", dst, want0, want1)
	}
}

func TestAddScaled(t *testing.T) {
	dst := []float32{1, 1}
	AddScaled(dst, []float32{2, 4}, 0.5)
	if dst[0] != 2 || dst[1] != 3 {
		t.Fatalf("AddScaled = %v, want [2 3]", dst)
	}
}

func TestApplyRoPEPositionZeroIsIdentity(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	orig := append([]float32(nil), x...)
	invFreq := []float64{1, 0.1}
	ApplyRoPE(x, 1, 4, 0, invFreq)
	for i := range x {
		if x[i] != orig[i] {
			t.Fatalf("RoPE at pos 0 changed x: %v -> %v", orig, x)
		}
	}
}

func TestApplyRoPEPreservesNorm(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	invFreq := []float64{1, 0.1}
	var before float64
	for _, v := range x {
		before += float64(v * v)
	}
	ApplyRoPE(x, 1, 4, 7, invFreq)
	var after float64
	for _, v := range x {
		after += float64(v * v)
	}
	if math.Abs(before-after) > 1e-4 {
		t.Fatalf("RoPE changed norm: %f -> %f", before, after)
	}
}
