package safetensors

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

func writeFixture(t *testing.T, dir string, tensors map[string][]float32, shapes map[string][]int) string {
	t.Helper()
	w := NewWriter()
	for name, data := range tensors {
		if err := w.Add(name, shapes[name], data); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	path := filepath.Join(dir, SingleFileName)
	if err := w.WriteFile(path); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestOpenAndReadF32(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir,
		map[string][]float32{"w": {1, 2, 3, 4, 5, 6}},
		map[string][]int{"w": {2, 3}},
	)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	info, ok := f.Tensor("w")
	if !ok {
		t.Fatal("tensor w not found")
	}
	if info.DType != "F32" || len(info.Shape) != 2 || info.Shape[0] != 2 || info.Shape[1] != 3 {
		t.Fatalf("unexpected tensor info: %+v", info)
	}

	data, _, err := f.ReadTensorF32("w")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []float32{1, 2, 3, 4, 5, 6}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("data = %v, want %v", data, want)
		}
	}
}

func TestReadMissingTensor(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir,
		map[string][]float32{"w": {1}},
		map[string][]int{"w": {1}},
	)
	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := f.ReadTensor("nope"); err == nil {
		t.Fatal("expected error for missing tensor")
	}
}

func TestReadBF16(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bf16.safetensors")

	// Hand-roll a bf16 file: values 1.0 (0x3F80) and -2.0 (0xC000).
	header := map[string]tensorHeader{
		"x": {DType: "BF16", Shape: []int{2}, DataOffsets: []int64{0, 4}},
	}
	hb, err := json.Marshal(header)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 8+len(hb)+4)
	binary.LittleEndian.PutUint64(buf, uint64(len(hb)))
	copy(buf[8:], hb)
	binary.LittleEndian.PutUint16(buf[8+len(hb):], 0x3F80)
	binary.LittleEndian.PutUint16(buf[8+len(hb)+2:], 0xC000)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _, err := f.ReadTensorF32("x")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if data[0] != 1 || data[1] != -2 {
		t.Fatalf("bf16 decode = %v, want [1 -2]", data)
	}
}

func TestFP16Conversion(t *testing.T) {
	cases := []struct {
		in   uint16
		want float32
	}{
		{0x3C00, 1},
		{0xC000, -2},
		{0x0000, 0},
		{0x7C00, float32(math.Inf(1))},
	}
	for _, tc := range cases {
		if got := fp16ToFloat32(tc.in); got != tc.want {
			t.Errorf("fp16ToFloat32(%#04x) = %f, want %f", tc.in, got, tc.want)
		}
	}
}

func TestCheckpointSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir,
		map[string][]float32{"a": {1, 2}},
		map[string][]int{"a": {2}},
	)

	cp, err := OpenCheckpoint(dir)
	if err != nil {
		t.Fatalf("open checkpoint: %v", err)
	}
	if cp.NumShards() != 1 {
		t.Fatalf("shards = %d, want 1", cp.NumShards())
	}
	data, _, err := cp.ReadTensorF32("a")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if data[0] != 1 || data[1] != 2 {
		t.Fatalf("data = %v", data)
	}
}

func TestCheckpointSharded(t *testing.T) {
	dir := t.TempDir()

	w1 := NewWriter()
	if err := w1.Add("a", []int{2}, []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := w1.WriteFile(filepath.Join(dir, "model-00001-of-00002.safetensors")); err != nil {
		t.Fatal(err)
	}
	w2 := NewWriter()
	if err := w2.Add("b", []int{1}, []float32{3}); err != nil {
		t.Fatal(err)
	}
	if err := w2.WriteFile(filepath.Join(dir, "model-00002-of-00002.safetensors")); err != nil {
		t.Fatal(err)
	}

	idx := indexFile{
		WeightMap: map[string]string{
			"a": "model-00001-of-00002.safetensors",
			"b": "model-00002-of-00002.safetensors",
		},
	}
	ib, err := json.Marshal(idx)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, IndexFileName), ib, 0o644); err != nil {
		t.Fatal(err)
	}

	cp, err := OpenCheckpoint(dir)
	if err != nil {
		t.Fatalf("open checkpoint: %v", err)
	}
	if cp.NumShards() != 2 {
		t.Fatalf("shards = %d, want 2", cp.NumShards())
	}
	a, _, err := cp.ReadTensorF32("a")
	if err != nil {
		t.Fatalf("read a: %v", err)
	}
	b, _, err := cp.ReadTensorF32("b")
	if err != nil {
		t.Fatalf("read b: %v", err)
	}
	if a[1] != 2 || b[0] != 3 {
		t.Fatalf("a=%v b=%v", a, b)
	}
	if _, ok := cp.Tensor("missing"); ok {
		t.Fatal("unexpected tensor found")
	}
}

func TestCheckpointMissingDir(t *testing.T) {
	if _, err := OpenCheckpoint(filepath.Join(t.TempDir(), "empty")); err == nil {
		t.Fatal("expected error for missing checkpoint")
	}
}

func TestWriterRejectsDuplicatesAndBadShapes(t *testing.T) {
	w := NewWriter()
	if err := w.Add("x", []int{2}, []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := w.Add("x", []int{2}, []float32{1, 2}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := w.Add("y", []int{3}, []float32{1}); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}
