package safetensors

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// Writer accumulates f32 tensors and serialises them as a single safetensors
// file. It exists for test fixtures and the pack command; it intentionally
// does not support f16/bf16 encoding.
type Writer struct {
	names   []string
	shapes  map[string][]int
	tensors map[string][]float32
}

func NewWriter() *Writer {
	return &Writer{
		shapes:  make(map[string][]int),
		tensors: make(map[string][]float32),
	}
}

// Add registers a named f32 tensor. Duplicate names and shape/data size
// mismatches are errors.
func (w *Writer) Add(name string, shape []int, data []float32) error {
	if _, ok := w.tensors[name]; ok {
		return fmt.Errorf("duplicate tensor %s", name)
	}
	n, err := numElements(shape)
	if err != nil {
		return fmt.Errorf("tensor %s: %w", name, err)
	}
	if n != len(data) {
		return fmt.Errorf("tensor %s: shape %v implies %d elements, got %d", name, shape, n, len(data))
	}
	w.names = append(w.names, name)
	w.shapes[name] = append([]int(nil), shape...)
	w.tensors[name] = data
	return nil
}

// WriteFile serialises all registered tensors to path.
func (w *Writer) WriteFile(path string) error {
	names := append([]string(nil), w.names...)
	sort.Strings(names)

	header := make(map[string]tensorHeader, len(names))
	var offset int64
	for _, name := range names {
		size := int64(len(w.tensors[name]) * 4)
		header[name] = tensorHeader{
			DType:       "F32",
			Shape:       w.shapes[name],
			DataOffsets: []int64{offset, offset + size},
		}
		offset += size
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := f.Write(headerBytes); err != nil {
		return err
	}
	buf := make([]byte, 4)
	for _, name := range names {
		for _, v := range w.tensors[name] {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := f.Write(buf); err != nil {
				return err
			}
		}
	}
	return f.Close()
}
