// Package processor converts raw text, images and audio into the padded,
// normalized batches a model consumes. Each modality has its own processor;
// the multimodal processors compose them.
package processor

// BatchFeature is the uniform output of every processor: named model inputs
// aligned across the batch dimension.
type BatchFeature struct {
	// InputIDs and AttentionMask are present for text-bearing processors.
	// Rows are padded to equal length; mask entries are 1 for real tokens.
	InputIDs      [][]int
	AttentionMask [][]int

	// PixelValues holds one flattened [C*H*W] image per row.
	PixelValues [][]float32
	PixelShape  []int // [C, H, W], set when PixelValues is non-empty

	// InputValues holds one normalized waveform per row, padded to equal
	// length, masked by AttentionMask when requested.
	InputValues [][]float32
}

// BatchSize returns the number of rows in the dominant modality.
func (b *BatchFeature) BatchSize() int {
	switch {
	case len(b.InputIDs) > 0:
		return len(b.InputIDs)
	case len(b.PixelValues) > 0:
		return len(b.PixelValues)
	default:
		return len(b.InputValues)
	}
}
