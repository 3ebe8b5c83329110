package processor

import (
	"fmt"
	"image"

	"github.com/atlasml/atlas/internal/config"
)

// Image resizes images to the vision tower's input size and normalizes the
// channels. Output layout is CHW.
type Image struct {
	Size      int // square target edge
	PatchSize int

	Mean [3]float32
	Std  [3]float32
}

// NewImage derives an image processor from a vision config.
func NewImage(cfg *config.AriaVision) *Image {
	return &Image{
		Size:      cfg.ImageSize,
		PatchSize: cfg.PatchSize,
		Mean:      [3]float32{0.5, 0.5, 0.5},
		Std:       [3]float32{0.5, 0.5, 0.5},
	}
}

// NumPatches is how many vision patches one processed image produces.
func (p *Image) NumPatches() int {
	side := p.Size / p.PatchSize
	return side * side
}

// Process converts a batch of images into normalized CHW pixel tensors.
func (p *Image) Process(images []image.Image) (*BatchFeature, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("empty image batch")
	}
	out := &BatchFeature{
		PixelValues: make([][]float32, len(images)),
		PixelShape:  []int{3, p.Size, p.Size},
	}
	for i, img := range images {
		if img == nil {
			return nil, fmt.Errorf("image %d is nil", i)
		}
		out.PixelValues[i] = p.normalize(img)
	}
	return out, nil
}

// normalize resizes with nearest-neighbor sampling and scales each channel
// to (x - mean) / std in [0,1] input space.
func (p *Image) normalize(img image.Image) []float32 {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	size := p.Size

	out := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		srcY := bounds.Min.Y + y*srcH/size
		for x := 0; x < size; x++ {
			srcX := bounds.Min.X + x*srcW/size
			r, g, b, _ := img.At(srcX, srcY).RGBA()
			idx := y*size + x
			out[idx] = (float32(r>>8)/255 - p.Mean[0]) / p.Std[0]
			out[plane+idx] = (float32(g>>8)/255 - p.Mean[1]) / p.Std[1]
			out[2*plane+idx] = (float32(b>>8)/255 - p.Mean[2]) / p.Std[2]
		}
	}
	return out
}
