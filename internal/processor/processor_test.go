package processor

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/atlasml/atlas/internal/config"
)

// fakeTokenizer treats the image placeholder as a single token (id 256) and
// every other byte as its own id.
type fakeTokenizer struct{}

func (fakeTokenizer) Encode(text string) ([]int, error) {
	var ids []int
	for len(text) > 0 {
		if strings.HasPrefix(text, ImagePlaceholder) {
			ids = append(ids, 256)
			text = text[len(ImagePlaceholder):]
			continue
		}
		ids = append(ids, int(text[0]))
		text = text[1:]
	}
	return ids, nil
}

func (fakeTokenizer) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if id == 256 {
			b.WriteString(ImagePlaceholder)
			continue
		}
		if id < 0 || id > 255 {
			return "", fmt.Errorf("id out of range: %d", id)
		}
		b.WriteByte(byte(id))
	}
	return b.String(), nil
}

func TestTextPadsToLongest(t *testing.T) {
	t.Parallel()

	p := NewText(fakeTokenizer{})
	p.PadTokenID = 0

	out, err := p.Process([]string{"abc", "a"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(out.InputIDs[0]) != 3 || len(out.InputIDs[1]) != 3 {
		t.Fatalf("rows not rectangular: %v", out.InputIDs)
	}
	if out.InputIDs[1][1] != 0 || out.InputIDs[1][2] != 0 {
		t.Fatalf("padding missing: %v", out.InputIDs[1])
	}
	wantMask := []int{1, 0, 0}
	for i, m := range out.AttentionMask[1] {
		if m != wantMask[i] {
			t.Fatalf("mask = %v, want %v", out.AttentionMask[1], wantMask)
		}
	}
}

func TestTextTruncates(t *testing.T) {
	t.Parallel()

	p := NewText(fakeTokenizer{})
	p.MaxLength = 2
	out, err := p.Process([]string{"abcdef"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(out.InputIDs[0]) != 2 {
		t.Fatalf("truncation failed: %v", out.InputIDs[0])
	}
}

func grayImage(w, h int, v uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestImageNormalization(t *testing.T) {
	t.Parallel()

	vision := config.NewAriaVision()
	vision.ImageSize = 28
	vision.PatchSize = 14
	p := NewImage(vision)

	out, err := p.Process([]image.Image{grayImage(10, 10, 255)})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got, want := len(out.PixelValues[0]), 3*28*28; got != want {
		t.Fatalf("pixel count = %d, want %d", got, want)
	}
	// white pixel: (1.0 - 0.5) / 0.5 = 1.0
	for _, v := range out.PixelValues[0] {
		if math.Abs(float64(v)-1.0) > 1e-5 {
			t.Fatalf("normalized white = %g, want 1.0", v)
		}
	}
	if p.NumPatches() != 4 {
		t.Fatalf("num patches = %d, want 4", p.NumPatches())
	}
}

func TestAudioNormalizeAndMask(t *testing.T) {
	t.Parallel()

	cfg := config.NewWav2Vec2()
	cfg.ReturnAttentionMask = true
	p := NewAudio(cfg)

	out, err := p.Process([][]float32{{1, 2, 3, 4}, {5, 6}}, cfg.SamplingRate)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(out.InputValues[1]) != 4 {
		t.Fatalf("padding failed: %v", out.InputValues[1])
	}
	// normalized over the real samples: mean 0
	var mean float64
	for _, v := range out.InputValues[0] {
		mean += float64(v)
	}
	if math.Abs(mean/4) > 1e-5 {
		t.Fatalf("mean after normalize = %g", mean/4)
	}
	if out.AttentionMask[1][1] != 1 || out.AttentionMask[1][2] != 0 {
		t.Fatalf("mask = %v", out.AttentionMask[1])
	}
}

func TestAudioRejectsRateMismatch(t *testing.T) {
	t.Parallel()

	p := NewAudio(config.NewWav2Vec2())
	if _, err := p.Process([][]float32{{1}}, 8000); err == nil {
		t.Fatal("expected sampling rate error")
	}
}

func TestAriaExpandsImagePlaceholders(t *testing.T) {
	t.Parallel()

	cfg := config.NewAria()
	cfg.VisionConfig.ImageSize = 490 // 35x35 patches = 1225 -> 128 queries
	p := NewAria(cfg, fakeTokenizer{})

	out, err := p.Process(
		[]string{"look: " + ImagePlaceholder},
		[]image.Image{grayImage(8, 8, 0)},
	)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	imageTokens := 0
	for _, id := range out.InputIDs[0] {
		if id == 256 {
			imageTokens++
		}
	}
	if imageTokens != 128 {
		t.Fatalf("expanded to %d image tokens, want 128", imageTokens)
	}
	if len(out.PixelValues) != 1 {
		t.Fatalf("pixel batch = %d", len(out.PixelValues))
	}
}

func TestAriaPlaceholderCountMismatch(t *testing.T) {
	t.Parallel()

	p := NewAria(config.NewAria(), fakeTokenizer{})
	_, err := p.Process([]string{"no placeholder"}, []image.Image{grayImage(2, 2, 0)})
	if err == nil || !strings.Contains(err.Error(), "placeholders") {
		t.Fatalf("expected placeholder mismatch error, got %v", err)
	}
}

func TestAriaUnknownPatchCount(t *testing.T) {
	t.Parallel()

	cfg := config.NewAria()
	cfg.VisionConfig.ImageSize = 28 // 4 patches, not in the projector map
	cfg.VisionConfig.PatchSize = 14
	p := NewAria(cfg, fakeTokenizer{})

	_, err := p.Process([]string{ImagePlaceholder}, []image.Image{grayImage(2, 2, 0)})
	if err == nil || !strings.Contains(err.Error(), "query length") {
		t.Fatalf("expected projector mapping error, got %v", err)
	}
}
