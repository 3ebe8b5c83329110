package processor

import (
	"fmt"
	"image"
	"strings"

	"github.com/atlasml/atlas/internal/config"
	"github.com/atlasml/atlas/internal/tokenizer"
)

// ImagePlaceholder marks where an image sits inside a multimodal prompt.
const ImagePlaceholder = "<|img|>"

// Aria composes the text and image processors for multimodal prompts. Each
// image placeholder is expanded to the projector's query length so the text
// stream reserves one token slot per projected vision query.
type Aria struct {
	Text  *Text
	Image *Image

	patchToQuery map[int]int
}

func NewAria(cfg *config.Aria, tok tokenizer.Tokenizer) *Aria {
	return &Aria{
		Text:         NewText(tok),
		Image:        NewImage(cfg.VisionConfig),
		patchToQuery: cfg.PatchToQuery(),
	}
}

// Process pairs prompt texts with their images. The total number of
// placeholders across the batch must match the number of images.
func (p *Aria) Process(texts []string, images []image.Image) (*BatchFeature, error) {
	placeholders := 0
	for _, text := range texts {
		placeholders += strings.Count(text, ImagePlaceholder)
	}
	if placeholders != len(images) {
		return nil, fmt.Errorf("prompt has %d image placeholders but %d images were given",
			placeholders, len(images))
	}

	expanded := texts
	var pixels *BatchFeature
	if len(images) > 0 {
		var err error
		pixels, err = p.Image.Process(images)
		if err != nil {
			return nil, err
		}
		numPatches := p.Image.NumPatches()
		queryLen, ok := p.patchToQuery[numPatches]
		if !ok {
			return nil, fmt.Errorf("projector has no query length for %d patches", numPatches)
		}
		expanded = make([]string, len(texts))
		for i, text := range texts {
			expanded[i] = strings.ReplaceAll(text, ImagePlaceholder,
				strings.Repeat(ImagePlaceholder, queryLen))
		}
	}

	out, err := p.Text.Process(expanded)
	if err != nil {
		return nil, err
	}
	if pixels != nil {
		out.PixelValues = pixels.PixelValues
		out.PixelShape = pixels.PixelShape
	}
	return out, nil
}
