package processor

import (
	"fmt"

	"github.com/atlasml/atlas/internal/tokenizer"
)

// Text tokenizes string batches and pads them to a rectangular shape.
type Text struct {
	Tok tokenizer.Tokenizer

	// PadTokenID fills the tail of short rows. Padding is on the right.
	PadTokenID int
	// MaxLength truncates rows when positive.
	MaxLength int
}

func NewText(tok tokenizer.Tokenizer) *Text {
	return &Text{Tok: tok}
}

// Process encodes each text and pads the batch to the longest row.
func (p *Text) Process(texts []string) (*BatchFeature, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty text batch")
	}
	rows := make([][]int, len(texts))
	longest := 0
	for i, text := range texts {
		ids, err := p.Tok.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("encode text %d: %w", i, err)
		}
		if p.MaxLength > 0 && len(ids) > p.MaxLength {
			ids = ids[:p.MaxLength]
		}
		rows[i] = ids
		if len(ids) > longest {
			longest = len(ids)
		}
	}

	out := &BatchFeature{
		InputIDs:      make([][]int, len(rows)),
		AttentionMask: make([][]int, len(rows)),
	}
	for i, ids := range rows {
		padded := make([]int, longest)
		mask := make([]int, longest)
		copy(padded, ids)
		for j := len(ids); j < longest; j++ {
			padded[j] = p.PadTokenID
		}
		for j := 0; j < len(ids); j++ {
			mask[j] = 1
		}
		out.InputIDs[i] = padded
		out.AttentionMask[i] = mask
	}
	return out, nil
}
