package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// GenerationFileName is the hub-standard generation config discovery name.
const GenerationFileName = "generation_config.json"

// Generation holds decoding parameters. Zero values for the sampling knobs
// mean "use the default"; Normalize resolves them so callers never see zeros.
type Generation struct {
	MaxNewTokens      int     `json:"max_new_tokens,omitempty"`
	MaxLength         int     `json:"max_length,omitempty"`
	DoSample          bool    `json:"do_sample"`
	Temperature       float64 `json:"temperature,omitempty"`
	TopK              int     `json:"top_k,omitempty"`
	TopP              float64 `json:"top_p,omitempty"`
	MinP              float64 `json:"min_p,omitempty"`
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty"`
	Seed              int64   `json:"seed,omitempty"`

	BOSTokenID int         `json:"bos_token_id,omitempty"`
	EOSTokenID TokenIDList `json:"eos_token_id,omitempty"`
	PadTokenID int         `json:"pad_token_id,omitempty"`
}

// TokenIDList accepts either a single token id or a list of ids, both of
// which appear in published generation configs.
type TokenIDList []int

func (l *TokenIDList) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var ids []int
		if err := json.Unmarshal(b, &ids); err != nil {
			return fmt.Errorf("eos_token_id: %w", err)
		}
		*l = ids
		return nil
	}
	var id int
	if err := json.Unmarshal(b, &id); err != nil {
		return fmt.Errorf("eos_token_id: %w", err)
	}
	*l = TokenIDList{id}
	return nil
}

// DefaultGeneration mirrors the hub defaults: greedy decoding, max_length 20.
func DefaultGeneration() *Generation {
	return &Generation{
		MaxLength:         20,
		Temperature:       1.0,
		TopK:              50,
		TopP:              1.0,
		RepetitionPenalty: 1.0,
	}
}

func (g *Generation) Validate() error {
	if g.Temperature < 0 {
		return fmt.Errorf("temperature must not be negative, got %g", g.Temperature)
	}
	if g.TopK < 0 {
		return fmt.Errorf("top_k must not be negative, got %d", g.TopK)
	}
	if g.TopP < 0 || g.TopP > 1 {
		return fmt.Errorf("top_p must be in [0, 1], got %g", g.TopP)
	}
	if g.MinP < 0 || g.MinP > 1 {
		return fmt.Errorf("min_p must be in [0, 1], got %g", g.MinP)
	}
	if g.RepetitionPenalty < 0 {
		return fmt.Errorf("repetition_penalty must not be negative, got %g", g.RepetitionPenalty)
	}
	if g.MaxNewTokens < 0 {
		return fmt.Errorf("max_new_tokens must not be negative, got %d", g.MaxNewTokens)
	}
	return nil
}

// Normalize fills unset sampling knobs with defaults.
func (g *Generation) Normalize() {
	def := DefaultGeneration()
	if g.Temperature == 0 {
		g.Temperature = def.Temperature
	}
	if g.TopK == 0 {
		g.TopK = def.TopK
	}
	if g.TopP == 0 {
		g.TopP = def.TopP
	}
	if g.RepetitionPenalty == 0 {
		g.RepetitionPenalty = def.RepetitionPenalty
	}
	if g.MaxLength == 0 && g.MaxNewTokens == 0 {
		g.MaxLength = def.MaxLength
	}
}

// LoadGeneration reads generation_config.json. A missing file is not an
// error: defaults are returned, matching hub behavior.
func LoadGeneration(path string) (*Generation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultGeneration(), nil
		}
		return nil, err
	}
	g := &Generation{}
	if err := json.Unmarshal(raw, g); err != nil {
		return nil, fmt.Errorf("parse %s: %w", GenerationFileName, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("generation config: %w", err)
	}
	g.Normalize()
	return g, nil
}
