package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/atlasml/atlas/internal/config"
	"github.com/atlasml/atlas/internal/logger"
	"github.com/atlasml/atlas/internal/model"
	"github.com/atlasml/atlas/internal/tokenizer"
)

// FinishReason explains why a generation loop stopped.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"   // hit an eos token
	FinishLength FinishReason = "length" // hit the token budget
)

// Result is a completed generation.
type Result struct {
	Text         string
	TokenIDs     []int
	PromptTokens int
	FinishReason FinishReason
	Duration     time.Duration
}

// Generator runs autoregressive decoding over a model with a sampler built
// from the snapshot's generation config.
type Generator struct {
	model model.Model
	tok   tokenizer.Tokenizer
	gen   *config.Generation
	log   logger.Logger
}

func New(m model.Model, tok tokenizer.Tokenizer, gen *config.Generation, log logger.Logger) *Generator {
	if gen == nil {
		gen = config.DefaultGeneration()
	}
	gen.Normalize()
	if log == nil {
		log = logger.Default()
	}
	return &Generator{model: m, tok: tok, gen: gen, log: log}
}

// Generate decodes until an eos token, the token budget, or ctx cancellation.
// onToken, when non-nil, receives each new token's text as it is produced.
func (g *Generator) Generate(ctx context.Context, prompt string, onToken func(string)) (*Result, error) {
	start := time.Now()

	promptIDs, err := g.tok.Encode(prompt)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}
	if len(promptIDs) == 0 {
		return nil, fmt.Errorf("empty prompt after tokenization")
	}

	maxNew := g.gen.MaxNewTokens
	if maxNew <= 0 {
		maxNew = g.gen.MaxLength - len(promptIDs)
		if maxNew < 1 {
			maxNew = 1
		}
	}

	g.model.Reset()
	sampler := NewSampler(g.gen)

	// Prefill: feed all prompt tokens; only the last logits matter.
	var logits []float32
	for _, id := range promptIDs {
		if logits, err = g.model.ForwardToken(id); err != nil {
			return nil, fmt.Errorf("prefill: %w", err)
		}
	}

	seq := append([]int(nil), promptIDs...)
	res := &Result{PromptTokens: len(promptIDs)}

	for len(res.TokenIDs) < maxNew {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := sampler.Sample(logits, seq)
		seq = append(seq, next)
		res.TokenIDs = append(res.TokenIDs, next)

		piece, err := g.tok.Decode([]int{next})
		if err != nil {
			return nil, fmt.Errorf("decode token %d: %w", next, err)
		}
		if onToken != nil {
			onToken(piece)
		}

		if g.isEOS(next) {
			res.FinishReason = FinishStop
			break
		}

		if logits, err = g.model.ForwardToken(next); err != nil {
			// Ran out of context mid-generation; return what we have.
			g.log.Warn("decode stopped early", "err", err)
			res.FinishReason = FinishLength
			break
		}
	}
	if res.FinishReason == "" {
		res.FinishReason = FinishLength
	}

	res.Text, err = g.tok.Decode(res.TokenIDs)
	if err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	res.Duration = time.Since(start)

	g.log.Debug("generation complete",
		"prompt_tokens", res.PromptTokens,
		"new_tokens", len(res.TokenIDs),
		"finish", string(res.FinishReason),
		"elapsed", res.Duration)
	return res, nil
}

func (g *Generator) isEOS(id int) bool {
	for _, eos := range g.gen.EOSTokenID {
		if id == eos {
			return true
		}
	}
	return false
}
