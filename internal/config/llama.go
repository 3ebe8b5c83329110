package config

import "fmt"

func init() {
	Register("llama", func() Config { return NewLlama() })
	Register("qwen3", func() Config { return NewQwen3() })
}

// Llama is the dense decoder configuration shared by llama-style checkpoints.
type Llama struct {
	ModelType string `json:"model_type"`

	VocabSize         int     `json:"vocab_size"`
	HiddenSize        int     `json:"hidden_size"`
	IntermediateSize  int     `json:"intermediate_size"`
	NumHiddenLayers   int     `json:"num_hidden_layers"`
	NumAttentionHeads int     `json:"num_attention_heads"`
	NumKeyValueHeads  int     `json:"num_key_value_heads"`
	HeadDim           int     `json:"head_dim,omitempty"`
	HiddenAct         string  `json:"hidden_act"`
	MaxPosition       int     `json:"max_position_embeddings"`
	RMSNormEps        float64 `json:"rms_norm_eps"`
	RopeTheta         float64 `json:"rope_theta"`
	AttentionBias     bool    `json:"attention_bias,omitempty"`
	TieWordEmbeddings bool    `json:"tie_word_embeddings,omitempty"`

	BOSTokenID int `json:"bos_token_id,omitempty"`
	EOSTokenID int `json:"eos_token_id,omitempty"`
}

func NewLlama() *Llama {
	return &Llama{
		ModelType:         "llama",
		VocabSize:         32000,
		HiddenSize:        4096,
		IntermediateSize:  11008,
		NumHiddenLayers:   32,
		NumAttentionHeads: 32,
		NumKeyValueHeads:  32,
		HiddenAct:         "silu",
		MaxPosition:       2048,
		RMSNormEps:        1e-6,
		RopeTheta:         10000,
		BOSTokenID:        1,
		EOSTokenID:        2,
	}
}

func (c *Llama) Type() string { return c.ModelType }

func (c *Llama) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("hidden_size must be positive, got %d", c.HiddenSize)
	}
	if c.NumHiddenLayers <= 0 {
		return fmt.Errorf("num_hidden_layers must be positive, got %d", c.NumHiddenLayers)
	}
	if c.NumAttentionHeads <= 0 {
		return fmt.Errorf("num_attention_heads must be positive, got %d", c.NumAttentionHeads)
	}
	if c.HeadDim <= 0 && c.HiddenSize%c.NumAttentionHeads != 0 {
		return fmt.Errorf("hidden_size %d not divisible by num_attention_heads %d and head_dim unset",
			c.HiddenSize, c.NumAttentionHeads)
	}
	if c.NumKeyValueHeads <= 0 {
		return fmt.Errorf("num_key_value_heads must be positive, got %d", c.NumKeyValueHeads)
	}
	if c.NumAttentionHeads%c.NumKeyValueHeads != 0 {
		return fmt.Errorf("num_attention_heads %d not divisible by num_key_value_heads %d",
			c.NumAttentionHeads, c.NumKeyValueHeads)
	}
	if c.IntermediateSize <= 0 {
		return fmt.Errorf("intermediate_size must be positive, got %d", c.IntermediateSize)
	}
	if c.MaxPosition <= 0 {
		return fmt.Errorf("max_position_embeddings must be positive, got %d", c.MaxPosition)
	}
	if c.RMSNormEps <= 0 {
		return fmt.Errorf("rms_norm_eps must be positive, got %g", c.RMSNormEps)
	}
	return nil
}

// ResolvedHeadDim returns head_dim, deriving it from hidden_size when unset.
func (c *Llama) ResolvedHeadDim() int {
	if c.HeadDim > 0 {
		return c.HeadDim
	}
	return c.HiddenSize / c.NumAttentionHeads
}

// Qwen3 is a llama-style decoder with per-head query/key RMS normalization.
type Qwen3 struct {
	Llama
}

func NewQwen3() *Qwen3 {
	c := &Qwen3{Llama: *NewLlama()}
	c.ModelType = "qwen3"
	c.VocabSize = 151936
	c.MaxPosition = 32768
	c.RopeTheta = 1000000
	return c
}

func (c *Qwen3) Type() string { return c.ModelType }
