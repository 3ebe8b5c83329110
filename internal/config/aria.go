package config

import (
	"fmt"
	"strconv"
)

func init() {
	Register("aria_text", func() Config { return NewAriaText() })
	Register("aria", func() Config { return NewAria() })
}

// AriaText configures the aria language model: a llama-style decoder whose
// feed-forward blocks are Mixture-of-Experts layers with always-on shared
// experts.
type AriaText struct {
	Llama

	MoEIntermediateSize int     `json:"moe_intermediate_size"`
	MoENumExperts       int     `json:"moe_num_experts"`
	MoETopK             int     `json:"moe_topk"`
	MoENumSharedExperts int     `json:"moe_num_shared_experts"`
	MoEZLossCoeff       float64 `json:"moe_z_loss_coeff,omitempty"`
	MoEAuxLossCoeff     float64 `json:"moe_aux_loss_coeff,omitempty"`
}

func NewAriaText() *AriaText {
	c := &AriaText{
		Llama:               *NewLlama(),
		MoEIntermediateSize: 4096,
		MoENumExperts:       8,
		MoETopK:             2,
		MoENumSharedExperts: 2,
		MoEZLossCoeff:       1e-5,
		MoEAuxLossCoeff:     1e-3,
	}
	c.ModelType = "aria_text"
	c.IntermediateSize = 4096
	return c
}

func (c *AriaText) Type() string { return c.ModelType }

func (c *AriaText) Validate() error {
	if err := c.Llama.Validate(); err != nil {
		return err
	}
	if c.MoENumExperts <= 0 {
		return fmt.Errorf("moe_num_experts must be positive, got %d", c.MoENumExperts)
	}
	if c.MoETopK <= 0 {
		return fmt.Errorf("moe_topk must be positive, got %d", c.MoETopK)
	}
	if c.MoETopK > c.MoENumExperts {
		return fmt.Errorf("moe_topk %d exceeds moe_num_experts %d", c.MoETopK, c.MoENumExperts)
	}
	if c.MoEIntermediateSize <= 0 {
		return fmt.Errorf("moe_intermediate_size must be positive, got %d", c.MoEIntermediateSize)
	}
	if c.MoENumSharedExperts < 0 {
		return fmt.Errorf("moe_num_shared_experts must not be negative, got %d", c.MoENumSharedExperts)
	}
	return nil
}

// AriaVision configures the aria vision tower.
type AriaVision struct {
	ModelType string `json:"model_type,omitempty"`

	HiddenSize        int     `json:"hidden_size"`
	IntermediateSize  int     `json:"intermediate_size"`
	NumHiddenLayers   int     `json:"num_hidden_layers"`
	NumAttentionHeads int     `json:"num_attention_heads"`
	ImageSize         int     `json:"image_size"`
	PatchSize         int     `json:"patch_size"`
	NumChannels       int     `json:"num_channels"`
	LayerNormEps      float64 `json:"layer_norm_eps"`
}

func NewAriaVision() *AriaVision {
	return &AriaVision{
		ModelType:         "aria_vision",
		HiddenSize:        1152,
		IntermediateSize:  4304,
		NumHiddenLayers:   27,
		NumAttentionHeads: 16,
		ImageSize:         980,
		PatchSize:         14,
		NumChannels:       3,
		LayerNormEps:      1e-6,
	}
}

func (c *AriaVision) Type() string { return c.ModelType }

func (c *AriaVision) Validate() error {
	if c.HiddenSize <= 0 || c.NumHiddenLayers <= 0 || c.NumAttentionHeads <= 0 {
		return fmt.Errorf("vision tower dimensions must be positive")
	}
	if c.PatchSize <= 0 {
		return fmt.Errorf("patch_size must be positive, got %d", c.PatchSize)
	}
	if c.ImageSize <= 0 || c.ImageSize%c.PatchSize != 0 {
		return fmt.Errorf("image_size %d must be a positive multiple of patch_size %d", c.ImageSize, c.PatchSize)
	}
	if c.NumChannels <= 0 {
		return fmt.Errorf("num_channels must be positive, got %d", c.NumChannels)
	}
	return nil
}

// Aria is the multimodal composite configuration: a text config, a vision
// config, and the projector parameters that connect them. Missing sub-configs
// fall back to family defaults, matching the hub convention.
type Aria struct {
	ModelType string `json:"model_type"`

	TextConfig   *AriaText   `json:"text_config"`
	VisionConfig *AriaVision `json:"vision_config"`

	// ProjectorPatchToQuery maps patch counts to projector query lengths.
	// JSON object keys arrive as strings; Validate requires them to parse
	// as integers.
	ProjectorPatchToQuery map[string]int `json:"projector_patch_to_query_dict"`

	VisionFeatureLayer int `json:"vision_feature_layer"`
	ImageTokenIndex    int `json:"image_token_index"`
	IgnoreIndex        int `json:"ignore_index,omitempty"`
}

func NewAria() *Aria {
	return &Aria{
		ModelType:    "aria",
		TextConfig:   NewAriaText(),
		VisionConfig: NewAriaVision(),
		ProjectorPatchToQuery: map[string]int{
			"1225": 128,
			"4900": 256,
		},
		VisionFeatureLayer: -1,
		ImageTokenIndex:    32000,
		IgnoreIndex:        -100,
	}
}

func (c *Aria) Type() string { return c.ModelType }

func (c *Aria) Validate() error {
	if c.TextConfig == nil {
		c.TextConfig = NewAriaText()
	}
	if c.VisionConfig == nil {
		c.VisionConfig = NewAriaVision()
	}
	if err := c.TextConfig.Validate(); err != nil {
		return fmt.Errorf("text_config: %w", err)
	}
	if err := c.VisionConfig.Validate(); err != nil {
		return fmt.Errorf("vision_config: %w", err)
	}
	if len(c.ProjectorPatchToQuery) == 0 {
		return fmt.Errorf("projector_patch_to_query_dict must not be empty")
	}
	for k, v := range c.ProjectorPatchToQuery {
		if _, err := strconv.Atoi(k); err != nil {
			return fmt.Errorf("projector_patch_to_query_dict key %q is not an integer", k)
		}
		if v <= 0 {
			return fmt.Errorf("projector_patch_to_query_dict[%s] must be positive, got %d", k, v)
		}
	}
	if c.ImageTokenIndex < 0 {
		return fmt.Errorf("image_token_index must not be negative, got %d", c.ImageTokenIndex)
	}
	if c.ImageTokenIndex >= c.TextConfig.VocabSize {
		return fmt.Errorf("image_token_index %d out of vocab range %d", c.ImageTokenIndex, c.TextConfig.VocabSize)
	}
	return nil
}

// PatchToQuery returns the projector mapping with integer keys.
func (c *Aria) PatchToQuery() map[int]int {
	out := make(map[int]int, len(c.ProjectorPatchToQuery))
	for k, v := range c.ProjectorPatchToQuery {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[n] = v
	}
	return out
}
