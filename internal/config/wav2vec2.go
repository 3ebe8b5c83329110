package config

import "fmt"

func init() {
	Register("wav2vec2", func() Config { return NewWav2Vec2() })
}

// Wav2Vec2 configures the audio feature encoder. The three conv layer lists
// describe the same stack and must stay the same length; that is the classic
// construction-time mismatch this catalog has to reject.
type Wav2Vec2 struct {
	ModelType string `json:"model_type"`

	HiddenSize        int     `json:"hidden_size"`
	NumHiddenLayers   int     `json:"num_hidden_layers"`
	NumAttentionHeads int     `json:"num_attention_heads"`
	IntermediateSize  int     `json:"intermediate_size"`
	LayerNormEps      float64 `json:"layer_norm_eps"`

	ConvDim    []int `json:"conv_dim"`
	ConvStride []int `json:"conv_stride"`
	ConvKernel []int `json:"conv_kernel"`

	SamplingRate        int  `json:"sampling_rate,omitempty"`
	DoNormalize         bool `json:"do_normalize"`
	ReturnAttentionMask bool `json:"return_attention_mask,omitempty"`
}

func NewWav2Vec2() *Wav2Vec2 {
	return &Wav2Vec2{
		ModelType:         "wav2vec2",
		HiddenSize:        768,
		NumHiddenLayers:   12,
		NumAttentionHeads: 12,
		IntermediateSize:  3072,
		LayerNormEps:      1e-5,
		ConvDim:           []int{512, 512, 512, 512, 512, 512, 512},
		ConvStride:        []int{5, 2, 2, 2, 2, 2, 2},
		ConvKernel:        []int{10, 3, 3, 3, 3, 2, 2},
		SamplingRate:      16000,
		DoNormalize:       true,
	}
}

func (c *Wav2Vec2) Type() string { return c.ModelType }

func (c *Wav2Vec2) Validate() error {
	if c.HiddenSize <= 0 || c.NumHiddenLayers <= 0 || c.NumAttentionHeads <= 0 {
		return fmt.Errorf("encoder dimensions must be positive")
	}
	if len(c.ConvDim) == 0 {
		return fmt.Errorf("conv_dim must not be empty")
	}
	if len(c.ConvDim) != len(c.ConvStride) || len(c.ConvDim) != len(c.ConvKernel) {
		return fmt.Errorf(
			"conv layer lists must have equal length: len(conv_dim)=%d, len(conv_stride)=%d, len(conv_kernel)=%d",
			len(c.ConvDim), len(c.ConvStride), len(c.ConvKernel))
	}
	for i, k := range c.ConvKernel {
		if k <= 0 || c.ConvStride[i] <= 0 || c.ConvDim[i] <= 0 {
			return fmt.Errorf("conv layer %d has non-positive dim/stride/kernel", i)
		}
	}
	if c.SamplingRate <= 0 {
		return fmt.Errorf("sampling_rate must be positive, got %d", c.SamplingRate)
	}
	return nil
}
