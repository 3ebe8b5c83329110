package model

import (
	"fmt"

	"github.com/atlasml/atlas/internal/config"
)

type archNames struct {
	embedding        string
	outputNorm       string
	outputCandidates func() []string

	attnNorm func(layer int) string
	ffnNorm  func(layer int) string

	qNormCandidates func(layer int) []string
	kNormCandidates func(layer int) []string

	wq func(layer int) string
	wk func(layer int) string
	wv func(layer int) string
	wo func(layer int) string

	ffnUp   func(layer int) string
	ffnGate func(layer int) string
	ffnDown func(layer int) string

	// Expert-routing tensors (aria_text only).
	moeRouter     func(layer int) string
	moeFC1        func(layer int) string
	moeFC2        func(layer int) string
	moeSharedUp   func(layer int) string
	moeSharedGate func(layer int) string
	moeSharedDown func(layer int) string
}

type archSpec struct {
	Name      string
	HasQKNorm bool
	HasMoE    bool

	Names archNames
}

// detectArch maps a decoded config to its tensor naming spec. The composite
// aria config routes to its text sub-config.
func detectArch(cfg config.Config) (*archSpec, *config.Llama, *config.AriaText, error) {
	switch c := cfg.(type) {
	case *config.Llama:
		return llamaSpec(), c, nil, nil
	case *config.Qwen3:
		return qwen3Spec(), &c.Llama, nil, nil
	case *config.AriaText:
		return ariaTextSpec(""), &c.Llama, c, nil
	case *config.Aria:
		return ariaTextSpec("language_model."), &c.TextConfig.Llama, c.TextConfig, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported model_type %q", cfg.Type())
	}
}

func llamaNames(prefix string) archNames {
	return archNames{
		embedding:  prefix + "model.embed_tokens.weight",
		outputNorm: prefix + "model.norm.weight",
		outputCandidates: func() []string {
			return []string{
				prefix + "lm_head.weight",
				prefix + "model.lm_head.weight",
				prefix + "model.embed_tokens.weight",
			}
		},
		attnNorm: func(layer int) string {
			return fmt.Sprintf("%smodel.layers.%d.input_layernorm.weight", prefix, layer)
		},
		ffnNorm: func(layer int) string {
			return fmt.Sprintf("%smodel.layers.%d.post_attention_layernorm.weight", prefix, layer)
		},
		qNormCandidates: func(layer int) []string { return nil },
		kNormCandidates: func(layer int) []string { return nil },
		wq: func(layer int) string {
			return fmt.Sprintf("%smodel.layers.%d.self_attn.q_proj.weight", prefix, layer)
		},
		wk: func(layer int) string {
			return fmt.Sprintf("%smodel.layers.%d.self_attn.k_proj.weight", prefix, layer)
		},
		wv: func(layer int) string {
			return fmt.Sprintf("%smodel.layers.%d.self_attn.v_proj.weight", prefix, layer)
		},
		wo: func(layer int) string {
			return fmt.Sprintf("%smodel.layers.%d.self_attn.o_proj.weight", prefix, layer)
		},
		ffnUp: func(layer int) string {
			return fmt.Sprintf("%smodel.layers.%d.mlp.up_proj.weight", prefix, layer)
		},
		ffnGate: func(layer int) string {
			return fmt.Sprintf("%smodel.layers.%d.mlp.gate_proj.weight", prefix, layer)
		},
		ffnDown: func(layer int) string {
			return fmt.Sprintf("%smodel.layers.%d.mlp.down_proj.weight", prefix, layer)
		},
	}
}

func llamaSpec() *archSpec {
	return &archSpec{
		Name:  "llama",
		Names: llamaNames(""),
	}
}

func qwen3Spec() *archSpec {
	names := llamaNames("")
	names.qNormCandidates = func(layer int) []string {
		return []string{
			fmt.Sprintf("model.layers.%d.self_attn.q_norm.weight", layer),
			fmt.Sprintf("model.layers.%d.self_attn.q_layernorm.weight", layer),
		}
	}
	names.kNormCandidates = func(layer int) []string {
		return []string{
			fmt.Sprintf("model.layers.%d.self_attn.k_norm.weight", layer),
			fmt.Sprintf("model.layers.%d.self_attn.k_layernorm.weight", layer),
		}
	}
	return &archSpec{
		Name:      "qwen3",
		HasQKNorm: true,
		Names:     names,
	}
}

// ariaTextSpec covers both the standalone text model (empty prefix) and the
// text tower inside the multimodal checkpoint ("language_model." prefix).
func ariaTextSpec(prefix string) *archSpec {
	names := llamaNames(prefix)
	names.moeRouter = func(layer int) string {
		return fmt.Sprintf("%smodel.layers.%d.mlp.router.weight", prefix, layer)
	}
	names.moeFC1 = func(layer int) string {
		return fmt.Sprintf("%smodel.layers.%d.mlp.experts.fc1.weight", prefix, layer)
	}
	names.moeFC2 = func(layer int) string {
		return fmt.Sprintf("%smodel.layers.%d.mlp.experts.fc2.weight", prefix, layer)
	}
	names.moeSharedUp = func(layer int) string {
		return fmt.Sprintf("%smodel.layers.%d.mlp.shared_experts.up_proj.weight", prefix, layer)
	}
	names.moeSharedGate = func(layer int) string {
		return fmt.Sprintf("%smodel.layers.%d.mlp.shared_experts.gate_proj.weight", prefix, layer)
	}
	names.moeSharedDown = func(layer int) string {
		return fmt.Sprintf("%smodel.layers.%d.mlp.shared_experts.down_proj.weight", prefix, layer)
	}
	return &archSpec{
		Name:   "aria_text",
		HasMoE: true,
		Names:  names,
	}
}
