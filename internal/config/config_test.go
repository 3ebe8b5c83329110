package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeLlama(t *testing.T) {
	raw := []byte(`{
		"model_type": "llama",
		"vocab_size": 128,
		"hidden_size": 64,
		"intermediate_size": 256,
		"num_hidden_layers": 2,
		"num_attention_heads": 4,
		"num_key_value_heads": 2,
		"max_position_embeddings": 512,
		"rms_norm_eps": 1e-5
	}`)
	cfg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	llama, ok := cfg.(*Llama)
	if !ok {
		t.Fatalf("expected *Llama, got %T", cfg)
	}
	if llama.VocabSize != 128 || llama.NumKeyValueHeads != 2 {
		t.Fatalf("unexpected fields: %+v", llama)
	}
	if llama.ResolvedHeadDim() != 16 {
		t.Fatalf("head dim = %d, want 16", llama.ResolvedHeadDim())
	}
	// defaults survive partial configs
	if llama.RopeTheta != 10000 {
		t.Fatalf("rope_theta default lost: %g", llama.RopeTheta)
	}
}

func TestDecodeUnknownModelType(t *testing.T) {
	_, err := Decode([]byte(`{"model_type": "flux_capacitor"}`))
	if err == nil || !strings.Contains(err.Error(), "unknown model_type") {
		t.Fatalf("expected unknown model_type error, got %v", err)
	}
}

func TestDecodeMissingModelType(t *testing.T) {
	_, err := Decode([]byte(`{"hidden_size": 64}`))
	if err == nil || !strings.Contains(err.Error(), "model_type") {
		t.Fatalf("expected missing model_type error, got %v", err)
	}
}

func TestValidateRejectsIndivisibleHeads(t *testing.T) {
	c := NewLlama()
	c.HiddenSize = 100
	c.NumAttentionHeads = 3
	if err := c.Validate(); err == nil {
		t.Fatal("expected divisibility error")
	}
}

func TestValidateRejectsBadKVHeads(t *testing.T) {
	c := NewLlama()
	c.NumAttentionHeads = 8
	c.NumKeyValueHeads = 3
	if err := c.Validate(); err == nil {
		t.Fatal("expected kv head divisibility error")
	}
}

func TestAriaTextTopKBounds(t *testing.T) {
	c := NewAriaText()
	c.MoETopK = c.MoENumExperts + 1
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "moe_topk") {
		t.Fatalf("expected moe_topk error, got %v", err)
	}
}

func TestAriaCompositeDefaults(t *testing.T) {
	raw := []byte(`{"model_type": "aria"}`)
	cfg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	aria := cfg.(*Aria)
	if aria.TextConfig == nil || aria.VisionConfig == nil {
		t.Fatal("sub-configs should default, not stay nil")
	}
	if aria.TextConfig.MoENumExperts != 8 || aria.TextConfig.MoETopK != 2 {
		t.Fatalf("moe defaults: %+v", aria.TextConfig)
	}
	p2q := aria.PatchToQuery()
	if p2q[1225] != 128 || p2q[4900] != 256 {
		t.Fatalf("projector defaults: %v", p2q)
	}
}

func TestAriaCompositeNestedOverride(t *testing.T) {
	raw := []byte(`{
		"model_type": "aria",
		"image_token_index": 9,
		"text_config": {
			"model_type": "aria_text",
			"vocab_size": 64,
			"hidden_size": 32,
			"num_attention_heads": 4,
			"num_key_value_heads": 4,
			"moe_num_experts": 4,
			"moe_topk": 2,
			"moe_intermediate_size": 16
		}
	}`)
	cfg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	aria := cfg.(*Aria)
	if aria.TextConfig.VocabSize != 64 || aria.TextConfig.MoENumExperts != 4 {
		t.Fatalf("nested override lost: %+v", aria.TextConfig)
	}
	if aria.ImageTokenIndex != 9 {
		t.Fatalf("image_token_index = %d", aria.ImageTokenIndex)
	}
}

func TestAriaRejectsBadProjectorKeys(t *testing.T) {
	c := NewAria()
	c.ProjectorPatchToQuery = map[string]int{"not-a-number": 4}
	if err := c.Validate(); err == nil {
		t.Fatal("expected projector key error")
	}
}

func TestAriaRejectsImageTokenOutOfVocab(t *testing.T) {
	c := NewAria()
	c.TextConfig.VocabSize = 10
	c.ImageTokenIndex = 10
	if err := c.Validate(); err == nil {
		t.Fatal("expected image_token_index range error")
	}
}

func TestWav2Vec2ConvListMismatch(t *testing.T) {
	c := NewWav2Vec2()
	c.ConvStride = c.ConvStride[:len(c.ConvStride)-1]
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "equal length") {
		t.Fatalf("expected conv list mismatch error, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	orig := NewAriaText()
	orig.VocabSize = 256
	orig.MoENumExperts = 4
	if err := Save(path, orig); err != nil {
		t.Fatalf("save: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded := cfg.(*AriaText)
	if loaded.VocabSize != 256 || loaded.MoENumExperts != 4 {
		t.Fatalf("round trip lost fields: %+v", loaded)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	c := NewLlama()
	c.VocabSize = 0
	if err := Save(filepath.Join(t.TempDir(), "config.json"), c); err == nil {
		t.Fatal("expected validation error on save")
	}
}
