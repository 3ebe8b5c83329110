package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atlasml/atlas/internal/config"
	"github.com/atlasml/atlas/internal/generation"
	"github.com/atlasml/atlas/internal/hub"
	"github.com/atlasml/atlas/internal/logger"
	"github.com/atlasml/atlas/internal/safetensors"
)

const tokenizerJSON = `{
	"model": {
		"type": "BPE",
		"vocab": {"a": 0, "b": 1, "c": 2, "Ġ": 3, "ab": 4, "<|endoftext|>": 5},
		"merges": ["a b"]
	},
	"added_tokens": [
		{"id": 6, "content": "<s>", "special": true}
	]
}`

func fill(n int, seed uint64) []float32 {
	out := make([]float32, n)
	x := seed*6364136223846793005 + 1442695040888963407
	for i := range out {
		x = x*6364136223846793005 + 1442695040888963407
		out[i] = (float32(x>>40)/float32(1<<24) - 0.5) * 0.02
	}
	return out
}

// snapshotFiles builds the served files of a runnable one-layer llama whose
// vocab matches the tokenizer fixture.
func snapshotFiles(t *testing.T) map[string][]byte {
	t.Helper()
	cfg := config.NewLlama()
	cfg.VocabSize = 7
	cfg.HiddenSize = 8
	cfg.IntermediateSize = 8
	cfg.NumHiddenLayers = 1
	cfg.NumAttentionHeads = 2
	cfg.NumKeyValueHeads = 2
	cfg.MaxPosition = 16

	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.json")
	if err := config.Save(cfgPath, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	cfgRaw, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}

	hidden := cfg.HiddenSize
	w := safetensors.NewWriter()
	must := func(name string, shape []int, data []float32) {
		if err := w.Add(name, shape, data); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	onesVec := make([]float32, hidden)
	for i := range onesVec {
		onesVec[i] = 1
	}
	must("model.embed_tokens.weight", []int{7, hidden}, fill(7*hidden, 1))
	must("model.norm.weight", []int{hidden}, onesVec)
	must("lm_head.weight", []int{7, hidden}, fill(7*hidden, 2))
	must("model.layers.0.input_layernorm.weight", []int{hidden}, onesVec)
	must("model.layers.0.post_attention_layernorm.weight", []int{hidden}, onesVec)
	must("model.layers.0.self_attn.q_proj.weight", []int{hidden, hidden}, fill(hidden*hidden, 3))
	must("model.layers.0.self_attn.k_proj.weight", []int{hidden, hidden}, fill(hidden*hidden, 4))
	must("model.layers.0.self_attn.v_proj.weight", []int{hidden, hidden}, fill(hidden*hidden, 5))
	must("model.layers.0.self_attn.o_proj.weight", []int{hidden, hidden}, fill(hidden*hidden, 6))
	must("model.layers.0.mlp.up_proj.weight", []int{8, hidden}, fill(8*hidden, 7))
	must("model.layers.0.mlp.gate_proj.weight", []int{8, hidden}, fill(8*hidden, 8))
	must("model.layers.0.mlp.down_proj.weight", []int{hidden, 8}, fill(hidden*8, 9))
	stPath := filepath.Join(tmp, "model.safetensors")
	if err := w.WriteFile(stPath); err != nil {
		t.Fatalf("write checkpoint: %v", err)
	}
	stRaw, err := os.ReadFile(stPath)
	if err != nil {
		t.Fatal(err)
	}

	return map[string][]byte{
		"config.json":            cfgRaw,
		"model.safetensors":      stRaw,
		"tokenizer.json":         []byte(tokenizerJSON),
		"generation_config.json": []byte(`{"max_new_tokens": 2, "do_sample": false, "eos_token_id": 5}`),
	}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	files := snapshotFiles(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(r.URL.Path, "/resolve/", 2)
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		rest := strings.SplitN(parts[1], "/", 2)
		if len(rest) != 2 {
			http.NotFound(w, r)
			return
		}
		body, ok := files[rest[1]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	client, err := hub.NewClient(t.TempDir(), logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	client.BaseURL = srv.URL
	return New(client, 16, logger.Nop())
}

func TestEngineLoadsAndGenerates(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	eng, err := cat.Engine(ctx, "acme/tiny")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	result, err := eng.Generate(ctx, "ab", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.PromptTokens != 1 {
		t.Fatalf("prompt tokens = %d, want 1", result.PromptTokens)
	}
	if len(result.TokenIDs) == 0 || len(result.TokenIDs) > 2 {
		t.Fatalf("completion tokens = %v", result.TokenIDs)
	}
}

func TestEngineReused(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	first, err := cat.Engine(ctx, "acme/tiny")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	second, err := cat.Engine(ctx, "acme/tiny@main")
	if err != nil {
		t.Fatalf("engine again: %v", err)
	}
	if first != second {
		t.Fatal("expected the cached engine instance")
	}
}

func TestListReportsArch(t *testing.T) {
	cat := newTestCatalog(t)
	if _, err := cat.Engine(context.Background(), "acme/tiny"); err != nil {
		t.Fatalf("engine: %v", err)
	}

	infos := cat.List()
	if len(infos) != 1 {
		t.Fatalf("list = %+v", infos)
	}
	info := infos[0]
	if info.ID != "acme/tiny" || info.Arch != "llama" || info.Revision != "main" {
		t.Fatalf("info = %+v", info)
	}
	if info.OwnedBy != "acme" {
		t.Fatalf("owned_by = %q", info.OwnedBy)
	}
}

func TestEngineRejectsBadID(t *testing.T) {
	cat := newTestCatalog(t)
	if _, err := cat.Engine(context.Background(), "noslash"); err == nil {
		t.Fatal("expected repo id error")
	}
}

// overlapEngine records how many Generate calls run at the same time.
type overlapEngine struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (e *overlapEngine) Generate(ctx context.Context, prompt string, onToken func(string)) (*generation.Result, error) {
	n := e.inFlight.Add(1)
	for {
		m := e.maxSeen.Load()
		if n <= m || e.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	e.inFlight.Add(-1)
	e.calls.Add(1)
	return &generation.Result{Text: prompt}, nil
}

func TestEntrySerializesGeneration(t *testing.T) {
	t.Parallel()

	eng := &overlapEngine{}
	entry := &engineEntry{eng: eng}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := entry.Generate(context.Background(), "hi", nil); err != nil {
				t.Errorf("generate: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := eng.calls.Load(); calls != 8 {
		t.Fatalf("calls = %d, want 8", calls)
	}
	if max := eng.maxSeen.Load(); max != 1 {
		t.Fatalf("observed %d generations in flight, want 1", max)
	}
}

func TestEntryChecksContextBeforeRunning(t *testing.T) {
	t.Parallel()

	eng := &overlapEngine{}
	entry := &engineEntry{eng: eng}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := entry.Generate(ctx, "hi", nil); err == nil {
		t.Fatal("expected context error")
	}
	if calls := eng.calls.Load(); calls != 0 {
		t.Fatalf("engine ran %d times on a canceled context", calls)
	}
}

func TestConcurrentGenerateSharedEngine(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	eng, err := cat.Engine(ctx, "acme/tiny")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := eng.Generate(ctx, "ab", nil)
			if err != nil {
				t.Errorf("generate: %v", err)
				return
			}
			if result.PromptTokens != 1 {
				t.Errorf("prompt tokens = %d, want 1", result.PromptTokens)
			}
		}()
	}
	wg.Wait()
}
