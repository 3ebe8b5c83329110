package tokenizer

import (
	"os"
	"path/filepath"
	"testing"
)

const fixtureJSON = `{
	"model": {
		"type": "BPE",
		"vocab": {"a": 0, "b": 1, "c": 2, "Ġ": 3, "ab": 4, "<|endoftext|>": 5},
		"merges": ["a b"]
	},
	"added_tokens": [
		{"id": 6, "content": "<s>", "special": true}
	]
}`

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	tok, err := ParseBPE([]byte(fixtureJSON), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ids, err := tok.Encode("ab cab")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []int{4, 3, 2, 4}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	text, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if text != "ab cab" {
		t.Fatalf("round trip = %q", text)
	}
}

func TestEncodeSpecialToken(t *testing.T) {
	t.Parallel()

	tok, err := ParseBPE([]byte(fixtureJSON), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ids, err := tok.Encode("ab<|endoftext|>")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(ids) != 2 || ids[0] != 4 || ids[1] != 5 {
		t.Fatalf("ids = %v", ids)
	}
	text, err := tok.Decode(ids)
	if err != nil || text != "ab<|endoftext|>" {
		t.Fatalf("decode = %q, %v", text, err)
	}
}

func TestBOSFromConfig(t *testing.T) {
	t.Parallel()

	cfg := []byte(`{"add_bos_token": true, "bos_token": "<s>"}`)
	tok, err := ParseBPE([]byte(fixtureJSON), cfg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tok.BOSID() != 6 {
		t.Fatalf("bos id = %d, want 6", tok.BOSID())
	}
	ids, err := tok.Encode("ab")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(ids) != 2 || ids[0] != 6 {
		t.Fatalf("bos not prepended: %v", ids)
	}
}

func TestRejectsNonBPEModel(t *testing.T) {
	t.Parallel()

	_, err := ParseBPE([]byte(`{"model":{"type":"WordPiece","vocab":{},"merges":[]}}`), nil)
	if err == nil {
		t.Fatal("expected unsupported model error")
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	t.Parallel()

	tok, err := ParseBPE([]byte(fixtureJSON), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := tok.Decode([]int{999}); err == nil {
		t.Fatal("expected range error")
	}
}

func TestLoadFromDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(fixtureJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	tok, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tok.VocabSize() != 7 {
		t.Fatalf("vocab size = %d, want 7", tok.VocabSize())
	}
}
