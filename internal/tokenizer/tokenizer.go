// Package tokenizer implements byte-level BPE encoding and decoding from the
// hub tokenizer.json schema. Only the BPE model type is supported.
package tokenizer

import (
	"os"
	"path/filepath"
)

// Tokenizer is the minimal surface the generation loop and processors need.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// FileName and ConfigFileName are the hub discovery names.
const (
	FileName       = "tokenizer.json"
	ConfigFileName = "tokenizer_config.json"
)

// Load reads tokenizer.json (and tokenizer_config.json when present) from a
// model snapshot directory.
func Load(dir string) (*BPE, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	var cfg []byte
	if raw, err := os.ReadFile(filepath.Join(dir, ConfigFileName)); err == nil {
		cfg = raw
	}
	return ParseBPE(data, cfg)
}
