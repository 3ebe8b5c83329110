// Package config holds the typed model configurations for every architecture
// family atlas knows how to run. Each family registers a constructor that
// produces a config pre-populated with the family defaults; decoding a JSON
// config overlays the stored fields and then validates, so a malformed config
// fails at construction time rather than at forward time.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// Config is implemented by every model family configuration.
type Config interface {
	// Type returns the model_type discriminator, e.g. "llama".
	Type() string
	// Validate checks internal consistency. It is called after decode and
	// must fail fast on any mismatch.
	Validate() error
}

// ConfigFileName is the hub-standard config discovery name.
const ConfigFileName = "config.json"

var registry = map[string]func() Config{}

// Register adds a config constructor for a model_type. Duplicate
// registrations panic; families register from init so a duplicate is a
// programmer error.
func Register(modelType string, fn func() Config) {
	if _, ok := registry[modelType]; ok {
		panic(fmt.Sprintf("config: duplicate registration for model_type %q", modelType))
	}
	registry[modelType] = fn
}

// Types returns the registered model_type names, sorted.
func Types() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New returns a default-populated config for the given model_type.
func New(modelType string) (Config, error) {
	fn, ok := registry[modelType]
	if !ok {
		return nil, fmt.Errorf("unknown model_type %q (known: %v)", modelType, Types())
	}
	return fn(), nil
}

// Decode parses a config.json payload into the typed config named by its
// model_type field and validates it.
func Decode(raw []byte) (Config, error) {
	var probe struct {
		ModelType string `json:"model_type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if probe.ModelType == "" {
		return nil, fmt.Errorf("config missing model_type field")
	}
	cfg, err := New(probe.ModelType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse %s config: %w", probe.ModelType, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s config: %w", probe.ModelType, err)
	}
	return cfg, nil
}

// Load reads and decodes a config.json from disk.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
