// Package catalog ties the hub cache to runnable models. It enumerates the
// snapshots on disk and lazily loads an inference engine per model, keeping
// loaded instances around for reuse.
package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/atlasml/atlas/internal/api"
	"github.com/atlasml/atlas/internal/config"
	"github.com/atlasml/atlas/internal/generation"
	"github.com/atlasml/atlas/internal/hub"
	"github.com/atlasml/atlas/internal/logger"
	"github.com/atlasml/atlas/internal/model"
	"github.com/atlasml/atlas/internal/tokenizer"
)

type Catalog struct {
	hub        *hub.Client
	maxContext int
	log        logger.Logger

	mu      sync.Mutex
	engines map[string]*engineEntry
}

// engineEntry serializes access to one loaded model. A generation run
// mutates the instance's KV cache, position, and scratch buffers, so only
// one request may drive the engine at a time.
type engineEntry struct {
	mu  sync.Mutex
	eng api.Engine
}

func (e *engineEntry) Generate(ctx context.Context, prompt string, onToken func(string)) (*generation.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.eng.Generate(ctx, prompt, onToken)
}

// New builds a catalog over the given hub client. maxContext limits the
// context window of loaded models; zero means the model's own maximum.
func New(client *hub.Client, maxContext int, log logger.Logger) *Catalog {
	if log == nil {
		log = logger.Default()
	}
	return &Catalog{
		hub:        client,
		maxContext: maxContext,
		log:        log,
		engines:    map[string]*engineEntry{},
	}
}

// List reports every cached snapshot. Snapshots whose config cannot be
// decoded are listed without an architecture rather than hidden.
func (c *Catalog) List() []api.ModelInfo {
	cached, err := c.hub.ListCached()
	if err != nil {
		c.log.Warn("listing cache failed", "err", err)
		return nil
	}
	infos := make([]api.ModelInfo, 0, len(cached))
	for _, entry := range cached {
		repo, revision := splitEntry(entry)
		info := api.ModelInfo{
			ID:       repo,
			Object:   "model",
			Created:  time.Now().Unix(),
			OwnedBy:  strings.SplitN(repo, "/", 2)[0],
			Revision: revision,
		}
		if dir, err := c.hub.LocalDir(repo, revision); err == nil {
			if cfg, err := config.Load(filepath.Join(dir, config.ConfigFileName)); err == nil {
				info.Arch = cfg.Type()
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// Engine returns a generator for the given model id, loading it on first
// use. The id is "owner/name" or "owner/name@revision"; a model absent from
// the local cache is fetched from the hub first. The map lock is not held
// while fetching or loading, so one slow download does not block engine
// acquisition for other models.
func (c *Catalog) Engine(ctx context.Context, id string) (api.Engine, error) {
	repo, revision := splitEntry(id)
	if _, _, err := hub.ParseRepo(repo); err != nil {
		return nil, err
	}
	key := repo + "@" + revision

	c.mu.Lock()
	entry, ok := c.engines[key]
	c.mu.Unlock()
	if ok {
		return entry, nil
	}

	dir, err := c.hub.Snapshot(ctx, repo, revision)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	eng, err := c.load(dir)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	newEntry := &engineEntry{eng: eng}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.engines[key]; ok {
		return existing, nil
	}
	c.engines[key] = newEntry
	return newEntry, nil
}

func (c *Catalog) load(dir string) (*generation.Generator, error) {
	inst, err := model.Load(dir, c.maxContext, c.log)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	gen, err := config.LoadGeneration(filepath.Join(dir, config.GenerationFileName))
	if err != nil {
		return nil, err
	}
	return generation.New(inst, tok, gen, c.log), nil
}

func splitEntry(entry string) (repo, revision string) {
	if at := strings.LastIndex(entry, "@"); at >= 0 {
		return entry[:at], entry[at+1:]
	}
	return entry, hub.DefaultRevision
}
