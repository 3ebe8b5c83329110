// Package hub fetches model configs and weights from a remote model registry
// into a local cache directory. The wire protocol is plain HTTP file fetch:
// {base}/{repo}/resolve/{revision}/{filename}. Fetch failures are terminal;
// there is no retry policy.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/atlasml/atlas/internal/logger"
)

// DefaultBaseURL points at the public hub. Override for mirrors and tests.
const DefaultBaseURL = "https://hub.atlasml.dev"

// DefaultRevision is used when the caller does not pin a revision.
const DefaultRevision = "main"

// RepoNotFoundError wraps a failed fetch with a hint about the likely cause.
type RepoNotFoundError struct {
	Repo string
	Err  error
}

func (e *RepoNotFoundError) Error() string {
	return fmt.Sprintf(
		"fetch %s: %v (make sure the model identifier is spelled correctly and that you have network access to the hub)",
		e.Repo, e.Err)
}

func (e *RepoNotFoundError) Unwrap() error { return e.Err }

// ErrFileNotFound marks a 404 for an individual file within a repo that does
// exist. Optional files (tokenizer, generation config) tolerate it.
var ErrFileNotFound = errors.New("file not found")

type Client struct {
	BaseURL  string
	CacheDir string
	HTTP     *http.Client
	Log      logger.Logger
}

// NewClient builds a hub client with the given cache directory. Empty
// cacheDir resolves to the user cache.
func NewClient(cacheDir string, log logger.Logger) (*Client, error) {
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		cacheDir = filepath.Join(base, "atlas")
	}
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		BaseURL:  DefaultBaseURL,
		CacheDir: cacheDir,
		HTTP:     &http.Client{Timeout: 10 * time.Minute},
		Log:      log,
	}, nil
}

// ParseRepo validates an "owner/name" model identifier.
func ParseRepo(repo string) (owner, name string, err error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model identifier %q: want owner/name", repo)
	}
	for _, p := range parts {
		if strings.ContainsAny(p, `\:`) || strings.Contains(p, "..") {
			return "", "", fmt.Errorf("invalid model identifier %q", repo)
		}
	}
	return parts[0], parts[1], nil
}

// LocalDir returns the cache directory for a repo at a revision.
func (c *Client) LocalDir(repo, revision string) (string, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return "", err
	}
	if revision == "" {
		revision = DefaultRevision
	}
	return filepath.Join(c.CacheDir, "models", owner, name, revision), nil
}

func (c *Client) fileURL(repo, revision, filename string) string {
	base := strings.TrimSuffix(c.BaseURL, "/")
	return fmt.Sprintf("%s/%s/resolve/%s/%s", base, repo, revision, filename)
}

// Download fetches one file into the cache and returns its local path. A file
// already present in the cache is returned without a network round trip.
func (c *Client) Download(ctx context.Context, repo, revision, filename string) (string, error) {
	dir, err := c.LocalDir(repo, revision)
	if err != nil {
		return "", err
	}
	if revision == "" {
		revision = DefaultRevision
	}
	local := filepath.Join(dir, filename)
	if _, err := os.Stat(local); err == nil {
		c.Log.Debug("cache hit", "repo", repo, "file", filename)
		return local, nil
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", err
	}

	url := c.fileURL(repo, revision, filename)
	c.Log.Info("downloading", "repo", repo, "revision", revision, "file", filename)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &RepoNotFoundError{Repo: repo, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%s: %w", filename, ErrFileNotFound)
	case resp.StatusCode != http.StatusOK:
		return "", &RepoNotFoundError{
			Repo: repo,
			Err:  fmt.Errorf("unexpected status %s for %s", resp.Status, filename),
		}
	}

	// Write through a temp file so a partial download never poisons the cache.
	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("download %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, local); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	return local, nil
}

// weightIndex mirrors the sharded checkpoint index schema.
type weightIndex struct {
	WeightMap map[string]string `json:"weight_map"`
}

// Snapshot downloads everything needed to run a model: config, weights
// (single file or all shards named by the index), and the optional tokenizer
// and generation files. It returns the local snapshot directory.
func (c *Client) Snapshot(ctx context.Context, repo, revision string) (string, error) {
	if _, err := c.Download(ctx, repo, revision, "config.json"); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return "", &RepoNotFoundError{Repo: repo, Err: err}
		}
		return "", err
	}

	if _, err := c.Download(ctx, repo, revision, "model.safetensors"); err != nil {
		if !errors.Is(err, ErrFileNotFound) {
			return "", err
		}
		// Sharded checkpoint: fetch the index, then every shard it names.
		indexPath, err := c.Download(ctx, repo, revision, "model.safetensors.index.json")
		if err != nil {
			return "", fmt.Errorf("repo has neither model.safetensors nor an index: %w", err)
		}
		raw, err := os.ReadFile(indexPath)
		if err != nil {
			return "", err
		}
		var idx weightIndex
		if err := json.Unmarshal(raw, &idx); err != nil {
			return "", fmt.Errorf("parse weight index: %w", err)
		}
		shards := make(map[string]struct{}, len(idx.WeightMap))
		for _, shard := range idx.WeightMap {
			shards[shard] = struct{}{}
		}
		for shard := range shards {
			if _, err := c.Download(ctx, repo, revision, shard); err != nil {
				return "", err
			}
		}
	}

	for _, optional := range []string{
		"generation_config.json",
		"tokenizer.json",
		"tokenizer_config.json",
	} {
		if _, err := c.Download(ctx, repo, revision, optional); err != nil {
			if errors.Is(err, ErrFileNotFound) {
				c.Log.Debug("optional file absent", "repo", repo, "file", optional)
				continue
			}
			return "", err
		}
	}

	return c.LocalDir(repo, revision)
}

// ListCached walks the cache and returns the repo@revision snapshots present.
func (c *Client) ListCached() ([]string, error) {
	root := filepath.Join(c.CacheDir, "models")
	entries := []string{}
	owners, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		names, err := os.ReadDir(filepath.Join(root, owner.Name()))
		if err != nil {
			continue
		}
		for _, name := range names {
			if !name.IsDir() {
				continue
			}
			revs, err := os.ReadDir(filepath.Join(root, owner.Name(), name.Name()))
			if err != nil {
				continue
			}
			for _, rev := range revs {
				if !rev.IsDir() {
					continue
				}
				entries = append(entries, fmt.Sprintf("%s/%s@%s", owner.Name(), name.Name(), rev.Name()))
			}
		}
	}
	return entries, nil
}
