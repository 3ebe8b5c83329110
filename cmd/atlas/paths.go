package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	envAtlasCacheDir = "ATLAS_CACHE_DIR"
	envAtlasHubURL   = "ATLAS_HUB_URL"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// resolveCacheDir picks the model cache directory: flag, then environment,
// then the platform cache dir.
func resolveCacheDir(flag string) (string, error) {
	if dir := strings.TrimSpace(flag); dir != "" {
		return filepath.Clean(dir), nil
	}
	if dir := strings.TrimSpace(os.Getenv(envAtlasCacheDir)); dir != "" {
		return filepath.Clean(dir), nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("no cache directory: set --cache-dir or %s", envAtlasCacheDir)
	}
	return filepath.Join(base, "atlas"), nil
}

// resolveHubURL picks the hub base URL: flag, then environment, then the
// built-in default (empty string means "use the client default").
func resolveHubURL(flag string) string {
	if u := strings.TrimSpace(flag); u != "" {
		return u
	}
	return strings.TrimSpace(os.Getenv(envAtlasHubURL))
}

// resolveRunModel picks the model to run. With an explicit id it is returned
// as-is; otherwise the cached snapshots are offered, interactively when there
// is more than one.
func resolveRunModel(modelArg string, cached []string, stdin io.Reader, stderr io.Writer) (string, error) {
	if id := strings.TrimSpace(modelArg); id != "" {
		return id, nil
	}
	switch len(cached) {
	case 0:
		return "", errors.New("no cached models; run `atlas pull <owner/name>` first")
	case 1:
		_, _ = fmt.Fprintf(stderr, "run: using model %s\n", cached[0])
		return cached[0], nil
	default:
		if !stdinIsTTY() {
			return "", errors.New("multiple cached models but stdin is not interactive; pass a model id")
		}
		return selectModelInteractively(cached, stdin, stderr)
	}
}

func selectModelInteractively(models []string, stdin io.Reader, stderr io.Writer) (string, error) {
	_, _ = fmt.Fprintln(stderr, "run: select a model")
	for i, m := range models {
		_, _ = fmt.Fprintf(stderr, "%d. %s\n", i+1, m)
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "run: enter selection [1-%d]: ", len(models))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no selection provided on stdin; pass a model id")
			}
			continue
		}

		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(models) {
			_, _ = fmt.Fprintf(stderr, "run: invalid selection %q\n", line)
			if errors.Is(err, io.EOF) {
				return "", errors.New("invalid selection provided on stdin; pass a model id")
			}
			continue
		}
		return models[idx-1], nil
	}
}

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
