package main

import (
	"bytes"
	"strings"
	"testing"
)

func withTTY(t *testing.T, tty bool) {
	t.Helper()
	orig := stdinIsTTY
	stdinIsTTY = func() bool { return tty }
	t.Cleanup(func() { stdinIsTTY = orig })
}

func TestResolveRunModelExplicit(t *testing.T) {
	got, err := resolveRunModel(" acme/tiny ", nil, strings.NewReader(""), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme/tiny" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveRunModelNoneCached(t *testing.T) {
	_, err := resolveRunModel("", nil, strings.NewReader(""), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "atlas pull") {
		t.Fatalf("expected pull hint, got %v", err)
	}
}

func TestResolveRunModelSingleCached(t *testing.T) {
	var stderr bytes.Buffer
	got, err := resolveRunModel("", []string{"acme/tiny@main"}, strings.NewReader(""), &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme/tiny@main" {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(stderr.String(), "acme/tiny@main") {
		t.Fatalf("stderr should name the model: %q", stderr.String())
	}
}

func TestResolveRunModelMultipleNonInteractive(t *testing.T) {
	withTTY(t, false)
	cached := []string{"acme/a@main", "acme/b@main"}
	_, err := resolveRunModel("", cached, strings.NewReader(""), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "not interactive") {
		t.Fatalf("expected non-interactive error, got %v", err)
	}
}

func TestResolveRunModelInteractiveSelection(t *testing.T) {
	withTTY(t, true)
	cached := []string{"acme/a@main", "acme/b@main"}
	got, err := resolveRunModel("", cached, strings.NewReader("2\n"), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme/b@main" {
		t.Fatalf("got %q", got)
	}
}

func TestSelectModelRetriesOnInvalidInput(t *testing.T) {
	var stderr bytes.Buffer
	got, err := selectModelInteractively(
		[]string{"acme/a@main", "acme/b@main"},
		strings.NewReader("zero\n9\n1\n"), &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme/a@main" {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(stderr.String(), "invalid selection") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestSelectModelEOFWithoutSelection(t *testing.T) {
	_, err := selectModelInteractively(
		[]string{"acme/a@main"},
		strings.NewReader(""), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error on EOF")
	}
}

func TestResolveCacheDirPrecedence(t *testing.T) {
	t.Setenv(envAtlasCacheDir, "/env/cache")

	got, err := resolveCacheDir("/flag/cache")
	if err != nil || got != "/flag/cache" {
		t.Fatalf("flag should win: %q, %v", got, err)
	}
	got, err = resolveCacheDir("")
	if err != nil || got != "/env/cache" {
		t.Fatalf("env should win: %q, %v", got, err)
	}
}

func TestSplitCachedEntry(t *testing.T) {
	repo, rev := splitCachedEntry("acme/tiny@main")
	if repo != "acme/tiny" || rev != "main" {
		t.Fatalf("got %q %q", repo, rev)
	}
	repo, rev = splitCachedEntry("acme/tiny")
	if repo != "acme/tiny" || rev != "main" {
		t.Fatalf("default revision: got %q %q", repo, rev)
	}
}
