package kb

import (
	"os"
	"path/filepath"
	"testing"
)

func writeKBFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveFromDiskPrefersDiskContent(t *testing.T) {
	root := t.TempDir()
	writeKBFile(t, root, "people/tom.md", "## Career\nLive content.\n")

	stale := []Chunk{NewChunk("people/tom.md", "Career", "stale index content")}
	out := ResolveFromDisk(root, stale)

	if len(out) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(out))
	}
	if out[0].Content != "Live content." {
		t.Errorf("disk content must win, got %q", out[0].Content)
	}
}

func TestResolveFromDiskDropsVanishedSection(t *testing.T) {
	root := t.TempDir()
	writeKBFile(t, root, "people/tom.md", "## Career\nStill here.\n")

	chunks := []Chunk{
		NewChunk("people/tom.md", "Career", "x"),
		NewChunk("people/tom.md", "Deleted Section", "y"),
	}
	out := ResolveFromDisk(root, chunks)

	if len(out) != 1 {
		t.Fatalf("expected 1 chunk after dropping vanished section, got %d", len(out))
	}
	if out[0].Section != "Career" {
		t.Errorf("expected Career to survive, got %q", out[0].Section)
	}
}

func TestResolveFromDiskHeadinglessFileKeepsSectionLabel(t *testing.T) {
	root := t.TempDir()
	writeKBFile(t, root, "recent/2026-08-30.md", "met Anna about the offsite\n")

	in := []Chunk{NewChunk("recent/2026-08-30.md", "2026-08-30", "stale")}
	out := ResolveFromDisk(root, in)

	if len(out) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(out))
	}
	if out[0].Section != "2026-08-30" {
		t.Errorf("section label lost: %q", out[0].Section)
	}
	if out[0].Content != "met Anna about the offsite" {
		t.Errorf("content = %q", out[0].Content)
	}
}

func TestResolveFromDiskMissingFile(t *testing.T) {
	root := t.TempDir()
	out := ResolveFromDisk(root, []Chunk{NewChunk("gone.md", "Anything", "x")})
	if len(out) != 0 {
		t.Fatalf("missing file should yield zero chunks, got %d", len(out))
	}
}

func TestResolveFromDiskIdempotent(t *testing.T) {
	root := t.TempDir()
	writeKBFile(t, root, "a.md", "## One\nfirst\n\n## Two\nsecond\n")

	in := []Chunk{NewChunk("a.md", "One", ""), NewChunk("a.md", "Two", "")}
	first := ResolveFromDisk(root, in)
	second := ResolveFromDisk(root, in)

	if len(first) != len(second) {
		t.Fatalf("resolve not idempotent: %d vs %d chunks", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between resolves: %+v vs %+v", i, first[i], second[i])
		}
	}
}
