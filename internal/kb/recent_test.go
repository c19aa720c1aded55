package kb

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRecentWindowAndOrder(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("2026-03-09.md", "## Notes\nyesterday\n")
	write("2026-03-05.md", "older entry without headings\n")
	write("2026-02-01.md", "## Old\nfar outside the window\n")
	write("_template.md", "## Ignored\nskip\n")
	write("notadate.md", "## Ignored\nskip\n")

	chunks := LoadRecent(dir, 7, now)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Section != "Notes" {
		t.Errorf("expected newest entry first, got section %q", chunks[0].Section)
	}
	if chunks[1].Section != "2026-03-05" {
		t.Errorf("heading-less entry should use date stem as section, got %q", chunks[1].Section)
	}
	if chunks[1].File != filepath.Join(filepath.Base(dir), "2026-03-05.md") {
		t.Errorf("unexpected file %q", chunks[1].File)
	}
}

func TestLoadRecentMissingDir(t *testing.T) {
	if got := LoadRecent(filepath.Join(t.TempDir(), "nope"), 7, time.Now()); len(got) != 0 {
		t.Fatalf("missing dir should yield zero chunks, got %d", len(got))
	}
}
