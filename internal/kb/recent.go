package kb

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const recentDateLayout = "2006-01-02"

// LoadRecent loads dated entries from dir (files named YYYY-MM-DD.md) that
// fall within the last `days` days, newest first, split into chunks like any
// other knowledge document. A heading-less entry yields a single chunk whose
// section is the date stem. A missing directory yields zero chunks.
func LoadRecent(dir string, days int, now time.Time) []Chunk {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	cutoff := now.AddDate(0, 0, -days)
	type dated struct {
		date time.Time
		name string
	}
	var files []dated
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".md") {
			continue
		}
		stem := strings.TrimSuffix(name, ".md")
		d, err := time.Parse(recentDateLayout, stem)
		if err != nil {
			continue
		}
		if d.Before(cutoff) {
			continue
		}
		files = append(files, dated{date: d, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].date.After(files[j].date) })

	var chunks []Chunk
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			continue
		}
		rel := filepath.Join(filepath.Base(dir), f.name)
		split := SplitDocument(rel, string(data))
		if len(split) == 1 && split[0].Section == IntroSection {
			stem := strings.TrimSuffix(f.name, ".md")
			split[0] = NewChunk(rel, stem, split[0].Content)
		}
		chunks = append(chunks, split...)
	}
	return chunks
}
