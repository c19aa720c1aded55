package kb

import (
	"log/slog"
	"os"
	"path/filepath"
)

// ResolveFromDisk re-validates chunks against current file content. Chunks are
// grouped by file, each file is read once and re-split by heading, and every
// chunk's content is replaced with the live on-disk version. Chunks whose
// section no longer exists are dropped: a stale search index must never win
// over an edited or deleted file. A missing file simply contributes zero
// chunks.
func ResolveFromDisk(root string, chunks []Chunk) []Chunk {
	byFile := make(map[string][]int)
	order := make([]string, 0)
	for i, c := range chunks {
		if _, ok := byFile[c.File]; !ok {
			order = append(order, c.File)
		}
		byFile[c.File] = append(byFile[c.File], i)
	}

	resolved := make([]Chunk, 0, len(chunks))
	for _, file := range order {
		data, err := os.ReadFile(filepath.Join(root, file))
		if err != nil {
			slog.Warn("KB file unreadable, dropping its chunks", "file", file, "error", err)
			continue
		}
		split := SplitDocument(file, string(data))
		live := make(map[string]Chunk)
		for _, c := range split {
			live[c.Section] = c
		}
		// A heading-less document resolves any requested section to its whole
		// body, keeping the caller's section label (dated journal files use
		// the date stem as their section).
		var introOnly *Chunk
		if len(split) == 1 && split[0].Section == IntroSection {
			introOnly = &split[0]
		}
		for _, idx := range byFile[file] {
			c, ok := live[chunks[idx].Section]
			if !ok {
				if introOnly != nil {
					resolved = append(resolved, Chunk{
						ID:      chunks[idx].ID,
						File:    file,
						Section: chunks[idx].Section,
						Content: introOnly.Content,
					})
					continue
				}
				slog.Debug("KB section vanished since indexing", "file", file, "section", chunks[idx].Section)
				continue
			}
			resolved = append(resolved, c)
		}
	}
	return resolved
}
