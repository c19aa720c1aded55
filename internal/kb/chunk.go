// Package kb provides addressable access to markdown knowledge documents.
package kb

import (
	"strings"
)

// IntroSection is the synthetic section name for content that appears before
// the first second-level heading of a document.
const IntroSection = "(intro)"

// Chunk is an addressable section of a knowledge document. The ID is stable
// and re-derivable from disk, so chunks from a search index and chunks from a
// live file read are interchangeable when their IDs match.
type Chunk struct {
	ID      string
	File    string
	Section string
	Content string
}

// ChunkID builds the canonical chunk id for a file/section pair.
func ChunkID(file, section string) string {
	return file + "#" + section
}

// NewChunk creates a chunk with its canonical id.
func NewChunk(file, section, content string) Chunk {
	return Chunk{
		ID:      ChunkID(file, section),
		File:    file,
		Section: section,
		Content: content,
	}
}

// SplitDocument splits markdown content into one chunk per second-level
// heading. Content before the first heading becomes an "(intro)" section when
// non-empty. Empty sections are dropped.
func SplitDocument(file, content string) []Chunk {
	var chunks []Chunk
	section := IntroSection
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" {
			chunks = append(chunks, NewChunk(file, section, text))
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if heading, ok := parseHeading(line); ok {
			flush()
			section = heading
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return chunks
}

// parseHeading returns the section name for a second-level heading line.
// Deeper headings (###) stay inside their parent section.
func parseHeading(line string) (string, bool) {
	if !strings.HasPrefix(line, "## ") {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimPrefix(line, "## "))
	if name == "" {
		return "", false
	}
	return name, true
}

// Dedupe keeps the first occurrence of each chunk id, preserving order.
func Dedupe(chunks []Chunk) []Chunk {
	seen := make(map[string]bool, len(chunks))
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
