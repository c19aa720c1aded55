package kb

import (
	"regexp"
	"strings"
)

// Search tool output is line-oriented: a chunk header of the form
//
//	[1] people/tom.md §Career [L10-L24] (keyword: tom×3, semantic: 0.71)
//
// followed by "> "-prefixed content lines. Anything that does not match this
// structure is ignored; output with no chunk headers yields zero chunks.
var searchHeaderRe = regexp.MustCompile(`^\[\d+\]\s+(\S+)\s+§(.+?)\s+\[[^\]]*\]`)

// ParseSearchOutput extracts chunks from search tool output.
func ParseSearchOutput(output string) []Chunk {
	var chunks []Chunk
	var file, section string
	var body []string

	flush := func() {
		if file == "" {
			return
		}
		content := strings.TrimSpace(strings.Join(body, "\n"))
		chunks = append(chunks, NewChunk(file, section, content))
		file, section = "", ""
		body = nil
	}

	for _, line := range strings.Split(output, "\n") {
		if m := searchHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			file, section = m[1], strings.TrimSpace(m[2])
			continue
		}
		if file != "" && strings.HasPrefix(line, "> ") {
			body = append(body, strings.TrimPrefix(line, "> "))
			continue
		}
		if file != "" && strings.TrimSpace(line) == "" {
			continue
		}
		// Any other line ends the current chunk (summary tables, footers).
		flush()
	}
	flush()

	return chunks
}
