package retrieval

import (
	"log/slog"
	"strings"

	"github.com/keeperbot/keeper/internal/kb"
)

// NoRelevantToken is the filter's literal answer when nothing applies.
const NoRelevantToken = "NO_RELEVANT_CHUNKS"

// MatchFilterIDs resolves the filter agent's id list against the candidate
// chunks. Exact id matches are tried first, then substring containment in
// either direction. Each output line consumes at most one candidate and each
// candidate is selected at most once, in stable candidate order.
func MatchFilterIDs(output string, candidates []kb.Chunk) []kb.Chunk {
	if strings.Contains(output, NoRelevantToken) {
		return nil
	}
	taken := make([]bool, len(candidates))
	var selected []kb.Chunk

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimPrefix(line, "- ")
		line = strings.Trim(line, "`\"")
		if line == "" {
			continue
		}
		idx := matchOne(line, candidates, taken)
		if idx < 0 {
			slog.Debug("Filter line matched no candidate", "line", line)
			continue
		}
		taken[idx] = true
		selected = append(selected, candidates[idx])
	}
	return selected
}

func matchOne(line string, candidates []kb.Chunk, taken []bool) int {
	for i, c := range candidates {
		if !taken[i] && c.ID == line {
			return i
		}
	}
	for i, c := range candidates {
		if taken[i] {
			continue
		}
		if strings.Contains(c.ID, line) || strings.Contains(line, c.ID) {
			return i
		}
	}
	return -1
}
