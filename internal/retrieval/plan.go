package retrieval

import (
	"log/slog"
	"regexp"
	"strings"
)

// NoContextToken is the planner's literal answer when no lookup is needed.
const NoContextToken = "NO_CONTEXT_NEEDED"

var quotedTermRe = regexp.MustCompile(`"([^"]+)"`)

// Query is one planned search: all quoted terms from a single planner line.
type Query struct {
	Terms []string
}

// ParsePlannerOutput extracts search queries from the planner's reply.
//
// A line counts as a query only if it contains at least one quoted term; the
// quoted terms of one line form one query. Lines without quotes are logged
// and skipped rather than guessed at. Returns noContext=true when the reply
// contains the no-context token.
func ParsePlannerOutput(text string) (queries []Query, noContext bool) {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.Contains(line, NoContextToken) {
			return nil, true
		}
		matches := quotedTermRe.FindAllStringSubmatch(line, -1)
		if len(matches) == 0 {
			slog.Debug("Planner line did not match query shape", "line", line)
			continue
		}
		var terms []string
		for _, m := range matches {
			if t := strings.TrimSpace(m[1]); t != "" {
				terms = append(terms, t)
			}
		}
		if len(terms) > 0 {
			queries = append(queries, Query{Terms: terms})
		}
	}
	return queries, false
}
