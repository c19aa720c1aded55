// Package retrieval implements the two-stage knowledge-base lookup that runs
// before the main agent sees a message: a planner decides what to search for,
// searches fan out against the KB index, and a relevance filter picks the
// chunks worth injecting.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keeperbot/keeper/internal/kb"
)

// SubAgent is one agent role the pipeline consults.
type SubAgent interface {
	Call(ctx context.Context, prompt, resume string) (text, sessionID string, err error)
}

// Request is one retrieval invocation.
type Request struct {
	Text       string
	PlannerRef string
	FilterRef  string

	// Progress receives short status lines as stages complete. May be nil.
	Progress func(line string)
}

// Result carries the assembled context and the session handles to persist.
type Result struct {
	Context     string
	PlannerRef  string
	FilterRef   string
	SelectedIDs []string
}

// Pipeline wires the retrieval stages together.
type Pipeline struct {
	Planner  SubAgent
	Filter   SubAgent
	Searcher Searcher
	Selected *SelectedStore

	KBRoot        string
	RecentDir     string
	RecentDays    int
	PreviewBudget int
	Now           func() time.Time
}

// Retrieve runs the full pipeline. Cancellation is checked between stages; a
// cancelled context always aborts with ctx.Err(), never a partial result.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) (*Result, error) {
	res := &Result{PlannerRef: req.PlannerRef, FilterRef: req.FilterRef}

	// Stage 1: plan.
	planText, plannerSID, err := p.Planner.Call(ctx, plannerPrompt(req.Text), req.PlannerRef)
	if err != nil {
		return nil, fmt.Errorf("retrieval plan: %w", err)
	}
	if plannerSID != "" {
		res.PlannerRef = plannerSID
	}
	queries, noContext := ParsePlannerOutput(planText)
	if noContext || len(queries) == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.report(req, fmt.Sprintf("🔎 %d search(es) planned", len(queries)))

	// Stage 2: gather.
	chunks := p.gather(ctx, req, queries)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stages 3–4: dedupe, then re-read from disk so stale index content
	// never reaches the filter.
	chunks = kb.ResolveFromDisk(p.KBRoot, kb.Dedupe(chunks))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 5: drop chunks this filter session already saw.
	chunks = p.Selected.FilterNew(req.FilterRef, chunks)
	if len(chunks) == 0 {
		p.report(req, "📚 no new material found")
		return res, nil
	}
	p.report(req, fmt.Sprintf("📚 %d chunk(s) to assess", len(chunks)))

	// Stage 6: relevance filter.
	keywords := collectTerms(queries)
	filterText, filterSID, err := p.Filter.Call(ctx, p.filterPrompt(req.Text, chunks, keywords), req.FilterRef)
	if err != nil {
		return nil, fmt.Errorf("retrieval filter: %w", err)
	}
	if filterSID != "" {
		// Session ids rotate on every resumed call; carry the seen-set over
		// so cross-turn suppression survives the rotation.
		p.Selected.Migrate(req.FilterRef, filterSID)
		res.FilterRef = filterSID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	selected := MatchFilterIDs(filterText, chunks)
	if len(selected) == 0 {
		return res, nil
	}

	// Stage 7: remember the selection and assemble the context.
	for _, c := range selected {
		res.SelectedIDs = append(res.SelectedIDs, c.ID)
	}
	p.Selected.Add(res.FilterRef, res.SelectedIDs)
	res.Context = AssembleContext(selected)
	p.report(req, fmt.Sprintf("📎 %d chunk(s) attached", len(selected)))
	return res, nil
}

// gather runs the planned searches concurrently and, on a session's first
// turn, folds in the recent-activity window. A failing search degrades to
// zero chunks for that query; only cancellation aborts the whole stage.
func (p *Pipeline) gather(ctx context.Context, req Request, queries []Query) []kb.Chunk {
	var chunks []kb.Chunk
	if req.FilterRef == "" && p.RecentDir != "" {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		days := p.RecentDays
		if days <= 0 {
			days = 7
		}
		chunks = append(chunks, kb.LoadRecent(p.RecentDir, days, now())...)
	}

	results := make([][]kb.Chunk, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			out, err := p.Searcher.Search(gctx, q.Terms...)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("KB search failed", "terms", q.Terms, "error", err)
				return nil
			}
			results[i] = kb.ParseSearchOutput(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return chunks
	}
	for _, r := range results {
		chunks = append(chunks, r...)
	}
	return chunks
}

func (p *Pipeline) report(req Request, line string) {
	if req.Progress != nil {
		req.Progress(line)
	}
}

func collectTerms(queries []Query) []string {
	var terms []string
	for _, q := range queries {
		terms = append(terms, q.Terms...)
	}
	return terms
}

// AssembleContext renders selected chunks as labelled blocks for injection
// into the main agent's prompt.
func AssembleContext(chunks []kb.Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s ## %s]\n%s", c.File, c.Section, c.Content)
	}
	return b.String()
}

func plannerPrompt(text string) string {
	return `A user sent the message below. Decide what to look up in the knowledge base before answering.

Reply with one search per line, each search listing its terms in double quotes, for example:
"project alpha" "deadline"
"standup notes"

If no lookup would help, reply with exactly ` + NoContextToken + `.

User message:
` + text
}

func (p *Pipeline) filterPrompt(text string, chunks []kb.Chunk, keywords []string) string {
	budget := p.PreviewBudget
	if budget <= 0 {
		budget = defaultPreviewBudget
	}
	var b strings.Builder
	b.WriteString("Candidate knowledge-base chunks:\n\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, "%s\n%s\n\n", c.ID, BuildPreview(c.Content, keywords, budget))
	}
	b.WriteString(`Which chunks are relevant to the user message below? Reply with one chunk id per line, exactly as listed. If none apply, reply with exactly ` + NoRelevantToken + `.

User message:
`)
	b.WriteString(text)
	return b.String()
}
