package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type subCall struct {
	prompt string
	resume string
}

type fakeSub struct {
	reply   string
	sid     string
	sidSeq  []string // overrides sid per call when non-empty
	replies []string // overrides reply per call when non-empty
	err     error
	calls   []subCall
}

func (f *fakeSub) Call(ctx context.Context, prompt, resume string) (string, string, error) {
	f.calls = append(f.calls, subCall{prompt, resume})
	sid := f.sid
	if len(f.sidSeq) > 0 {
		sid = f.sidSeq[0]
		f.sidSeq = f.sidSeq[1:]
	}
	reply := f.reply
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	return reply, sid, f.err
}

type fakeSearcher struct {
	mu     sync.Mutex
	output string
	err    error
	calls  [][]string
}

func (f *fakeSearcher) Search(ctx context.Context, terms ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, terms)
	return f.output, f.err
}

func writeKB(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	notes := `# Notes

## Plans
The deadline is friday.

## Other
Nothing here.
`
	if err := os.WriteFile(filepath.Join(root, "notes.md"), []byte(notes), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

const searchHit = `[1] notes.md §Plans [L3-L4]
> stale indexed text
`

func newPipeline(root string, planner, filter *fakeSub, searcher Searcher) *Pipeline {
	return &Pipeline{
		Planner:  planner,
		Filter:   filter,
		Searcher: searcher,
		Selected: NewSelectedStore(),
		KBRoot:   root,
	}
}

func TestRetrieveEndToEnd(t *testing.T) {
	root := writeKB(t)
	planner := &fakeSub{reply: `"deadline" "friday"`, sid: "plan-1"}
	filter := &fakeSub{reply: "notes.md#Plans", sid: "filt-1"}
	searcher := &fakeSearcher{output: searchHit}
	p := newPipeline(root, planner, filter, searcher)

	res, err := p.Retrieve(context.Background(), Request{Text: "when is the deadline?", FilterRef: "filt-0"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(searcher.calls) != 1 {
		t.Fatalf("search calls = %v", searcher.calls)
	}
	if terms := searcher.calls[0]; len(terms) != 2 || terms[0] != "deadline" || terms[1] != "friday" {
		t.Fatalf("search terms = %v", terms)
	}
	if res.PlannerRef != "plan-1" || res.FilterRef != "filt-1" {
		t.Fatalf("refs = %q/%q", res.PlannerRef, res.FilterRef)
	}
	if !strings.Contains(res.Context, "[notes.md ## Plans]") {
		t.Fatalf("context = %q", res.Context)
	}
	// Disk content wins over the indexed excerpt.
	if !strings.Contains(res.Context, "deadline is friday") || strings.Contains(res.Context, "stale indexed") {
		t.Fatalf("context = %q", res.Context)
	}
	if len(res.SelectedIDs) != 1 || res.SelectedIDs[0] != "notes.md#Plans" {
		t.Fatalf("selected = %v", res.SelectedIDs)
	}
	// Filter resumed its previous session.
	if filter.calls[0].resume != "filt-0" {
		t.Fatalf("filter resume = %q", filter.calls[0].resume)
	}
}

func TestRetrieveSeenChunksSurviveSessionRotation(t *testing.T) {
	root := writeKB(t)
	bothHits := `[1] notes.md §Plans [L3-L4]
> stale
[2] notes.md §Other [L6-L7]
> stale
`
	planner := &fakeSub{reply: `"deadline"`, sid: "plan-1"}
	filter := &fakeSub{
		sidSeq:  []string{"filt-1", "filt-2"},
		replies: []string{"notes.md#Plans", "notes.md#Other"},
	}
	searcher := &fakeSearcher{output: bothHits}
	p := newPipeline(root, planner, filter, searcher)

	// Turn 1: fresh session, Plans selected under filt-1.
	res1, err := p.Retrieve(context.Background(), Request{Text: "q1"})
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if res1.FilterRef != "filt-1" || len(res1.SelectedIDs) != 1 {
		t.Fatalf("turn 1 result: %+v", res1)
	}

	// Turn 2: the runtime rotates the session id to filt-2; Plans must stay
	// excluded and Other is selected.
	res2, err := p.Retrieve(context.Background(), Request{Text: "q2", FilterRef: res1.FilterRef})
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res2.FilterRef != "filt-2" {
		t.Fatalf("turn 2 filter ref = %q", res2.FilterRef)
	}
	if len(res2.SelectedIDs) != 1 || res2.SelectedIDs[0] != "notes.md#Other" {
		t.Fatalf("turn 2 selected = %v", res2.SelectedIDs)
	}
	if strings.Contains(filter.calls[1].prompt, "notes.md#Plans\n") {
		t.Fatalf("turn 2 re-offered an already-selected chunk:\n%s", filter.calls[1].prompt)
	}

	// Turn 3: everything was seen across both earlier handles; stage 5
	// short-circuits without consulting the filter again.
	res3, err := p.Retrieve(context.Background(), Request{Text: "q3", FilterRef: res2.FilterRef})
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if res3.Context != "" || len(res3.SelectedIDs) != 0 {
		t.Fatalf("turn 3 re-delivered seen chunks: %+v", res3)
	}
	if len(filter.calls) != 2 {
		t.Fatalf("filter consulted %d times", len(filter.calls))
	}
}

func TestRetrieveNoContextSkipsSearchAndFilter(t *testing.T) {
	planner := &fakeSub{reply: "NO_CONTEXT_NEEDED", sid: "plan-1"}
	filter := &fakeSub{reply: "unused"}
	searcher := &fakeSearcher{}
	p := newPipeline(t.TempDir(), planner, filter, searcher)

	res, err := p.Retrieve(context.Background(), Request{Text: "hi", FilterRef: "filt-7"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(searcher.calls) != 0 {
		t.Fatalf("searches ran: %v", searcher.calls)
	}
	if len(filter.calls) != 0 {
		t.Fatal("filter consulted")
	}
	if res.Context != "" {
		t.Fatalf("context = %q", res.Context)
	}
	if res.FilterRef != "filt-7" {
		t.Fatalf("filter ref changed: %q", res.FilterRef)
	}
	if res.PlannerRef != "plan-1" {
		t.Fatalf("planner ref = %q", res.PlannerRef)
	}
}

func TestRetrieveFirstTurnIncludesRecentWindow(t *testing.T) {
	root := writeKB(t)
	recentDir := filepath.Join(root, "recent")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatal(err)
	}
	name := time.Now().Format("2006-01-02") + ".md"
	if err := os.WriteFile(filepath.Join(recentDir, name), []byte("met Anna about the offsite\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	planner := &fakeSub{reply: `"offsite"`, sid: "plan-1"}
	filter := &fakeSub{reply: NoRelevantToken, sid: "filt-1"}
	searcher := &fakeSearcher{output: ""}
	p := newPipeline(root, planner, filter, searcher)
	p.RecentDir = recentDir

	if _, err := p.Retrieve(context.Background(), Request{Text: "plan the offsite"}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(filter.calls) != 1 {
		t.Fatal("filter not consulted")
	}
	if !strings.Contains(filter.calls[0].prompt, "met Anna about the offsite") {
		t.Fatalf("recent chunk missing from filter prompt:\n%s", filter.calls[0].prompt)
	}

	// Same pipeline on a later turn (filter session known): recent window
	// is not reloaded.
	filter.calls = nil
	filter.reply = NoRelevantToken
	if _, err := p.Retrieve(context.Background(), Request{Text: "again", FilterRef: "filt-1"}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(filter.calls) != 0 {
		if strings.Contains(filter.calls[0].prompt, "met Anna") {
			t.Fatal("recent window reloaded on resumed session")
		}
	}
}

func TestRetrieveSearchFailureDegrades(t *testing.T) {
	root := writeKB(t)
	planner := &fakeSub{reply: `"deadline"`, sid: "plan-1"}
	filter := &fakeSub{reply: "unused"}
	searcher := &fakeSearcher{err: context.DeadlineExceeded}
	p := newPipeline(root, planner, filter, searcher)

	res, err := p.Retrieve(context.Background(), Request{Text: "q", FilterRef: "filt-1"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Context != "" || len(filter.calls) != 0 {
		t.Fatalf("expected empty result, got context %q", res.Context)
	}
}

func TestRetrieveCancelledContext(t *testing.T) {
	planner := &fakeSub{reply: `"x"`, sid: "plan-1"}
	searcher := &fakeSearcher{}
	p := newPipeline(t.TempDir(), planner, &fakeSub{}, searcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Retrieve(ctx, Request{Text: "q", FilterRef: "f"}); err == nil {
		t.Fatal("expected context error")
	}
}
