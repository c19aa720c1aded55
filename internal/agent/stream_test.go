package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

func formatToolUseFromJSON(t *testing.T, raw string) string {
	t.Helper()
	if !gjson.Valid(raw) {
		t.Fatalf("invalid test json: %s", raw)
	}
	return formatToolUse(gjson.Parse(raw))
}

const sampleStream = `{"type":"system","subtype":"init","session_id":"sess-abc","model":"opus"}
not json at all
{"type":"assistant","session_id":"sess-abc","message":{"content":[{"type":"text","text":"thinking"},{"type":"tool_use","name":"Bash","input":{"command":"ls -la /tmp"}}]}}
{"type":"assistant","session_id":"sess-abc","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"/kb/notes.md"}}]}}
{"type":"result","subtype":"success","session_id":"sess-abc","result":"All done.","total_cost_usd":0.0425,"is_error":false,"permission_denials":[{"tool_name":"Write"}]}
`

func TestConsumeStreamFullRun(t *testing.T) {
	var progress []string
	res, err := consumeStream(strings.NewReader(sampleStream), func(l string) {
		progress = append(progress, l)
	})
	if err != nil {
		t.Fatalf("consumeStream: %v", err)
	}
	if res == nil {
		t.Fatal("no result parsed")
	}
	if res.Text != "All done." || res.SessionID != "sess-abc" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.CostUSD != 0.0425 {
		t.Fatalf("cost = %v", res.CostUSD)
	}
	if len(res.Denials) != 1 || res.Denials[0] != "Write" {
		t.Fatalf("denials = %v", res.Denials)
	}
	want := []string{"🔧 Bash: ls -la /tmp", "🔧 Read: /kb/notes.md"}
	if len(progress) != len(want) {
		t.Fatalf("progress lines = %v", progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("progress[%d] = %q, want %q", i, progress[i], want[i])
		}
	}
}

func TestConsumeStreamNoResult(t *testing.T) {
	stream := `{"type":"system","subtype":"init","session_id":"sess-xyz"}` + "\n"
	res, err := consumeStream(strings.NewReader(stream), nil)
	if err != nil {
		t.Fatalf("consumeStream: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
}

func TestConsumeStreamSessionFallback(t *testing.T) {
	// Result event lacks session_id; it must be recovered from earlier events.
	stream := `{"type":"system","subtype":"init","session_id":"sess-early"}
{"type":"result","subtype":"success","result":"ok","total_cost_usd":0.01}
`
	res, err := consumeStream(strings.NewReader(stream), nil)
	if err != nil {
		t.Fatalf("consumeStream: %v", err)
	}
	if res.SessionID != "sess-early" {
		t.Fatalf("fallback session = %q", res.SessionID)
	}
}

func TestFormatToolUseTruncatesLongDetail(t *testing.T) {
	long := strings.Repeat("x", 200)
	line := "🔧 Bash: " + long[:80] + "…"
	got := formatToolUseFromJSON(t, `{"name":"Bash","input":{"command":"`+long+`"}}`)
	if got != line {
		t.Fatalf("got %q", got)
	}
}

func TestFormatToolUseTruncatesAtRuneBoundary(t *testing.T) {
	// 3-byte runes, so the 80-byte cap lands mid-rune and must back off.
	long := strings.Repeat("⌘", 40)
	got := formatToolUseFromJSON(t, `{"name":"Bash","input":{"command":"`+long+`"}}`)
	if !utf8.ValidString(got) {
		t.Fatalf("detail cuts a rune in half: %q", got)
	}
	if want := "🔧 Bash: " + strings.Repeat("⌘", 26) + "…"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestScrubEnvDropsNestingVars(t *testing.T) {
	in := []string{"PATH=/bin", "CLAUDECODE=1", "HOME=/root", "CLAUDE_CODE_ENTRYPOINT=cli"}
	out := scrubEnv(in)
	if len(out) != 2 || out[0] != "PATH=/bin" || out[1] != "HOME=/root" {
		t.Fatalf("scrubbed env = %v", out)
	}
}
