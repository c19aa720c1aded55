package agent

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Scanner buffer large enough for a full assistant turn on one line.
const maxEventLineBytes = 4 * 1024 * 1024

// consumeStream reads newline-delimited JSON events until EOF and returns the
// terminal result, or nil if the stream ended without one. Unparseable lines
// are skipped; the agent interleaves diagnostics with events on stdout.
func consumeStream(r io.Reader, onProgress func(string)) (*Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxEventLineBytes)

	var res *Result
	fallbackSession := ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !gjson.Valid(line) {
			continue
		}
		ev := gjson.Parse(line)
		if sid := ev.Get("session_id").String(); sid != "" {
			fallbackSession = sid
		}
		switch ev.Get("type").String() {
		case "system":
			// init carries the session id before any work happens
		case "assistant":
			if onProgress != nil {
				for _, block := range ev.Get("message.content").Array() {
					if block.Get("type").String() == "tool_use" {
						onProgress(formatToolUse(block))
					}
				}
			}
		case "result":
			res = &Result{
				Text:      ev.Get("result").String(),
				SessionID: ev.Get("session_id").String(),
				CostUSD:   ev.Get("total_cost_usd").Float(),
				IsError:   ev.Get("is_error").Bool(),
				Subtype:   ev.Get("subtype").String(),
			}
			for _, d := range ev.Get("permission_denials").Array() {
				name := d.Get("tool_name").String()
				if name != "" {
					res.Denials = append(res.Denials, name)
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return res, err
	}
	if res != nil && res.SessionID == "" {
		res.SessionID = fallbackSession
	}
	if res == nil {
		slog.Debug("Agent stream ended without result event", "fallback_session", fallbackSession)
	}
	return res, nil
}

// formatToolUse renders one tool invocation as a short progress line.
func formatToolUse(block gjson.Result) string {
	name := block.Get("name").String()
	detail := ""
	switch name {
	case "Bash":
		detail = block.Get("input.command").String()
	case "Read", "Write", "Edit":
		detail = block.Get("input.file_path").String()
	case "Grep", "Glob":
		detail = block.Get("input.pattern").String()
	case "WebFetch":
		detail = block.Get("input.url").String()
	case "WebSearch":
		detail = block.Get("input.query").String()
	case "Task":
		detail = block.Get("input.description").String()
	}
	detail = strings.ReplaceAll(detail, "\n", " ")
	if len(detail) > 80 {
		n := 80
		for n > 0 && !utf8.RuneStart(detail[n]) {
			n--
		}
		detail = detail[:n] + "…"
	}
	if detail == "" {
		return "🔧 " + name
	}
	return "🔧 " + name + ": " + detail
}
