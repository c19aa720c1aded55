package telegram

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the Bot API cap on outbound message text.
const MaxMessageLength = 4096

// SplitMessage breaks text into parts that each fit within the transport
// limit, preferring to break at a newline, then at a space, then hard.
func SplitMessage(text string) []string {
	if len(text) <= MaxMessageLength {
		return []string{text}
	}

	var parts []string
	remaining := text
	for len(remaining) > MaxMessageLength {
		splitAt := strings.LastIndex(remaining[:MaxMessageLength], "\n")
		if splitAt <= 0 {
			splitAt = strings.LastIndex(remaining[:MaxMessageLength], " ")
		}
		if splitAt <= 0 {
			// Hard break; back off to a rune start so a multibyte
			// character is never cut in half.
			splitAt = MaxMessageLength
			for splitAt > 0 && !utf8.RuneStart(remaining[splitAt]) {
				splitAt--
			}
		}
		parts = append(parts, remaining[:splitAt])
		remaining = strings.TrimLeft(remaining[splitAt:], " \n")
	}
	if remaining != "" {
		parts = append(parts, remaining)
	}
	return parts
}
