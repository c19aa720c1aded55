package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// threadID keys a conversation: chat id plus forum topic id. Topic 0 is the
// chat's general thread.
func threadID(chatID, messageThreadID int64) string {
	return fmt.Sprintf("%d:%d", chatID, messageThreadID)
}

// topicID recovers the forum topic from a thread key.
func topicID(threadID string) int64 {
	_, topic, ok := strings.Cut(threadID, ":")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(topic, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func allowed(ids []int64, sender int64) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if id == sender {
			return true
		}
	}
	return false
}

// parseCommand recognizes "/cmd" and "/cmd@botname" messages.
func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.Fields(text)[0][1:]
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", false
	}
	return cmd, true
}
