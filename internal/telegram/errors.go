package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// The Bot API reports edit failures only through free-text descriptions, so
// classification has to inspect the error text. Two cases matter to callers:
// an edit that changed nothing (ignorable) and a message that no longer
// exists (the caller should stop touching it).
var (
	ErrNotModified = errors.New("message is not modified")
	ErrMessageGone = errors.New("message no longer exists")
)

func classifyAPIError(method, description string) error {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "message is not modified"):
		return fmt.Errorf("%s: %w", method, ErrNotModified)
	case strings.Contains(lower, "message to edit not found"),
		strings.Contains(lower, "message to delete not found"),
		strings.Contains(lower, "message can't be edited"):
		return fmt.Errorf("%s: %w", method, ErrMessageGone)
	default:
		return fmt.Errorf("%s: telegram: %s", method, description)
	}
}
