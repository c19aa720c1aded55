package agent

import (
	"context"
	"fmt"
	"time"
)

// Sub is a narrow, preconfigured agent role (planner, relevance filter,
// knowledge updater). It pins the model, tool surface and turn cap; callers
// only supply a prompt and an optional session to resume.
type Sub struct {
	Runner          Runner
	Model           string
	SystemPrompt    string
	WorkDir         string
	AllowedTools    []string
	DisallowedTools []string
	MaxTurns        int
	Timeout         time.Duration
	OnProgress      func(line string)
}

// Call runs the role once and returns the reply text and the session id to
// resume next time.
func (s *Sub) Call(ctx context.Context, prompt, resume string) (text, sessionID string, err error) {
	res, err := s.Runner.Run(ctx, Request{
		Prompt:          prompt,
		SystemPrompt:    s.SystemPrompt,
		Model:           s.Model,
		ResumeSessionID: resume,
		WorkDir:         s.WorkDir,
		AllowedTools:    s.AllowedTools,
		DisallowedTools: s.DisallowedTools,
		MaxTurns:        s.MaxTurns,
		Timeout:         s.Timeout,
		OnProgress:      s.OnProgress,
	})
	if err != nil {
		return "", "", err
	}
	if res.IsError {
		reason := res.Subtype
		if reason == "" {
			reason = res.Text
		}
		return "", res.SessionID, fmt.Errorf("agent error: %s", reason)
	}
	return res.Text, res.SessionID, nil
}
