package tutor

import (
	"context"
	"errors"
)

type reply struct {
	text string
	err  error
}

// scriptedText answers calls in order and records the prompts it saw.
type scriptedText struct {
	replies []reply
	prompts []string
}

func (s *scriptedText) Name() string { return "fake" }

func (s *scriptedText) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.text, r.err
}

type fakeDiagrams struct {
	url     string
	err     error
	prompts []string
}

func (f *fakeDiagrams) GenerateDiagram(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.url, f.err
}
