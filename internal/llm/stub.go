package llm

import (
	"context"

	"github.com/dart-insight/storm-report/pkg/anthropic"
)

// Stub is a scriptable LanguageModel for tests. Responses are consumed in
// FIFO order; once exhausted, Complete returns Default.
type Stub struct {
	Responses []string
	Default   string
	Err       error

	next  int
	calls []string
	usage anthropic.TokenUsage
}

// NewStub returns a Stub that yields responses in order, then Default.
func NewStub(responses ...string) *Stub {
	return &Stub{Responses: responses}
}

func (s *Stub) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls = append(s.calls, prompt)
	if s.Err != nil {
		return "", s.Err
	}
	if s.next < len(s.Responses) {
		r := s.Responses[s.next]
		s.next++
		return r, nil
	}
	return s.Default, nil
}

// Calls returns every prompt passed to Complete, in order.
func (s *Stub) Calls() []string {
	return s.calls
}

func (s *Stub) Usage() anthropic.TokenUsage {
	return s.usage
}

func (s *Stub) ResetUsage() {
	s.usage = anthropic.TokenUsage{}
}
