package llm

import (
	"context"
	"sync"
)

// StubGenerator returns a canned reply and records every prompt it gets.
type StubGenerator struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []string
}

func NewStubGenerator(reply string) *StubGenerator {
	return &StubGenerator{Reply: reply}
}

func (s *StubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}

// Prompts returns the prompts received so far.
func (s *StubGenerator) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *StubGenerator) ModelName() string {
	return "stub"
}
