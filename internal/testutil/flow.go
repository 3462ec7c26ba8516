package testutil

import (
	"fmt"
	"sync"
)

// FixedFlowGenerator generates the same flow token every time.
//
// Every invocation in a scenario then shares one flow token, which keeps
// golden traces byte-identical across runs.
//
// Thread-safety: FixedFlowGenerator is stateless and safe for concurrent use.
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator creates a fixed flow token generator.
// If token is empty, Generate() returns "test-flow-default".
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = "test-flow-default"
	}
	return &FixedFlowGenerator{token: token}
}

// Generate returns the fixed flow token.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}

// SequentialIDs returns an ID source yielding "<prefix>-1", "<prefix>-2", ...
// Safe for concurrent use.
func SequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// FlowSequence hands out the given flow tokens in order and fails the
// test that asks for more than it declared.
type FlowSequence struct {
	mu     sync.Mutex
	tokens []string
	next   int
}

// NewFlowSequence returns a generator yielding tokens in order.
func NewFlowSequence(tokens ...string) *FlowSequence {
	return &FlowSequence{tokens: tokens}
}

// Generate returns the next token. It panics once the tokens run out.
func (s *FlowSequence) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.tokens) {
		panic(fmt.Sprintf("FlowSequence: all %d tokens used", len(s.tokens)))
	}
	s.next++
	return s.tokens[s.next-1]
}
