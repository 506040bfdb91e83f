package testutil

import (
	"fmt"
	"sync"
)

// SequenceTokens generates "<prefix>-1", "<prefix>-2", ... correlation
// tokens. Unlike engine.FixedGenerator it never runs out, which suits
// scenarios whose node count is not known up front.
//
// Thread-safety: SequenceTokens is safe for concurrent use via internal mutex.
type SequenceTokens struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceTokens creates a generator with the given prefix.
func NewSequenceTokens(prefix string) *SequenceTokens {
	return &SequenceTokens{prefix: prefix}
}

// Generate returns the next token.
func (g *SequenceTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
