package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates "prefix-1", "prefix-2", ... and never runs out.
//
// Unlike ids.FixedGenerator, which panics when its list is exhausted, this
// generator suits tests that create an unknown number of records but still
// need predictable ids.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator with the given prefix.
// If prefix is empty, "id" is used.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id. Implements ids.Generator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
