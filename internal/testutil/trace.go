package testutil

import (
	"fmt"
	"sync"
)

// SequentialTraceGenerator generates trace ids "trace-1", "trace-2", ...
//
// This keeps log output and golden transcripts byte-identical across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialTraceGenerator struct {
	mu  sync.Mutex
	seq int
}

// NewSequentialTraceGenerator creates a generator starting at trace-1.
func NewSequentialTraceGenerator() *SequentialTraceGenerator {
	return &SequentialTraceGenerator{}
}

// Generate returns the next trace id.
//
// Implements engine.TraceGenerator.
func (g *SequentialTraceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("trace-%d", g.seq)
}
