// Package idgen hands out small monotonic integers used to give tasks a
// stable identity for logging and debugging, without the caller needing
// its own counter.
package idgen

import "sync/atomic"

// Generator allocates a monotonically increasing sequence of uint64s
// starting at 1, safe for concurrent use.
type Generator struct {
	next atomic.Uint64
}

// Next returns the next value in the sequence.
func (g *Generator) Next() uint64 {
	return g.next.Add(1)
}
