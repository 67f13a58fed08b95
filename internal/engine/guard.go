package engine

import "sync"

// guard is the reentry exclusion around operations that move value. A
// transfer callback re-entering the engine before the original call finished
// its bookkeeping must be rejected, not serialized: waiting would let the
// nested call observe half-settled state the moment the outer call yields.
type guard struct {
	mu sync.Mutex
}

// enter admits the caller or reports that a value-moving call is already in
// flight. Release with exit on every path.
func (g *guard) enter() bool {
	return g.mu.TryLock()
}

func (g *guard) exit() {
	g.mu.Unlock()
}
