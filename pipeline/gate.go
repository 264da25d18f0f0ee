package pipeline

import "sync/atomic"

// Gate admits at most one frame into the pipeline at a time.
//
// TryAcquire never blocks: a frame that finds the gate closed is dropped by
// the caller. The zero value is an open gate.
type Gate struct {
	busy     atomic.Bool
	admitted atomic.Uint64
	dropped  atomic.Uint64
}

// TryAcquire closes the gate and reports true if it was open.
func (g *Gate) TryAcquire() bool {
	if g.busy.CompareAndSwap(false, true) {
		g.admitted.Add(1)
		return true
	}
	g.dropped.Add(1)
	return false
}

// Release reopens the gate.
func (g *Gate) Release() { g.busy.Store(false) }

// Busy reports whether a frame currently holds the gate.
func (g *Gate) Busy() bool { return g.busy.Load() }

// Admitted returns how many frames passed the gate.
func (g *Gate) Admitted() uint64 { return g.admitted.Load() }

// Dropped returns how many frames found the gate closed.
func (g *Gate) Dropped() uint64 { return g.dropped.Load() }
