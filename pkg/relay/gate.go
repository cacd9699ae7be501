package relay

import "sync"

// completionGate tracks outstanding background work for the wake-window
// protocol. The armed callback fires exactly once, after both the outstanding
// count has returned to zero and the transport has signalled that all pending
// events were delivered, whichever happens last.
type completionGate struct {
	mu          sync.Mutex
	outstanding int
	drained     bool
	fired       bool
	callback    func()
}

// arm installs the wake-window callback, resetting the drained and fired
// state for a new window.
func (g *completionGate) arm(cb func()) {
	g.mu.Lock()
	g.callback = cb
	g.drained = false
	g.fired = false
	g.mu.Unlock()
}

func (g *completionGate) enter() {
	g.mu.Lock()
	g.outstanding++
	g.mu.Unlock()
}

func (g *completionGate) leave() {
	g.mu.Lock()
	if g.outstanding > 0 {
		g.outstanding--
	}
	cb := g.fireLocked()
	g.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// eventsDelivered records the transport's "all events delivered" signal.
func (g *completionGate) eventsDelivered() {
	g.mu.Lock()
	g.drained = true
	cb := g.fireLocked()
	g.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// fireLocked returns the callback to invoke when the gate's conditions are
// met, marking it fired. Callers invoke the callback outside the lock.
func (g *completionGate) fireLocked() func() {
	if g.fired || g.callback == nil || g.outstanding != 0 || !g.drained {
		return nil
	}
	g.fired = true
	return g.callback
}

func (g *completionGate) outstandingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outstanding
}
