package service

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Guard coalesces change notifications into one reconciliation pass after a
// quiet window. Fires that land while a pass is running do not start a second
// pass; they mark the guard dirty and the running pass re-arms the timer when
// it finishes. A pass that changed the lock re-arms it too.
type Guard struct {
	mu      sync.Mutex
	window  time.Duration
	pass    func() bool
	logger  *zap.Logger
	timer   *time.Timer
	gen     uint64
	busy    bool
	dirty   bool
	stopped bool
}

// NewGuard wraps pass, which reports whether it changed anything.
func NewGuard(window time.Duration, pass func() bool, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{window: window, pass: pass, logger: logger}
}

// Trigger (re)arms the single pending timer. Only the latest trigger in a
// burst leads to a pass.
func (g *Guard) Trigger() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.timer = time.AfterFunc(g.window, func() { g.fire(gen) })
}

func (g *Guard) fire(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || g.stopped {
		g.mu.Unlock()
		return
	}
	g.timer = nil
	if g.busy {
		g.dirty = true
		g.mu.Unlock()
		g.logger.Debug("Reconciliation already running, deferring trigger")
		return
	}
	g.busy = true
	g.mu.Unlock()

	g.run()
}

// Flush cancels any pending timer and runs a pass now. It reports false when
// a pass was already in progress; that pass is then followed by another one.
func (g *Guard) Flush() bool {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return false
	}
	if g.busy {
		g.dirty = true
		g.mu.Unlock()
		return false
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
	g.busy = true
	g.mu.Unlock()

	g.run()
	return true
}

func (g *Guard) run() {
	changed := g.pass()

	g.mu.Lock()
	g.busy = false
	dirty := g.dirty
	g.dirty = false
	g.mu.Unlock()

	// Cart or channel changed mid-pass, or the pass itself wrote: go again.
	if changed || dirty {
		g.Trigger()
	}
}

// Pending reports whether a pass is scheduled or running.
func (g *Guard) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timer != nil || g.busy || g.dirty
}

func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
