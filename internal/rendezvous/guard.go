// Package rendezvous implements a counted-completion shutdown barrier: a
// simple "await zero" phaser used to join outstanding background work at
// shutdown.
package rendezvous

import "sync"

// Guard is a reference-counted shutdown barrier. The zero value is not
// usable; construct one with New.
//
// fork() increments the live count and returns a clone that must
// eventually have Completed called on it (directly or via its own forks).
// AwaitAll, called on the root, blocks until the count returns to zero.
//
// A Guard is cheap to copy: all clones share the same underlying
// sync.WaitGroup.
type Guard struct {
	wg *sync.WaitGroup
}

// New creates a root Guard with a live count of zero.
func New() Guard {
	return Guard{wg: &sync.WaitGroup{}}
}

// Fork increments the live count and returns a clone representing one unit
// of outstanding work. The caller must call Completed on the returned
// clone exactly once.
func (g Guard) Fork() Guard {
	g.wg.Add(1)
	return g
}

// Completed decrements the live count. It is safe to call from any clone
// of the original Guard.
func (g Guard) Completed() {
	g.wg.Done()
}

// AwaitAll blocks until the live count returns to zero. Typically called
// on the root guard after closing the command channels that feed
// background tasks.
func (g Guard) AwaitAll() {
	g.wg.Wait()
}
