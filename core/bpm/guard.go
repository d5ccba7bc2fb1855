package bpm

import (
	"context"
	"fmt"
)

// ReadGuard exposes a page's bytes for the duration of its lifetime. In
// the common (optimistic) case the bytes are a private snapshot copy taken
// inside the validated window, per spec.md §9's requirement that an
// optimistic reader never expose a reference that outlives validation. In
// the pessimistic case (cache miss, or a failed optimistic validation) the
// bytes are a live view into the frame, held safe by an actual read- or
// write-lock for as long as the guard is open.
type ReadGuard struct {
	page *Page
	data []byte

	rLocked bool
	wLocked bool
	closed  bool
}

// Data returns the page's bytes. The returned slice must not be retained
// past Close.
func (g *ReadGuard) Data() []byte { return g.data }

// PageID returns the identity of the guarded page.
func (g *ReadGuard) PageID() PageID { return g.page.pid }

// Close releases whatever lock the guard is holding, if any. Safe to call
// more than once.
func (g *ReadGuard) Close() {
	if g.closed {
		return
	}
	g.closed = true
	switch {
	case g.wLocked:
		g.page.latch.Unlock()
	case g.rLocked:
		g.page.latch.RUnlock()
	}
}

// WriteGuard hands the caller a mutable view of a page's frame for the
// duration of its lifetime, held exclusive by the page's write lock.
type WriteGuard struct {
	page   *Page
	handle *PageHandle
	frame  *Frame
	closed bool
}

// Data returns the page's mutable bytes. Writes are only visible to other
// accessors once the guard is closed (which publishes the version bump).
func (g *WriteGuard) Data() []byte { return g.frame.Data() }

// PageID returns the identity of the guarded page.
func (g *WriteGuard) PageID() PageID { return g.page.pid }

// Flush submits a write of the frame's current contents to the backing
// store and awaits completion while still holding the write lock. This is
// a caller-requested durability point, distinct from the writeback the
// eviction daemon performs on its own schedule.
func (g *WriteGuard) Flush(ctx context.Context) error {
	if g.closed {
		return fmt.Errorf("bpm: flush on closed write guard")
	}
	err := g.handle.bpm.diskManager.Write(ctx, g.handle.worker.driver, g.page.pid, g.frame.Data())
	if err != nil {
		return fmt.Errorf("%w: flushing %s: %v", ErrIOFailure, g.page.pid, err)
	}
	return nil
}

// Close releases the write lock, incrementing the latch's version so that
// optimistic readers which validate afterward observe this write.
func (g *WriteGuard) Close() {
	if g.closed {
		return
	}
	g.closed = true
	g.page.latch.Unlock()
}

// recoverPoison is called from a deferred recover() in code paths that run
// caller-supplied functions while holding a write lock (WithWrite). It
// marks the latch poisoned and still releases the mutex, matching
// spec.md §7's LockPoisoned contract: a previous writer that aborted
// mid-critical-section must not leave the latch silently deadlocked for
// everyone else.
func recoverPoison(g *WriteGuard, r any) error {
	g.page.latch.markPoisoned()
	g.page.latch.Unlock()
	g.closed = true
	return fmt.Errorf("%w: %v", ErrLockPoisoned, r)
}
