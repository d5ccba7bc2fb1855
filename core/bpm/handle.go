package bpm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PageHandle is the caller-facing contract over a page. It binds a shared
// Page to the calling Worker, whose thread-local async I/O driver is used
// to satisfy the load protocol and explicit flushes. Acquire one via
// BPM.GetPage inside a worker.
type PageHandle struct {
	bpm    *BPM
	worker *Worker
	page   *Page
}

// PageID returns the identity of the handled page.
func (h *PageHandle) PageID() PageID { return h.page.pid }

// Read returns a read guard through which the caller may read the page's
// bytes. On success the page is Loaded and Hot.
func (h *PageHandle) Read(ctx context.Context) (*ReadGuard, error) {
	return h.page.read(ctx, h)
}

// Write returns a write guard through which the caller may mutate the
// page's bytes. On success the page is Loaded and Hot.
func (h *PageHandle) Write(ctx context.Context) (*WriteGuard, error) {
	return h.page.write(ctx, h)
}

// WithWrite is a convenience wrapper that acquires a write guard, runs fn,
// and releases the guard, converting a panic inside fn into a poisoned
// latch and an ErrLockPoisoned return instead of leaving the page
// deadlocked for every future caller (spec.md §7).
func (h *PageHandle) WithWrite(ctx context.Context, fn func(*WriteGuard) error) (err error) {
	g, err := h.Write(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = recoverPoison(g, r)
		}
	}()
	err = fn(g)
	g.Close()
	return err
}

// WithRead is the read-guard analogue of WithWrite.
func (h *PageHandle) WithRead(ctx context.Context, fn func(*ReadGuard) error) (err error) {
	g, err := h.Read(ctx)
	if err != nil {
		return err
	}
	defer g.Close()
	return fn(g)
}

// load is the load protocol of spec.md §4.4. Precondition: the caller
// holds p's write lock and p.frame is nil. Postcondition on success:
// p.frame is non-nil, its owner is p, its bytes are p's on-disk contents,
// and p is Hot. On I/O failure the acquired frame is returned to the free
// channel, residency is left Unloaded, and the error is returned to the
// caller.
func (h *PageHandle) load(ctx context.Context, p *Page) error {
	fr, err := h.bpm.acquireFreeFrame(ctx)
	if err != nil {
		return fmt.Errorf("bpm: awaiting free frame for %s: %w", p.pid, err)
	}
	fr.owner.Store(p)

	if err := h.bpm.diskManager.Read(ctx, h.worker.driver, p.pid, fr.Data()); err != nil {
		fr.owner.Store(nil)
		h.bpm.releaseFrame(fr)
		h.worker.logger.Debug("page load failed", zap.Stringer("pid", p.pid), zap.Error(err))
		return fmt.Errorf("%w: loading %s: %v", ErrIOFailure, p.pid, err)
	}

	p.frame.Store(fr)
	p.isLoadedHint.Store(true)
	p.setHot()
	h.bpm.metrics.observeLoad()
	return nil
}
