package bpm

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Temperature is a hint used by the eviction daemon to select candidates.
// It is independent of residency: all four combinations of
// {Unloaded,Loaded} x {Hot,Cool} are valid, temperature is never
// authoritative about whether a page can be evicted by itself.
type Temperature int32

const (
	Cool Temperature = 0
	Hot  Temperature = 1
)

// Page is the per-logical-page header: identity, hybrid latch, residency
// and eviction temperature. It is shared across threads via a pointer kept
// alive by the BPM's page table; page headers are created on first
// GetPage and never destroyed for the lifetime of the process.
type Page struct {
	pid   PageID
	latch HybridLatch

	// frame is nil when Unloaded, non-nil when Loaded. Mutated only while
	// latch's write lock is held (load protocol, eviction subroutine), but
	// read without the lock by the optimistic fast path below, which is
	// why it is an atomic pointer rather than a plain field.
	frame atomic.Pointer[Frame]

	// isLoadedHint is a cheap, non-authoritative pre-check ahead of even
	// taking an optimistic snapshot (recovered from
	// original_source/src/page/pagedef.rs's is_loaded flag): when false, a
	// reader skips straight to the pessimistic path instead of wasting a
	// version read and a doomed-to-fail byte copy.
	isLoadedHint atomic.Bool

	temperature atomic.Int32
}

// ID returns the page's identity.
func (p *Page) ID() PageID { return p.pid }

// Temperature returns the page's current eviction-temperature hint.
func (p *Page) Temperature() Temperature { return Temperature(p.temperature.Load()) }

func (p *Page) setHot() { p.temperature.Store(int32(Hot)) }

// IsLoaded reports whether the page currently owns a frame. This is a
// snapshot, not a guarantee: without holding the latch, the answer may be
// stale the instant it is returned.
func (p *Page) IsLoaded() bool { return p.frame.Load() != nil }

// read implements spec.md §4.2's Page read path.
func (p *Page) read(ctx context.Context, h *PageHandle) (*ReadGuard, error) {
	p.setHot()

	if p.isLoadedHint.Load() && !p.latch.Poisoned() {
		snap := p.latch.Optimistic()
		if fr := p.frame.Load(); fr != nil {
			data := make([]byte, len(fr.Data()))
			copy(data, fr.Data())
			if p.latch.Validate(snap) {
				h.bpm.metrics.observeOptimisticHit()
				return &ReadGuard{page: p, data: data}, nil
			}
			h.bpm.metrics.observeOptimisticMiss()
		}
	}

	p.latch.RLock()
	if p.latch.Poisoned() {
		p.latch.RUnlock()
		return nil, ErrLockPoisoned
	}
	if fr := p.frame.Load(); fr != nil {
		return &ReadGuard{page: p, data: fr.Data(), rLocked: true}, nil
	}
	p.latch.RUnlock()

	// Unloaded: upgrade to a write lock (drop-and-retake) and re-check
	// residency, since another task may have loaded the page while we were
	// transitioning between locks.
	p.latch.Lock()
	if p.latch.Poisoned() {
		p.latch.Unlock()
		return nil, ErrLockPoisoned
	}
	if p.frame.Load() == nil {
		if err := h.load(ctx, p); err != nil {
			p.latch.Unlock()
			return nil, err
		}
	}
	fr := p.frame.Load()
	// Downgrade is not required: the caller only needs to read, and holds
	// the write guard through data access, releasing it on Close.
	return &ReadGuard{page: p, data: fr.Data(), wLocked: true}, nil
}

// write implements spec.md §4.3's Page write path.
func (p *Page) write(ctx context.Context, h *PageHandle) (*WriteGuard, error) {
	p.setHot()

	p.latch.Lock()
	if p.latch.Poisoned() {
		p.latch.Unlock()
		return nil, ErrLockPoisoned
	}
	if p.frame.Load() == nil {
		if err := h.load(ctx, p); err != nil {
			p.latch.Unlock()
			return nil, err
		}
	}
	fr := p.frame.Load()
	return &WriteGuard{page: p, handle: h, frame: fr}, nil
}

func (p *Page) String() string {
	return fmt.Sprintf("Page{pid=%s loaded=%v temp=%v}", p.pid, p.IsLoaded(), p.Temperature())
}
