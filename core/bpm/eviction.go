package bpm

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// evictionDaemon is the per-worker background task of spec.md §4.6: it
// demotes hot pages to cool and evicts cool pages to maintain at least
// cfg.LowWaterMark free frames.
type evictionDaemon struct {
	worker  *Worker
	bpm     *BPM
	cfg     Config
	limiter *rate.Limiter
	rng     *rand.Rand
}

func newEvictionDaemon(w *Worker, b *BPM, cfg Config) *evictionDaemon {
	return &evictionDaemon{
		worker: w,
		bpm:    b,
		cfg:    cfg,
		// rate.Limiter paces the poll loop instead of a bare time.Sleep,
		// so many workers' daemons ticking at once cannot pin CPU in a
		// burst; see SPEC_FULL.md §2's domain-stack wiring note.
		limiter: rate.NewLimiter(rate.Every(cfg.EvictionInterval), 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(w.id)<<32)),
	}
}

func (d *evictionDaemon) run(ctx context.Context) {
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		d.tick(ctx)
	}
}

// candidateFrames returns the slice of the pool's frames this tick should
// scan: the whole pool, or a single randomly chosen frame group when
// FrameGroupSize partitioning is enabled (SPEC_FULL.md §4).
func (d *evictionDaemon) candidateFrames() []*Frame {
	frames := d.bpm.framePool.frames
	if d.cfg.FrameGroupSize <= 0 || d.cfg.FrameGroupSize >= len(frames) {
		return frames
	}
	numGroups := len(frames) / d.cfg.FrameGroupSize
	if numGroups == 0 {
		return frames
	}
	g := d.rng.Intn(numGroups)
	start := g * d.cfg.FrameGroupSize
	end := start + d.cfg.FrameGroupSize
	return frames[start:end]
}

// tick implements one iteration of spec.md §4.6 steps 1-5.
func (d *evictionDaemon) tick(ctx context.Context) {
	if d.bpm.framePool.freeCount() >= d.cfg.LowWaterMark {
		return
	}

	var alreadyCool []*Page
	for _, fr := range d.candidateFrames() {
		owner := fr.Owner()
		if owner == nil {
			continue
		}
		if owner.Temperature() == Hot {
			owner.temperature.Store(int32(Cool))
			continue
		}
		alreadyCool = append(alreadyCool, owner)
	}

	if len(alreadyCool) == 0 {
		return
	}

	sample := d.sample(alreadyCool, d.cfg.EvictionSampleSize)

	done := make(chan struct{}, len(sample))
	for _, q := range sample {
		go func(q *Page) {
			defer func() { done <- struct{}{} }()
			d.evictCandidate(ctx, q)
		}(q)
	}
	for range sample {
		<-done
	}
}

// sample draws up to n distinct candidates from pages by Fisher-Yates
// shuffling a copy of pages and taking its first n entries, implementing spec.md §4.6 step 4's "small
// bounded random sample" without favoring any particular ordering (the
// point being to avoid convoy effects from always evicting the same
// pages first).
func (d *evictionDaemon) sample(pages []*Page, n int) []*Page {
	if n >= len(pages) {
		n = len(pages)
	}
	shuffled := make([]*Page, len(pages))
	copy(shuffled, pages)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := d.rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}

// evictCandidate is the eviction subroutine of spec.md §4.6.
func (d *evictionDaemon) evictCandidate(ctx context.Context, q *Page) {
	if q.Temperature() == Hot {
		return
	}
	if !q.latch.TryLock() {
		return
	}

	fr := q.frame.Load()
	if fr == nil || q.Temperature() == Hot {
		q.latch.Unlock()
		return
	}

	if err := d.bpm.diskManager.Write(ctx, d.worker.driver, q.pid, fr.Data()); err != nil {
		// Writeback failure: the page stays Loaded and Cool, the lock is
		// released, the frame is not freed. The daemon may retry on a
		// later tick (spec.md §7 leaves exact retry policy unspecified).
		d.bpm.metrics.observeEvictionFailure()
		d.worker.logger.Warn("eviction writeback failed",
			zap.Stringer("pid", q.pid), zap.Error(err))
		q.latch.Unlock()
		return
	}

	q.frame.Store(nil)
	q.isLoadedHint.Store(false)
	fr.owner.Store(nil)
	q.latch.Unlock()

	d.bpm.releaseFrame(fr)
	d.bpm.metrics.observeEviction()
}
