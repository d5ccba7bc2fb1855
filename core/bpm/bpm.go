package bpm

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BPM is the process-wide buffer pool manager: a registry mapping page
// identifiers to page headers, backed by a fixed pool of frames and a
// single backing-store file. It is the only component with shared,
// mutable, cross-thread structure (the page table), and that structure is
// kept contention-minimal by using sync.Map's upsert-friendly semantics
// instead of a single global mutex (spec.md §2 component 4).
type BPM struct {
	cfg Config

	file        *os.File
	diskManager *DiskManager
	framePool   *framePool
	pages       sync.Map // PageID -> *Page

	logger  *zap.Logger
	metrics *Metrics
}

var globalBPM atomic.Pointer[BPM]

// Initialize installs the process-wide singleton. It is an error to call
// this more than once per process (spec.md §4.5, §9's "global singleton"
// design note).
func Initialize(cfg Config, logger *zap.Logger, meter metric.Meter) (*BPM, error) {
	if globalBPM.Load() != nil {
		return nil, ErrAlreadyInitialized
	}
	if cfg.NumFrames <= 0 {
		return nil, ErrInvalidFrameCount
	}
	if cfg.NumPagesOnDisk == 0 {
		return nil, ErrInvalidPageCount
	}
	cfg = cfg.WithDefaults()

	file, err := os.OpenFile(cfg.BackingFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("bpm: opening backing store %s: %w", cfg.BackingFile, err)
	}
	requiredSize := int64(cfg.NumPagesOnDisk) * int64(cfg.PageSize)
	if err := file.Truncate(requiredSize); err != nil {
		file.Close()
		return nil, fmt.Errorf("bpm: sizing backing store to %d bytes: %w", requiredSize, err)
	}

	fp := newFramePool(cfg.NumFrames, cfg.PageSize)

	metrics, err := newMetrics(meter, fp)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("bpm: registering metrics: %w", err)
	}

	dm := newDiskManager(cfg.PageSize, cfg.NumPagesOnDisk, metrics)

	b := &BPM{
		cfg:         cfg,
		file:        file,
		diskManager: dm,
		framePool:   fp,
		logger:      logger,
		metrics:     metrics,
	}

	if !globalBPM.CompareAndSwap(nil, b) {
		file.Close()
		return nil, ErrAlreadyInitialized
	}
	return b, nil
}

// Get returns the process-wide singleton, failing if Initialize has not
// run yet.
func Get() (*BPM, error) {
	b := globalBPM.Load()
	if b == nil {
		return nil, ErrNotInitialized
	}
	return b, nil
}

// resetForTest tears down the singleton so tests can call Initialize
// again. It is not part of the public contract (spec.md §9 notes there is
// no teardown for process lifetime ownership); it exists purely so package
// tests can construct independent BPM instances without leaking process
// global state across test functions.
func resetForTest() { globalBPM.Store(nil) }

// NumFrames returns the fixed number of frames this pool manages.
func (b *BPM) NumFrames() int { return b.cfg.NumFrames }

// GetPage returns a handle to the page named by pid, bound to worker w.
// Insertion into the page table is idempotent per pid: the first caller
// to request a pid installs a fresh Unloaded/Cool page; later callers
// receive the same page (spec.md §3's BPM Table contract).
func (b *BPM) GetPage(w *Worker, pid PageID) (*PageHandle, error) {
	if uint64(pid) >= b.cfg.NumPagesOnDisk {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPage, pid)
	}
	if v, ok := b.pages.Load(pid); ok {
		return &PageHandle{bpm: b, worker: w, page: v.(*Page)}, nil
	}
	fresh := &Page{pid: pid}
	actual, _ := b.pages.LoadOrStore(pid, fresh)
	return &PageHandle{bpm: b, worker: w, page: actual.(*Page)}, nil
}

// StartWorker is a thin forwarding wrapper kept on BPM for callers that
// find `bpm.StartWorker(...)` more natural than the package-level
// StartWorker(bpm, ...); both spellings exist because spec.md's own API
// surface lists this under BPM.
func (b *BPM) StartWorker(ctx context.Context, id int, initialTask func(*Worker) error) error {
	return StartWorker(ctx, b, id, initialTask)
}

// acquireFreeFrame awaits a free frame from the pool's free channel. This
// is the one suspension point shared across all workers and all pages: an
// empty channel means every task performing the load protocol blocks here
// cooperatively until some worker's eviction daemon replenishes it.
func (b *BPM) acquireFreeFrame(ctx context.Context) (*Frame, error) {
	select {
	case fr := <-b.framePool.free:
		return fr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// releaseFrame returns fr to the free channel. The caller must have
// already cleared fr's owner and the owning page's residency under that
// page's write lock before calling this.
func (b *BPM) releaseFrame(fr *Frame) {
	b.framePool.free <- fr
}

// Close releases the backing file. Not part of spec.md's contract (the
// core has no teardown), but convenient for tests that want to clean up
// between cases without leaking file descriptors.
func (b *BPM) Close() error {
	return b.file.Close()
}
