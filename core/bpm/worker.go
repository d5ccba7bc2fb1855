package bpm

import (
	"context"
	"runtime"
	"sync"

	commonutils "github.com/sushant-115/gojodb-bpm/internal/common_utils"
	"go.uber.org/zap"
)

// Worker is the thread-local context spec.md §2 calls for: a per-worker
// bundle of an async I/O driver handle and an eviction daemon, initialized
// once per worker. Tasks spawned via SpawnLocal carry a reference to their
// originating Worker and therefore only ever exercise that Worker's
// driver; the discipline of never handing a Worker's driver to a closure
// that escapes to another Worker is what stands in for true OS-thread
// affinity here (see DESIGN.md's Open Question resolution).
type Worker struct {
	id     int
	bpm    *BPM
	driver AsyncIODriver
	daemon *evictionDaemon
	logger *zap.Logger

	wg sync.WaitGroup
}

// ID returns the worker's logical index, assigned by the caller of
// StartWorker.
func (w *Worker) ID() int { return w.id }

// JoinHandle is returned by SpawnLocal and lets the caller await a task's
// completion and observe its error, mirroring spec.md §4.5's
// spawn_local(task) -> JoinHandle.
type JoinHandle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the spawned task has returned.
func (jh *JoinHandle) Wait() error {
	<-jh.done
	return jh.err
}

// SpawnLocal schedules a cooperative task bound to this worker. The task
// is not movable to another worker: it only ever sees this Worker's driver
// through the closure the caller writes, never through ambient/global
// state.
func (w *Worker) SpawnLocal(task func(*Worker) error) *JoinHandle {
	jh := &JoinHandle{done: make(chan struct{})}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(jh.done)
		jh.err = task(w)
	}()
	return jh
}

// StartWorker is spec.md §4.5's start_thread: it initializes a worker's
// thread-local async I/O driver, spawns its eviction daemon as a
// background task, then runs initialTask to completion on the local
// scheduler. It is meant to be called once per OS thread, typically as
// that thread's entire body; runtime.LockOSThread pins the calling
// goroutine to its OS thread for the duration, approximating the
// thread-per-core bootstrap spec.md treats as an external collaborator.
func StartWorker(ctx context.Context, b *BPM, id int, initialTask func(*Worker) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	logger := b.logger.With(zap.Int("worker_id", id), zap.Int64("goroutine", commonutils.GoID()))
	driver := NewPollingIODriver(b.file, b.cfg.IOQueueDepth)
	defer driver.Close()

	w := &Worker{id: id, bpm: b, driver: driver, logger: logger}
	w.daemon = newEvictionDaemon(w, b, b.cfg)

	daemonCtx, cancel := context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.daemon.run(daemonCtx)
	}()

	err := initialTask(w)

	cancel()
	w.wg.Wait()
	return err
}
