package bpm

import (
	"context"
	"os"
	"sync"
)

// ioOpKind distinguishes the two operations the disk manager submits.
type ioOpKind int

const (
	opRead ioOpKind = iota
	opWrite
)

// IOCompletion is the result of a submitted operation, delivered on the
// channel returned by SubmitRead/SubmitWrite. It mirrors what an
// io_uring-style completion queue entry would carry: a byte count and an
// error.
type IOCompletion struct {
	N   int
	Err error
}

// AsyncIODriver is the per-thread object the core consumes but does not
// own: pre-register buffers (implicit here, since Go slices need no
// kernel-side registration step), submit a read or write, await
// completion. spec.md §6 requires that completions can only be observed on
// the submitting thread; PollingIODriver below is constructed once per
// Worker to honor that.
type AsyncIODriver interface {
	SubmitRead(ctx context.Context, offset int64, buf []byte) (<-chan IOCompletion, error)
	SubmitWrite(ctx context.Context, offset int64, buf []byte) (<-chan IOCompletion, error)
	Close()
}

type ioRequest struct {
	kind       ioOpKind
	offset     int64
	buf        []byte
	completion chan IOCompletion
}

// PollingIODriver stands in for a completion-based kernel interface
// (io_uring or equivalent) that spec.md explicitly treats as an external
// collaborator. It pairs a submission channel with a single dedicated
// poller goroutine per driver instance that performs the real ReadAt /
// WriteAt syscall and publishes the result on a per-operation completion
// channel. Because exactly one goroutine per driver ever touches the file
// descriptor on this driver's behalf, and a driver is only ever handed to
// the one Worker that created it, completions are observed only by the
// submitting worker, matching the consumed contract.
type PollingIODriver struct {
	file        *os.File
	submissions chan *ioRequest
	done        chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
}

// NewPollingIODriver starts a driver bound to file with the given
// submission queue depth.
func NewPollingIODriver(file *os.File, queueDepth int) *PollingIODriver {
	d := &PollingIODriver{
		file:        file,
		submissions: make(chan *ioRequest, queueDepth),
		done:        make(chan struct{}),
		closed:      make(chan struct{}),
	}
	go d.poll()
	return d
}

func (d *PollingIODriver) poll() {
	defer close(d.closed)
	for {
		select {
		case req := <-d.submissions:
			var n int
			var err error
			switch req.kind {
			case opRead:
				n, err = d.file.ReadAt(req.buf, req.offset)
			case opWrite:
				n, err = d.file.WriteAt(req.buf, req.offset)
			}
			req.completion <- IOCompletion{N: n, Err: err}
		case <-d.done:
			return
		}
	}
}

func (d *PollingIODriver) submit(ctx context.Context, kind ioOpKind, offset int64, buf []byte) (<-chan IOCompletion, error) {
	req := &ioRequest{kind: kind, offset: offset, buf: buf, completion: make(chan IOCompletion, 1)}
	select {
	case <-d.done:
		return nil, ErrClosed
	default:
	}
	select {
	case d.submissions <- req:
		return req.completion, nil
	case <-d.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitRead queues a read of buf from the given byte offset.
func (d *PollingIODriver) SubmitRead(ctx context.Context, offset int64, buf []byte) (<-chan IOCompletion, error) {
	return d.submit(ctx, opRead, offset, buf)
}

// SubmitWrite queues a write of buf to the given byte offset.
func (d *PollingIODriver) SubmitWrite(ctx context.Context, offset int64, buf []byte) (<-chan IOCompletion, error) {
	return d.submit(ctx, opWrite, offset, buf)
}

// Close stops the poller goroutine. In-flight submissions already accepted
// by the poller are allowed to complete; submissions racing with Close may
// observe ErrClosed instead.
func (d *PollingIODriver) Close() {
	d.closeOnce.Do(func() { close(d.done) })
	<-d.closed
}
