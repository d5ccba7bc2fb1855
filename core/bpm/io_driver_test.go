package bpm

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFile(t *testing.T, size int64) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driver.db")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	t.Cleanup(func() { f.Close() })
	return f
}

// TestPollingIODriver_WriteThenRead covers the submit/await round trip for
// both operations the disk manager relies on.
func TestPollingIODriver_WriteThenRead(t *testing.T) {
	f := newTestFile(t, 4096)
	d := NewPollingIODriver(f, 4)
	defer d.Close()
	ctx := context.Background()

	want := bytes.Repeat([]byte{0x7E}, 128)
	wch, err := d.SubmitWrite(ctx, 256, want)
	require.NoError(t, err)
	res := <-wch
	require.NoError(t, res.Err)
	require.Equal(t, len(want), res.N)

	got := make([]byte, 128)
	rch, err := d.SubmitRead(ctx, 256, got)
	require.NoError(t, err)
	res = <-rch
	require.NoError(t, res.Err)
	require.True(t, bytes.Equal(want, got))
}

// TestPollingIODriver_CloseIsIdempotent covers the sync.Once guard around
// closing the driver's done channel: calling Close from multiple goroutines
// must never panic on a double-close.
func TestPollingIODriver_CloseIsIdempotent(t *testing.T) {
	f := newTestFile(t, 4096)
	d := NewPollingIODriver(f, 4)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			d.Close()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Close did not return, suspected deadlock")
		}
	}
}

// TestPollingIODriver_SubmitAfterClose covers that a submission racing
// with (or following) Close observes ErrClosed rather than hanging.
func TestPollingIODriver_SubmitAfterClose(t *testing.T) {
	f := newTestFile(t, 4096)
	d := NewPollingIODriver(f, 4)
	d.Close()

	_, err := d.SubmitRead(context.Background(), 0, make([]byte, 16))
	require.ErrorIs(t, err, ErrClosed)
}
