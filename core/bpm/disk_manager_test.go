package bpm

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDiskManager(t *testing.T, pageSize int, numPages uint64) (*DiskManager, *PollingIODriver, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.db")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(numPages)*int64(pageSize)))

	driver := NewPollingIODriver(f, 8)
	dm := newDiskManager(pageSize, numPages, nil)
	return dm, driver, func() {
		driver.Close()
		f.Close()
	}
}

// TestDiskManager_ReadWriteRoundTrip covers spec.md §4.7: a write at a
// pid's offset is exactly what a subsequent read at that offset returns.
func TestDiskManager_ReadWriteRoundTrip(t *testing.T) {
	dm, driver, cleanup := newTestDiskManager(t, 64, 4)
	defer cleanup()
	ctx := context.Background()

	want := bytes.Repeat([]byte{0xAB}, 64)
	require.NoError(t, dm.Write(ctx, driver, PageID(2), want))

	got := make([]byte, 64)
	require.NoError(t, dm.Read(ctx, driver, PageID(2), got))
	require.True(t, bytes.Equal(want, got))

	// Neighboring pages must be untouched.
	neighbor := make([]byte, 64)
	require.NoError(t, dm.Read(ctx, driver, PageID(1), neighbor))
	require.True(t, bytes.Equal(neighbor, make([]byte, 64)))
}

// TestDiskManager_UnknownPage covers spec.md §8's UnknownPage boundary for
// both Read and Write.
func TestDiskManager_UnknownPage(t *testing.T) {
	dm, driver, cleanup := newTestDiskManager(t, 64, 4)
	defer cleanup()
	ctx := context.Background()

	buf := make([]byte, 64)
	require.ErrorIs(t, dm.Read(ctx, driver, PageID(4), buf), ErrUnknownPage)
	require.ErrorIs(t, dm.Write(ctx, driver, PageID(100), buf), ErrUnknownPage)
}

// TestDiskManager_Offset covers the pid-to-byte-offset mapping directly.
func TestDiskManager_Offset(t *testing.T) {
	dm := newDiskManager(512, 10, nil)
	require.Equal(t, int64(0), dm.Offset(PageID(0)))
	require.Equal(t, int64(512), dm.Offset(PageID(1)))
	require.Equal(t, int64(5120), dm.Offset(PageID(10)))
}
