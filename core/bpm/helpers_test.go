package bpm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// setupBPM mirrors the teacher's setupLogManager test helper
// (core/write_engine/wal/log_manager_test.go): a t.Helper()-marked
// constructor that wires a fresh, isolated instance for one test and
// registers cleanup.
func setupBPM(t *testing.T, numFrames int, numPagesOnDisk uint64, mutate func(*Config)) *BPM {
	t.Helper()
	resetForTest()

	logger := zap.NewNop()
	meter := noop.NewMeterProvider().Meter("bpm_test")

	cfg := Config{
		NumFrames:      numFrames,
		NumPagesOnDisk: numPagesOnDisk,
		BackingFile:    filepath.Join(t.TempDir(), uuid.NewString()+".db"),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	b, err := Initialize(cfg, logger, meter)
	require.NoError(t, err)

	t.Cleanup(func() {
		b.Close()
		resetForTest()
	})
	return b
}

func mustWrite(t *testing.T, ctx context.Context, h *PageHandle, fill byte) {
	t.Helper()
	err := h.WithWrite(ctx, func(g *WriteGuard) error {
		data := g.Data()
		for i := range data {
			data[i] = fill
		}
		return g.Flush(ctx)
	})
	require.NoError(t, err)
}
