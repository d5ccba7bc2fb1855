package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sushant-115/gojodb-bpm/core/bpm"
	"github.com/sushant-115/gojodb-bpm/pkg/logger"
	"github.com/sushant-115/gojodb-bpm/pkg/telemetry"
	"go.uber.org/zap"
)

// defaultBackingDir holds the backing file bpmserver creates when
// -backing_file is left at its zero value.
const defaultBackingDir = "/tmp/bpm"

var (
	backingFile     = flag.String("backing_file", "", "Path to the buffer pool manager's backing store file (default: a fresh UUID-named file under "+defaultBackingDir)
	numFrames       = flag.Int("num_frames", 1024, "Fixed number of in-memory frames the pool manages")
	numPagesOnDisk  = flag.Uint64("num_pages", 1<<20, "Number of page-sized slots reserved on the backing store")
	numWorkers      = flag.Int("num_workers", runtime.NumCPU(), "Number of worker threads to start")
	lowWaterMark    = flag.Int("low_water_mark", 0, "Free-frame population the eviction daemon tries to maintain (0 = auto)")
	logLevel        = flag.String("log_level", "info", "Logger level: debug, info, warn, error")
	logFormat       = flag.String("log_format", "json", "Logger output format: json or console")
	metricsEnabled  = flag.Bool("metrics_enabled", true, "Whether to expose a Prometheus /metrics endpoint")
	metricsPort     = flag.Int("metrics_port", 9090, "Port for the Prometheus /metrics endpoint")
	shutdownTimeout = flag.Duration("shutdown_timeout", 10*time.Second, "Grace period for worker shutdown on SIGINT/SIGTERM")
)

func main() {
	flag.Parse()

	zlogger, err := logger.New(logger.Config{Level: *logLevel, Format: *logFormat})
	if err != nil {
		log.Fatalf("CRITICAL: can't initialize logger: %v", err)
	}
	defer zlogger.Sync()

	backingPath := *backingFile
	if backingPath == "" {
		if err := os.MkdirAll(defaultBackingDir, 0755); err != nil {
			zlogger.Fatal("failed to create default backing store directory", zap.Error(err))
		}
		backingPath = filepath.Join(defaultBackingDir, uuid.NewString()+".db")
	}

	zlogger.Info("starting buffer pool manager server",
		zap.String("backing_file", backingPath),
		zap.Int("num_frames", *numFrames),
		zap.Uint64("num_pages", *numPagesOnDisk),
		zap.Int("num_workers", *numWorkers),
	)

	tel, shutdownTelemetry, err := telemetry.New(telemetry.Config{
		Enabled:        *metricsEnabled,
		ServiceName:    "bpmserver",
		PrometheusPort: *metricsPort,
	})
	if err != nil {
		zlogger.Fatal("failed to initialize telemetry", zap.Error(err))
	}

	cfg := bpm.Config{
		NumFrames:      *numFrames,
		NumPagesOnDisk: *numPagesOnDisk,
		BackingFile:    backingPath,
		LowWaterMark:   *lowWaterMark,
	}
	pool, err := bpm.Initialize(cfg, zlogger, tel.Meter)
	if err != nil {
		zlogger.Fatal("failed to initialize buffer pool manager", zap.Error(err))
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())

	var globalWG sync.WaitGroup
	globalWG.Add(*numWorkers)
	for i := 0; i < *numWorkers; i++ {
		go func(id int) {
			defer globalWG.Done()
			err := pool.StartWorker(ctx, id, func(w *bpm.Worker) error {
				<-ctx.Done()
				return nil
			})
			if err != nil && ctx.Err() == nil {
				zlogger.Error("worker exited unexpectedly", zap.Int("worker_id", id), zap.Error(err))
			}
		}(i)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	zlogger.Info("received shutdown signal", zap.Stringer("signal", sig))

	cancel()

	done := make(chan struct{})
	go func() {
		globalWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		zlogger.Info("all workers stopped cleanly")
	case <-time.After(*shutdownTimeout):
		zlogger.Warn("shutdown timeout elapsed, exiting with workers still draining")
	}

	if err := shutdownTelemetry(context.Background()); err != nil {
		zlogger.Warn("telemetry shutdown failed", zap.Error(err))
	}
}
