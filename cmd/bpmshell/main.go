package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sushant-115/gojodb-bpm/core/bpm"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

var (
	backingFile    = flag.String("backing_file", "/tmp/bpm/shell.db", "Path to the backing store file to open")
	numFrames      = flag.Int("num_frames", 64, "Fixed number of in-memory frames the pool manages")
	numPagesOnDisk = flag.Uint64("num_pages", 4096, "Number of page-sized slots reserved on the backing store")
)

// processCommand handles a single interactively typed command line. It
// returns false when the shell should exit.
func processCommand(ctx context.Context, w *bpm.Worker, p *bpm.BPM, fields []string) bool {
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "get":
		if len(fields) < 2 {
			fmt.Println("usage: get <pid>")
			return true
		}
		pid, err := parsePID(fields[1])
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		h, err := p.GetPage(w, pid)
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		fmt.Printf("page %s bound\n", h.PageID())

	case "read":
		if len(fields) < 2 {
			fmt.Println("usage: read <pid>")
			return true
		}
		pid, err := parsePID(fields[1])
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		h, err := p.GetPage(w, pid)
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		g, err := h.Read(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		defer g.Close()
		fmt.Printf("%s: %d bytes, first 16: % x\n", pid, len(g.Data()), g.Data()[:min(16, len(g.Data()))])

	case "write":
		if len(fields) < 3 {
			fmt.Println("usage: write <pid> <byte>")
			return true
		}
		pid, err := parsePID(fields[1])
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		v, err := strconv.ParseUint(fields[2], 10, 8)
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		h, err := p.GetPage(w, pid)
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		err = h.WithWrite(ctx, func(g *bpm.WriteGuard) error {
			data := g.Data()
			for i := range data {
				data[i] = byte(v)
			}
			return g.Flush(ctx)
		})
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		fmt.Printf("wrote %s and flushed\n", pid)

	case "stats":
		fmt.Printf("num_frames=%d\n", p.NumFrames())

	case "help":
		fmt.Println("commands: get <pid> | read <pid> | write <pid> <byte> | stats | help | exit")

	case "exit", "quit":
		return false

	default:
		fmt.Printf("unknown command %q, type 'help'\n", fields[0])
	}
	return true
}

func parsePID(s string) (bpm.PageID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return bpm.InvalidPageID, fmt.Errorf("invalid page id %q: %w", s, err)
	}
	return bpm.PageID(v), nil
}

func main() {
	flag.Parse()

	logger := zap.NewNop()
	meter := noop.NewMeterProvider().Meter("bpmshell")

	p, err := bpm.Initialize(bpm.Config{
		NumFrames:      *numFrames,
		NumPagesOnDisk: *numPagesOnDisk,
		BackingFile:    *backingFile,
	}, logger, meter)
	if err != nil {
		log.Fatalf("failed to initialize buffer pool manager: %v", err)
	}
	defer p.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bpmshell> ",
		HistoryFile:     "/tmp/bpmshell_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("failed to initialize readline: %v", err)
	}
	defer rl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = p.StartWorker(ctx, 0, func(w *bpm.Worker) error {
		fmt.Println("Buffer pool manager shell (interactive mode). Type 'help' for commands, 'exit' or 'quit' to leave.")
		for {
			line, err := rl.Readline()
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}

			fields := strings.Fields(line)
			if !processCommand(ctx, w, p, fields) {
				return nil
			}
		}
	})
	if err != nil {
		log.Fatalf("shell worker exited with error: %v", err)
	}
}
