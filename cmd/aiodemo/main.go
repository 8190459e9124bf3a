package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/behrlich/aio"
	"github.com/behrlich/aio/internal/config"
	"github.com/behrlich/aio/internal/logging"
)

func main() {
	var (
		backendFlag = flag.String("backend", "worker", "Driver backend: worker, ring, posix, completion-port")
		sizeStr     = flag.String("size", "1M", "Size of the scratch file to exercise")
		verbose     = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	size, err := parseSize(*sizeStr)
	if err != nil {
		logger.Error("invalid size", "size", *sizeStr, "error", err)
		os.Exit(1)
	}

	f, err := os.CreateTemp("", "aiodemo-*.dat")
	if err != nil {
		logger.Error("failed to create scratch file", "error", err)
		os.Exit(1)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		logger.Error("failed to size scratch file", "error", err)
		os.Exit(1)
	}

	cfg := aio.DefaultConfig()
	cfg.AIOType = config.BackendType(*backendFlag)

	group, err := aio.NewGroup(cfg)
	if err != nil {
		logger.Error("failed to create engine group", "error", err)
		os.Exit(1)
	}

	engine, err := group.Attach()
	if err != nil {
		logger.Error("failed to attach engine", "backend", *backendFlag, "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	logger.Info("exercising backend", "backend", *backendFlag, "file", f.Name(), "size", size)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fd := int(f.Fd())
	payload := []byte("aiodemo exercises the write/read/fsync round trip")

	wh, err := engine.WriteBuffer(ctx, fd, 0, payload)
	if err != nil {
		logger.Error("write submit failed", "error", err)
		os.Exit(1)
	}
	if r, ok := engine.Wait(wh, ctx.Done()); !ok || r < 0 {
		logger.Error("write failed", "result", r, "ok", ok)
		os.Exit(1)
	}

	sh, err := engine.Fsync(ctx, fd)
	if err != nil {
		logger.Error("fsync submit failed", "error", err)
		os.Exit(1)
	}
	if r, ok := engine.Wait(sh, ctx.Done()); !ok || r < 0 {
		logger.Error("fsync failed", "result", r, "ok", ok)
		os.Exit(1)
	}

	readBuf := make([]byte, len(payload))
	rh, err := engine.ReadBuffer(ctx, fd, 0, readBuf)
	if err != nil {
		logger.Error("read submit failed", "error", err)
		os.Exit(1)
	}
	if r, ok := engine.Wait(rh, ctx.Done()); !ok || r < 0 {
		logger.Error("read failed", "result", r, "ok", ok)
		os.Exit(1)
	}

	snap := engine.Metrics().Snapshot()
	fmt.Printf("backend=%s read_back=%q total_ops=%d total_bytes=%d\n",
		*backendFlag, string(readBuf), snap.TotalOps, snap.TotalBytes)
}

func parseSize(s string) (int64, error) {
	var n int64
	var unit string
	if _, err := fmt.Sscanf(s, "%d%s", &n, &unit); err != nil {
		if _, err2 := fmt.Sscanf(s, "%d", &n); err2 != nil {
			return 0, err
		}
		return n, nil
	}
	switch unit {
	case "K", "k":
		return n * 1024, nil
	case "M", "m":
		return n * 1024 * 1024, nil
	case "G", "g":
		return n * 1024 * 1024 * 1024, nil
	default:
		return n, nil
	}
}
