package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/hostbus"
)

// backend is whatever transport-specific state initBackend needs to keep
// alive for the lifetime of the process: a writer to address frames with,
// and a cleanup to release the underlying device.
type backend struct {
	bus     *hostbus.Bus
	writer  hostbus.Writer
	cleanup func()
}

// initBackend opens the configured transport, starts its RX loop feeding
// bus, and returns a writer to send through plus a cleanup to call on exit.
func initBackend(ctx context.Context, cfg *appConfig, l *slog.Logger, wg *sync.WaitGroup) (*backend, error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(ctx, cfg, l, wg)
	case "socketcan":
		return initSocketCANBackend(ctx, cfg, l, wg)
	default:
		return nil, fmt.Errorf("unknown backend %q (use serial|socketcan)", cfg.backend)
	}
}
