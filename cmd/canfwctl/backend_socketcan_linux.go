//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/hostbus"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/hostcan"
)

const txQueueSize = 1024

func initSocketCANBackend(ctx context.Context, cfg *appConfig, l *slog.Logger, wg *sync.WaitGroup) (*backend, error) {
	dev, err := hostcan.Open(cfg.canIf)
	if err != nil {
		return nil, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
	}
	l.Info("socketcan_open", "if", cfg.canIf)

	bus := hostbus.New()
	tw := hostcan.NewTXWriter(ctx, dev, txQueueSize)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("socketcan_rx_end")
		if err := hostbus.Run(ctx, dev, bus); err != nil && ctx.Err() == nil {
			l.Warn("socketcan_rx_error", "error", err)
		}
	}()

	return &backend{
		bus:     bus,
		writer:  tw,
		cleanup: func() { _ = dev.Close(); tw.Close() },
	}, nil
}
