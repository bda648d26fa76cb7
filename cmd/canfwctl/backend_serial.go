package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/hostbus"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/hostserial"
)

const serialTxQueueSize = 1024

func initSerialBackend(ctx context.Context, cfg *appConfig, l *slog.Logger, wg *sync.WaitGroup) (*backend, error) {
	sp, err := hostserial.Open(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		return nil, fmt.Errorf("open serial: %w", err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud)

	bus := hostbus.New()
	codec := hostserial.Codec{}
	tw := hostserial.NewTXWriter(ctx, sp, codec, serialTxQueueSize)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("serial_rx_end")
		if err := hostserial.Run(ctx, sp, codec, bus); err != nil && ctx.Err() == nil {
			l.Warn("serial_rx_error", "error", err)
		}
	}()

	return &backend{
		bus:     bus,
		writer:  tw,
		cleanup: func() { _ = sp.Close(); tw.Close() },
	}, nil
}
