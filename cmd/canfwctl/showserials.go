package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/orchestrator"
)

func runShowSerials(ctx context.Context, cfg *appConfig, b *backend, l *slog.Logger) error {
	serials, err := orchestrator.EnumerateSerials(ctx, b.bus, b.writer, cfg.enumerateFor)
	if err != nil {
		return err
	}
	if len(serials) == 0 {
		fmt.Println("no devices answered")
		return nil
	}
	for _, s := range serials {
		fmt.Println(s.String())
	}
	return nil
}
