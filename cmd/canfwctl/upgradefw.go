package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/orchestrator"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

func runUpgradeFW(ctx context.Context, cfg *appConfig, b *backend, l *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("upgrade-fw", flag.ContinueOnError)
	filePath := fs.String("file-path", "", "Path to the firmware image to upload")
	serialStr := fs.String("serial", "", "Target device serial, as 10 hex digits")
	dynID := fs.Int("dyn-id", 10, "Dynamic id to request for this session")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *filePath == "" || *serialStr == "" {
		return fmt.Errorf("upgrade-fw: --file-path and --serial are required")
	}

	serial, err := wire.ParseSerial(*serialStr)
	if err != nil {
		return fmt.Errorf("upgrade-fw: %w", err)
	}
	data, err := os.ReadFile(*filePath)
	if err != nil {
		return fmt.Errorf("upgrade-fw: read %s: %w", *filePath, err)
	}

	l.Info("assign_start", "serial", serial.String())
	sub, err := orchestrator.Assign(ctx, b.bus, b.writer, serial, byte(*dynID))
	if err != nil {
		return fmt.Errorf("upgrade-fw: assign: %w", err)
	}
	l.Info("assign_done", "sub_id", sub)

	start := time.Now()
	if err := orchestrator.Upload(ctx, b.bus, b.writer, sub, data); err != nil {
		return fmt.Errorf("upgrade-fw: upload: %w", err)
	}
	l.Info("upload_done", "elapsed", time.Since(start))

	v, err := orchestrator.Activate(ctx, b.bus, b.writer, sub)
	if err != nil {
		return fmt.Errorf("upgrade-fw: activate: %w", err)
	}
	fmt.Printf("upload successful, activated firmware %d.%d.%d build %d\n", v.Major, v.Minor, v.Patch, v.Build)
	return nil
}
