// Command canfwctl drives firmware updates for STM32 boards over a CAN bus:
// enumerate serials present on the bus, assign a device a dynamic id, push
// a firmware image, and activate it once validated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/metrics"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// Global flags (--backend, --can-if, ...) come before the subcommand
	// name; flag.Parse stops at the first non-flag argument, so the
	// subcommand and its own flags land in the remainder untouched.
	cfg, rest, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if len(rest) == 0 {
		usage()
		os.Exit(2)
	}
	sub := rest[0]
	subArgs := rest[1:]

	if sub == "version" {
		fmt.Printf("canfwctl %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
	}()

	var wg sync.WaitGroup
	b, err := initBackend(ctx, cfg, l, &wg)
	if err != nil {
		l.Error("backend_init_error", "error", err)
		os.Exit(1)
	}
	defer b.cleanup()

	cleanupMDNS, err := startMDNS(ctx, cfg)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
	} else {
		defer cleanupMDNS()
	}

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}
	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })

	switch sub {
	case "show-serials":
		err = runShowSerials(ctx, cfg, b, l)
	case "upgrade-fw":
		err = runUpgradeFW(ctx, cfg, b, l, subArgs)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		l.Error("command_failed", "command", sub, "error", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}
	cancel()
	wg.Wait()
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: canfwctl <show-serials|upgrade-fw|version> [flags]")
	fmt.Fprintln(os.Stderr, "  show-serials                 list devices currently answering on the bus")
	fmt.Fprintln(os.Stderr, "  upgrade-fw --file-path F --serial S   upload and activate firmware on a device")
}
