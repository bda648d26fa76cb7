package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

// mdnsServiceType is this tool's mDNS service type; "_udp" since canfwctl
// has no TCP listener of its own (the advertised port, if any, belongs to
// the metrics HTTP endpoint).
const mdnsServiceType = "_canfwctl._udp"

// startMDNS registers this process via mDNS and returns a cleanup function.
// Safe to call even when disabled (no-op, nil error).
func startMDNS(ctx context.Context, cfg *appConfig) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("canfwctl-%s", host)
	}
	meta := []string{
		"backend=" + cfg.backend,
		"version=" + version,
		"commit=" + commit,
	}
	port := 0
	if cfg.metricsAddr != "" {
		if _, p, err := net.SplitHostPort(cfg.metricsAddr); err == nil {
			if n, err := strconv.Atoi(p); err == nil {
				port = n
			}
		}
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
