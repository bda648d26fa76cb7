//go:build !linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

func initSocketCANBackend(ctx context.Context, cfg *appConfig, l *slog.Logger, wg *sync.WaitGroup) (*backend, error) {
	return nil, fmt.Errorf("socketcan backend unsupported on this platform")
}
