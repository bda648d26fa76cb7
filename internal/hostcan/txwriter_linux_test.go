//go:build linux

package hostcan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/can"
)

type fakeDev struct {
	mu    sync.Mutex
	sent  []can.Frame
	block chan struct{}
}

func (f *fakeDev) WriteFrame(fr can.Frame) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.sent = append(f.sent, fr)
	f.mu.Unlock()
	return nil
}

func (f *fakeDev) ReadFrame(*can.Frame) error { return nil }
func (f *fakeDev) Close() error               { return nil }

func (f *fakeDev) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestTXWriter_SendsQueuedFrames(t *testing.T) {
	dev := &fakeDev{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewTXWriter(ctx, dev, 8)
	defer w.Close()

	for i := 0; i < 5; i++ {
		if err := w.SendFrame(can.Frame{CANID: uint32(i)}); err != nil {
			t.Fatalf("SendFrame(%d): %v", i, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for dev.count() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := dev.count(); got != 5 {
		t.Fatalf("dev received %d frames, want 5", got)
	}
}

func TestTXWriter_DropsWhenBufferFull(t *testing.T) {
	dev := &fakeDev{block: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewTXWriter(ctx, dev, 1)
	defer w.Close()
	// Registered last so it runs first: the worker must be released from
	// dev.block before Close waits for it.
	defer close(dev.block)

	// First send is picked up by the worker and blocks on dev.block; the
	// second fills the single-slot buffer; the third has nowhere to go.
	if err := w.SendFrame(can.Frame{CANID: 1}); err != nil {
		t.Fatalf("first SendFrame: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := w.SendFrame(can.Frame{CANID: 2}); err != nil {
		t.Fatalf("second SendFrame: %v", err)
	}

	var overflowErr error
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if err := w.SendFrame(can.Frame{CANID: 3}); err != nil {
			overflowErr = err
			break
		}
	}
	if overflowErr != ErrTxOverflow {
		t.Fatalf("err = %v, want ErrTxOverflow", overflowErr)
	}
}
