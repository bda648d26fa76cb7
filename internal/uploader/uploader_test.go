package uploader

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/hostbus"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

type recordingWriter struct {
	mu    sync.Mutex
	parts []wire.UploadPart
}

func (r *recordingWriter) WriteTo(f wire.Frame, sub wire.SubId) error {
	if f.Kind == wire.KindUploadPart {
		r.mu.Lock()
		r.parts = append(r.parts, f.Part)
		r.mu.Unlock()
	}
	return nil
}

func (r *recordingWriter) snapshot() []wire.UploadPart {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.UploadPart, len(r.parts))
	copy(out, r.parts)
	return out
}

func TestUpload_SendsEveryPartInOrder(t *testing.T) {
	bus := hostbus.New()
	w := &recordingWriter{}
	file := []byte("hello world this is firmware")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Upload(ctx, bus, w, wire.SubId(7), file); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	parts := w.snapshot()
	wantParts := len(file)/partSize + 1
	if len(parts) < wantParts-1 || len(parts) > wantParts {
		t.Fatalf("got %d parts, want around %d", len(parts), wantParts)
	}

	var reassembled []byte
	for _, p := range parts {
		if int(p.Position) != len(reassembled)/partSize {
			t.Fatalf("part out of order: position %d at index %d", p.Position, len(reassembled)/partSize)
		}
		reassembled = append(reassembled, p.Data[:]...)
	}
	reassembled = reassembled[:len(file)]
	if string(reassembled) != string(file) {
		t.Fatalf("reassembled payload mismatch: got %q, want %q", reassembled, file)
	}
}

func TestUpload_HonorsChangePos(t *testing.T) {
	bus := hostbus.New()
	w := &recordingWriter{}
	file := make([]byte, partSize*4)
	for i := range file {
		file[i] = byte(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Upload(ctx, bus, w, wire.SubId(3), file) }()

	time.Sleep(30 * time.Millisecond)
	cp, err := wire.UploadPartChangePosFromPosition(0)
	if err != nil {
		t.Fatalf("UploadPartChangePosFromPosition: %v", err)
	}
	bus.Broadcast(hostbus.Received{Frame: wire.NewUploadPartChangePos(cp), Sub: wire.SubId(3)})

	if err := <-done; err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	parts := w.snapshot()
	if len(parts) < 5 {
		t.Fatalf("expected the rewind to resend part 0, got only %d parts", len(parts))
	}
}
