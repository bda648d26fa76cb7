// Package uploader implements the host side of a firmware upload: a sender
// that walks a firmware image 5 bytes at a time over the CAN bus, and a
// receiver that watches the bus for the device's flow-control frames
// (UploadPartChangePos, UploadPause) and steers the sender accordingly. The
// two halves run concurrently, sharing a cursor and a pause flag, with the
// sender pacing itself between parts.
package uploader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/hostbus"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/logging"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/metrics"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/watchbool"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// pauseFlag is the shared pause/resume signal between the flow-control
// watcher and the sender.
type pauseFlag = watchbool.Watch

func newPauseFlag() *pauseFlag { return watchbool.New(false) }

const partSize = 5

// Writer is the capability the sender needs to put a frame on the wire,
// addressed to the device being uploaded to.
type Writer interface {
	WriteTo(f wire.Frame, sub wire.SubId) error
}

// busWriter adapts hostbus.WriteTo to the Writer interface.
type busWriter struct{ w hostbus.Writer }

func (b busWriter) WriteTo(f wire.Frame, sub wire.SubId) error { return hostbus.WriteTo(b.w, f, sub) }

// NewBusWriter wraps a raw hostbus.Writer (e.g. *hostcan.Device) as a Writer.
func NewBusWriter(w hostbus.Writer) Writer { return busWriter{w: w} }

// cursor is the part-index shared between the sender and the receiver: the
// receiver rewinds it on UploadPartChangePos, the sender advances it after
// every successfully sent part.
type cursor struct {
	mu  sync.Mutex
	pos int
}

func (c *cursor) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

func (c *cursor) set(p int) {
	c.mu.Lock()
	c.pos = p
	c.mu.Unlock()
}

func (c *cursor) advance() {
	c.mu.Lock()
	c.pos++
	c.mu.Unlock()
}

// Upload drives one full firmware upload to sub over bus, reading flow
// control back from bus and writing frames through w. It returns once the
// sender has walked off the end of file, after waiting (up to 20s) for any
// pause asserted by the device to clear.
func Upload(ctx context.Context, bus *hostbus.Bus, w Writer, sub wire.SubId, file []byte) error {
	pause := newPauseFlag()
	pos := &cursor{}

	sub1 := bus.Subscribe()
	defer sub1.Unsubscribe()

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchFlowControl(rctx, sub1, sub, pos, pause)
	}()

	err := sendParts(rctx, w, sub, file, pos, pause)
	waitPauseClear(pause, 20*time.Second)
	cancel()
	wg.Wait()

	return err
}

// watchFlowControl never returns except when ctx is cancelled or the
// subscription is force-closed, applying every UploadPartChangePos/
// UploadPause frame addressed to sub as it arrives.
func watchFlowControl(ctx context.Context, s *hostbus.Subscriber, sub wire.SubId, pos *cursor, pause *pauseFlag) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-s.In:
			if !ok {
				return
			}
			if r.Sub != sub {
				continue
			}
			switch r.Frame.Kind {
			case wire.KindUploadPartChangePos:
				pos.set(int(r.Frame.ChangePos))
			case wire.KindUploadPause:
				pause.Set(r.Frame.Pause)
				metrics.IncUploadPauseEvents()
			}
		case <-s.Lagged:
			logging.L().Warn("uploader fell behind the bus, flow control may be stale")
			return
		}
	}
}

// sendParts walks the file 5 bytes at a time from pos.get(), blocking on
// pause, retrying a transient "no buffer space" write failure after a short
// delay, and pacing every successfully sent part.
func sendParts(ctx context.Context, w Writer, sub wire.SubId, file []byte, pos *cursor, pause *pauseFlag) error {
	totalParts := len(file)/partSize + 1

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if pause.Get() {
			pause.WaitChangedContext(ctx, true)
			continue
		}

		p := pos.get()
		if p >= totalParts {
			return nil
		}

		offset := p * partSize
		end := offset + partSize
		if end > len(file) {
			end = len(file)
		}
		data := file[offset:end]
		if len(data) == 0 {
			return nil
		}

		var buf [partSize]byte
		copy(buf[:], data)
		part, err := wire.UploadPartFromFields(uint32(p), buf)
		if err != nil {
			return err
		}

		start := time.Now()
		sendErr := sendWithRetry(ctx, w, sub, part)
		metrics.ObserveUploadPartLatency(time.Since(start).Seconds())
		if sendErr != nil {
			return sendErr
		}

		metrics.IncUploadPartsSent()
		pos.advance()

		pace := 50 * time.Millisecond
		if p%2 != 0 {
			pace = 10 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pace):
		}
	}
}

// retryDelay is how long sendWithRetry waits before retrying a part that
// failed with a transient "no buffer space" condition (ENOBUFS).
const retryDelay = 20 * time.Millisecond

// maxRetries bounds how many times a single part is retried before giving
// up; an unbounded retry loop has no place in a library another program
// depends on to terminate.
const maxRetries = 50

func sendWithRetry(ctx context.Context, w Writer, sub wire.SubId, part wire.UploadPart) error {
	for attempt := 0; ; attempt++ {
		err := w.WriteTo(wire.NewUploadPart(part), sub)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTemporary) || attempt >= maxRetries {
			return err
		}
		metrics.IncUploadRetries()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// ErrTemporary should be wrapped by a Writer implementation's WriteTo to
// indicate a transient "no buffer space" style failure worth retrying.
var ErrTemporary = errors.New("uploader: temporary write failure")

func waitPauseClear(pause *pauseFlag, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for pause.Get() {
		if _, ok := pause.WaitChangedContext(ctx, true); !ok {
			return
		}
	}
}
