//go:build linux

package hostcan

import (
	"context"
	"errors"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/can"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/metrics"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/transport"
)

// ErrTxOverflow is returned by TXWriter.SendFrame when the async buffer is
// full.
var ErrTxOverflow = errors.New("hostcan: tx overflow")

// Dev is the minimal interface TXWriter needs from a Device, so tests can
// substitute a fake.
type Dev interface {
	ReadFrame(*can.Frame) error
	WriteFrame(can.Frame) error
	Close() error
}

// TXWriter funnels all outbound SocketCAN writes through a single
// goroutine via the shared transport.AsyncTx, so callers of SendFrame never
// block on a slow or wedged socket.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, dev Dev, buf int) *TXWriter {
	send := func(fr can.Frame) error { return dev.WriteFrame(fr) }
	hooks := transport.Hooks{
		OnError: func(err error) { metrics.IncError(metrics.ErrCANWrite) },
		OnAfter: func() { metrics.IncCANTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrCANWrite)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues a frame for asynchronous write (drops with
// ErrTxOverflow if the buffer is full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// WriteFrame satisfies hostbus.Writer for callers that address frames by
// raw id rather than composing them through wire.Encode directly.
func (w *TXWriter) WriteFrame(fr can.Frame) error { return w.SendFrame(fr) }

// Close stops the writer and waits for the worker goroutine to finish.
func (w *TXWriter) Close() { w.base.Close() }
