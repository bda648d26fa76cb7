package hostserial

import (
	"context"
	"errors"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/can"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/logging"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/metrics"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/transport"
)

// ErrTxOverflow is returned by TXWriter.SendFrame when the async buffer is
// full.
var ErrTxOverflow = errors.New("hostserial: tx overflow")

// TXWriter funnels all outbound UART writes through a single goroutine via
// the shared transport.AsyncTx.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, p Port, codec Codec, buf int) *TXWriter {
	send := func(fr can.Frame) error {
		_, err := p.Write(codec.Encode(fr))
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			logging.L().Error("serial_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncSerialTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialWrite)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues a frame for asynchronous write.
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for the worker goroutine to finish.
func (w *TXWriter) Close() { w.base.Close() }

// WriteFrame satisfies the hostbus.Writer / hostserial transport shape by
// queuing raw for asynchronous write.
func (w *TXWriter) WriteFrame(raw can.Frame) error { return w.SendFrame(raw) }
