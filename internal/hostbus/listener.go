package hostbus

import (
	"context"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/can"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/logging"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/metrics"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// Reader is the minimal capability the listener needs from a transport:
// one blocking read per call. Implemented by *hostcan.Device and, in
// tests, by a fake.
type Reader interface {
	ReadFrame(*can.Frame) error
}

// Writer is the minimal capability needed to transmit a raw frame.
type Writer interface {
	WriteFrame(can.Frame) error
}

// Run reads frames from r until ctx is cancelled or ReadFrame returns an
// error, decoding each one and broadcasting it on b. Malformed or
// unaddressable frames are counted and skipped, never torn down the loop.
func Run(ctx context.Context, r Reader, b *Bus) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var raw can.Frame
		if err := r.ReadFrame(&raw); err != nil {
			metrics.IncError(metrics.ErrCANRead)
			return err
		}
		metrics.IncCANRx()

		fid, sub, ok := wire.DecomposeRawID(raw.CANID)
		if !ok {
			metrics.IncMalformed()
			continue
		}
		var in wire.Input
		if raw.CANID&can.CAN_RTR_FLAG != 0 {
			in = wire.RemoteInput(raw.Len)
		} else {
			in = wire.DataInput(raw.Data[:raw.Len])
		}
		frame, err := wire.Decode(fid, in)
		if err != nil {
			metrics.IncMalformed()
			logging.L().Debug("dropped malformed frame", "frame_id", fid, "error", err)
			continue
		}
		b.Broadcast(Received{Frame: frame, Sub: sub})
	}
}

// WriteTo encodes f addressed to sub and writes it through w.
func WriteTo(w Writer, f wire.Frame, sub wire.SubId) error {
	fid, out := wire.Encode(f)
	raw := can.Frame{CANID: wire.ComposeRawID(fid, sub)}
	if out.Remote {
		raw.CANID |= can.CAN_RTR_FLAG
		raw.Len = out.DLC
	} else {
		raw.Len = uint8(len(out.Data))
		copy(raw.Data[:], out.Data)
	}
	if err := w.WriteFrame(raw); err != nil {
		metrics.IncError(metrics.ErrCANWrite)
		return err
	}
	metrics.IncCANTx()
	return nil
}
