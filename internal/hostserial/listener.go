package hostserial

import (
	"bytes"
	"context"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/can"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/hostbus"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/logging"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/metrics"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// readBufSize is the chunk size read from the port per iteration; Run keeps
// unconsumed bytes in its own buffer so messages may span multiple reads.
const readBufSize = 256

// Run reads from p, decodes UART-framed CAN frames via codec, and
// broadcasts each one on b. It returns when ctx is cancelled or a port read
// fails.
func Run(ctx context.Context, p Port, codec Codec, b *hostbus.Bus) error {
	var buf bytes.Buffer
	chunk := make([]byte, readBufSize)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := p.Read(chunk)
		if err != nil {
			metrics.IncError(metrics.ErrSerialRead)
			return err
		}
		if n == 0 {
			continue
		}
		buf.Write(chunk[:n])

		decodeErr := codec.DecodeStream(&buf, func(raw can.Frame) {
			fid, sub, ok := wire.DecomposeRawID(raw.CANID)
			if !ok {
				metrics.IncMalformed()
				return
			}
			var in wire.Input
			if raw.CANID&can.CAN_RTR_FLAG != 0 {
				in = wire.RemoteInput(raw.Len)
			} else {
				in = wire.DataInput(raw.Data[:raw.Len])
			}
			frame, ferr := wire.Decode(fid, in)
			if ferr != nil {
				metrics.IncMalformed()
				logging.L().Debug("dropped malformed serial-bridged frame", "frame_id", fid, "error", ferr)
				return
			}
			b.Broadcast(hostbus.Received{Frame: frame, Sub: sub})
		})
		if decodeErr != nil {
			return decodeErr
		}
	}
}
