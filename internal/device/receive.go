package device

import (
	"errors"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// DrainReceiveFIFO pulls frames from rx until ErrFIFOEmpty, decoding and
// dispatching each one addressed to this device (broadcast or its own
// SubId). A decode failure or an address mismatch is logged or silently
// skipped respectively; an overrun is logged and draining continues.
func (d *State) DrainReceiveFIFO(rx Transceiver) {
	for {
		raw, err := rx.Receive()
		if err != nil {
			switch {
			case errors.Is(err, ErrFIFOEmpty):
				return
			case errors.Is(err, ErrOverrun):
				d.log.Warn("can receive fifo overrun")
				continue
			default:
				d.log.Error("can receive error", "error", err)
				return
			}
		}

		fid, sub, ok := wire.DecomposeRawID(raw.ID)
		if !ok || !d.Accepts(sub) {
			continue
		}

		var in wire.Input
		if raw.Remote {
			in = wire.RemoteInput(raw.DLC)
		} else {
			in = wire.DataInput(raw.Data[:raw.DLC])
		}
		frame, err := wire.Decode(fid, in)
		if err != nil {
			d.log.Debug("dropped malformed frame", "frame_id", fid, "error", err)
			continue
		}
		d.Dispatch(frame)
	}
}
