package device

import "errors"

// ErrMailboxFull is returned by Transceiver.TrySend when no hardware
// transmit mailbox is free for a new frame.
var ErrMailboxFull = errors.New("device: no free transmit mailbox")

// ErrFIFOEmpty is returned by Transceiver.Receive when the hardware receive
// FIFO has nothing queued.
var ErrFIFOEmpty = errors.New("device: receive fifo empty")

// ErrOverrun is returned by Transceiver.Receive when the hardware reports a
// receive FIFO overrun; the caller should log and keep draining.
var ErrOverrun = errors.New("device: receive fifo overrun")

// RawFrame is a single CAN frame as the hardware transceiver sees it: a
// 29-bit extended identifier, a remote/data flag, and up to 8 payload bytes.
type RawFrame struct {
	ID     uint32
	Remote bool
	DLC    uint8
	Data   [8]byte
}

// Transceiver is the injected capability over the device's CAN peripheral.
// It is named by capability, not by chip family: an embedder wires it to
// whatever hardware abstraction its build target provides.
type Transceiver interface {
	// TrySend attempts to place f in a free mailbox. If every mailbox is
	// occupied by a higher-priority frame it returns ErrMailboxFull. If
	// placing f evicted a lower-priority frame already queued in hardware,
	// that frame is returned in bumped so the caller can re-enqueue it.
	TrySend(f RawFrame) (bumped *RawFrame, err error)

	// Receive returns the next frame from the hardware receive FIFO, or
	// ErrFIFOEmpty if none is pending.
	Receive() (RawFrame, error)
}

// Flash is the injected capability over the staging flash region. Offsets
// are relative to the device's own address space, matching how Config.
// StagingBase is interpreted.
type Flash interface {
	Erase(addr uint32) error
	Program(addr uint32, data []byte) error
	ReadAt(offset uint32, buf []byte) error
}
