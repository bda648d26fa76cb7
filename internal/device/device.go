// Package device implements the device-resident half of the protocol: the
// receive dispatcher, the page-writer idle loop, and the bounded transmit
// priority queue described in SPEC_FULL.md §4.3, §4.5 and §4.7. It is a
// library meant to be linked into an embedded build (or exercised directly
// from tests); it never talks to real hardware itself, only to the
// Transceiver and Flash capabilities injected by its caller.
package device

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/accum"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/crc8"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/pending"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// Config bundles the construction-time parameters of a device State.
type Config struct {
	Serial      wire.Serial
	PageSize    int
	PartSize    int
	StagingBase uint32

	// Reset, when non-nil, is the injected capability invoked on a received
	// FirmwareStartUpdate when a validated pending image is on hand. Never
	// called from any other path.
	Reset func()

	// OnFrameReady, when non-nil, is called after a frame is pushed onto the
	// transmit queue so a caller can immediately attempt a drain.
	OnFrameReady func()

	Log *slog.Logger
}

// State is the full mutable state of one device instance: its assigned
// SubId, the part accumulator, the transmit queue, and the upload-in-
// progress flags the dispatcher and the page writer share.
type State struct {
	mu sync.Mutex

	serial wire.Serial
	subID  wire.SubId

	accum *accum.Accumulator
	tx    *TxQueue

	paused                   bool
	finished                 bool
	pendingFwVersionRequired bool
	hasPendingFW             bool

	stagingBase  uint32
	reset        func()
	onFrameReady func()
	log          *slog.Logger
}

// New constructs a device State ready to dispatch frames.
func New(cfg Config) *State {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &State{
		serial:       cfg.Serial,
		accum:        accum.New(cfg.PageSize, cfg.PartSize),
		tx:           NewTxQueue(txQueueCapacity),
		stagingBase:  cfg.StagingBase,
		reset:        cfg.Reset,
		onFrameReady: cfg.OnFrameReady,
		log:          log,
	}
}

// SubID reports the device's currently assigned sub-address (zero means
// unassigned).
func (d *State) SubID() wire.SubId {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subID
}

// TxQueue exposes the transmit priority queue so a driver loop can drain it
// against a Transceiver on mailbox-availability signals.
func (d *State) TxQueue() *TxQueue { return d.tx }

// Accepts reports whether a received frame's sub-address matches this
// device: either the broadcast address (SubId 0, used for enumeration and
// assignment) or the device's own assigned SubId.
func (d *State) Accepts(sub wire.SubId) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sub == wire.SubId(0) || (d.subID.IsValid() && sub == d.subID)
}

// Dispatch processes one decoded, address-matched frame, exactly mirroring
// the can_rx0 ISR's match arms in SPEC_FULL.md §4.3.
func (d *State) Dispatch(f wire.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch f.Kind {
	case wire.KindSerial:
		if f.Remote {
			d.enqueueLocked(wire.NewSerialData(d.serial))
		}

	case wire.KindDynID:
		if f.DynID.Serial != d.serial {
			return
		}
		c := crc8.Checksum(d.serial[:])
		c = crc8.Update(c, []byte{f.DynID.DynID})
		d.subID = wire.SubIDFromParts(c, f.DynID.DynID)

	case wire.KindHardwareVersion:
		// Hardware version replies are supplied by the embedder (board
		// identity is outside this library's scope); nothing to dispatch.

	case wire.KindFirmwareVersion:
		// Same as above: the running firmware's own version is supplied by
		// the embedder, not tracked here.

	case wire.KindPendingFirmwareVersion:
		if f.Remote {
			d.pendingFwVersionRequired = true
		}

	case wire.KindUploadPartChangePos:
		// Host-only frame (device never receives this one in practice); no
		// dispatcher action.

	case wire.KindUploadPause:
		// Host-only frame; the device only ever emits Pause, never consumes
		// one addressed to it.

	case wire.KindUploadPart:
		err := d.accum.PutPart(f.Part.Data[:], int(f.Part.Position))
		d.reactToPutPartLocked(err)

	case wire.KindUploadFinished:
		d.onUploadFinishedLocked()

	case wire.KindStartUpdate:
		if d.hasPendingFW {
			if d.reset != nil {
				d.reset()
			}
		} else {
			d.log.Warn("start_update requested with no validated pending image")
		}
	}
}

func (d *State) reactToPutPartLocked(err error) {
	switch {
	case err == nil:
		if d.accum.PageIsReady() && !d.paused {
			d.paused = true
			d.enqueueLocked(wire.NewUploadPause(true))
		}
	case errors.Is(err, accum.ErrNotEnoughSpace):
		if !d.paused {
			d.paused = true
			d.enqueueLocked(wire.NewUploadPause(true))
		}
	default:
		var lessErr *accum.LessOfMinPartError
		var moreErr *accum.MoreOfMaxPartError
		var pos uint32
		switch {
		case errors.As(err, &lessErr):
			pos = uint32(lessErr.P)
		case errors.As(err, &moreErr):
			pos = uint32(moreErr.P)
		default:
			d.log.Error("unexpected PutPart error", "error", err)
			return
		}
		cp, cpErr := wire.UploadPartChangePosFromPosition(pos)
		if cpErr != nil {
			d.log.Error("change_pos out of range", "pos", pos, "error", cpErr)
			return
		}
		d.enqueueLocked(wire.NewUploadPartChangePos(cp))
	}
}

// onUploadFinishedLocked pads the accumulator with zero-value parts until a
// final partial page becomes a full page, then pauses the link for the page
// writer to flush it. See SPEC_FULL.md §4.5 / resolved Open Question 2.
func (d *State) onUploadFinishedLocked() {
	zero := make([]byte, d.accum.PartSize())
	for !d.accum.PageIsReady() {
		if err := d.accum.PutPart(zero, d.accum.LoadedPartsCount()); err != nil {
			d.log.Error("zero-pad to page boundary failed", "error", err)
			break
		}
	}
	d.paused = true
	d.finished = true
	d.enqueueLocked(wire.NewUploadPause(true))
}

func (d *State) enqueueLocked(f wire.Frame) {
	if err := d.tx.Enqueue(f); err != nil {
		d.log.Warn("transmit queue full, frame dropped", "kind", f.Kind)
		return
	}
	if d.onFrameReady != nil {
		d.onFrameReady()
	}
}

// Tick runs the page-writer idle loop against flash: flush every ready page,
// clear the finished upload's state, echo the un-pause, and answer a pending
// PendingFirmwareVersion query. See SPEC_FULL.md §4.5.
func (d *State) Tick(flash Flash) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		page, idx, ok := d.accum.GetPage()
		if !ok {
			break
		}
		addr := d.stagingBase + uint32(idx)*uint32(len(page))
		if err := flash.Erase(addr); err != nil {
			d.log.Error("flash erase failed", "addr", addr, "error", err)
		} else if err := flash.Program(addr, page); err != nil {
			d.log.Error("flash program failed", "addr", addr, "error", err)
		}
		d.accum.RemovePage()
		d.hasPendingFW = false
	}

	if d.finished {
		d.finished = false
		d.accum.Reset()
	}

	if d.paused {
		d.paused = false
		d.enqueueLocked(wire.NewUploadPause(false))
	}

	if d.pendingFwVersionRequired {
		d.pendingFwVersionRequired = false
		v, _, ok, err := pending.Validate(flash, d.stagingBase)
		if err != nil {
			d.log.Error("pending image validation failed", "error", err)
		}
		if ok {
			d.hasPendingFW = true
			d.enqueueLocked(wire.NewPendingFirmwareVersionData(&v))
		} else {
			d.hasPendingFW = false
			d.enqueueLocked(wire.NewPendingFirmwareVersionData(nil))
		}
	}
}
