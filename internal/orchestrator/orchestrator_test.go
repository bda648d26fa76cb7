package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/can"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/crc8"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/hostbus"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// loopbackWriter implements hostbus.Writer by decoding whatever raw frame it
// is asked to write and re-broadcasting it on bus, the way a real CAN
// interface would loop a frame back to every other bus participant.
type loopbackWriter struct{ bus *hostbus.Bus }

func (w loopbackWriter) WriteFrame(raw can.Frame) error {
	fid, sub, ok := wire.DecomposeRawID(raw.CANID)
	if !ok {
		return nil
	}
	var in wire.Input
	if raw.CANID&can.CAN_RTR_FLAG != 0 {
		in = wire.RemoteInput(raw.Len)
	} else {
		in = wire.DataInput(raw.Data[:raw.Len])
	}
	frame, err := wire.Decode(fid, in)
	if err != nil {
		return nil
	}
	w.bus.Broadcast(hostbus.Received{Frame: frame, Sub: sub})
	return nil
}

// hub plays the device side of the protocol for exactly the frames the
// orchestrator functions under test send, so they can be exercised without
// hardware or the internal/device package.
type hub struct {
	bus    *hostbus.Bus
	w      hostbus.Writer
	serial wire.Serial
	subID  wire.SubId
	hasFW  bool
}

func (h *hub) serve(ctx context.Context) {
	s := h.bus.Subscribe()
	go h.loop(ctx, s)
}

func (h *hub) loop(ctx context.Context, s *hostbus.Subscriber) {
	defer s.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-s.In:
			if !ok {
				return
			}
			switch r.Frame.Kind {
			case wire.KindSerial:
				if r.Frame.Remote && (r.Sub == 0 || r.Sub == h.subID) {
					hostbus.WriteTo(h.w, wire.NewSerialData(h.serial), h.subID)
				}
			case wire.KindDynID:
				if r.Frame.DynID.Serial != h.serial {
					continue
				}
				c := crc8.Checksum(h.serial[:])
				c = crc8.Update(c, []byte{r.Frame.DynID.DynID})
				h.subID = wire.SubIDFromParts(c, r.Frame.DynID.DynID)
			case wire.KindPendingFirmwareVersion:
				if r.Frame.Remote && r.Sub == h.subID {
					if h.hasFW {
						v := wire.Version{Major: 9, Minor: 9, Patch: 9, Build: 9}
						hostbus.WriteTo(h.w, wire.NewPendingFirmwareVersionData(&v), h.subID)
					} else {
						hostbus.WriteTo(h.w, wire.NewPendingFirmwareVersionData(nil), h.subID)
					}
				}
			}
		}
	}
}

func TestAssign_ResolvesSubIDFromConfirmation(t *testing.T) {
	bus := hostbus.New()
	w := loopbackWriter{bus: bus}
	h := &hub{bus: bus, w: w, serial: wire.Serial{1, 2, 3, 4, 5}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.serve(ctx)

	sub, err := Assign(context.Background(), bus, w, h.serial, 10)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if sub.Split()[1] != 10 {
		t.Fatalf("resolved SubId's dyn id byte = %d, want 10", sub.Split()[1])
	}
}

func TestAssign_TimesOutWithoutDevice(t *testing.T) {
	bus := hostbus.New()
	w := loopbackWriter{bus: bus}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := Assign(ctx, bus, w, wire.Serial{9, 9, 9, 9, 9}, 1); err == nil {
		t.Fatalf("expected an error when no device answers")
	}
}

func TestActivate_NoPendingImage(t *testing.T) {
	bus := hostbus.New()
	w := loopbackWriter{bus: bus}
	h := &hub{bus: bus, w: w, serial: wire.Serial{1, 1, 1, 1, 1}, subID: wire.SubId(42), hasFW: false}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.serve(ctx)

	_, err := Activate(context.Background(), bus, w, wire.SubId(42))
	if err != ErrNoPendingImage {
		t.Fatalf("got error %v, want ErrNoPendingImage", err)
	}
}

func TestActivate_PendingImageStartsUpdate(t *testing.T) {
	bus := hostbus.New()
	w := loopbackWriter{bus: bus}
	h := &hub{bus: bus, w: w, serial: wire.Serial{2, 2, 2, 2, 2}, subID: wire.SubId(7), hasFW: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.serve(ctx)

	v, err := Activate(context.Background(), bus, w, wire.SubId(7))
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if v.Major != 9 || v.Build != 9 {
		t.Fatalf("got version %+v, want Major=9 Build=9", v)
	}
}

func TestActivate_TimesOutWithoutReply(t *testing.T) {
	bus := hostbus.New()
	w := loopbackWriter{bus: bus}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := Activate(ctx, bus, w, wire.SubId(42)); err == nil {
		t.Fatalf("expected an error when nothing replies")
	}
}
