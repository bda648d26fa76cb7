package device

import (
	"testing"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

func testState(t *testing.T) *State {
	t.Helper()
	return New(Config{
		Serial:      wire.Serial{1, 2, 3, 4, 5},
		PageSize:    16,
		PartSize:    5,
		StagingBase: 0,
	})
}

// fakeTransceiver always has a free mailbox and records every frame sent
// through it, decoded back to its Kind for easy assertion.
type fakeTransceiver struct {
	sentKinds []wire.Kind
}

func (f *fakeTransceiver) TrySend(raw RawFrame) (*RawFrame, error) {
	if fr, ok := decodeRaw(raw); ok {
		f.sentKinds = append(f.sentKinds, fr.Kind)
	}
	return nil, nil
}

func (f *fakeTransceiver) Receive() (RawFrame, error) { return RawFrame{}, ErrFIFOEmpty }

func TestDispatch_SerialRequest_Replies(t *testing.T) {
	d := testState(t)
	d.Dispatch(wire.NewSerialRequest())
	if d.TxQueue().Len() != 1 {
		t.Fatalf("queue len = %d, want 1", d.TxQueue().Len())
	}
	tx := &fakeTransceiver{}
	d.TxQueue().Drain(tx, d.SubID())
	if len(tx.sentKinds) != 1 || tx.sentKinds[0] != wire.KindSerial {
		t.Fatalf("sent = %v, want [KindSerial]", tx.sentKinds)
	}
}

func TestDispatch_DynID_AssignsSubID(t *testing.T) {
	d := testState(t)
	serial := wire.Serial{1, 2, 3, 4, 5}
	d.Dispatch(wire.NewDynID(wire.DynIdAssignment{Serial: serial, DynID: 10}))
	if got := d.SubID(); byte(got) != 10 {
		t.Fatalf("SubID low byte = %d, want 10", byte(got))
	}
	if !d.Accepts(d.SubID()) {
		t.Fatalf("device should accept its own SubId")
	}
	if !d.Accepts(wire.SubId(0)) {
		t.Fatalf("device should always accept the broadcast SubId")
	}
}

func TestDispatch_DynID_WrongSerialIgnored(t *testing.T) {
	d := testState(t)
	other := wire.Serial{9, 9, 9, 9, 9}
	d.Dispatch(wire.NewDynID(wire.DynIdAssignment{Serial: other, DynID: 10}))
	if d.SubID() != 0 {
		t.Fatalf("SubID = %v, want 0 (unassigned)", d.SubID())
	}
}

func TestDispatch_UploadPart_PagesFlushOnBoundary(t *testing.T) {
	d := testState(t)
	tx := &fakeTransceiver{}
	flash := newFakeFlash(64)

	for i := 0; i < 3; i++ {
		part, err := wire.UploadPartFromFields(uint32(i), [5]byte{byte(i), byte(i), byte(i), byte(i), byte(i)})
		if err != nil {
			t.Fatalf("UploadPartFromFields: %v", err)
		}
		d.Dispatch(wire.NewUploadPart(part))
	}
	// Three parts of 5 bytes = 15 buffered, page is 16: not ready yet.
	d.Tick(flash)
	if flash.erased != 0 || flash.programmed != 0 {
		t.Fatalf("expected no page flush yet")
	}

	part, _ := wire.UploadPartFromFields(3, [5]byte{9, 9, 9, 9, 9})
	d.Dispatch(wire.NewUploadPart(part))
	// 20 bytes buffered >= page (16): PutPart should have queued a Pause(true).
	if d.TxQueue().Len() != 1 {
		t.Fatalf("expected a queued Pause(true) frame, queue len = %d", d.TxQueue().Len())
	}
	d.TxQueue().Drain(tx, d.SubID())

	d.Tick(flash)
	if flash.erased != 1 || flash.programmed != 1 {
		t.Fatalf("expected exactly one page flush, erased=%d programmed=%d", flash.erased, flash.programmed)
	}
	d.TxQueue().Drain(tx, d.SubID())

	if len(tx.sentKinds) != 2 {
		t.Fatalf("sent = %v, want a Pause(true) followed by a Pause(false)", tx.sentKinds)
	}
	for _, k := range tx.sentKinds {
		if k != wire.KindUploadPause {
			t.Fatalf("sent = %v, want only KindUploadPause frames", tx.sentKinds)
		}
	}
}

func TestDispatch_UploadFinished_PadsAndPauses(t *testing.T) {
	d := testState(t)
	part, _ := wire.UploadPartFromFields(0, [5]byte{1, 2, 3, 4, 5})
	d.Dispatch(wire.NewUploadPart(part))

	d.Dispatch(wire.NewUploadFinished())
	if d.TxQueue().Len() != 1 {
		t.Fatalf("expected the finished-triggered Pause(true) queued, got %d", d.TxQueue().Len())
	}

	flash := newFakeFlash(64)
	d.Tick(flash)
	if flash.erased != 1 {
		t.Fatalf("expected the zero-padded page to flush, erased=%d", flash.erased)
	}
	// finished doesn't touch paused; the following paused block clears it
	// and echoes Pause(false), same as any other un-pause.
	if d.TxQueue().Len() != 2 {
		t.Fatalf("expected the finished Pause(true) plus an un-pause echo, queue len = %d", d.TxQueue().Len())
	}
	tx := &fakeTransceiver{}
	d.TxQueue().Drain(tx, d.SubID())
	if len(tx.sentKinds) != 2 || tx.sentKinds[0] != wire.KindUploadPause || tx.sentKinds[1] != wire.KindUploadPause {
		t.Fatalf("sent = %v, want a Pause(true) followed by a Pause(false)", tx.sentKinds)
	}
}

func TestDispatch_StartUpdate_RequiresPendingImage(t *testing.T) {
	called := false
	d := New(Config{
		Serial:      wire.Serial{1, 2, 3, 4, 5},
		PageSize:    16,
		PartSize:    5,
		StagingBase: 0,
		Reset:       func() { called = true },
	})
	d.Dispatch(wire.NewStartUpdate())
	if called {
		t.Fatalf("reset should not be called without a validated pending image")
	}
}

type fakeFlash struct {
	region     []byte
	erased     int
	programmed int
}

func newFakeFlash(size int) *fakeFlash {
	r := make([]byte, size)
	for i := range r {
		r[i] = 0xFF
	}
	return &fakeFlash{region: r}
}

func (f *fakeFlash) Erase(addr uint32) error {
	f.erased++
	return nil
}

func (f *fakeFlash) Program(addr uint32, data []byte) error {
	f.programmed++
	copy(f.region[addr:], data)
	return nil
}

func (f *fakeFlash) ReadAt(offset uint32, buf []byte) error {
	copy(buf, f.region[offset:])
	return nil
}
