//go:build linux

package hostcan

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/can"
)

// pairedDevices returns two Devices sharing a connected AF_UNIX datagram
// socketpair, standing in for a real AF_CAN socket: ReadFrame/WriteFrame
// only ever do a fixed-size unix.Read/unix.Write against d.fd, so any
// connected datagram socket exercises the same framing logic.
func pairedDevices(t *testing.T) (*Device, *Device) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	a := &Device{fd: fds[0]}
	b := &Device{fd: fds[1]}
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func TestDevice_WriteFrameSetsExtendedFlag(t *testing.T) {
	a, b := pairedDevices(t)

	fr := can.Frame{CANID: 0x1234, Len: 3}
	copy(fr.Data[:], []byte{1, 2, 3})
	if err := a.WriteFrame(fr); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var got can.Frame
	if err := b.ReadFrame(&got); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.CANID != fr.CANID|can.CAN_EFF_FLAG {
		t.Fatalf("CANID = %#x, want %#x", got.CANID, fr.CANID|can.CAN_EFF_FLAG)
	}
	if got.Len != 3 {
		t.Fatalf("Len = %d, want 3", got.Len)
	}
	if got.Data[0] != 1 || got.Data[1] != 2 || got.Data[2] != 3 {
		t.Fatalf("Data = %v, want [1 2 3 ...]", got.Data[:3])
	}
}

func TestDevice_ReadFrameRejectsNonExtended(t *testing.T) {
	a, b := pairedDevices(t)

	var buf [unix.CAN_MTU]byte
	buf[4] = 0
	if _, err := unix.Write(a.fd, buf[:]); err != nil {
		t.Fatalf("raw write: %v", err)
	}

	var got can.Frame
	err := b.ReadFrame(&got)
	if err != ErrNotExtended {
		t.Fatalf("err = %v, want ErrNotExtended", err)
	}
}

func TestDevice_ReadFrameClampsOversizeDLC(t *testing.T) {
	a, b := pairedDevices(t)

	var buf [unix.CAN_MTU]byte
	buf[0] = 0x42
	buf[3] = 0x80 // CAN_EFF_FLAG, little-endian
	buf[4] = 12   // DLC beyond the classic maximum of 8
	if _, err := unix.Write(a.fd, buf[:]); err != nil {
		t.Fatalf("raw write: %v", err)
	}

	var got can.Frame
	if err := b.ReadFrame(&got); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Len != 8 {
		t.Fatalf("Len = %d, want 8", got.Len)
	}
}
