//go:build linux

// Package hostcan implements the host side of the CAN transport: a raw
// Linux SocketCAN socket restricted to 29-bit extended identifiers, the
// only addressing mode this protocol uses. CAN FD and standard (11-bit)
// frame handling are dropped since neither is ever produced or expected
// here.
package hostcan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/can"
)

// ErrNotExtended is returned by ReadFrame when the kernel hands back a
// frame without the EFF flag set; this protocol never uses 11-bit ids.
var ErrNotExtended = errors.New("hostcan: received a non-extended frame")

// Device wraps one raw AF_CAN/SOCK_RAW/CAN_RAW socket bound to an
// interface.
type Device struct {
	fd int
}

// Open binds a raw CAN socket to the named interface (e.g. "can0"),
// disabling CAN FD frames since this protocol only ever sends classic
// (<=8 byte) frames.
func Open(iface string) (*Device, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("hostcan: socket(AF_CAN): %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 0); err != nil {
		if err != unix.ENOPROTOOPT {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("hostcan: disable CAN FD: %w", err)
		}
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("hostcan: if %q: %w", iface, err)
	}
	sa := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("hostcan: bind(can@%s): %w", iface, err)
	}
	return &Device{fd: fd}, nil
}

// Close releases the underlying socket.
func (d *Device) Close() error { return unix.Close(d.fd) }

// ReadFrame reads one classic CAN frame and rejects anything not carrying
// the extended-id flag.
func (d *Device) ReadFrame(fr *can.Frame) error {
	var buf [unix.CAN_MTU]byte
	n, err := unix.Read(d.fd, buf[:])
	if err != nil {
		return err
	}
	if n != unix.CAN_MTU {
		return fmt.Errorf("hostcan: short read: %d", n)
	}

	id := binary.LittleEndian.Uint32(buf[0:4])
	if id&can.CAN_EFF_FLAG == 0 {
		return ErrNotExtended
	}
	dlc := int(buf[4])
	if dlc < 0 || dlc > 8 {
		dlc = 8
	}

	fr.CANID = id
	fr.Len = uint8(dlc)
	copy(fr.Data[:], buf[8:8+dlc])
	return nil
}

// WriteFrame writes one classic CAN frame, forcing the extended-id flag on
// since every identifier this protocol composes is already a 29-bit raw id
// (see internal/wire.ComposeRawID).
func (d *Device) WriteFrame(fr can.Frame) error {
	var buf [unix.CAN_MTU]byte
	binary.LittleEndian.PutUint32(buf[0:4], fr.CANID|can.CAN_EFF_FLAG)
	buf[4] = fr.Len
	copy(buf[8:], fr.Data[:fr.Len])
	_, err := unix.Write(d.fd, buf[:])
	return err
}
