package hostserial

import (
	"bytes"
	"encoding/binary"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/can"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/metrics"
)

// Codec frames raw CAN frames over a byte stream using the UART bridge's
// fixed preamble: [0x2D, 0xD4, len, INS, FLAGS, id(4), payload(0..8), sum].
type Codec struct{}

// compactBuffer reclaims consumed prefix capacity once the underlying
// buffer grows large relative to the unread tail, so a long-lived stream
// doesn't grow its backing array without bound.
func compactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < 1024 {
		return false
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

func canUARTSend(data []byte) []byte {
	n := len(data)
	frame := make([]byte, n+4)
	frame[0] = 0x2D
	frame[1] = 0xD4
	frame[2] = byte(n + 1)

	sum := frame[2] + 0x2D
	for i, b := range data {
		frame[3+i] = b
		sum += b
	}
	frame[3+n] = sum
	return frame
}

// Encode frames f for transmission over the UART bridge.
func (Codec) Encode(f can.Frame) []byte {
	canID := f.CANID
	if f.CANID&can.CAN_EFF_FLAG != 0 {
		canID &= can.CAN_EFF_MASK
	}
	tab := make([]byte, 6+f.Len) // INS(1) + FLAGS(1) + ID(4) + payload(0..8)
	tab[0] = 2                   // CAN UART SEND WITH EXT ID
	tab[1] = 0x80 + f.Len
	tab[2] = byte(canID >> 24)
	tab[3] = byte(canID >> 16)
	tab[4] = byte(canID >> 8)
	tab[5] = byte(canID)
	copy(tab[6:], f.Data[:f.Len])
	return canUARTSend(tab[:6+f.Len])
}

// DecodeStream consumes complete frames out of in, calling out for each one
// it finds, and resyncing on the preamble after a length or checksum error.
func (Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	const (
		pre0  = 0x2D
		pre1  = 0xD4
		minLn = 6 + 0 + 1 // INS+FLAGS+ID, DLC=0, +checksum
		maxLn = 6 + 8 + 1 // DLC up to 8
	)
	header := []byte{pre0, pre1}

	for {
		data := in.Bytes()
		_ = compactBuffer(in)
		if len(data) < 3 {
			return nil
		}

		i := bytes.Index(data, header)
		if i < 0 {
			if in.Len() > 1 {
				last := data[len(data)-1]
				in.Reset()
				_ = in.WriteByte(last)
			}
			return nil
		}
		if i > 0 {
			in.Next(i)
			continue
		}

		if len(data) < 4 {
			return nil
		}
		ln := int(data[2])
		if ln < minLn || ln > maxLn {
			metrics.IncMalformed()
			in.Next(1)
			continue
		}

		req := 3 + ln
		if len(data) < req {
			return nil
		}

		sum := uint(pre0) + uint(data[2])
		for _, b := range data[3 : req-1] {
			sum += uint(b)
		}
		if byte(sum) != data[req-1] {
			metrics.IncMalformed()
			in.Next(1)
			continue
		}

		id := binary.BigEndian.Uint32(data[5:9])
		payload := data[9 : req-1]

		var f can.Frame
		f.CANID = id | can.CAN_EFF_FLAG
		f.Len = uint8(len(payload))
		copy(f.Data[:], payload)

		out(f)
		metrics.IncSerialRx()
		in.Next(req)
	}
}
