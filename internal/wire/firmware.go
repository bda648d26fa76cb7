package wire

import (
	"encoding/binary"
	"fmt"
)

// MaxPartPosition is the largest representable 24-bit part position.
const MaxPartPosition uint32 = 0xFFFFFF

// UploadPartChangePos asks the host to resume uploading from a given part
// position (24-bit, big-endian on the wire).
type UploadPartChangePos uint32

// UploadPartChangePosFromPosition validates pos against the 24-bit range.
func UploadPartChangePosFromPosition(pos uint32) (UploadPartChangePos, error) {
	if pos > MaxPartPosition {
		return 0, fmt.Errorf("wire: change-pos %d exceeds %d", pos, MaxPartPosition)
	}
	return UploadPartChangePos(pos), nil
}

// Bytes encodes the 24-bit big-endian wire form.
func (p UploadPartChangePos) Bytes() [3]byte {
	var b [3]byte
	put24BE(b[:], uint32(p))
	return b
}

// UploadPartChangePosFromBytes decodes the 24-bit big-endian wire form.
func UploadPartChangePosFromBytes(b [3]byte) UploadPartChangePos {
	return UploadPartChangePos(get24BE(b[:]))
}

// UploadPart carries one 5-byte firmware fragment at a given part position.
type UploadPart struct {
	Position uint32
	Data     [5]byte
}

// UploadPartFromFields validates position against the 24-bit range.
func UploadPartFromFields(position uint32, data [5]byte) (UploadPart, error) {
	if position > MaxPartPosition {
		return UploadPart{}, fmt.Errorf("wire: part position %d exceeds %d", position, MaxPartPosition)
	}
	return UploadPart{Position: position, Data: data}, nil
}

// Bytes encodes the 8-byte wire form: 24-bit BE position, then 5 data bytes.
func (p UploadPart) Bytes() [8]byte {
	var b [8]byte
	put24BE(b[:3], p.Position)
	copy(b[3:], p.Data[:])
	return b
}

// UploadPartFromBytes decodes the 8-byte wire form.
func UploadPartFromBytes(b [8]byte) UploadPart {
	var p UploadPart
	p.Position = get24BE(b[:3])
	copy(p.Data[:], b[3:])
	return p
}

func put24BE(b []byte, v uint32) {
	var full [4]byte
	binary.BigEndian.PutUint32(full[:], v)
	copy(b, full[1:])
}

func get24BE(b []byte) uint32 {
	var full [4]byte
	copy(full[1:], b)
	return binary.BigEndian.Uint32(full[:])
}
