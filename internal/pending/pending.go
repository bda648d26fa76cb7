// Package pending implements the staged-image validator and the
// image-on-disk builder described in SPEC_FULL.md §4.6 and §6.
package pending

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// MaxPayloadLength guards against reading an erased (all-0xFF) or otherwise
// uninitialised staging region as a valid image.
const MaxPayloadLength = 512 * 1024

// headerSize is the 4-byte length field plus the 8-byte embedded Version.
const headerSize = 4 + 8

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Reader is the minimal capability the validator needs from the staging
// flash region: random-access byte reads. Implemented by the device's flash
// peripheral or, in tests, a plain byte slice.
type Reader interface {
	ReadAt(offset uint32, buf []byte) error
}

// BytesReader adapts a plain byte slice to Reader, for tests and for the
// image-builder's own self-check.
type BytesReader []byte

func (b BytesReader) ReadAt(offset uint32, buf []byte) error {
	if uint64(offset)+uint64(len(buf)) > uint64(len(b)) {
		return fmt.Errorf("pending: read past end of region (offset=%d len=%d region=%d)", offset, len(buf), len(b))
	}
	copy(buf, b[offset:])
	return nil
}

// Validate implements SPEC_FULL.md §4.6: it reads the payload length,
// embedded version, and trailing CRC32C from r starting at base, and
// returns the version and payload only if the CRC matches. ok=false (with a
// nil error) means "no valid pending image" — not a failure, per the
// documented "all-0xFF reads as invalid length" rule.
func Validate(r Reader, base uint32) (v wire.Version, payload []byte, ok bool, err error) {
	var lenBuf [4]byte
	if err := r.ReadAt(base, lenBuf[:]); err != nil {
		return wire.Version{}, nil, false, err
	}
	payloadLength := binary.BigEndian.Uint32(lenBuf[:])
	if payloadLength > MaxPayloadLength {
		return wire.Version{}, nil, false, nil
	}

	headerAndPayload := make([]byte, 4+int(payloadLength))
	if err := r.ReadAt(base, headerAndPayload); err != nil {
		return wire.Version{}, nil, false, err
	}
	if len(headerAndPayload) < headerSize {
		return wire.Version{}, nil, false, nil
	}
	var vb [8]byte
	copy(vb[:], headerAndPayload[4:headerSize])
	v = wire.VersionFromBytes(vb)

	var crcBuf [4]byte
	if err := r.ReadAt(base+4+payloadLength, crcBuf[:]); err != nil {
		return wire.Version{}, nil, false, err
	}
	expectedCRC := binary.BigEndian.Uint32(crcBuf[:])
	actualCRC := crc32.Checksum(headerAndPayload, castagnoliTable)
	if actualCRC != expectedCRC {
		return wire.Version{}, nil, false, nil
	}
	return v, headerAndPayload[headerSize:], true, nil
}

// BuildImage packs version and payload into the on-disk format consumed by
// Validate and by the uploader: BE32(8+len(payload)) ++ Version ++ payload
// ++ BE32(crc32c over the preceding bytes).
func BuildImage(v wire.Version, payload []byte) []byte {
	length := 8 + len(payload)
	out := make([]byte, 4+length+4)
	binary.BigEndian.PutUint32(out[0:4], uint32(length))
	vb := v.Bytes()
	copy(out[4:12], vb[:])
	copy(out[12:12+len(payload)], payload)
	crc := crc32.Checksum(out[:4+length], castagnoliTable)
	binary.BigEndian.PutUint32(out[4+length:], crc)
	return out
}
