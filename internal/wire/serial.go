package wire

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Serial is the device's fixed 5-byte opaque identity.
type Serial [5]byte

// String renders the serial as 10 uppercase hex digits.
func (s Serial) String() string {
	return strings.ToUpper(hex.EncodeToString(s[:]))
}

// ParseSerial parses 10 hex digits (either case) into a Serial.
func ParseSerial(s string) (Serial, error) {
	var out Serial
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("wire: parse serial %q: %w", s, err)
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("wire: serial %q must decode to %d bytes, got %d", s, len(out), len(b))
	}
	copy(out[:], b)
	return out, nil
}
