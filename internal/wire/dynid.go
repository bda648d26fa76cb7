package wire

// DynIdAssignment is the host's assignment of a dynamic id to a known serial.
type DynIdAssignment struct {
	Serial Serial
	DynID  byte
}

// Bytes encodes the assignment to its 6-byte wire form.
func (d DynIdAssignment) Bytes() [6]byte {
	var b [6]byte
	copy(b[:5], d.Serial[:])
	b[5] = d.DynID
	return b
}

// DynIdAssignmentFromBytes decodes the 6-byte wire form.
func DynIdAssignmentFromBytes(b [6]byte) DynIdAssignment {
	var d DynIdAssignment
	copy(d.Serial[:], b[:5])
	d.DynID = b[5]
	return d
}
