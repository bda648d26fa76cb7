package wire

import "encoding/binary"

// Version identifies a firmware build: major.minor.patch plus a build number.
type Version struct {
	Major byte
	Minor byte
	Patch uint16
	Build uint32
}

// Bytes encodes the version to its 8-byte wire form.
func (v Version) Bytes() [8]byte {
	var b [8]byte
	b[0] = v.Major
	b[1] = v.Minor
	binary.BigEndian.PutUint16(b[2:4], v.Patch)
	binary.BigEndian.PutUint32(b[4:8], v.Build)
	return b
}

// VersionFromBytes decodes the 8-byte wire form of a Version.
func VersionFromBytes(b [8]byte) Version {
	return Version{
		Major: b[0],
		Minor: b[1],
		Patch: binary.BigEndian.Uint16(b[2:4]),
		Build: binary.BigEndian.Uint32(b[4:8]),
	}
}
