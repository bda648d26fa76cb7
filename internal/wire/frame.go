package wire

import "fmt"

// Kind discriminates the ten members of the Frame tagged union.
type Kind uint8

const (
	KindSerial Kind = iota
	KindDynID
	KindHardwareVersion
	KindFirmwareVersion
	KindPendingFirmwareVersion
	KindUploadPartChangePos
	KindUploadPause
	KindUploadPart
	KindUploadFinished
	KindStartUpdate
)

// Frame is the sum type of every message the protocol can carry. Only the
// fields relevant to Kind (and, for request/data ids, Remote) are valid;
// a flat struct avoids interface-based dispatch for what is otherwise a
// tagged union.
type Frame struct {
	Kind Kind

	// Remote distinguishes a value request from a value reply, for the ids
	// that support both (Serial, HardwareVersion, FirmwareVersion,
	// PendingFirmwareVersion).
	Remote bool

	Serial     Serial
	DynID      DynIdAssignment
	Version    Version
	HasVersion bool // for PendingFirmwareVersion's optional Data(Some/None)
	ChangePos  UploadPartChangePos
	Pause      bool
	Part       UploadPart
}

// NewSerialRequest builds a Serial remote-request frame.
func NewSerialRequest() Frame { return Frame{Kind: KindSerial, Remote: true} }

// NewSerialData builds a Serial reply frame.
func NewSerialData(s Serial) Frame { return Frame{Kind: KindSerial, Serial: s} }

// NewDynID builds a dynamic-id assignment frame.
func NewDynID(d DynIdAssignment) Frame { return Frame{Kind: KindDynID, DynID: d} }

// NewHardwareVersionRequest builds a HardwareVersion remote-request frame.
func NewHardwareVersionRequest() Frame {
	return Frame{Kind: KindHardwareVersion, Remote: true}
}

// NewHardwareVersionData builds a HardwareVersion reply frame.
func NewHardwareVersionData(v Version) Frame {
	return Frame{Kind: KindHardwareVersion, Version: v, HasVersion: true}
}

// NewFirmwareVersionRequest builds a FirmwareVersion remote-request frame.
func NewFirmwareVersionRequest() Frame {
	return Frame{Kind: KindFirmwareVersion, Remote: true}
}

// NewFirmwareVersionData builds a FirmwareVersion reply frame.
func NewFirmwareVersionData(v Version) Frame {
	return Frame{Kind: KindFirmwareVersion, Version: v, HasVersion: true}
}

// NewPendingFirmwareVersionRequest builds a PendingFirmwareVersion
// remote-request frame.
func NewPendingFirmwareVersionRequest() Frame {
	return Frame{Kind: KindPendingFirmwareVersion, Remote: true}
}

// NewPendingFirmwareVersionData builds a PendingFirmwareVersion reply frame.
// A nil v encodes Data(None) (no pending image); non-nil encodes Data(Some(v)).
func NewPendingFirmwareVersionData(v *Version) Frame {
	f := Frame{Kind: KindPendingFirmwareVersion}
	if v != nil {
		f.Version = *v
		f.HasVersion = true
	}
	return f
}

// NewUploadPartChangePos builds a FirmwareUploadPartChangePos frame.
func NewUploadPartChangePos(p UploadPartChangePos) Frame {
	return Frame{Kind: KindUploadPartChangePos, ChangePos: p}
}

// NewUploadPause builds a FirmwareUploadPause frame.
func NewUploadPause(paused bool) Frame {
	return Frame{Kind: KindUploadPause, Pause: paused}
}

// NewUploadPart builds a FirmwareUploadPart frame.
func NewUploadPart(p UploadPart) Frame { return Frame{Kind: KindUploadPart, Part: p} }

// NewUploadFinished builds a FirmwareUploadFinished frame.
func NewUploadFinished() Frame { return Frame{Kind: KindUploadFinished} }

// NewStartUpdate builds a FirmwareStartUpdate frame.
func NewStartUpdate() Frame { return Frame{Kind: KindStartUpdate} }

// FrameIDFor returns the wire FrameID that a given Kind encodes to. Useful
// to callers (e.g. the device's transmit priority queue) that need a
// frame's wire code without fully encoding its payload.
func FrameIDFor(k Kind) FrameID { return frameIDOf(k) }

// frameIDOf returns the wire FrameID for f's Kind.
func frameIDOf(k Kind) FrameID {
	switch k {
	case KindSerial:
		return Serial
	case KindDynID:
		return DynID
	case KindHardwareVersion:
		return HardwareVersion
	case KindFirmwareVersion:
		return FirmwareVersion
	case KindPendingFirmwareVersion:
		return PendingFirmwareVersion
	case KindUploadPartChangePos:
		return FirmwareUploadPartChangePos
	case KindUploadPause:
		return FirmwareUploadPause
	case KindUploadPart:
		return FirmwareUploadPart
	case KindUploadFinished:
		return FirmwareUploadFinished
	case KindStartUpdate:
		return FirmwareStartUpdate
	default:
		panic(fmt.Sprintf("wire: unknown kind %d", k))
	}
}

// Output is the encoded form of a Frame: either a remote-transmission
// request of DLC bytes, or a data frame carrying Data (len <= 8).
type Output struct {
	Remote bool
	DLC    uint8
	Data   []byte
}

// Encode maps every constructible Frame to its wire FrameID and Output.
// The mapping is total: Encode never fails.
func Encode(f Frame) (FrameID, Output) {
	fid := frameIDOf(f.Kind)
	switch f.Kind {
	case KindSerial:
		if f.Remote {
			return fid, Output{Remote: true, DLC: 5}
		}
		b := f.Serial
		return fid, Output{Data: append([]byte(nil), b[:]...)}
	case KindDynID:
		b := f.DynID.Bytes()
		return fid, Output{Data: b[:]}
	case KindHardwareVersion, KindFirmwareVersion:
		if f.Remote {
			return fid, Output{Remote: true, DLC: 8}
		}
		b := f.Version.Bytes()
		return fid, Output{Data: b[:]}
	case KindPendingFirmwareVersion:
		if f.Remote {
			return fid, Output{Remote: true, DLC: 8}
		}
		if !f.HasVersion {
			return fid, Output{Data: nil}
		}
		b := f.Version.Bytes()
		return fid, Output{Data: b[:]}
	case KindUploadPartChangePos:
		b := f.ChangePos.Bytes()
		return fid, Output{Data: b[:]}
	case KindUploadPause:
		v := byte(0)
		if f.Pause {
			v = 1
		}
		return fid, Output{Data: []byte{v}}
	case KindUploadPart:
		b := f.Part.Bytes()
		return fid, Output{Data: b[:]}
	case KindUploadFinished, KindStartUpdate:
		return fid, Output{Data: nil}
	default:
		panic(fmt.Sprintf("wire: unknown kind %d", f.Kind))
	}
}

// Input is what the decoder receives off the bus: either a remote-frame
// request (DLC only, no payload) or a data frame's payload bytes.
type Input struct {
	Remote bool
	DLC    uint8
	Data   []byte
}

// DataInput wraps a received data frame's payload.
func DataInput(b []byte) Input { return Input{Data: b} }

// RemoteInput wraps a received remote frame's requested length.
func RemoteInput(dlc uint8) Input { return Input{Remote: true, DLC: dlc} }

// Decode parses a frame addressed by fid out of in, per the table in
// SPEC_FULL.md §4.1. Unknown fid should be filtered by LookupFrameID before
// calling Decode.
func Decode(fid FrameID, in Input) (Frame, error) {
	switch fid {
	case Serial:
		if in.Remote {
			if in.DLC != 5 {
				return Frame{}, fmt.Errorf("serial remote dlc %d: %w", in.DLC, ErrWrongDlc)
			}
			return NewSerialRequest(), nil
		}
		if len(in.Data) != 5 {
			return Frame{}, fmt.Errorf("serial data len %d: %w", len(in.Data), ErrWrongDataSize)
		}
		var s Serial
		copy(s[:], in.Data)
		return NewSerialData(s), nil

	case DynID:
		if in.Remote {
			return Frame{}, fmt.Errorf("dyn_id: %w", ErrRemoteFrame)
		}
		if len(in.Data) != 6 {
			return Frame{}, fmt.Errorf("dyn_id data len %d: %w", len(in.Data), ErrWrongDataSize)
		}
		var b [6]byte
		copy(b[:], in.Data)
		return NewDynID(DynIdAssignmentFromBytes(b)), nil

	case HardwareVersion, FirmwareVersion:
		if in.Remote {
			if in.DLC != 8 {
				return Frame{}, fmt.Errorf("version remote dlc %d: %w", in.DLC, ErrWrongDlc)
			}
			if fid == HardwareVersion {
				return NewHardwareVersionRequest(), nil
			}
			return NewFirmwareVersionRequest(), nil
		}
		if len(in.Data) != 8 {
			return Frame{}, fmt.Errorf("version data len %d: %w", len(in.Data), ErrWrongDlc)
		}
		var b [8]byte
		copy(b[:], in.Data)
		v := VersionFromBytes(b)
		if fid == HardwareVersion {
			return NewHardwareVersionData(v), nil
		}
		return NewFirmwareVersionData(v), nil

	case PendingFirmwareVersion:
		if in.Remote {
			if in.DLC != 8 {
				return Frame{}, fmt.Errorf("pending version remote dlc %d: %w", in.DLC, ErrWrongDlc)
			}
			return NewPendingFirmwareVersionRequest(), nil
		}
		switch len(in.Data) {
		case 0:
			return NewPendingFirmwareVersionData(nil), nil
		case 8:
			var b [8]byte
			copy(b[:], in.Data)
			v := VersionFromBytes(b)
			return NewPendingFirmwareVersionData(&v), nil
		default:
			return Frame{}, fmt.Errorf("pending version data len %d: %w", len(in.Data), ErrWrongDlc)
		}

	case FirmwareUploadPartChangePos:
		if in.Remote {
			return Frame{}, fmt.Errorf("change_pos: %w", ErrRemoteFrame)
		}
		if len(in.Data) != 3 {
			return Frame{}, fmt.Errorf("change_pos data len %d: %w", len(in.Data), ErrWrongDataSize)
		}
		var b [3]byte
		copy(b[:], in.Data)
		return NewUploadPartChangePos(UploadPartChangePosFromBytes(b)), nil

	case FirmwareUploadPause:
		if in.Remote {
			return Frame{}, fmt.Errorf("pause: %w", ErrRemoteFrame)
		}
		if len(in.Data) != 1 {
			return Frame{}, fmt.Errorf("pause data len %d: %w", len(in.Data), ErrWrongDataSize)
		}
		return NewUploadPause(in.Data[0] != 0), nil

	case FirmwareUploadPart:
		if in.Remote {
			return Frame{}, fmt.Errorf("upload_part: %w", ErrRemoteFrame)
		}
		if len(in.Data) != 8 {
			return Frame{}, fmt.Errorf("upload_part data len %d: %w", len(in.Data), ErrWrongDataSize)
		}
		var b [8]byte
		copy(b[:], in.Data)
		return NewUploadPart(UploadPartFromBytes(b)), nil

	case FirmwareUploadFinished:
		if in.Remote {
			return Frame{}, fmt.Errorf("upload_finished: %w", ErrRemoteFrame)
		}
		return NewUploadFinished(), nil

	case FirmwareStartUpdate:
		if in.Remote {
			return Frame{}, fmt.Errorf("start_update: %w", ErrRemoteFrame)
		}
		return NewStartUpdate(), nil

	default:
		return Frame{}, fmt.Errorf("id %d: %w", fid, ErrUnknownID)
	}
}
