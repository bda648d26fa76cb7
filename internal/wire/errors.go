package wire

import "errors"

// Sentinel decode errors. Checked with errors.Is; the offending frame is
// always dropped by the caller, never fatal.
var (
	// ErrWrongDataSize is returned when a data frame's payload length does
	// not match the fixed size this message id requires (the version ids
	// report ErrWrongDlc instead).
	ErrWrongDataSize = errors.New("wire: wrong data size")
	// ErrWrongDlc is returned when a remote frame's requested length does
	// not match the fixed size this message id requires, and when a data
	// frame for one of the version ids has the wrong payload length.
	ErrWrongDlc = errors.New("wire: wrong remote dlc")
	// ErrWrongData is reserved for payloads of the correct length but an
	// invalid encoded value; no current message id can trigger it.
	ErrWrongData = errors.New("wire: wrong data")
	// ErrUnknownID is returned for a 13-bit code outside the known catalogue.
	ErrUnknownID = errors.New("wire: unknown frame id")
	// ErrRemoteFrame is returned when a remote frame is received for a
	// message id that is data-only.
	ErrRemoteFrame = errors.New("wire: remote frame not permitted for this id")
)
