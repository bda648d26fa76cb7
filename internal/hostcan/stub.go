//go:build !linux

package hostcan

import "errors"

// ErrTxOverflow is provided for non-Linux builds so the rest of the module
// still compiles off-Linux for protocol-logic testing.
var ErrTxOverflow = errors.New("hostcan: tx overflow (stub)")
