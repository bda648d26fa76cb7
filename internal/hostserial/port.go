// Package hostserial is the alternate host transport for boards that bridge
// the CAN bus over a UART link instead of exposing native SocketCAN: a
// fixed preamble-delimited frame codec over a github.com/tarm/serial port,
// wired into the same internal/hostbus fan-out that internal/hostcan feeds.
package hostserial

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts github.com/tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens a serial port at the given baud rate with a read timeout.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
