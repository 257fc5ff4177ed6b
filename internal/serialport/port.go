// Package serialport wraps github.com/tarm/serial behind a small
// interface so the link engine and its tests can substitute any
// io.ReadWriteCloser for real hardware.
package serialport

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens name at baud with the given read timeout (8-N-1, no flow
// control, per SPEC_FULL.md §6).
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
