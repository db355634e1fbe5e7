package rangefinder

import (
	"go.bug.st/serial"
)

// NewRealReader creates a Reader backed by a real serial port at the given
// path using the provided serial options.
func NewRealReader(path string, opts PortOptions) (*Reader[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewReader[serial.Port](port), nil
}
