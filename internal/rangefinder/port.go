package rangefinder

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for the rangefinder's
// serial port. The sensor streams reports unprompted in basic mode, so the
// reader never writes. This abstraction enables unit testing without real
// serial hardware.
type SerialPorter interface {
	io.Reader
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// This is an optional interface that serial ports may implement.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}
