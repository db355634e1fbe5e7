package rangefinder

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter for dev mode and testing.
type MockSerialPort struct {
	io.Reader
	io.Closer
}

// NewMockReader creates a Reader backed by a synthetic port that sweeps a
// target between nearCM and farCM, emitting one report per interval. Used in
// dev mode when no sensor is attached.
func NewMockReader(nearCM, farCM int, interval time.Duration) *Reader[*MockSerialPort] {
	r, w := io.Pipe()

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		distance := farCM
		step := -5
		for range ticker.C {
			distance += step
			if distance <= nearCM {
				distance = nearCM
				step = 5
			} else if distance >= farCM {
				distance = farCM
				step = -5
			}
			frame := EncodeReport(Report{
				TargetState:     TargetMoving,
				MovingDistCM:    distance,
				MovingEnergy:    60,
				DetectionDistCM: distance,
			})
			if _, err := w.Write(frame); err != nil {
				return
			}
		}
	}()

	return NewReader(&MockSerialPort{Reader: r, Closer: r})
}

// TestableSerialPort implements SerialPorter with configurable behaviour for
// testing. It provides control over read contents, errors, and latency.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// ChunkSize caps the bytes returned per Read call. Zero means unlimited.
	// Combined with ReadLatency this paces the stream like a real serial line.
	ChunkSize int

	// ReadError is returned by the next Read call if set
	ReadError error

	// CloseError is returned by Close if set
	CloseError error

	// BlockAfterDrain keeps Read pending once the buffer empties instead of
	// returning EOF, matching a quiet serial line.
	BlockAfterDrain bool

	closed chan struct{}
	once   sync.Once
}

// NewTestableSerialPort creates a TestableSerialPort preloaded with the given
// stream contents.
func NewTestableSerialPort(stream []byte) *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer: bytes.NewBuffer(stream),
		closed:     make(chan struct{}),
	}
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	if p.ReadLatency > 0 {
		time.Sleep(p.ReadLatency)
	}

	p.mu.Lock()
	if p.ReadError != nil {
		err := p.ReadError
		p.mu.Unlock()
		return 0, err
	}
	if p.ChunkSize > 0 && len(b) > p.ChunkSize {
		b = b[:p.ChunkSize]
	}
	n, err := p.ReadBuffer.Read(b)
	block := p.BlockAfterDrain && n == 0 && err == io.EOF
	p.mu.Unlock()

	if block {
		<-p.closed
		return 0, io.EOF
	}
	return n, err
}

func (p *TestableSerialPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return p.CloseError
}
