package rangefinder

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// mmWave sensor wire framing. Periodic data reports are wrapped in a fixed
// header/tail pair with a little-endian length for the payload between them.
var (
	frameHeader = []byte{0xF4, 0xF3, 0xF2, 0xF1}
	frameTail   = []byte{0xF8, 0xF7, 0xF6, 0xF5}
)

// Payload layout constants for a basic-mode target report.
const (
	dataTypeBasic   = 0x02
	reportHead      = 0xAA
	reportTailByte  = 0x55
	reportCheckByte = 0x00
)

// Target states reported by the sensor.
const (
	TargetNone          = 0x00
	TargetMoving        = 0x01
	TargetStatic        = 0x02
	TargetMovingAndStat = 0x03
)

// Report is one decoded basic-mode target report. Distances are centimeters.
type Report struct {
	TargetState    byte
	MovingDistCM   int
	MovingEnergy   byte
	StaticDistCM   int
	StaticEnergy   byte
	DetectionDistCM int
}

// ErrBadFrame indicates a frame that does not parse as a basic-mode report.
// Corrupt frames are routine at startup when the read begins mid-stream, so
// callers treat this as skip-and-continue, not a fault.
var ErrBadFrame = fmt.Errorf("malformed rangefinder frame")

// ParseReport decodes one delimited frame (header through tail inclusive)
// into a Report.
func ParseReport(frame []byte) (*Report, error) {
	if len(frame) < len(frameHeader)+2+len(frameTail) {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(frame))
	}
	if !bytes.HasPrefix(frame, frameHeader) {
		return nil, fmt.Errorf("%w: bad header", ErrBadFrame)
	}
	if !bytes.HasSuffix(frame, frameTail) {
		return nil, fmt.Errorf("%w: bad tail", ErrBadFrame)
	}

	payload := frame[len(frameHeader)+2 : len(frame)-len(frameTail)]
	declared := int(binary.LittleEndian.Uint16(frame[len(frameHeader):]))
	if declared != len(payload) {
		return nil, fmt.Errorf("%w: declared %d bytes, have %d", ErrBadFrame, declared, len(payload))
	}

	// type, head, state, moving dist (2), moving energy, static dist (2),
	// static energy, detection dist (2), report tail, check
	if len(payload) < 13 {
		return nil, fmt.Errorf("%w: payload too short (%d)", ErrBadFrame, len(payload))
	}
	if payload[0] != dataTypeBasic {
		return nil, fmt.Errorf("%w: unsupported data type 0x%02x", ErrBadFrame, payload[0])
	}
	if payload[1] != reportHead {
		return nil, fmt.Errorf("%w: bad report head 0x%02x", ErrBadFrame, payload[1])
	}
	if payload[11] != reportTailByte || payload[12] != reportCheckByte {
		return nil, fmt.Errorf("%w: bad report trailer", ErrBadFrame)
	}

	return &Report{
		TargetState:     payload[2],
		MovingDistCM:    int(binary.LittleEndian.Uint16(payload[3:5])),
		MovingEnergy:    payload[5],
		StaticDistCM:    int(binary.LittleEndian.Uint16(payload[6:8])),
		StaticEnergy:    payload[8],
		DetectionDistCM: int(binary.LittleEndian.Uint16(payload[9:11])),
	}, nil
}

// EncodeReport builds a wire frame for the given report. Used by the mock
// port and by tests; the real sensor is read-only.
func EncodeReport(r Report) []byte {
	payload := make([]byte, 13)
	payload[0] = dataTypeBasic
	payload[1] = reportHead
	payload[2] = r.TargetState
	binary.LittleEndian.PutUint16(payload[3:5], uint16(r.MovingDistCM))
	payload[5] = r.MovingEnergy
	binary.LittleEndian.PutUint16(payload[6:8], uint16(r.StaticDistCM))
	payload[8] = r.StaticEnergy
	binary.LittleEndian.PutUint16(payload[9:11], uint16(r.DetectionDistCM))
	payload[11] = reportTailByte
	payload[12] = reportCheckByte

	frame := make([]byte, 0, len(frameHeader)+2+len(payload)+len(frameTail))
	frame = append(frame, frameHeader...)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, frameTail...)
	return frame
}

// splitFrames is a bufio.SplitFunc that tokenizes the serial stream on the
// frame tail, the same way the prototyping script read_until'd the tail
// sequence. Garbage before a frame header stays in the token and is rejected
// by ParseReport.
func splitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, frameTail); i >= 0 {
		end := i + len(frameTail)
		// Drop any leading junk before the last header in the token so a
		// mid-stream start recovers on the first complete frame.
		tok := data[:end]
		if j := bytes.LastIndex(tok, frameHeader); j > 0 {
			tok = tok[j:]
		}
		return end, tok, nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
