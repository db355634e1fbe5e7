package rangefinder

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseReportRoundTrip(t *testing.T) {
	in := Report{
		TargetState:     TargetMovingAndStat,
		MovingDistCM:    142,
		MovingEnergy:    55,
		StaticDistCM:    150,
		StaticEnergy:    40,
		DetectionDistCM: 145,
	}

	out, err := ParseReport(EncodeReport(in))
	if err != nil {
		t.Fatalf("ParseReport failed: %v", err)
	}
	if diff := cmp.Diff(in, *out); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestParseReportRejectsMalformed(t *testing.T) {
	valid := EncodeReport(Report{TargetState: TargetMoving, DetectionDistCM: 80})

	badHeader := append([]byte(nil), valid...)
	badHeader[0] = 0x00

	badLength := append([]byte(nil), valid...)
	badLength[4] = 0xFF

	badType := append([]byte(nil), valid...)
	badType[6] = 0x01 // engineering-mode payload

	cases := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"truncated", valid[:8]},
		{"bad header", badHeader},
		{"bad length", badLength},
		{"unsupported type", badType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseReport(tc.frame); !errors.Is(err, ErrBadFrame) {
				t.Errorf("expected ErrBadFrame, got %v", err)
			}
		})
	}
}

func TestSplitFramesRecoversMidStream(t *testing.T) {
	first := EncodeReport(Report{TargetState: TargetMoving, DetectionDistCM: 90})
	second := EncodeReport(Report{TargetState: TargetStatic, DetectionDistCM: 120})

	// Simulate opening the port mid-frame: garbage plus the severed end of a
	// previous report, then two complete frames.
	stream := append([]byte{0x13, 0x37}, first[10:]...)
	stream = append(stream, first...)
	stream = append(stream, second...)

	scan := bufio.NewScanner(bytes.NewReader(stream))
	scan.Split(splitFrames)

	var reports []Report
	for scan.Scan() {
		report, err := ParseReport(scan.Bytes())
		if err != nil {
			continue
		}
		reports = append(reports, *report)
	}
	if err := scan.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}

	if len(reports) != 2 {
		t.Fatalf("expected 2 decoded reports, got %d", len(reports))
	}
	if reports[0].DetectionDistCM != 90 || reports[1].DetectionDistCM != 120 {
		t.Errorf("unexpected distances: %+v", reports)
	}
}
