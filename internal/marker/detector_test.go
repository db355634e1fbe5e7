package marker

import (
	"errors"
	"image"
	"testing"

	"github.com/kestrel-robotics/gatekeeper/internal/geom"
)

// stubDecoder implements Decoder with canned responses and records the image
// it was handed.
type stubDecoder struct {
	symbols []Decoded
	err     error
	lastImg *image.Gray
}

func (s *stubDecoder) Decode(img *image.Gray) ([]Decoded, error) {
	s.lastImg = img
	return s.symbols, s.err
}

func frame(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestDetectFiltersTargetPayload(t *testing.T) {
	dec := &stubDecoder{symbols: []Decoded{
		{Payload: "OTHER_CODE", Box: geom.Box{X: 1, Y: 1, Width: 5, Height: 5}},
		{Payload: "ROBOT_R1", Box: geom.Box{X: 10, Y: 20, Width: 30, Height: 30}},
		{Payload: "ROBOT_R1", Box: geom.Box{X: 99, Y: 99, Width: 1, Height: 1}},
	}}
	d := NewDetector(dec, "ROBOT_R1", 0.5)

	got := d.Detect(frame(640, 480))
	if got == nil {
		t.Fatal("expected detection")
	}
	if got.Payload != "ROBOT_R1" {
		t.Errorf("payload = %q, want ROBOT_R1", got.Payload)
	}
	// First match wins, rescaled by 1/0.5.
	want := geom.Box{X: 20, Y: 40, Width: 60, Height: 60}
	if got.Box != want {
		t.Errorf("box = %+v, want %+v", got.Box, want)
	}
}

func TestDetectNoTargetMatch(t *testing.T) {
	dec := &stubDecoder{symbols: []Decoded{
		{Payload: "SOMETHING_ELSE", Box: geom.Box{X: 1, Y: 1, Width: 5, Height: 5}},
	}}
	d := NewDetector(dec, "ROBOT_R1", 0.5)

	if got := d.Detect(frame(640, 480)); got != nil {
		t.Errorf("expected nil for non-matching payloads, got %+v", got)
	}
}

func TestDecoderErrorMeansNoDetection(t *testing.T) {
	dec := &stubDecoder{err: errors.New("decode blew up")}
	d := NewDetector(dec, "ROBOT_R1", 0.5)

	if got := d.Detect(frame(640, 480)); got != nil {
		t.Errorf("decoder error must yield nil, got %+v", got)
	}
}

func TestDetectorDownscalesBeforeDecoding(t *testing.T) {
	dec := &stubDecoder{}
	d := NewDetector(dec, "ROBOT_R1", 0.5)
	d.Detect(frame(640, 480))

	if dec.lastImg == nil {
		t.Fatal("decoder never invoked")
	}
	b := dec.lastImg.Bounds()
	if b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("decoded image %dx%d, want 320x240", b.Dx(), b.Dy())
	}
}

func TestInvalidScaleFallsBack(t *testing.T) {
	dec := &stubDecoder{}
	d := NewDetector(dec, "ROBOT_R1", -2)
	d.Detect(frame(100, 100))

	b := dec.lastImg.Bounds()
	if b.Dx() != 50 || b.Dy() != 50 {
		t.Errorf("decoded image %dx%d, want 50x50 via default scale", b.Dx(), b.Dy())
	}
}
