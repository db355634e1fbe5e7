// Package marker finds the configured visual marker in camera frames. The
// actual symbology decoding is delegated to a Decoder; this package owns the
// downscale-for-speed step, the payload filter, and the mapping of boxes back
// into full-frame coordinates.
package marker

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/kestrel-robotics/gatekeeper/internal/geom"
	"github.com/kestrel-robotics/gatekeeper/internal/smoothing"
)

// DefaultDetectionScale is the downscale factor applied before decoding.
// Decoding on a half-resolution grayscale frame is roughly 4x cheaper and the
// marker survives the shrink comfortably at webcam distances.
const DefaultDetectionScale = 0.5

// Decoded is one raw symbol reported by a Decoder, with its bounding box in
// the coordinates of the image that was decoded.
type Decoded struct {
	Payload string
	Box     geom.Box
}

// Decoder turns a grayscale image into zero or more decoded symbols. An error
// means the decode attempt failed outright; "nothing found" is an empty slice
// and a nil error, though implementations that report not-found as an error
// are tolerated too.
type Decoder interface {
	Decode(img *image.Gray) ([]Decoded, error)
}

// Detector locates the target marker in a color frame. It is stateless and
// safe for repeated use from a single goroutine.
type Detector struct {
	decoder Decoder
	target  string
	scale   float64
}

// NewDetector builds a Detector that accepts only symbols whose payload
// equals target. A scale outside (0, 1] falls back to DefaultDetectionScale.
func NewDetector(decoder Decoder, target string, scale float64) *Detector {
	if scale <= 0 || scale > 1 {
		scale = DefaultDetectionScale
	}
	return &Detector{decoder: decoder, target: target, scale: scale}
}

// Detect runs one decode pass over the frame. It returns the first symbol
// matching the target payload, with its box rescaled to full-frame
// coordinates, or nil when the marker is absent or the decoder fails. Decoder
// failures never propagate: a bad frame is simply a frame without a marker.
func (d *Detector) Detect(frame image.Image) *smoothing.Detection {
	gray := downscaleGray(frame, d.scale)

	symbols, err := d.decoder.Decode(gray)
	if err != nil {
		return nil
	}

	for _, sym := range symbols {
		if sym.Payload != d.target {
			continue
		}
		// First match wins; rescale back to original frame coordinates.
		return &smoothing.Detection{
			Payload: sym.Payload,
			Box:     sym.Box.Scale(1 / d.scale),
		}
	}
	return nil
}

// downscaleGray converts the frame to grayscale at the reduced resolution in
// a single resampling pass.
func downscaleGray(src image.Image, scale float64) *image.Gray {
	bounds := src.Bounds()
	w := int(float64(bounds.Dx()) * scale)
	h := int(float64(bounds.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)
	return dst
}
