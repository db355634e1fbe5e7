// Package classify runs the secondary object classifier without ever blocking
// frame capture. The external model — a hosted workflow endpoint or a local
// inference server — can take hundreds of milliseconds per image, so frames
// are handed to a background worker through a single-slot mailbox and the
// capture loop only ever reads the latest published verdict.
package classify

import (
	"context"
	"image"

	"github.com/kestrel-robotics/gatekeeper/internal/geom"
)

// Detection is the best detection reported by the classifier for one image,
// in center-point form as the backends report it.
type Detection struct {
	ClassName  string  `json:"class"`
	Confidence float64 `json:"confidence"`
	CenterX    float64 `json:"x"`
	CenterY    float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// Box returns the detection's bounding box in top-left form.
func (d Detection) Box() geom.Box {
	return geom.FromCenter(d.CenterX, d.CenterY, d.Width, d.Height)
}

// Result is the outcome of one classifier call. Detected is false both when
// the model saw nothing and when the call failed; callers never need to
// distinguish the two.
type Result struct {
	Detected  bool
	Detection *Detection
}

// Classifier is the external model boundary. Detect blocks for the duration
// of the call; implementations must honor ctx cancellation and must express
// network or backend failures as Detected=false rather than surfacing them
// for every transient hiccup.
type Classifier interface {
	Detect(ctx context.Context, frame image.Image) (Result, error)
}

// State is the worker's latest published verdict, copied out under the
// worker's lock. Box is nil whenever Detected is false.
type State struct {
	Detected               bool
	Box                    *geom.Box
	FramesWithoutDetection int
}
