package pipeline

import (
	"image"
	"time"

	"github.com/kestrel-robotics/gatekeeper/internal/geom"
)

// FrameResult is the outcome of processing one camera frame. One result is
// published per captured frame, in capture order. Frame carries the captured
// image for downstream consumers and is never serialized.
type FrameResult struct {
	FrameIndex int64       `json:"frame_index"`
	At         time.Time   `json:"at"`
	Frame      image.Image `json:"-"`

	MarkerEnabled  bool      `json:"marker_enabled"`
	MarkerDetected bool      `json:"marker_detected"`
	MarkerBox      *geom.Box `json:"marker_box,omitempty"`
	MarkerPayload  string    `json:"marker_payload,omitempty"`

	ClassifierEnabled  bool      `json:"classifier_enabled"`
	ClassifierDetected bool      `json:"classifier_detected"`
	ClassifierBox      *geom.Box `json:"classifier_box,omitempty"`

	DistanceCM    int  `json:"distance_cm"`
	DistanceValid bool `json:"distance_valid"`

	MayContinue bool `json:"may_continue"`
}

// Fault describes a non-recoverable pipeline failure.
type Fault struct {
	Source  string    `json:"source"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
