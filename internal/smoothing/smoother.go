// Package smoothing stabilizes noisy per-frame marker detections. It combines
// a persistence window (hold the last known box for a few missed frames so a
// momentary occlusion does not drop the detection) with an exponential moving
// average over box coordinates (so frame-to-frame jitter does not shake the
// box).
package smoothing

import (
	"sync"

	"github.com/kestrel-robotics/gatekeeper/internal/geom"
)

// Detection is a stabilized (or raw) marker sighting.
type Detection struct {
	Payload string
	Box     geom.Box
}

// Smoother filters a stream of optional detections into a stable signal.
// Update is called once per captured frame by the capture loop; Alpha and
// Reset may be called concurrently from the control surface.
type Smoother struct {
	mu sync.Mutex

	persistenceFrames int
	alpha             float64

	smoothed    *geom.Box
	missed      int
	lastPayload string
}

// NewSmoother returns a Smoother with the given persistence window and
// smoothing factor. Alpha is clamped to [0, 1].
func NewSmoother(persistenceFrames int, alpha float64) *Smoother {
	s := &Smoother{persistenceFrames: persistenceFrames}
	s.SetAlpha(alpha)
	return s
}

// Alpha returns the current smoothing factor.
func (s *Smoother) Alpha() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alpha
}

// SetAlpha updates the smoothing factor, clamping out-of-range values to the
// nearest bound. Higher values track movement faster; lower values smooth
// harder.
func (s *Smoother) SetAlpha(alpha float64) {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	s.mu.Lock()
	s.alpha = alpha
	s.mu.Unlock()
}

// PersistenceFrames returns the current persistence window.
func (s *Smoother) PersistenceFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistenceFrames
}

// SetPersistenceFrames updates the persistence window. Values below zero are
// treated as zero (no hold-over).
func (s *Smoother) SetPersistenceFrames(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.persistenceFrames = n
	s.mu.Unlock()
}

// Update consumes the detection for one frame (nil when nothing was seen) and
// returns the stabilized result, or nil when the marker is considered lost.
//
// A present detection resets the miss counter and blends the new box into the
// running average. A missing detection inside the persistence window re-emits
// the last known position; once the window is exhausted all state is cleared
// and nil is returned.
func (s *Smoother) Update(det *Detection) *Detection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if det != nil {
		s.missed = 0
		s.lastPayload = det.Payload
		box := s.smooth(det.Box)
		return &Detection{Payload: det.Payload, Box: box}
	}

	s.missed++
	if s.missed >= s.persistenceFrames {
		s.smoothed = nil
		s.lastPayload = ""
		return nil
	}

	if s.smoothed == nil || s.lastPayload == "" {
		// Never saw anything to hold on to.
		return nil
	}
	return &Detection{Payload: s.lastPayload, Box: *s.smoothed}
}

// smooth blends the new box into the running average. The first detection
// seeds the average directly. Caller holds s.mu.
func (s *Smoother) smooth(box geom.Box) geom.Box {
	if s.smoothed == nil {
		s.smoothed = &box
		return box
	}
	blended := geom.Lerp(*s.smoothed, box, s.alpha)
	s.smoothed = &blended
	return blended
}

// Reset clears all state unconditionally. Called when marker detection is
// toggled off so a stale box cannot reappear on re-enable.
func (s *Smoother) Reset() {
	s.mu.Lock()
	s.smoothed = nil
	s.missed = 0
	s.lastPayload = ""
	s.mu.Unlock()
}
