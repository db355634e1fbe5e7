package pipeline

// Status is a point-in-time snapshot of the pipeline's toggles, tuning, and
// most recent decision.
type Status struct {
	MarkerEnabled         bool         `json:"marker_enabled"`
	ClassifierEnabled     bool         `json:"classifier_enabled"`
	ClassifierAvailable   bool         `json:"classifier_available"`
	ClassifierStride      int          `json:"classifier_stride"`
	SmoothingAlpha        float64      `json:"smoothing_alpha"`
	PersistenceFrames     int          `json:"persistence_frames"`
	DistanceThresholdCM   int          `json:"distance_threshold_cm"`
	FrameIndex            int64        `json:"frame_index"`
	LastResult            *FrameResult `json:"last_result,omitempty"`
}

// Status returns the current pipeline status.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		MarkerEnabled:       p.markerEnabled,
		ClassifierEnabled:   p.classifierEnabled,
		ClassifierAvailable: p.worker != nil,
		ClassifierStride:    p.stride,
		SmoothingAlpha:      p.smoother.Alpha(),
		PersistenceFrames:   p.smoother.PersistenceFrames(),
		DistanceThresholdCM: p.thresholdCM,
		FrameIndex:          p.frameIndex,
	}
	if p.lastResult != nil {
		result := *p.lastResult
		s.LastResult = &result
	}
	return s
}

// SetMarkerEnabled toggles marker detection. Disabling clears smoothing
// state immediately so re-enabling starts from the next raw detection
// instead of a stale box.
func (p *Pipeline) SetMarkerEnabled(enabled bool) {
	p.mu.Lock()
	changed := p.markerEnabled != enabled
	p.markerEnabled = enabled
	p.mu.Unlock()

	if changed && !enabled {
		p.smoother.Reset()
	}
}

// SetClassifierEnabled toggles classification. Disabling clears the worker's
// published state immediately; a frame processed right after the toggle must
// not gate on a detection observed before it.
func (p *Pipeline) SetClassifierEnabled(enabled bool) {
	p.mu.Lock()
	changed := p.classifierEnabled != enabled
	p.classifierEnabled = enabled
	p.mu.Unlock()

	if changed && !enabled && p.worker != nil {
		p.worker.Reset()
	}
}

// SetSmoothingAlpha adjusts the blend factor for subsequent frames.
func (p *Pipeline) SetSmoothingAlpha(alpha float64) {
	p.smoother.SetAlpha(alpha)
}

// SetPersistenceFrames adjusts how many consecutive misses clear a held
// marker box.
func (p *Pipeline) SetPersistenceFrames(n int) {
	p.smoother.SetPersistenceFrames(n)
}

// SetClassifierStride sets how often frames are offered to the classifier:
// every nth processed frame.
func (p *Pipeline) SetClassifierStride(n int) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	p.stride = n
	p.mu.Unlock()
}

// SetClassifierPersistence adjusts the classifier's miss debounce.
func (p *Pipeline) SetClassifierPersistence(n int) {
	if p.worker != nil {
		p.worker.SetPersistence(n)
	}
}

// SetDistanceThresholdCM adjusts the far-distance override threshold.
func (p *Pipeline) SetDistanceThresholdCM(cm int) {
	if cm < 0 {
		cm = 0
	}
	p.mu.Lock()
	p.thresholdCM = cm
	p.mu.Unlock()
}
