// Package pipeline runs the frame processing loop: capture, marker
// detection, bounding box smoothing, asynchronous classification, and the
// distance-fused continue/stop decision. Results fan out to subscribers the
// same way readings do elsewhere; a slow subscriber misses results rather
// than stalling capture.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-robotics/gatekeeper/internal/camera"
	"github.com/kestrel-robotics/gatekeeper/internal/classify"
	"github.com/kestrel-robotics/gatekeeper/internal/config"
	"github.com/kestrel-robotics/gatekeeper/internal/gate"
	"github.com/kestrel-robotics/gatekeeper/internal/marker"
	"github.com/kestrel-robotics/gatekeeper/internal/monitoring"
	"github.com/kestrel-robotics/gatekeeper/internal/smoothing"
)

// DistanceSource supplies the latest filtered distance reading. The boolean
// reports whether a sufficiently fresh reading exists.
type DistanceSource interface {
	Latest() (int, bool)
}

// FaultError is returned by Run when the pipeline stops for a reason other
// than context cancellation.
type FaultError struct {
	Source  string
	Message string
	Err     error
}

func (e *FaultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

func (e *FaultError) Unwrap() error { return e.Err }

// Options collects the pipeline's collaborators. Open is required; the
// remaining fields may be nil, which disables the corresponding stage.
type Options struct {
	Open       camera.OpenFunc
	Detector   *marker.Detector
	Classifier classify.Classifier
	Distance   DistanceSource
	Tuning     *config.TuningConfig
}

// Pipeline owns the capture loop and the per-frame decision state.
type Pipeline struct {
	open     camera.OpenFunc
	detector *marker.Detector
	smoother *smoothing.Smoother
	worker   *classify.Worker
	distance DistanceSource

	openAttempts  int
	openDelay     time.Duration
	failureBudget int

	mu                sync.Mutex
	markerEnabled     bool
	classifierEnabled bool
	stride            int
	thresholdCM       int
	frameIndex        int64
	lastResult        *FrameResult

	subscribers  map[string]chan FrameResult
	subscriberMu sync.Mutex
}

// New builds a Pipeline from the given options. Tuning may be nil, in which
// case built-in defaults apply.
func New(opts Options) *Pipeline {
	cfg := opts.Tuning
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}

	p := &Pipeline{
		open:          opts.Open,
		detector:      opts.Detector,
		smoother:      smoothing.NewSmoother(cfg.GetPersistenceFrames(), cfg.GetSmoothingAlpha()),
		distance:      opts.Distance,
		openAttempts:  cfg.GetCameraOpenAttempts(),
		openDelay:     cfg.GetCameraOpenDelay(),
		failureBudget: cfg.GetCaptureFailureBudget(),
		markerEnabled: true,
		stride:        cfg.GetClassifierStride(),
		thresholdCM:   cfg.GetDistanceThresholdCM(),
		subscribers:   make(map[string]chan FrameResult),
	}
	if opts.Classifier != nil {
		p.worker = classify.NewWorker(opts.Classifier, cfg.GetClassifierPersistence())
	}
	return p
}

// Subscribe creates a new channel for receiving frame results. The channel
// ID identifies the unique channel when unsubscribing.
func (p *Pipeline) Subscribe() (string, chan FrameResult) {
	id := uuid.NewString()
	ch := make(chan FrameResult)
	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	p.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the pipeline.
func (p *Pipeline) Unsubscribe(id string) {
	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	if ch, ok := p.subscribers[id]; ok {
		close(ch)
		delete(p.subscribers, id)
	}
}

// Run opens the camera and processes frames until the context is canceled or
// the consecutive read failure budget is exhausted. It returns a *FaultError
// for fatal failures and ctx.Err() on cancellation.
func (p *Pipeline) Run(ctx context.Context) error {
	cam, err := camera.OpenWithRetry(p.open, p.openAttempts, p.openDelay)
	if err != nil {
		return &FaultError{Source: "camera", Message: "failed to open device", Err: err}
	}
	defer cam.Close()
	defer func() {
		if p.worker != nil {
			p.worker.Stop()
		}
	}()

	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := cam.Read()
		if err != nil {
			consecutiveFailures++
			monitoring.Logf("pipeline: frame read failed (%d consecutive): %v", consecutiveFailures, err)
			if consecutiveFailures >= p.failureBudget {
				return &FaultError{
					Source:  "camera",
					Message: fmt.Sprintf("%d consecutive read failures", consecutiveFailures),
					Err:     err,
				}
			}
			continue
		}
		consecutiveFailures = 0

		result := p.process(ctx, frame)
		p.publish(result)
	}
}

// process runs one frame through every enabled stage and renders a decision.
func (p *Pipeline) process(ctx context.Context, frame image.Image) FrameResult {
	p.mu.Lock()
	p.frameIndex++
	index := p.frameIndex
	markerEnabled := p.markerEnabled
	classifierEnabled := p.classifierEnabled && p.worker != nil
	stride := p.stride
	thresholdCM := p.thresholdCM
	p.mu.Unlock()

	result := FrameResult{
		FrameIndex:        index,
		At:                time.Now(),
		Frame:             frame,
		MarkerEnabled:     markerEnabled,
		ClassifierEnabled: classifierEnabled,
	}

	if markerEnabled && p.detector != nil {
		det := p.smoother.Update(p.detector.Detect(frame))
		if det != nil {
			box := det.Box
			result.MarkerDetected = true
			result.MarkerBox = &box
			result.MarkerPayload = det.Payload
		}
	}

	if classifierEnabled {
		p.worker.Start(ctx)
		if stride <= 1 || index%int64(stride) == 0 {
			// Non-blocking hand-off: if a classification is in flight this
			// frame is skipped rather than queued behind it.
			p.worker.Offer(frame)
		}
		state := p.worker.Snapshot()
		result.ClassifierDetected = state.Detected
		result.ClassifierBox = state.Box
	}

	if p.distance != nil {
		result.DistanceCM, result.DistanceValid = p.distance.Latest()
	}

	result.MayContinue = gate.Decide(gate.Input{
		MarkerDetected:     result.MarkerDetected,
		ClassifierEnabled:  classifierEnabled,
		ClassifierDetected: result.ClassifierDetected,
		DistanceCM:         result.DistanceCM,
		DistanceValid:      result.DistanceValid,
		ThresholdCM:        thresholdCM,
	})

	p.mu.Lock()
	p.lastResult = &result
	p.mu.Unlock()

	return result
}

func (p *Pipeline) publish(result FrameResult) {
	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- result:
		default:
			// if the channel is full/blocking skip so as not to block capture
		}
	}
}
