package classify

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrel-robotics/gatekeeper/internal/monitoring"
)

// receiveTimeout bounds how long the worker blocks on its mailbox so it stays
// responsive to Stop even when no frames arrive.
const receiveTimeout = 500 * time.Millisecond

// joinTimeout bounds how long Stop waits for an in-flight classifier call to
// finish before giving up on the join.
const joinTimeout = 5 * time.Second

// Worker owns the classifier call loop and the persistence-debounced verdict.
// Frames are offered through a capacity-1 mailbox: if the previous frame has
// not been consumed yet the new one is dropped and the in-flight frame is
// left untouched.
type Worker struct {
	classifier Classifier

	// mailbox carries at most one pending frame; a nil frame is the stop
	// sentinel.
	mailbox chan image.Image

	mu          sync.Mutex
	state       State
	persistence int

	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}
}

// NewWorker returns a Worker around the given classifier. The worker does not
// run until Start; persistence is the number of consecutive empty or failed
// calls tolerated before the verdict is cleared.
func NewWorker(classifier Classifier, persistence int) *Worker {
	if persistence < 1 {
		persistence = 1
	}
	return &Worker{
		classifier:  classifier,
		mailbox:     make(chan image.Image, 1),
		persistence: persistence,
		done:        make(chan struct{}),
	}
}

// Start launches the worker goroutine. Safe to call more than once; only the
// first call has any effect, which lets the capture loop start the worker
// lazily on the first frame it wants classified.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.run(ctx)
	})
}

// Offer hands a frame to the worker without blocking. If the worker is still
// busy with the previous frame the new frame is discarded and Offer reports
// false. The in-flight frame is never replaced.
func (w *Worker) Offer(frame image.Image) bool {
	select {
	case w.mailbox <- frame:
		return true
	default:
		return false
	}
}

// Snapshot returns a copy of the latest published verdict.
func (w *Worker) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.state
	if w.state.Box != nil {
		box := *w.state.Box
		s.Box = &box
	}
	return s
}

// Reset clears the verdict immediately, regardless of any call in flight.
// Used when the classifier subsystem is disabled so a stale detection cannot
// leak into the safety decision.
func (w *Worker) Reset() {
	w.mu.Lock()
	w.state = State{}
	w.mu.Unlock()
}

// SetPersistence updates the debounce window for future calls.
func (w *Worker) SetPersistence(n int) {
	if n < 1 {
		n = 1
	}
	w.mu.Lock()
	w.persistence = n
	w.mu.Unlock()
}

// Stop signals the worker with the nil sentinel and waits for it to exit,
// bounded by joinTimeout. An in-flight classifier call is allowed to finish.
func (w *Worker) Stop() {
	if !w.started.Load() {
		return
	}
	deadline := time.NewTimer(joinTimeout)
	defer deadline.Stop()

	// Block until the sentinel lands. A non-blocking send here can lose the
	// sentinel: the worker may consume a pending frame between a failed
	// try-send and a drain, leaving the mailbox empty with nothing delivered.
	select {
	case w.mailbox <- nil:
	case <-w.done:
		return
	case <-deadline.C:
		monitoring.Logf("classify: worker did not stop within %v", joinTimeout)
		return
	}
	select {
	case <-w.done:
	case <-deadline.C:
		monitoring.Logf("classify: worker did not stop within %v", joinTimeout)
	}
}

// run is the worker loop: receive with a bounded wait, call the classifier,
// publish under the lock. The lock is never held across the external call.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	timer := time.NewTimer(receiveTimeout)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(receiveTimeout)

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			// No frame this interval; loop to stay responsive to shutdown.
			continue
		case frame := <-w.mailbox:
			if frame == nil {
				return
			}
			w.classify(ctx, frame)
		}
	}
}

func (w *Worker) classify(ctx context.Context, frame image.Image) {
	result, err := w.classifier.Detect(ctx, frame)
	if err != nil {
		monitoring.Logf("classify: detect failed: %v", err)
		result = Result{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if result.Detected && result.Detection != nil {
		box := result.Detection.Box()
		w.state.Detected = true
		w.state.Box = &box
		w.state.FramesWithoutDetection = 0
		return
	}

	w.state.FramesWithoutDetection++
	if w.state.FramesWithoutDetection >= w.persistence {
		w.state.Detected = false
		w.state.Box = nil
	}
}
