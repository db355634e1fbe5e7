package pipeline

import (
	"context"
	"time"

	"github.com/kestrel-robotics/gatekeeper/internal/db"
	"github.com/kestrel-robotics/gatekeeper/internal/monitoring"
	"github.com/kestrel-robotics/gatekeeper/internal/timeutil"
)

// Store is the subset of the database layer the recorder needs.
type Store interface {
	StartSession() (string, error)
	EndSession(id string) error
	RecordFrame(row db.FrameRow) error
	RecordFault(sessionID, source, message string) error
}

// maxPendingRows bounds the in-memory batch between flushes.
const maxPendingRows = 64

// Recorder subscribes to a pipeline and persists its decisions in batches.
// Storage failures are logged and dropped; recording must never interfere
// with the capture loop.
type Recorder struct {
	store     Store
	sessionID string
	interval  time.Duration
	clock     timeutil.Clock
	pending   []db.FrameRow
}

// NewRecorder starts a new session in the store and returns a recorder bound
// to it.
func NewRecorder(store Store, flushInterval time.Duration) (*Recorder, error) {
	sessionID, err := store.StartSession()
	if err != nil {
		return nil, err
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Recorder{
		store:     store,
		sessionID: sessionID,
		interval:  flushInterval,
		clock:     timeutil.RealClock{},
	}, nil
}

// SetClock replaces the time source, mainly for tests.
func (r *Recorder) SetClock(clock timeutil.Clock) {
	if clock != nil {
		r.clock = clock
	}
}

// SessionID returns the store session this recorder writes to.
func (r *Recorder) SessionID() string { return r.sessionID }

// Run consumes results from the pipeline until the context is canceled, then
// flushes what remains and ends the session.
func (r *Recorder) Run(ctx context.Context, p *Pipeline) {
	id, ch := p.Subscribe()
	defer p.Unsubscribe(id)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush()
			if err := r.store.EndSession(r.sessionID); err != nil {
				monitoring.Logf("recorder: failed to end session %s: %v", r.sessionID, err)
			}
			return
		case <-ticker.C():
			r.flush()
		case result, ok := <-ch:
			if !ok {
				r.flush()
				return
			}
			r.pending = append(r.pending, r.toRow(result))
			if len(r.pending) >= maxPendingRows {
				r.flush()
			}
		}
	}
}

// RecordFault persists a fatal pipeline fault against this session.
func (r *Recorder) RecordFault(source, message string) {
	if err := r.store.RecordFault(r.sessionID, source, message); err != nil {
		monitoring.Logf("recorder: failed to record fault: %v", err)
	}
}

func (r *Recorder) flush() {
	for _, row := range r.pending {
		if err := r.store.RecordFrame(row); err != nil {
			monitoring.Logf("recorder: failed to record frame %d: %v", row.FrameIndex, err)
		}
	}
	r.pending = r.pending[:0]
}

func (r *Recorder) toRow(result FrameResult) db.FrameRow {
	row := db.FrameRow{
		SessionID:          r.sessionID,
		FrameIndex:         result.FrameIndex,
		MarkerDetected:     result.MarkerDetected,
		ClassifierEnabled:  result.ClassifierEnabled,
		ClassifierDetected: result.ClassifierDetected,
		DistanceCM:         int64(result.DistanceCM),
		DistanceValid:      result.DistanceValid,
		MayContinue:        result.MayContinue,
	}
	if result.MarkerBox != nil {
		row.MarkerX = result.MarkerBox.X
		row.MarkerY = result.MarkerBox.Y
		row.MarkerWidth = result.MarkerBox.Width
		row.MarkerHeight = result.MarkerBox.Height
	}
	return row
}
