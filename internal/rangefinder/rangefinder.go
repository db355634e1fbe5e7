// Rangefinder reads target reports from an mmWave presence sensor over a
// serial port, filters them, and fans the readings out to multiple
// subscribers. The safety gate consumes the latest filtered distance; debug
// tooling can tail the raw stream.
package rangefinder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/kestrel-robotics/gatekeeper/internal/monitoring"
	"github.com/kestrel-robotics/gatekeeper/internal/timeutil"
)

// DefaultWindowSize is the number of recent reports the spike filter spans.
const DefaultWindowSize = 5

// readingTTL bounds how old the last reading may be before Latest reports it
// as unavailable. A wedged or unplugged sensor must not keep gating decisions
// on a stale distance.
const readingTTL = 2 * time.Second

// Reading is one filtered distance observation.
type Reading struct {
	DistanceCM  int       `json:"distance_cm"`
	TargetState byte      `json:"target_state"`
	At          time.Time `json:"at"`
}

// Reader multiplexes filtered readings from a single rangefinder port to
// multiple subscribers.
type Reader[T SerialPorter] struct {
	port         T
	window       *minWindow
	clock        timeutil.Clock
	subscribers  map[string]chan Reading
	subscriberMu sync.Mutex

	latestMu sync.Mutex
	latest   Reading
	hasRead  bool

	closing   bool
	closingMu sync.Mutex
}

// ReaderInterface defines the interface for the Reader type.
type ReaderInterface interface {
	// Subscribe creates a new channel for receiving filtered readings. The
	// channel ID identifies the unique channel when unsubscribing.
	Subscribe() (string, chan Reading)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Latest returns the most recent filtered distance in centimeters and
	// whether a sufficiently fresh reading exists.
	Latest() (int, bool)
	// Monitor reads frames from the serial port and sends filtered readings
	// to subscribers.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewReader creates a Reader backed by the given port with the default
// spike-filter window.
func NewReader[T SerialPorter](port T) *Reader[T] {
	return &Reader[T]{
		port:        port,
		window:      newMinWindow(DefaultWindowSize),
		clock:       timeutil.RealClock{},
		subscribers: make(map[string]chan Reading),
	}
}

// SetClock replaces the time source, mainly for tests.
func (r *Reader[T]) SetClock(clock timeutil.Clock) {
	if clock != nil {
		r.clock = clock
	}
}

func (r *Reader[T]) Subscribe() (string, chan Reading) {
	id := uuid.NewString()
	ch := make(chan Reading)
	r.subscriberMu.Lock()
	defer r.subscriberMu.Unlock()
	r.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the reader.
func (r *Reader[T]) Unsubscribe(id string) {
	r.subscriberMu.Lock()
	defer r.subscriberMu.Unlock()
	if ch, ok := r.subscribers[id]; ok {
		close(ch)
		delete(r.subscribers, id)
	}
}

// Latest returns the most recent filtered distance in centimeters. The second
// return value is false until the first report arrives, and reverts to false
// if the sensor stops reporting for longer than the freshness window.
func (r *Reader[T]) Latest() (int, bool) {
	r.latestMu.Lock()
	defer r.latestMu.Unlock()
	if !r.hasRead {
		return 0, false
	}
	if r.clock.Since(r.latest.At) > readingTTL {
		return 0, false
	}
	return r.latest.DistanceCM, true
}

// Monitor reads delimited frames from the serial port, decodes and filters
// them, and sends readings to subscribers.
func (r *Reader[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(r.port)
	scan.Split(splitFrames)

	frameChan := make(chan []byte)
	scanErrChan := make(chan error, 1)

	// start a goroutine to read from the serial port & send any frames that
	// are scanned to frameChan, and any errors to scanErrChan.
	//
	// the blocking scan.Scan will not interfere with our outer loop awaiting
	// frames & context cancellation.
	go func() {
		defer close(frameChan)
		for scan.Scan() {
			frame := append([]byte(nil), scan.Bytes()...)
			select {
			case frameChan <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case frame, ok := <-frameChan:
			// if the channel is closed, we're done reading from the serial port
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			r.closingMu.Lock()
			if r.closing {
				r.closingMu.Unlock()
				return nil
			}
			r.closingMu.Unlock()

			report, err := ParseReport(frame)
			if err != nil {
				// Mid-stream starts and line noise produce partial frames.
				// Skip them; the scanner resynchronizes on the next tail.
				continue
			}
			if report.TargetState == TargetNone {
				continue
			}

			reading := Reading{
				DistanceCM:  r.window.Push(report.DetectionDistCM),
				TargetState: report.TargetState,
				At:          r.clock.Now(),
			}

			r.latestMu.Lock()
			r.latest = reading
			r.hasRead = true
			r.latestMu.Unlock()

			r.subscriberMu.Lock()
			for _, ch := range r.subscribers {
				select {
				case ch <- reading:
				default:
					// if the channel is full/blocking skip so as not to block the outer loop
				}
			}
			r.subscriberMu.Unlock()
		}
	}
}

func (r *Reader[T]) Close() error {
	r.closingMu.Lock()
	r.closing = true
	r.closingMu.Unlock()

	r.subscriberMu.Lock()
	defer r.subscriberMu.Unlock()
	for id, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, id)
	}
	return r.port.Close()
}

func (r *Reader[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// API endpoint returning the current filtered distance.
	debug.HandleSilentFunc("range-latest", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		distance, ok := r.Latest()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"distance_cm": distance,
			"fresh":       ok,
		})
	})

	// API endpoint to issue Server-Side Events (SSE) for readings coming from
	// the rangefinder.
	debug.HandleSilentFunc("range-tail", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		id, ch := r.Subscribe()
		defer r.Unsubscribe(id)

		for {
			select {
			case <-req.Context().Done():
				return
			case reading, ok := <-ch:
				if !ok {
					return
				}
				payload, err := json.Marshal(reading)
				if err != nil {
					monitoring.Logf("rangefinder: failed to marshal reading: %v", err)
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	})
}
