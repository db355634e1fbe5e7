package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/kestrel-robotics/gatekeeper/internal/camera"
	"github.com/kestrel-robotics/gatekeeper/internal/classify"
	"github.com/kestrel-robotics/gatekeeper/internal/config"
	"github.com/kestrel-robotics/gatekeeper/internal/db"
	"github.com/kestrel-robotics/gatekeeper/internal/geom"
	"github.com/kestrel-robotics/gatekeeper/internal/marker"
)

func ptrI(v int) *int         { return &v }
func ptrS(v string) *string   { return &v }
func ptrF(v float64) *float64 { return &v }

func testFrame() image.Image {
	return image.NewGray(image.Rect(0, 0, 64, 48))
}

// funcDecoder scripts marker decoding per call.
type funcDecoder struct {
	fn func() ([]marker.Decoded, error)
}

func (d *funcDecoder) Decode(img *image.Gray) ([]marker.Decoded, error) {
	return d.fn()
}

// fixedDistance is a DistanceSource with a constant reading.
type fixedDistance struct {
	cm int
	ok bool
}

func (f fixedDistance) Latest() (int, bool) { return f.cm, f.ok }

// instantClassifier answers immediately with a canned result.
type instantClassifier struct {
	mu     sync.Mutex
	result classify.Result
	frames int
}

func (c *instantClassifier) Detect(ctx context.Context, frame image.Image) (classify.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	return c.result, nil
}

func (c *instantClassifier) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// scriptedCamera serves frames or errors in order, then reports EOF errors.
type scriptedCamera struct {
	mu     sync.Mutex
	reads  []error // nil entry = successful frame
	loop   bool    // keep serving frames after the script runs out
	closed bool
}

func (c *scriptedCamera) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.reads) == 0 {
		if c.loop {
			return testFrame(), nil
		}
		return nil, errors.New("stream exhausted")
	}
	next := c.reads[0]
	c.reads = c.reads[1:]
	if next != nil {
		return nil, next
	}
	return testFrame(), nil
}

func (c *scriptedCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func openCamera(cam camera.Camera) camera.OpenFunc {
	return func() (camera.Camera, error) { return cam, nil }
}

func fastTuning() *config.TuningConfig {
	cfg := config.EmptyTuningConfig()
	cfg.CameraOpenAttempts = ptrI(1)
	cfg.CameraOpenDelay = ptrS("1ms")
	cfg.DetectionScale = ptrF(0.5)
	return cfg
}

// Marker visible on frames 5..40 with a 5 frame persistence window: the gate
// must open on frame 5 and close after frame 44.
func TestMarkerPersistenceAcrossSequence(t *testing.T) {
	frameNum := 0
	decoder := &funcDecoder{fn: func() ([]marker.Decoded, error) {
		if frameNum >= 5 && frameNum <= 40 {
			return []marker.Decoded{{Payload: "ROBOT_R1", Box: geom.Box{X: 10, Y: 10, Width: 8, Height: 8}}}, nil
		}
		return nil, nil
	}}

	cfg := fastTuning()
	cfg.PersistenceFrames = ptrI(5)
	p := New(Options{
		Open:     openCamera(&scriptedCamera{}),
		Detector: marker.NewDetector(decoder, "ROBOT_R1", 0.5),
		Tuning:   cfg,
	})

	ctx := context.Background()
	for frameNum = 1; frameNum <= 50; frameNum++ {
		result := p.process(ctx, testFrame())

		wantContinue := frameNum >= 5 && frameNum <= 44
		if result.MayContinue != wantContinue {
			t.Errorf("frame %d: MayContinue = %v, want %v", frameNum, result.MayContinue, wantContinue)
		}
		if result.FrameIndex != int64(frameNum) {
			t.Errorf("frame %d: FrameIndex = %d", frameNum, result.FrameIndex)
		}
		if wantContinue && result.MarkerBox == nil {
			t.Errorf("frame %d: detected marker without a box", frameNum)
		}
	}
}

func TestFarDistanceOverridesMissingMarker(t *testing.T) {
	decoder := &funcDecoder{fn: func() ([]marker.Decoded, error) { return nil, nil }}

	p := New(Options{
		Open:     openCamera(&scriptedCamera{}),
		Detector: marker.NewDetector(decoder, "ROBOT_R1", 0.5),
		Distance: fixedDistance{cm: 250, ok: true},
		Tuning:   fastTuning(),
	})

	result := p.process(context.Background(), testFrame())
	if !result.MayContinue {
		t.Error("expected far subject to pass the gate with no marker")
	}
	if result.DistanceCM != 250 || !result.DistanceValid {
		t.Errorf("distance not carried into result: %+v", result)
	}

	// Near subject without a marker must stop.
	p2 := New(Options{
		Open:     openCamera(&scriptedCamera{}),
		Detector: marker.NewDetector(decoder, "ROBOT_R1", 0.5),
		Distance: fixedDistance{cm: 60, ok: true},
		Tuning:   fastTuning(),
	})
	if result := p2.process(context.Background(), testFrame()); result.MayContinue {
		t.Error("expected near subject with no marker to stop")
	}
}

func TestClassifierRequiresAgreement(t *testing.T) {
	decoder := &funcDecoder{fn: func() ([]marker.Decoded, error) {
		return []marker.Decoded{{Payload: "ROBOT_R1", Box: geom.Box{X: 4, Y: 4, Width: 6, Height: 6}}}, nil
	}}
	classifier := &instantClassifier{}

	cfg := fastTuning()
	cfg.ClassifierStride = ptrI(1)
	p := New(Options{
		Open:       openCamera(&scriptedCamera{}),
		Detector:   marker.NewDetector(decoder, "ROBOT_R1", 0.5),
		Classifier: classifier,
		Distance:   fixedDistance{cm: 60, ok: true},
		Tuning:     cfg,
	})
	p.SetClassifierEnabled(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Classifier sees nothing yet: marker alone must not open the gate.
	if result := p.process(ctx, testFrame()); result.MayContinue {
		t.Error("marker alone opened the gate while classifier was enabled")
	}

	// Flip the classifier to detecting and wait for the worker to publish.
	classifier.mu.Lock()
	classifier.result = classify.Result{
		Detected:  true,
		Detection: &classify.Detection{ClassName: "robot", Confidence: 0.9, CenterX: 30, CenterY: 30, Width: 10, Height: 10},
	}
	classifier.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for {
		result := p.process(ctx, testFrame())
		if result.MayContinue {
			if result.ClassifierBox == nil {
				t.Error("classifier agreement published without a box")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("gate never opened after classifier agreement")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDisableClassifierFallsBackToMarker(t *testing.T) {
	decoder := &funcDecoder{fn: func() ([]marker.Decoded, error) {
		return []marker.Decoded{{Payload: "ROBOT_R1", Box: geom.Box{X: 4, Y: 4, Width: 6, Height: 6}}}, nil
	}}
	classifier := &instantClassifier{}

	p := New(Options{
		Open:       openCamera(&scriptedCamera{}),
		Detector:   marker.NewDetector(decoder, "ROBOT_R1", 0.5),
		Classifier: classifier,
		Distance:   fixedDistance{cm: 60, ok: true},
		Tuning:     fastTuning(),
	})
	p.SetClassifierEnabled(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if result := p.process(ctx, testFrame()); result.MayContinue {
		t.Error("gate open despite silent classifier")
	}

	p.SetClassifierEnabled(false)
	result := p.process(ctx, testFrame())
	if !result.MayContinue {
		t.Error("expected marker alone to open the gate after disabling classifier")
	}
	if result.ClassifierEnabled {
		t.Error("result still reports classifier enabled")
	}
}

func TestDisableMarkerClearsHeldBox(t *testing.T) {
	visible := true
	decoder := &funcDecoder{fn: func() ([]marker.Decoded, error) {
		if visible {
			return []marker.Decoded{{Payload: "ROBOT_R1", Box: geom.Box{X: 4, Y: 4, Width: 6, Height: 6}}}, nil
		}
		return nil, nil
	}}

	p := New(Options{
		Open:     openCamera(&scriptedCamera{}),
		Detector: marker.NewDetector(decoder, "ROBOT_R1", 0.5),
		Tuning:   fastTuning(),
	})

	ctx := context.Background()
	if result := p.process(ctx, testFrame()); !result.MarkerDetected {
		t.Fatal("expected initial detection")
	}

	// Toggle off and back on while the marker is gone: the persistence
	// window must not survive the toggle.
	visible = false
	p.SetMarkerEnabled(false)
	if result := p.process(ctx, testFrame()); result.MarkerDetected {
		t.Error("marker reported while disabled")
	}
	p.SetMarkerEnabled(true)
	if result := p.process(ctx, testFrame()); result.MarkerDetected {
		t.Error("held box survived a disable/enable cycle")
	}
}

func TestResultCarriesFrameAndMarkerState(t *testing.T) {
	decoder := &funcDecoder{fn: func() ([]marker.Decoded, error) { return nil, nil }}
	p := New(Options{
		Open:     openCamera(&scriptedCamera{}),
		Detector: marker.NewDetector(decoder, "ROBOT_R1", 0.5),
		Tuning:   fastTuning(),
	})

	ctx := context.Background()
	frame := testFrame()

	// Marker stage on but nothing decoded: enabled yes, detected no. The
	// captured image must ride along so consumers can inspect it.
	result := p.process(ctx, frame)
	if !result.MarkerEnabled {
		t.Error("MarkerEnabled = false while the marker stage is on")
	}
	if result.MarkerDetected {
		t.Error("MarkerDetected = true with nothing decoded")
	}
	if result.Frame != frame {
		t.Error("result does not carry the captured frame")
	}

	// Stage off is a distinct state from marker-lost.
	p.SetMarkerEnabled(false)
	if result := p.process(ctx, frame); result.MarkerEnabled {
		t.Error("MarkerEnabled = true after disabling the marker stage")
	}
}

func TestRunStopsAfterFailureBudget(t *testing.T) {
	cam := &scriptedCamera{reads: []error{
		nil,
		errors.New("read failed"),
		errors.New("read failed"),
		errors.New("read failed"),
	}}

	cfg := fastTuning()
	cfg.CaptureFailureBudget = ptrI(3)
	p := New(Options{Open: openCamera(cam), Tuning: cfg})

	err := p.Run(context.Background())
	var fault *FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("Run returned %v, want *FaultError", err)
	}
	if fault.Source != "camera" {
		t.Errorf("fault source = %q, want camera", fault.Source)
	}
	if !cam.closed {
		t.Error("camera not closed after fatal fault")
	}
}

func TestRunRecoversWithinFailureBudget(t *testing.T) {
	// Two isolated failures interleaved with successes never trip a budget
	// of three consecutive failures; the run ends on cancellation.
	reads := []error{nil, errors.New("glitch"), nil, errors.New("glitch"), nil}
	cam := &scriptedCamera{reads: reads, loop: true}

	cfg := fastTuning()
	cfg.CaptureFailureBudget = ptrI(3)
	p := New(Options{Open: openCamera(cam), Tuning: cfg})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Wait until the pipeline has processed past both glitches.
	deadline := time.Now().Add(2 * time.Second)
	for p.Status().FrameIndex < 3 {
		if time.Now().After(deadline) {
			t.Fatal("pipeline did not process frames past the glitches")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunOpenFailureIsFault(t *testing.T) {
	open := func() (camera.Camera, error) { return nil, errors.New("device busy") }
	p := New(Options{Open: open, Tuning: fastTuning()})

	err := p.Run(context.Background())
	var fault *FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("Run returned %v, want *FaultError", err)
	}
	if fault.Source != "camera" {
		t.Errorf("fault source = %q, want camera", fault.Source)
	}
}

func TestStatusReflectsControls(t *testing.T) {
	p := New(Options{
		Open:       openCamera(&scriptedCamera{}),
		Classifier: &instantClassifier{},
		Tuning:     fastTuning(),
	})

	p.SetClassifierEnabled(true)
	p.SetClassifierStride(7)
	p.SetDistanceThresholdCM(240)
	p.SetSmoothingAlpha(0.25)
	p.SetPersistenceFrames(9)

	s := p.Status()
	if !s.ClassifierEnabled || !s.ClassifierAvailable {
		t.Errorf("classifier flags wrong: %+v", s)
	}
	if s.ClassifierStride != 7 || s.DistanceThresholdCM != 240 {
		t.Errorf("stride/threshold wrong: %+v", s)
	}
	if s.SmoothingAlpha != 0.25 || s.PersistenceFrames != 9 {
		t.Errorf("smoothing tuning wrong: %+v", s)
	}
}

// recordingStore captures recorder writes in memory.
type recordingStore struct {
	mu       sync.Mutex
	rows     []db.FrameRow
	faults   []string
	ended    bool
	startErr error
}

func (s *recordingStore) StartSession() (string, error) {
	if s.startErr != nil {
		return "", s.startErr
	}
	return "session-1", nil
}

func (s *recordingStore) EndSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	return nil
}

func (s *recordingStore) RecordFrame(row db.FrameRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func (s *recordingStore) RecordFault(sessionID, source, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fmt.Sprintf("%s/%s", source, message))
	return nil
}

func TestRecorderPersistsResults(t *testing.T) {
	store := &recordingStore{}
	rec, err := NewRecorder(store, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	if rec.SessionID() != "session-1" {
		t.Errorf("SessionID = %q", rec.SessionID())
	}

	p := New(Options{Open: openCamera(&scriptedCamera{}), Tuning: fastTuning()})

	ctx, cancel := context.WithCancel(context.Background())
	recorderDone := make(chan struct{})
	go func() {
		rec.Run(ctx, p)
		close(recorderDone)
	}()

	// Give the recorder a moment to subscribe, then publish directly.
	time.Sleep(20 * time.Millisecond)
	p.publish(FrameResult{FrameIndex: 1, MarkerDetected: true, MarkerBox: &geom.Box{X: 1, Y: 2, Width: 3, Height: 4}, MayContinue: true})
	p.publish(FrameResult{FrameIndex: 2})

	// Wait for a flush tick to land both rows.
	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.rows)
		store.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("recorder persisted %d rows, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	store.mu.Lock()
	first := store.rows[0]
	store.mu.Unlock()
	if first.SessionID != "session-1" || !first.MarkerDetected || first.MarkerWidth != 3 {
		t.Errorf("unexpected first row: %+v", first)
	}

	cancel()
	select {
	case <-recorderDone:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not exit on cancellation")
	}

	store.mu.Lock()
	ended := store.ended
	store.mu.Unlock()
	if !ended {
		t.Error("recorder did not end the session")
	}

	rec.RecordFault("camera", "gone")
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.faults) != 1 {
		t.Errorf("expected 1 recorded fault, got %d", len(store.faults))
	}
}
