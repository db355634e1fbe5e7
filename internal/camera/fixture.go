package camera

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FixtureCamera replays JPEG frames from a directory in filename order,
// looping forever at a fixed frame interval. It stands in for real hardware
// in dev mode, the way the mock rangefinder does for the serial port.
type FixtureCamera struct {
	frames   []string
	index    int
	interval time.Duration
	closed   bool
}

// NewFixtureCamera scans dir for .jpg/.jpeg files. fps controls the replay
// rate; zero or negative means 30.
func NewFixtureCamera(dir string, fps int) (*FixtureCamera, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures directory %q: %w", dir, err)
	}

	var frames []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") {
			frames = append(frames, filepath.Join(dir, e.Name()))
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no JPEG fixtures in %q", dir)
	}
	sort.Strings(frames)

	if fps <= 0 {
		fps = 30
	}
	return &FixtureCamera{
		frames:   frames,
		interval: time.Second / time.Duration(fps),
	}, nil
}

// Read returns the next fixture frame, pacing reads to the configured rate.
func (f *FixtureCamera) Read() (image.Image, error) {
	if f.closed {
		return nil, fmt.Errorf("camera closed")
	}
	time.Sleep(f.interval)

	path := f.frames[f.index]
	f.index = (f.index + 1) % len(f.frames)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture %q: %w", path, err)
	}
	defer file.Close()

	img, err := jpeg.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fixture %q: %w", path, err)
	}
	return img, nil
}

// Close stops the camera; subsequent reads fail.
func (f *FixtureCamera) Close() error {
	f.closed = true
	return nil
}
