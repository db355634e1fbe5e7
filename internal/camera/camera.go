// Package camera abstracts frame acquisition behind a small interface so the
// pipeline can run against a physical webcam, a directory of fixture frames,
// or a scripted camera in tests. The open-with-retry policy lives here too:
// webcams on laptops routinely need a second or two after a permission grant
// or a previous process releasing them.
package camera

import (
	"fmt"
	"image"
	"time"
)

// Camera is a source of sequential frames. Read blocks until the next frame
// is available and returns an error for a failed read; a single failure is
// transient and callers are expected to retry. Close releases the device.
type Camera interface {
	Read() (image.Image, error)
	Close() error
}

// OpenFunc opens a camera device. Implementations are expected to verify the
// device actually delivers a frame before declaring success.
type OpenFunc func() (Camera, error)

// Retry policy for opening the device.
const (
	DefaultOpenAttempts = 5
	DefaultOpenDelay    = time.Second
)

// OpenWithRetry attempts open up to attempts times, sleeping delay between
// tries. It returns the last error when every attempt fails.
func OpenWithRetry(open OpenFunc, attempts int, delay time.Duration) (Camera, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		cam, err := open()
		if err == nil {
			return cam, nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("camera failed to open after %d attempts: %w", attempts, lastErr)
}
