//go:build !cv

package camera

import "fmt"

// OpenDevice is unavailable without the cv build tag. Building with OpenCV
// support requires the gocv toolchain: `go build -tags cv`.
func OpenDevice(index int) (Camera, error) {
	return nil, fmt.Errorf("camera %d: binary built without OpenCV support (rebuild with -tags cv, or run with -dev)", index)
}
