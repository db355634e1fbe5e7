//go:build cv

package camera

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// captureProperties requested from the device. The driver may negotiate down.
const (
	captureWidth  = 1280
	captureHeight = 720
	captureFPS    = 30
)

// Device is a webcam opened through OpenCV.
type Device struct {
	cap *gocv.VideoCapture
	mat gocv.Mat
}

// OpenDevice opens the webcam at the given index and verifies it delivers a
// frame before returning.
func OpenDevice(index int) (Camera, error) {
	cap, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", index, err)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, captureWidth)
	cap.Set(gocv.VideoCaptureFrameHeight, captureHeight)
	cap.Set(gocv.VideoCaptureFPS, captureFPS)

	d := &Device{cap: cap, mat: gocv.NewMat()}
	if _, err := d.Read(); err != nil {
		d.Close()
		return nil, fmt.Errorf("camera %d opened but produced no frame: %w", index, err)
	}
	return d, nil
}

// Read grabs the next frame and converts it to an image.Image.
func (d *Device) Read() (image.Image, error) {
	if ok := d.cap.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, fmt.Errorf("camera read failed")
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// Close releases the capture handle and its scratch buffer.
func (d *Device) Close() error {
	d.mat.Close()
	return d.cap.Close()
}
