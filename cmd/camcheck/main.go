// Camcheck verifies a camera delivers frames before deploying the gate on a
// new machine: it opens the device (or a fixture directory), reads a handful
// of frames, reports the success rate, and saves a sample JPEG.
package main

import (
	"flag"
	"image/jpeg"
	"log"
	"os"

	"github.com/kestrel-robotics/gatekeeper/internal/camera"
)

var (
	cameraIndex = flag.Int("camera", 0, "Camera device index")
	fixturesDir = flag.String("fixtures", "", "Read frames from this directory instead of a device")
	frameCount  = flag.Int("n", 30, "Number of frames to read")
	samplePath  = flag.String("out", "sample.jpg", "Path for the sample frame")
)

func main() {
	flag.Parse()

	var open camera.OpenFunc
	if *fixturesDir != "" {
		open = func() (camera.Camera, error) {
			return camera.NewFixtureCamera(*fixturesDir, 30)
		}
	} else {
		open = func() (camera.Camera, error) {
			return camera.OpenDevice(*cameraIndex)
		}
	}

	cam, err := camera.OpenWithRetry(open, camera.DefaultOpenAttempts, camera.DefaultOpenDelay)
	if err != nil {
		log.Fatalf("failed to open camera: %v", err)
	}
	defer cam.Close()

	ok := 0
	sampleSaved := false
	for i := 0; i < *frameCount; i++ {
		frame, err := cam.Read()
		if err != nil {
			log.Printf("frame %d: read failed: %v", i+1, err)
			continue
		}
		ok++
		if !sampleSaved {
			f, err := os.Create(*samplePath)
			if err != nil {
				log.Fatalf("failed to create %s: %v", *samplePath, err)
			}
			if err := jpeg.Encode(f, frame, &jpeg.Options{Quality: 90}); err != nil {
				log.Fatalf("failed to encode sample frame: %v", err)
			}
			f.Close()
			sampleSaved = true
			bounds := frame.Bounds()
			log.Printf("saved %dx%d sample frame to %s", bounds.Dx(), bounds.Dy(), *samplePath)
		}
	}

	log.Printf("read %d/%d frames successfully", ok, *frameCount)
	if ok == 0 {
		os.Exit(1)
	}
}
