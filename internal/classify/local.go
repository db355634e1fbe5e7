package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/kestrel-robotics/gatekeeper/internal/httputil"
	"github.com/kestrel-robotics/gatekeeper/internal/monitoring"
)

// LocalClient talks to a detection model served on the local machine (a small
// HTTP wrapper around an ONNX/YOLO runtime). Same degradation contract as
// RemoteClient: any failure is "nothing detected".
//
// The server accepts a multipart JPEG upload and answers with a flat list of
// predictions in pixel center-form coordinates.
type LocalClient struct {
	baseURL     string
	targetClass string
	confidence  float64
	client      httputil.HTTPClient
}

// NewLocalClient builds a client for a local inference server. minConfidence
// filters weak predictions; the highest-confidence match of the target class
// wins, matching how the hosted workflow is configured.
func NewLocalClient(baseURL, targetClass string, minConfidence float64, timeout time.Duration) *LocalClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LocalClient{
		baseURL:     baseURL,
		targetClass: targetClass,
		confidence:  minConfidence,
		client:      httputil.NewStandardClient(&http.Client{Timeout: timeout}),
	}
}

// SetHTTPClient replaces the transport, mainly for tests.
func (c *LocalClient) SetHTTPClient(client httputil.HTTPClient) {
	if client != nil {
		c.client = client
	}
}

type localPrediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

type localResponse struct {
	Predictions []localPrediction `json:"predictions"`
}

// Detect implements Classifier.
func (c *LocalClient) Detect(ctx context.Context, frame image.Image) (Result, error) {
	var imgBuf bytes.Buffer
	if err := jpeg.Encode(&imgBuf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Result{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return Result{}, err
	}
	if _, err := part.Write(imgBuf.Bytes()); err != nil {
		return Result{}, err
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		monitoring.Logf("classify: local inference request failed: %v", err)
		return Result{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		monitoring.Logf("classify: local inference returned status %d", resp.StatusCode)
		return Result{}, nil
	}

	var parsed localResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		monitoring.Logf("classify: failed to parse local inference response: %v", err)
		return Result{}, nil
	}

	var best *localPrediction
	for i := range parsed.Predictions {
		p := &parsed.Predictions[i]
		if p.Class != c.targetClass || p.Confidence < c.confidence {
			continue
		}
		if best == nil || p.Confidence >= best.Confidence {
			best = p
		}
	}
	if best == nil {
		return Result{}, nil
	}

	return Result{
		Detected: true,
		Detection: &Detection{
			ClassName:  best.Class,
			Confidence: best.Confidence,
			CenterX:    best.X,
			CenterY:    best.Y,
			Width:      best.Width,
			Height:     best.Height,
		},
	}, nil
}
