package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/kestrel-robotics/gatekeeper/internal/httputil"
	"github.com/kestrel-robotics/gatekeeper/internal/monitoring"
)

// jpegQuality for frames shipped to the remote endpoint. 70 keeps the payload
// small without hurting detection at webcam resolutions.
const jpegQuality = 70

// RemoteClient calls a hosted detection workflow over HTTP. Timeouts and
// non-2xx responses degrade to "nothing detected" so a flaky network never
// stalls or kills the pipeline; the persistence counter in the worker absorbs
// the gaps.
type RemoteClient struct {
	endpoint    string
	apiKey      string
	targetClass string
	client      httputil.HTTPClient
}

// NewRemoteClient builds a client for the given workflow endpoint. The target
// class filters predictions; everything else the model reports is ignored.
func NewRemoteClient(endpoint, apiKey, targetClass string, timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteClient{
		endpoint:    endpoint,
		apiKey:      apiKey,
		targetClass: targetClass,
		client:      httputil.NewStandardClient(&http.Client{Timeout: timeout}),
	}
}

// SetHTTPClient replaces the transport, mainly for tests.
func (c *RemoteClient) SetHTTPClient(client httputil.HTTPClient) {
	if client != nil {
		c.client = client
	}
}

// remoteRequest is the workflow invocation payload.
type remoteRequest struct {
	APIKey string       `json:"api_key"`
	Inputs remoteInputs `json:"inputs"`
}

type remoteInputs struct {
	Image remoteImage `json:"image"`
}

type remoteImage struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// remoteResponse mirrors the workflow output envelope: a list of outputs each
// wrapping a predictions object.
type remoteResponse struct {
	Outputs []struct {
		Predictions struct {
			Predictions []remotePrediction `json:"predictions"`
		} `json:"predictions"`
	} `json:"outputs"`
}

type remotePrediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// Detect implements Classifier. The frame is JPEG-encoded, base64-wrapped and
// posted to the workflow; the first prediction matching the target class is
// returned. Every failure mode maps to Detected=false with a nil error —
// callers cannot do anything useful with transport errors, and logging here
// keeps the worker loop clean.
func (c *RemoteClient) Detect(ctx context.Context, frame image.Image) (Result, error) {
	if c.apiKey == "" {
		monitoring.Logf("classify: remote API key not configured")
		return Result{}, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Result{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	payload := remoteRequest{
		APIKey: c.apiKey,
		Inputs: remoteInputs{Image: remoteImage{
			Type:  "base64",
			Value: base64.StdEncoding.EncodeToString(buf.Bytes()),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		monitoring.Logf("classify: remote request failed: %v", err)
		return Result{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		monitoring.Logf("classify: remote returned status %d", resp.StatusCode)
		return Result{}, nil
	}

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		monitoring.Logf("classify: failed to parse remote response: %v", err)
		return Result{}, nil
	}

	return c.pick(parsed), nil
}

// pick finds the first target-class prediction in the response.
func (c *RemoteClient) pick(resp remoteResponse) Result {
	for _, out := range resp.Outputs {
		for _, pred := range out.Predictions.Predictions {
			if pred.Class != c.targetClass {
				continue
			}
			return Result{
				Detected: true,
				Detection: &Detection{
					ClassName:  pred.Class,
					Confidence: pred.Confidence,
					CenterX:    pred.X,
					CenterY:    pred.Y,
					Width:      pred.Width,
					Height:     pred.Height,
				},
			}
		}
	}
	return Result{}
}
