// Package httputil holds the HTTP plumbing shared by the classifier clients
// and the API handlers: a swappable client interface with a scriptable mock,
// and JSON response helpers.
package httputil

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPClient is the request surface the classifier clients depend on, so
// tests can substitute a mock for a live endpoint.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client.
type StandardClient struct {
	client *http.Client
}

// NewStandardClient wraps client; a nil client uses http.DefaultClient.
func NewStandardClient(client *http.Client) *StandardClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &StandardClient{client: client}
}

func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// MockHTTPClient records requests and replays scripted responses in order.
// Once the script runs out, DefaultError is returned if set, otherwise an
// empty 200.
type MockHTTPClient struct {
	mu        sync.Mutex
	requests  []*http.Request
	responses []mockResponse
	next      int

	DefaultError error
}

type mockResponse struct {
	status int
	body   string
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse appends a scripted response.
func (m *MockHTTPClient) AddResponse(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{status: status, body: body})
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.next < len(m.responses) {
		r := m.responses[m.next]
		m.next++
		return &http.Response{
			StatusCode: r.status,
			Body:       io.NopCloser(strings.NewReader(r.body)),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// RequestCount reports how many requests Do has seen.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Request returns the i-th recorded request, or nil when out of range.
func (m *MockHTTPClient) Request(i int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.requests) {
		return nil
	}
	return m.requests[i]
}
