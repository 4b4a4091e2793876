// Package httputil provides HTTP client abstractions for testability.
package httputil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// HTTPClient abstracts HTTP operations for testability.
// Use StandardClient for production; MockClient for testing.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient creates a new StandardClient wrapping the given http.Client.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{Client: c}
}

// Do sends an HTTP request.
func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

// MockClient serves canned responses keyed by request URL, recording every
// request it sees. Unknown URLs get a 404 so list/fetch code paths can be
// tested without a network.
type MockClient struct {
	mu        sync.Mutex
	responses map[string][]mockResponse
	Requests  []*http.Request
}

type mockResponse struct {
	status int
	body   []byte
	err    error
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{responses: make(map[string][]mockResponse)}
}

// AddResponse queues a response for the given URL. Multiple responses for
// one URL are served in order; the last one repeats.
func (m *MockClient) AddResponse(url string, status int, body []byte) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = append(m.responses[url], mockResponse{status: status, body: body})
	return m
}

// AddError queues a transport error for the given URL.
func (m *MockClient) AddError(url string, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = append(m.responses[url], mockResponse{err: err})
	return m
}

// Do records the request and returns the next queued response for its URL.
func (m *MockClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	url := req.URL.String()
	queue := m.responses[url]
	if len(queue) == 0 {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Status:     fmt.Sprintf("%d %s", http.StatusNotFound, http.StatusText(http.StatusNotFound)),
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}
	next := queue[0]
	if len(queue) > 1 {
		m.responses[url] = queue[1:]
	}
	if next.err != nil {
		return nil, next.err
	}
	return &http.Response{
		StatusCode: next.status,
		Status:     fmt.Sprintf("%d %s", next.status, http.StatusText(next.status)),
		Body:       io.NopCloser(bytes.NewReader(next.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// RequestCount returns the number of recorded requests.
func (m *MockClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
