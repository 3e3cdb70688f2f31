// Package testutil provides testing utilities for the Gmail client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockResponse defines the behavior for a mock Gmail endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockGmail is a configurable mock Gmail API server for testing. It
// serves a built-in OAuth token endpoint at /token and per-path
// handlers for everything else.
type MockGmail struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount   int
	TokenRequests  int
	LastAuthHeader string
}

// NewMockGmail creates a new mock Gmail server.
func NewMockGmail() *MockGmail {
	mock := &MockGmail{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			mock.mu.Lock()
			mock.TokenRequests++
			n := mock.TokenRequests
			mock.mu.Unlock()

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"access_token":"test-token-%d","expires_in":3600,"token_type":"Bearer","scope":"profile"}`, n)
			return
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastAuthHeader = r.Header.Get("Authorization")
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGmail) URL() string {
	return m.server.URL
}

// TokenURL returns the built-in token endpoint URL.
func (m *MockGmail) TokenURL() string {
	return m.server.URL + "/token"
}

// Close shuts down the mock server.
func (m *MockGmail) Close() {
	m.server.Close()
}

// GetRequestCount returns the number of API requests (token endpoint
// excluded).
func (m *MockGmail) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGmail) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockGmail) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON configures a 200 JSON response for a path.
func (m *MockGmail) SetJSON(path, body string) {
	m.SetResponse(path, MockResponse{StatusCode: http.StatusOK, Body: body})
}

// SetPages configures a token-paged listing endpoint. pages maps the
// incoming pageToken query value ("" for the first page) to the JSON
// page body to return.
func (m *MockGmail) SetPages(path string, pages map[string]string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Query().Get("pageToken")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"unknown page token"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	})
}

// BatchPart describes one embedded HTTP response inside a mock batch
// reply.
type BatchPart struct {
	Status      int
	ContentType string // embedded response content type; default application/json
	Body        string

	// ContentID overrides the part's Content-ID header. Default is
	// response-req-{n} by position.
	ContentID string

	// ContentLength overrides the embedded Content-Length header.
	// Zero means the true body length.
	ContentLength int
}

// BuildBatchBody constructs a multipart/mixed batch response body with
// one embedded HTTP response per part, framed exactly as the batch
// endpoint frames it.
func BuildBatchBody(boundary string, parts []BatchPart) string {
	var b strings.Builder

	for n, p := range parts {
		cid := p.ContentID
		if cid == "" {
			cid = fmt.Sprintf("response-req-%d", n)
		}
		ct := p.ContentType
		if ct == "" {
			ct = "application/json"
		}
		cl := p.ContentLength
		if cl == 0 {
			cl = len(p.Body)
		}

		// Every boundary line is CRLF-prefixed; the parser accepts a
		// leading CRLF on the opening boundary too.
		b.WriteString("\r\n--" + boundary + "\r\n")
		b.WriteString("Content-Type: application/http\r\n")
		b.WriteString("Content-ID: " + cid + "\r\n")
		b.WriteString("\r\n")

		fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", p.Status, http.StatusText(p.Status))
		b.WriteString("Content-Type: " + ct + "\r\n")
		fmt.Fprintf(&b, "Content-Length: %d\r\n", cl)
		b.WriteString("\r\n")
		b.WriteString(p.Body)
	}

	b.WriteString("\r\n--" + boundary + "--\r\n")

	return b.String()
}

// SetBatchResponse configures the batch endpoint to return the given
// parts under the given response boundary.
func (m *MockGmail) SetBatchResponse(path, boundary string, parts []BatchPart) {
	body := BuildBatchBody(boundary, parts)
	m.SetResponse(path, MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "multipart/mixed; boundary=" + boundary,
		},
	})
}
