package helpers

import (
	"bufio"
	"bytes"
	"io/ioutil"
	"net/http"
	"sync"
	"time"
)

// MockHTTP is http.RoundTripper for tests of sinks talking HTTP.
// Zero value replies "200 OK" with empty body.
type MockHTTP struct {
	Fun    func(*http.Request) (*http.Response, error)
	Header []byte
	Body   []byte
	Err    error
	Delay  time.Duration

	mu       sync.Mutex
	requests []MockRequest
}

type MockRequest struct {
	Method      string
	URL         string
	ContentType string
	Body        []byte
}

func (m *MockHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	r := MockRequest{
		Method:      req.Method,
		URL:         req.URL.String(),
		ContentType: req.Header.Get("Content-Type"),
	}
	if req.Body != nil {
		r.Body, _ = ioutil.ReadAll(req.Body)
		_ = req.Body.Close()
	}
	WithLock(&m.mu, func() { m.requests = append(m.requests, r) })

	if m.Delay != 0 {
		select {
		case <-time.After(m.Delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	if m.Fun != nil {
		return m.Fun(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	header := m.Header
	if header == nil {
		header = []byte("HTTP/1.0 200 OK\r\n\r\n")
	}
	rb := make([]byte, 0, len(header)+len(m.Body))
	rb = append(rb, header...)
	rb = append(rb, m.Body...)
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(rb)), req)
}

func (m *MockHTTP) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs := make([]MockRequest, len(m.requests))
	copy(rs, m.requests)
	return rs
}
