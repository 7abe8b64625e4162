package mock

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/opengovern/dogapi"
)

const (
	MockDefaultMaxRequests = 100
	MockDefaultWindowSecs  = 60
	MockRateLimitName      = "mock"
)

// Connector is an in-memory dogapi.Connector. Every Connect hands out a
// connection whose round trips are answered from the fields below and recorded.
type Connector struct {
	RequestsUntilRateLimit int  // How many requests until we hit a limit
	ShouldReturn429Always  bool // If true, always return 429

	MaxRequests int
	WindowSecs  int64

	StatusCode int // defaults to 200
	Body       []byte
	Header     http.Header

	ConnectErr   error // returned by Connect
	RoundTripErr error // returned by every round trip

	Route dogapi.Route // defaults to http://mock.local:80

	mu                  sync.Mutex
	currentRequestCount int
	requests            []Request
	connects            int
	closes              int
	lastProxy           dogapi.ProxyConfig
}

// Request is a recorded round trip.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

func (m *Connector) SetRateLimitDefaults(maxRequests int, windowSecs int64) {
	if maxRequests == 0 {
		maxRequests = MockDefaultMaxRequests
	}
	if windowSecs == 0 {
		windowSecs = MockDefaultWindowSecs
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MaxRequests = maxRequests
	m.WindowSecs = windowSecs
}

func (m *Connector) Connect(_ context.Context, proxy dogapi.ProxyConfig) (*dogapi.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connects++
	m.lastProxy = proxy
	if m.ConnectErr != nil {
		return nil, m.ConnectErr
	}

	route := m.Route
	if route.Host == "" {
		route = dogapi.Route{Scheme: "http", Host: "mock.local", Port: 80}
	}
	return dogapi.NewConnection(route, &roundTripper{m: m}), nil
}

// Requests returns the recorded round trips in order.
func (m *Connector) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *Connector) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Closes counts connections released by their holder.
func (m *Connector) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *Connector) LastProxy() dogapi.ProxyConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastProxy
}

type roundTripper struct {
	m *Connector
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m := rt.m

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, Request{
		Method:   req.Method,
		Path:     req.URL.Path,
		RawQuery: req.URL.RawQuery,
		Header:   req.Header.Clone(),
		Body:     body,
	})
	if m.RoundTripErr != nil {
		return nil, m.RoundTripErr
	}

	m.currentRequestCount++

	status := m.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	data := m.Body
	header := m.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	if m.ShouldReturn429Always || (m.RequestsUntilRateLimit > 0 && m.currentRequestCount > m.RequestsUntilRateLimit) {
		status = http.StatusTooManyRequests
		data = []byte(`{"errors":["Rate limit exceeded"]}`)
	}

	if m.MaxRequests > 0 {
		remaining := m.MaxRequests - m.currentRequestCount
		if remaining < 0 || status == http.StatusTooManyRequests {
			remaining = 0
		}
		header.Set("X-RateLimit-Name", MockRateLimitName)
		header.Set("X-RateLimit-Limit", strconv.Itoa(m.MaxRequests))
		header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		header.Set("X-RateLimit-Period", strconv.FormatInt(m.WindowSecs, 10))
		header.Set("X-RateLimit-Reset", strconv.FormatInt(m.WindowSecs, 10))
	}

	return &http.Response{
		StatusCode: status,
		Status:     strconv.Itoa(status) + " " + http.StatusText(status),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Request:    req,
	}, nil
}

func (rt *roundTripper) CloseIdleConnections() {
	rt.m.mu.Lock()
	defer rt.m.mu.Unlock()
	rt.m.closes++
}
