// connection.go
// -------------
// ConnectionFactory turns the endpoint configuration plus a proxy snapshot into a
// Route, dials it, and hands back a Connection that owns exactly one socket for
// the duration of a single request. Connections are never pooled or reused: the
// caller closes them on every exit path.
package dogapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Route is the resolved target of a connection.
type Route struct {
	Scheme string
	Host   string
	Port   int
	UseTLS bool

	// Proxy is nil when the request goes direct.
	Proxy *url.URL

	OpenTimeout time.Duration
	ReadTimeout time.Duration
}

func (r Route) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// DialAddress is the address the socket is opened to: the proxy when one
// applies, the endpoint otherwise.
func (r Route) DialAddress() string {
	if r.Proxy != nil {
		return net.JoinHostPort(r.Proxy.Hostname(), strconv.Itoa(urlPort(r.Proxy)))
	}
	return r.Address()
}

// Origin is scheme://host:port, the prefix of every request URL.
func (r Route) Origin() string {
	return r.Scheme + "://" + r.Address()
}

func (r Route) ProxyHost() string {
	if r.Proxy == nil {
		return ""
	}
	return r.Proxy.Hostname()
}

func (r Route) ProxyPort() int {
	if r.Proxy == nil {
		return 0
	}
	return urlPort(r.Proxy)
}

type ConnectionFactory struct {
	endpoint    string
	openTimeout time.Duration
	readTimeout time.Duration
	tls         TLSConfig
}

func NewConnectionFactory(endpoint string, timeout time.Duration, tlsCfg TLSConfig) *ConnectionFactory {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ConnectionFactory{
		endpoint:    endpoint,
		openTimeout: timeout,
		readTimeout: timeout,
		tls:         tlsCfg,
	}
}

// Resolve parses the endpoint and applies proxy. It does no I/O.
func (f *ConnectionFactory) Resolve(proxy ProxyConfig) (Route, error) {
	u, err := url.Parse(strings.TrimSpace(f.endpoint))
	if err != nil {
		return Route{}, fmt.Errorf("invalid endpoint: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Route{}, fmt.Errorf("invalid endpoint %q: scheme must be http or https", f.endpoint)
	}
	if u.Hostname() == "" {
		return Route{}, fmt.Errorf("invalid endpoint %q: missing host", f.endpoint)
	}

	proxyURL, err := proxy.For(u)
	if err != nil {
		return Route{}, fmt.Errorf("failed to resolve proxy: %w", err)
	}

	return Route{
		Scheme:      scheme,
		Host:        u.Hostname(),
		Port:        urlPort(u),
		UseTLS:      scheme == "https",
		Proxy:       proxyURL,
		OpenTimeout: f.openTimeout,
		ReadTimeout: f.readTimeout,
	}, nil
}

// Connect resolves the route and opens its socket, bounded by the open timeout.
func (f *ConnectionFactory) Connect(ctx context.Context, proxy ProxyConfig) (*Connection, error) {
	route, err := f.Resolve(proxy)
	if err != nil {
		return nil, err
	}

	c := &Connection{Route: route}

	transport := &http.Transport{
		DialContext:         c.dial,
		TLSHandshakeTimeout: route.OpenTimeout,
		DisableKeepAlives:   true,
		MaxConnsPerHost:     1,
	}
	if route.Proxy != nil {
		transport.Proxy = http.ProxyURL(route.Proxy)
	}
	if route.UseTLS || (route.Proxy != nil && strings.EqualFold(route.Proxy.Scheme, "https")) {
		tlsCfg, err := f.tls.Build()
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsCfg
	}
	c.transport = transport
	c.client = newHTTPClient(transport)

	conn, err := c.open(ctx, route.DialAddress())
	if err != nil {
		transport.CloseIdleConnections()
		return nil, err
	}
	c.predialed = conn
	return c, nil
}

// Connection is a scoped, single-use HTTP connection.
type Connection struct {
	Route

	client    *http.Client
	transport *http.Transport

	mu        sync.Mutex
	predialed net.Conn
	conns     []net.Conn
	closed    bool
}

// NewConnection wraps an arbitrary RoundTripper as a Connection. It is meant for
// custom Connectors and test doubles; no socket is owned. Close calls
// rt.CloseIdleConnections when rt has that method.
func NewConnection(route Route, rt http.RoundTripper) *Connection {
	return &Connection{
		Route:  route,
		client: newHTTPClient(rt),
	}
}

func newHTTPClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

var errConnectionClosed = errors.New("connection closed")

// Do sends req over the connection.
func (c *Connection) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, errConnectionClosed
	}
	return c.client.Do(req)
}

// Close releases every socket the connection opened. It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conns := c.conns
	c.conns = nil
	c.predialed = nil
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	c.client.CloseIdleConnections()
	return nil
}

func (c *Connection) open(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: c.OpenTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	dc := &deadlineConn{Conn: conn, readTimeout: c.ReadTimeout}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return nil, errConnectionClosed
	}
	c.conns = append(c.conns, dc)
	return dc, nil
}

// dial hands the transport the socket opened by Connect. Any further dial
// (there should be none, redirects are not followed) opens a fresh socket that
// is still released by Close.
func (c *Connection) dial(ctx context.Context, _, addr string) (net.Conn, error) {
	c.mu.Lock()
	conn := c.predialed
	if conn != nil && addr == c.DialAddress() {
		c.predialed = nil
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()
	return c.open(ctx, addr)
}

// deadlineConn applies the read timeout to every read.
type deadlineConn struct {
	net.Conn
	readTimeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}
