package dogapi_test

import (
	"bytes"
	"context"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengovern/dogapi"
	"github.com/opengovern/dogapi/mock"
)

func noEnv(string) (string, bool) { return "", false }

func envFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestExecute_BuildsRequest(t *testing.T) {
	tests := map[string]struct {
		req       *dogapi.NormalizedRequest
		wantQuery string
		wantBody  string
		wantType  string
		wantVerb  string
	}{
		"get with credentials": {
			req:       &dogapi.NormalizedRequest{Method: "GET", URL: "/api/v1/validate"},
			wantQuery: "api_key=api123&application_key=app456",
			wantVerb:  http.MethodGet,
		},
		"method defaults to GET": {
			req:       &dogapi.NormalizedRequest{URL: "/api/v1/validate"},
			wantQuery: "api_key=api123&application_key=app456",
			wantVerb:  http.MethodGet,
		},
		"lowercase method": {
			req:       &dogapi.NormalizedRequest{Method: "delete", URL: "/api/v1/monitor/1"},
			wantQuery: "api_key=api123&application_key=app456",
			wantVerb:  http.MethodDelete,
		},
		"omit application key": {
			req:       &dogapi.NormalizedRequest{Method: "GET", URL: "/api/v1/validate", OmitAppKey: true},
			wantQuery: "api_key=api123",
			wantVerb:  http.MethodGet,
		},
		"extra params": {
			req: &dogapi.NormalizedRequest{
				Method: "GET",
				URL:    "/api/v1/events",
				Params: dogapi.Params{"start": "100", "end": "200"},
			},
			wantQuery: "end=200&start=100&api_key=api123&application_key=app456",
			wantVerb:  http.MethodGet,
		},
		"json body": {
			req: &dogapi.NormalizedRequest{
				Method:   "POST",
				URL:      "/api/v1/series",
				Body:     map[string]any{"series": []any{map[string]any{"metric": "test.metric"}}},
				SendJSON: true,
			},
			wantQuery: "api_key=api123&application_key=app456",
			wantBody:  `{"series":[{"metric":"test.metric"}]}`,
			wantType:  "application/json",
			wantVerb:  http.MethodPost,
		},
		"body ignored without SendJSON": {
			req: &dogapi.NormalizedRequest{
				Method: "POST",
				URL:    "/api/v1/series",
				Body:   map[string]any{"ignored": true},
			},
			wantQuery: "api_key=api123&application_key=app456",
			wantVerb:  http.MethodPost,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m := &mock.Connector{StatusCode: http.StatusAccepted, Body: []byte(`{"status":"ok"}`)}
			svc := dogapi.NewAPIServiceWithConnector("api123", "app456", m,
				dogapi.WithSilent(false), dogapi.WithLookupEnv(noEnv))

			resp, err := svc.Request(context.Background(), test.req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusAccepted, resp.StatusCode)
			assert.Equal(t, map[string]any{"status": "ok"}, resp.Body())

			reqs := m.Requests()
			require.Len(t, reqs, 1)
			got := reqs[0]
			assert.Equal(t, test.wantVerb, got.Method)
			assert.Equal(t, test.req.URL, got.Path)
			assert.Equal(t, test.wantQuery, got.RawQuery)
			assert.Equal(t, test.wantType, got.Header.Get("Content-Type"))
			if test.wantBody == "" {
				assert.Empty(t, got.Body)
			} else {
				assert.JSONEq(t, test.wantBody, string(got.Body))
			}
			assert.Equal(t, 1, m.Connects())
			assert.Equal(t, 1, m.Closes())
		})
	}
}

func TestExecute_Failures(t *testing.T) {
	tests := map[string]struct {
		connector *mock.Connector
		req       *dogapi.NormalizedRequest
		env       map[string]string
		wantKind  dogapi.ErrorKind
		wantClose int
	}{
		"connect fails": {
			connector: &mock.Connector{ConnectErr: errors.New("connection refused")},
			req:       &dogapi.NormalizedRequest{Method: "GET", URL: "/api/v1/validate"},
			wantKind:  dogapi.KindConnection,
		},
		"invalid proxy": {
			connector: &mock.Connector{},
			req:       &dogapi.NormalizedRequest{Method: "GET", URL: "/api/v1/validate"},
			env:       map[string]string{"HTTPS_PROXY": "http://:8080"},
			wantKind:  dogapi.KindConnection,
		},
		"round trip fails": {
			connector: &mock.Connector{RoundTripErr: errors.New("connection reset by peer")},
			req:       &dogapi.NormalizedRequest{Method: "GET", URL: "/api/v1/validate"},
			wantKind:  dogapi.KindTransport,
			wantClose: 1,
		},
		"body cannot be encoded": {
			connector: &mock.Connector{},
			req:       &dogapi.NormalizedRequest{Method: "POST", URL: "/api/v1/series", Body: make(chan int), SendJSON: true},
			wantKind:  dogapi.KindSerialization,
			wantClose: 1,
		},
		"nil request": {
			connector: &mock.Connector{},
			wantKind:  dogapi.KindTransport,
		},
	}

	for name, test := range tests {
		t.Run(name+"/strict", func(t *testing.T) {
			svc := dogapi.NewAPIServiceWithConnector("api123", "app456", test.connector,
				dogapi.WithSilent(false), dogapi.WithLookupEnv(envFrom(test.env)))

			resp, err := svc.Request(context.Background(), test.req)

			require.Error(t, err)
			assert.Nil(t, resp)
			de, ok := dogapi.AsError(err)
			require.True(t, ok)
			assert.Equal(t, test.wantKind, de.Kind)
			assert.NotContains(t, err.Error(), "api123")
			assert.NotContains(t, err.Error(), "app456")
			assert.Equal(t, test.wantClose, test.connector.Closes())
		})
	}

	for name, test := range tests {
		t.Run(name+"/silent", func(t *testing.T) {
			var buf bytes.Buffer
			c := &mock.Connector{
				ConnectErr:   test.connector.ConnectErr,
				RoundTripErr: test.connector.RoundTripErr,
			}
			svc := dogapi.NewAPIServiceWithConnector("api123", "app456", c,
				dogapi.WithLookupEnv(envFrom(test.env)),
				dogapi.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

			resp, err := svc.Request(context.Background(), test.req)

			require.NoError(t, err)
			assert.Equal(t, dogapi.StatusSuppressed, resp.StatusCode)
			assert.Equal(t, map[string]any{}, resp.Body())
			assert.Contains(t, buf.String(), test.wantKind.String()+" error")
		})
	}
}

func TestExecute_NonSuccessStatusIsNotAnError(t *testing.T) {
	m := &mock.Connector{StatusCode: http.StatusForbidden, Body: []byte(`{"errors":["Forbidden"]}`)}
	svc := dogapi.NewAPIServiceWithConnector("api", "app", m,
		dogapi.WithSilent(false), dogapi.WithLookupEnv(noEnv))

	resp, err := svc.Request(context.Background(), &dogapi.NormalizedRequest{Method: "GET", URL: "/api/v1/validate"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Forbidden", resp.Field("errors.0").String())
}

func TestExecute_ProxyIsReadOnEveryCall(t *testing.T) {
	env := map[string]string{"http_proxy": "https://www.proxy.com:443"}
	m := &mock.Connector{}
	svc := dogapi.NewAPIServiceWithConnector("api", "app", m, dogapi.WithLookupEnv(envFrom(env)))

	_, err := svc.Request(context.Background(), &dogapi.NormalizedRequest{URL: "/api/v1/validate"})
	require.NoError(t, err)
	assert.Equal(t, "www.proxy.com", m.LastProxy().Host())
	assert.Equal(t, 443, m.LastProxy().Port())

	delete(env, "http_proxy")

	_, err = svc.Request(context.Background(), &dogapi.NormalizedRequest{URL: "/api/v1/validate"})
	require.NoError(t, err)
	assert.False(t, m.LastProxy().Enabled())
}

func TestExecute_TracksRateLimits(t *testing.T) {
	m := &mock.Connector{RequestsUntilRateLimit: 2}
	m.SetRateLimitDefaults(3, 60)
	svc := dogapi.NewAPIServiceWithConnector("api", "app", m,
		dogapi.WithSilent(false), dogapi.WithLookupEnv(noEnv))

	req := &dogapi.NormalizedRequest{URL: "/api/v1/query"}

	resp, err := svc.Request(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	info := svc.GetRateLimitInfo(mock.MockRateLimitName)
	require.NotNil(t, info)
	assert.Equal(t, 3, *info.Limit)
	assert.Equal(t, 2, *info.Remaining)
	assert.Equal(t, int64(60_000), *info.Period)

	_, err = svc.Request(context.Background(), req)
	require.NoError(t, err)
	resp, err = svc.Request(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	info = svc.GetRateLimitInfo(mock.MockRateLimitName)
	require.NotNil(t, info)
	assert.Equal(t, 0, *info.Remaining)
	assert.Len(t, m.Requests(), 3)
}

func TestExecute_ConcurrentRequests(t *testing.T) {
	m := &mock.Connector{Body: []byte(`{"ok":true}`)}
	svc := dogapi.NewAPIServiceWithConnector("api", "app", m,
		dogapi.WithSilent(false), dogapi.WithLookupEnv(noEnv))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.Request(context.Background(), &dogapi.NormalizedRequest{URL: "/api/v1/validate"})
			assert.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, m.Connects())
	assert.Equal(t, 16, m.Closes())
}

func TestRequest_HTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/validate":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"valid":true}`))
		case "/api/v1/series":
			b, _ := io.ReadAll(r.Body)
			if r.Header.Get("Content-Type") != "application/json" || !strings.Contains(string(b), "test.metric") {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/api/v1/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":["Not found"]}`))
		}
	}))
	defer srv.Close()

	svc := dogapi.NewAPIService("api", "app",
		dogapi.WithEndpoint(srv.URL), dogapi.WithSilent(false), dogapi.WithLookupEnv(noEnv))

	tests := map[string]struct {
		req        *dogapi.NormalizedRequest
		wantStatus int
		wantBody   any
	}{
		"validate": {
			req:        &dogapi.NormalizedRequest{Method: "GET", URL: "/api/v1/validate"},
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"valid": true},
		},
		"submit series": {
			req: &dogapi.NormalizedRequest{
				Method:   "POST",
				URL:      "/api/v1/series",
				Body:     map[string]any{"series": []map[string]any{{"metric": "test.metric"}}},
				SendJSON: true,
			},
			wantStatus: http.StatusAccepted,
			wantBody:   map[string]any{"status": "ok"},
		},
		"no content": {
			req:        &dogapi.NormalizedRequest{Method: "DELETE", URL: "/api/v1/empty"},
			wantStatus: http.StatusNoContent,
			wantBody:   map[string]any{},
		},
		"not found": {
			req:        &dogapi.NormalizedRequest{Method: "GET", URL: "/api/v1/nope"},
			wantStatus: http.StatusNotFound,
			wantBody:   map[string]any{"errors": []any{"Not found"}},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			resp, err := svc.Request(context.Background(), test.req)
			require.NoError(t, err)

			assert.Equal(t, test.wantStatus, resp.StatusCode)
			assert.Equal(t, test.wantBody, resp.Body())
		})
	}

	resp, err := svc.Request(context.Background(), &dogapi.NormalizedRequest{URL: "/api/v1/validate"})
	require.NoError(t, err)
	ct, ok := resp.Header("content-type")
	require.True(t, ok)
	assert.Equal(t, "application/json", ct)
	for _, h := range resp.Headers {
		assert.Equal(t, strings.ToLower(h.Name), h.Name)
	}
}

func TestRequest_Unreachable(t *testing.T) {
	req := &dogapi.NormalizedRequest{Method: "GET", URL: "/api/v1/validate"}

	strict := dogapi.NewAPIService("api", "app",
		dogapi.WithEndpoint("http://127.0.0.1:1"), dogapi.WithSilent(false),
		dogapi.WithTimeout(time.Second), dogapi.WithLookupEnv(noEnv))

	_, err := strict.Request(context.Background(), req)
	require.Error(t, err)
	assert.True(t, dogapi.IsConnectionError(err))

	var buf bytes.Buffer
	silent := dogapi.NewAPIService("api", "app",
		dogapi.WithEndpoint("http://127.0.0.1:1"), dogapi.WithTimeout(time.Second),
		dogapi.WithLookupEnv(noEnv), dogapi.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	resp, err := silent.Request(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, -1, resp.StatusCode)
	assert.Equal(t, map[string]any{}, resp.Body())
	assert.Contains(t, buf.String(), "connection error")
}

func TestRequest_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	svc := dogapi.NewAPIService("api", "app",
		dogapi.WithEndpoint(srv.URL), dogapi.WithSilent(false), dogapi.WithLookupEnv(noEnv))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Request(ctx, &dogapi.NormalizedRequest{URL: "/api/v1/validate"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequest_ThroughProxy(t *testing.T) {
	var gotHost, gotAuth, gotQuery string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.URL.Host
		gotAuth = r.Header.Get("Proxy-Authorization")
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"via":"proxy"}`))
	}))
	defer proxy.Close()

	proxyURL := strings.Replace(proxy.URL, "http://", "http://user:pass@", 1)
	svc := dogapi.NewAPIService("api", "app",
		dogapi.WithEndpoint("http://api.datadog.invalid"),
		dogapi.WithSilent(false),
		dogapi.WithLookupEnv(envFrom(map[string]string{"HTTP_PROXY": proxyURL})))

	resp, err := svc.Request(context.Background(), &dogapi.NormalizedRequest{URL: "/api/v1/validate"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"via": "proxy"}, resp.Body())
	assert.Equal(t, "api.datadog.invalid:80", gotHost)
	assert.Equal(t, "Basic dXNlcjpwYXNz", gotAuth)
	assert.Equal(t, "api_key=api&application_key=app", gotQuery)
}

func TestRequest_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"secure":true}`))
	}))
	defer srv.Close()

	req := &dogapi.NormalizedRequest{URL: "/api/v1/validate"}

	untrusted := dogapi.NewAPIService("api", "app",
		dogapi.WithEndpoint(srv.URL), dogapi.WithSilent(false), dogapi.WithLookupEnv(noEnv))
	_, err := untrusted.Request(context.Background(), req)
	require.Error(t, err)
	assert.True(t, dogapi.IsConnectionError(err))

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: srv.Certificate().Raw,
	}), 0o600))

	trusted := dogapi.NewAPIService("api", "app",
		dogapi.WithEndpoint(srv.URL), dogapi.WithSilent(false), dogapi.WithLookupEnv(noEnv),
		dogapi.WithTLS(dogapi.TLSConfig{CAFile: caFile}))
	resp, err := trusted.Request(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"secure": true}, resp.Body())
}

// tunnelProxy answers CONNECT by piping the client to backend, whatever host
// the client asked for. It records the requested hosts.
type tunnelProxy struct {
	backend string

	mu    sync.Mutex
	hosts []string
}

func (p *tunnelProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodConnect {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.mu.Lock()
	p.hosts = append(p.hosts, r.Host)
	p.mu.Unlock()

	upstream, err := net.Dial("tcp", p.backend)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer upstream.Close()

	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	client, rw, err := hj.Hijack()
	if err != nil {
		return
	}
	defer client.Close()

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n")); err != nil {
		return
	}
	go func() {
		_, _ = io.Copy(upstream, rw)
		_ = upstream.Close()
	}()
	_, _ = io.Copy(client, upstream)
}

func (p *tunnelProxy) Hosts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.hosts...)
}

func TestRequest_ThroughConnectProxy(t *testing.T) {
	backend := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "api" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"tunnel":true}`))
	}))
	defer backend.Close()

	// The test certificate is shared by every httptest TLS server and is valid
	// for example.com, so it covers the endpoint and an https proxy alike.
	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: backend.Certificate().Raw,
	}), 0o600))

	port := backend.Listener.Addr().(*net.TCPAddr).Port
	endpoint := "https://example.com:" + strconv.Itoa(port)

	tests := map[string]struct {
		newProxy func(http.Handler) *httptest.Server
	}{
		"http proxy":  {newProxy: httptest.NewServer},
		"https proxy": {newProxy: httptest.NewTLSServer},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			tunnel := &tunnelProxy{backend: backend.Listener.Addr().String()}
			proxy := test.newProxy(tunnel)
			defer proxy.Close()

			svc := dogapi.NewAPIService("api", "app",
				dogapi.WithEndpoint(endpoint),
				dogapi.WithSilent(false),
				dogapi.WithTimeout(5*time.Second),
				dogapi.WithTLS(dogapi.TLSConfig{CAFile: caFile}),
				dogapi.WithLookupEnv(envFrom(map[string]string{"HTTPS_PROXY": proxy.URL})))

			resp, err := svc.Request(context.Background(), &dogapi.NormalizedRequest{URL: "/api/v1/validate"})
			require.NoError(t, err)

			assert.Equal(t, http.StatusAccepted, resp.StatusCode)
			assert.Equal(t, map[string]any{"tunnel": true}, resp.Body())
			assert.Equal(t, []string{"example.com:" + strconv.Itoa(port)}, tunnel.Hosts())
		})
	}
}
