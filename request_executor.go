package dogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RequestExecutor runs a single request: connect, encode, send, read, normalize.
// It never retries. Failures are returned as *Error for the caller to route
// through the error-suppression policy.
type RequestExecutor struct {
	svc *APIService
}

func NewRequestExecutor(svc *APIService) *RequestExecutor {
	return &RequestExecutor{svc: svc}
}

func (re *RequestExecutor) Execute(ctx context.Context, req *NormalizedRequest) (*NormalizedResponse, error) {
	if req == nil {
		return nil, &Error{Kind: KindTransport, Cause: errors.New("nil request")}
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	fail := func(kind ErrorKind, err error) (*NormalizedResponse, error) {
		return nil, &Error{Kind: kind, Method: method, URL: req.URL, Cause: err}
	}

	// The proxy environment is read on every call so changes apply immediately.
	proxy, err := ProxyFromLookup(re.svc.config.LookupEnv)
	if err != nil {
		return fail(KindConnection, err)
	}

	conn, err := re.svc.connector.Connect(ctx, proxy)
	if err != nil {
		return fail(KindConnection, err)
	}
	defer conn.Close()

	target := conn.Origin() + req.URL + re.svc.encoder.Encode(req.Params, !req.OmitAppKey)

	var body io.Reader
	if req.SendJSON {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fail(KindSerialization, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fail(KindTransport, stripURL(err))
	}
	if req.SendJSON {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	re.svc.debug("sending request", "method", method, "path", req.URL, "proxy", conn.ProxyHost())
	start := time.Now()

	resp, err := conn.Do(httpReq)
	if err != nil {
		re.svc.debug("request failed", "method", method, "path", req.URL, "duration", time.Since(start), "error", stripURL(err))
		return fail(classifyRoundTripError(err), stripURL(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(KindTransport, err)
	}

	out := NormalizeHTTPResponse(resp, data)
	if info, ok := out.RateLimitInfo(); ok {
		re.svc.rateLimiter.Update(info)
	}
	re.svc.debug("request done", "method", method, "path", req.URL, "status", out.StatusCode, "duration", time.Since(start))
	return out, nil
}

// stripURL drops the *url.Error wrapper net/http adds: its message repeats the
// full URL, query credentials included.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
