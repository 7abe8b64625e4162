package dogapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// NormalizedRequest describes one API call. URL is a path such as
// "/api/v1/series"; the endpoint origin and the credential query are added by
// the executor.
type NormalizedRequest struct {
	Method string
	URL    string
	Params Params
	Body   any

	// SendJSON encodes Body as the JSON payload. Body is ignored otherwise.
	SendJSON bool

	// OmitAppKey leaves application_key out of the query string.
	OmitAppKey bool
}

// Header is one response header field. Multiple values are joined with ", ".
type Header struct {
	Name  string
	Value string
}

// NormalizedResponse is the canonical result of a request. The body is decoded
// on first access and cached.
type NormalizedResponse struct {
	StatusCode int
	Data       []byte
	Headers    []Header

	once    sync.Once
	decoded any
}

// StatusSuppressed is the status of the response returned in place of a
// failure by a silent APIService.
const StatusSuppressed = -1

// SuppressedResponse returns the sentinel returned by a silent APIService.
func SuppressedResponse() *NormalizedResponse {
	return NewNormalizedResponse(StatusSuppressed, []byte("{}"), nil)
}

func NewNormalizedResponse(status int, body []byte, headers []Header) *NormalizedResponse {
	if headers == nil {
		headers = []Header{}
	}
	return &NormalizedResponse{
		StatusCode: status,
		Data:       body,
		Headers:    headers,
	}
}

// HandleResponse builds a response from a textual status. The status is read
// like a leading integer: "202" and "202 Accepted" give 202, anything without
// leading digits gives 0.
func HandleResponse(status string, body []byte, headers []Header) *NormalizedResponse {
	return NewNormalizedResponse(ParseStatusCode(status), body, headers)
}

// NormalizeHTTPResponse converts resp with its already-read body. Header names
// are lower-cased and sorted; net/http does not keep the wire order.
func NormalizeHTTPResponse(resp *http.Response, body []byte) *NormalizedResponse {
	return NewNormalizedResponse(resp.StatusCode, body, headersFromHTTP(resp.Header))
}

func ParseStatusCode(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func headersFromHTTP(h http.Header) []Header {
	out := make([]Header, 0, len(h))
	for k, vals := range h {
		out = append(out, Header{Name: strings.ToLower(k), Value: strings.Join(vals, ", ")})
	}
	sortHeaders(out)
	return out
}

func sortHeaders(hs []Header) {
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].Name != hs[j].Name {
			return hs[i].Name < hs[j].Name
		}
		return hs[i].Value < hs[j].Value
	})
}

// Body returns the decoded JSON body. Empty, null or malformed bodies decode to
// an empty object.
func (r *NormalizedResponse) Body() any {
	r.once.Do(func() {
		r.decoded = decodeBody(r.Data)
	})
	return r.decoded
}

func decodeBody(data []byte) any {
	var v any
	if len(data) == 0 || json.Unmarshal(data, &v) != nil || v == nil {
		return map[string]any{}
	}
	return v
}

// Header returns the value of the named header, case-insensitively.
func (r *NormalizedResponse) Header(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, h := range r.Headers {
		if strings.ToLower(h.Name) == name {
			return h.Value, true
		}
	}
	return "", false
}

// Field looks up a gjson path in the raw body, e.g. "series.0.metric".
func (r *NormalizedResponse) Field(path string) gjson.Result {
	return gjson.GetBytes(r.Data, path)
}

// Equal reports whether both responses have the same status, decoded body and
// set of headers. Header order is ignored.
func (r *NormalizedResponse) Equal(o *NormalizedResponse) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.StatusCode != o.StatusCode {
		return false
	}
	if !reflect.DeepEqual(r.Body(), o.Body()) {
		return false
	}
	return sameHeaders(r.Headers, o.Headers)
}

func sameHeaders(a, b []Header) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]Header(nil), a...)
	y := append([]Header(nil), b...)
	sortHeaders(x)
	sortHeaders(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// NormalizedRateLimitInfo is what the API reported about the rate limit that
// applies to the request, from the x-ratelimit-* headers.
type NormalizedRateLimitInfo struct {
	Name      string
	Limit     *int
	Period    *int64 // ms
	Remaining *int
	ResetAt   *int64 // unix ms
}
