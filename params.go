package dogapi

import (
	"net/url"
	"sort"
	"strings"
)

const (
	ParamAPIKey         = "api_key"
	ParamApplicationKey = "application_key"
)

// Params are caller-supplied query parameters.
type Params map[string]string

// ParameterEncoder builds the query string appended to every request URL.
//
// Extra keys are written in lexicographic order, followed by api_key and then
// application_key. Credentials always win over extra keys of the same name.
// Keys and values are written verbatim unless Escape is set.
type ParameterEncoder struct {
	APIKey         string
	ApplicationKey string
	Escape         bool
}

func (e ParameterEncoder) Encode(extra Params, includeAppKey bool) string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if k == ParamAPIKey || (includeAppKey && k == ParamApplicationKey) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		pairs = append(pairs, e.pair(k, extra[k]))
	}
	pairs = append(pairs, e.pair(ParamAPIKey, e.APIKey))
	if includeAppKey {
		pairs = append(pairs, e.pair(ParamApplicationKey, e.ApplicationKey))
	}
	return "?" + strings.Join(pairs, "&")
}

func (e ParameterEncoder) pair(k, v string) string {
	if e.Escape {
		return url.QueryEscape(k) + "=" + url.QueryEscape(v)
	}
	return k + "=" + v
}
