package dogapi

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpproxy"
)

// ProxyEnvVars are consulted in order; the first non-empty one wins.
var ProxyEnvVars = []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"}

var noProxyEnvVars = []string{"NO_PROXY", "no_proxy"}

// ProxyConfig is a snapshot of the proxy environment taken for a single
// connection. The zero value means no proxy.
type ProxyConfig struct {
	URL     *url.URL
	NoProxy string
}

// ProxyFromEnvironment reads the proxy variables from the process environment.
func ProxyFromEnvironment() (ProxyConfig, error) {
	return ProxyFromLookup(os.LookupEnv)
}

// ProxyFromLookup reads the proxy variables through lookup.
func ProxyFromLookup(lookup func(string) (string, bool)) (ProxyConfig, error) {
	var cfg ProxyConfig
	if lookup == nil {
		return cfg, nil
	}

	for _, key := range noProxyEnvVars {
		if v, ok := lookup(key); ok && v != "" {
			cfg.NoProxy = v
			break
		}
	}

	for _, key := range ProxyEnvVars {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		u, err := parseProxyURL(strings.TrimSpace(v))
		if err != nil {
			return ProxyConfig{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		cfg.URL = u
		break
	}
	return cfg, nil
}

func parseProxyURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("proxy %q has no host", raw)
	}
	return u, nil
}

func (p ProxyConfig) Enabled() bool { return p.URL != nil }

func (p ProxyConfig) Host() string {
	if p.URL == nil {
		return ""
	}
	return p.URL.Hostname()
}

// Port returns the proxy port, defaulting by scheme. Zero when no proxy is set.
func (p ProxyConfig) Port() int {
	if p.URL == nil {
		return 0
	}
	return urlPort(p.URL)
}

func (p ProxyConfig) User() string {
	if p.URL == nil || p.URL.User == nil {
		return ""
	}
	return p.URL.User.Username()
}

func (p ProxyConfig) Password() string {
	if p.URL == nil || p.URL.User == nil {
		return ""
	}
	pw, _ := p.URL.User.Password()
	return pw
}

// For returns the proxy to use for target, or nil when the target is exempt
// (NO_PROXY match, localhost or a loopback address).
func (p ProxyConfig) For(target *url.URL) (*url.URL, error) {
	if p.URL == nil || target == nil {
		return nil, nil
	}
	proxy := p.URL.String()
	cfg := httpproxy.Config{
		HTTPProxy:  proxy,
		HTTPSProxy: proxy,
		NoProxy:    p.NoProxy,
	}
	return cfg.ProxyFunc()(target)
}

func urlPort(u *url.URL) int {
	if s := u.Port(); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	if strings.EqualFold(u.Scheme, "https") {
		return 443
	}
	return 80
}
