// config.go
// ---------
// ServiceConfig carries everything an APIService needs besides its credentials:
// the endpoint, the open/read timeout, the error-suppression mode, TLS options and
// the diagnostic logger. It is fixed at construction and never mutated.
package dogapi

import (
	"log/slog"
	"os"
	"time"
)

const (
	// DefaultEndpoint is used when neither an explicit endpoint nor DATADOG_HOST is set.
	DefaultEndpoint = "https://app.datadoghq.com"

	// DefaultTimeout bounds both connection establishment and each socket read.
	DefaultTimeout = 5 * time.Second

	// EnvDatadogHost overrides DefaultEndpoint.
	EnvDatadogHost = "DATADOG_HOST"
)

// Mode selects how request failures reach the caller.
type Mode int

const (
	// Silent logs the failure and returns SuppressedResponse() instead.
	Silent Mode = iota
	// Strict returns the failure unchanged.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "silent"
}

type ServiceConfig struct {
	Endpoint string
	Timeout  time.Duration
	Mode     Mode

	TLS TLSConfig

	// EscapeParams url-escapes query keys and values. Off by default: the
	// encoder writes them verbatim.
	EscapeParams bool

	Logger *slog.Logger

	// LookupEnv reads proxy variables on every request. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// DefaultServiceConfig returns a silent configuration pointed at FindDatadogHost().
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Endpoint:  FindDatadogHost(),
		Timeout:   DefaultTimeout,
		Mode:      Silent,
		Logger:    slog.Default(),
		LookupEnv: os.LookupEnv,
	}
}

type Option func(*ServiceConfig)

func WithEndpoint(endpoint string) Option {
	return func(c *ServiceConfig) {
		if endpoint != "" {
			c.Endpoint = endpoint
		}
	}
}

// WithTimeout sets the open and read timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *ServiceConfig) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

func WithSilent(silent bool) Option {
	return func(c *ServiceConfig) {
		if silent {
			c.Mode = Silent
		} else {
			c.Mode = Strict
		}
	}
}

func WithTLS(cfg TLSConfig) Option {
	return func(c *ServiceConfig) { c.TLS = cfg }
}

func WithParamEscaping(enabled bool) Option {
	return func(c *ServiceConfig) { c.EscapeParams = enabled }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *ServiceConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithLookupEnv(fn func(key string) (string, bool)) Option {
	return func(c *ServiceConfig) {
		if fn != nil {
			c.LookupEnv = fn
		}
	}
}

// FindDatadogHost returns DATADOG_HOST when set, DefaultEndpoint otherwise.
func FindDatadogHost() string {
	if v := os.Getenv(EnvDatadogHost); v != "" {
		return v
	}
	return DefaultEndpoint
}
