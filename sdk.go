// sdk.go
// ------
// The sdk.go file contains the APIService struct, the entry point for calling
// the Datadog HTTP API.
//
// Key functionalities include:
// - Initializing a service with NewAPIService()
// - Making requests via Request()
// - Applying the silent/strict error-suppression policy in one place
// - Exposing the rate limit state last reported by the API
//
// APIService relies on a Connector for scoped connections and on a
// RequestExecutor for the request cycle itself.
package dogapi

import (
	"context"
	"log/slog"
	"time"
)

// Credentials are appended to every request as query parameters.
type Credentials struct {
	APIKey         string
	ApplicationKey string
}

type APIService struct {
	credentials Credentials
	config      ServiceConfig
	encoder     ParameterEncoder
	connector   Connector
	rateLimiter *RateLimiter
	executor    *RequestExecutor
	logger      *slog.Logger
}

// NewAPIService returns a service for the given credentials. Without options it
// is silent, uses a 5s timeout and talks to FindDatadogHost().
func NewAPIService(apiKey, applicationKey string, opts ...Option) *APIService {
	cfg := DefaultServiceConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return newAPIService(Credentials{APIKey: apiKey, ApplicationKey: applicationKey}, cfg, nil)
}

// NewAPIServiceWithConnector is like NewAPIService but sends requests over
// connections opened by c.
func NewAPIServiceWithConnector(apiKey, applicationKey string, c Connector, opts ...Option) *APIService {
	cfg := DefaultServiceConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return newAPIService(Credentials{APIKey: apiKey, ApplicationKey: applicationKey}, cfg, c)
}

func newAPIService(creds Credentials, cfg ServiceConfig, c Connector) *APIService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if c == nil {
		c = NewConnectionFactory(cfg.Endpoint, cfg.Timeout, cfg.TLS)
	}

	svc := &APIService{
		credentials: creds,
		config:      cfg,
		encoder: ParameterEncoder{
			APIKey:         creds.APIKey,
			ApplicationKey: creds.ApplicationKey,
			Escape:         cfg.EscapeParams,
		},
		connector:   c,
		rateLimiter: NewRateLimiter(),
		logger:      cfg.Logger.With("component", "dogapi"),
	}
	svc.executor = NewRequestExecutor(svc)
	return svc
}

func (s *APIService) Mode() Mode { return s.config.Mode }

func (s *APIService) Endpoint() string { return s.config.Endpoint }

func (s *APIService) Timeout() time.Duration { return s.config.Timeout }

// Request performs req and normalizes the response. A silent service never
// returns an error: failures are logged and SuppressedResponse() is returned.
// A strict service returns the failure, an *Error, unchanged.
func (s *APIService) Request(ctx context.Context, req *NormalizedRequest) (*NormalizedResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := s.executor.Execute(ctx, req)
	if err != nil {
		return s.SuppressErrorIfSilent(err)
	}
	return resp, nil
}

// SuppressErrorIfSilent is the single routing point for request failures.
func (s *APIService) SuppressErrorIfSilent(err error) (*NormalizedResponse, error) {
	if s.config.Mode == Strict {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("request failed", "error", err)
	}
	return SuppressedResponse(), nil
}

// Connect opens a connection to the endpoint using the current proxy
// environment. The caller must Close it.
func (s *APIService) Connect(ctx context.Context) (*Connection, error) {
	proxy, err := ProxyFromLookup(s.config.LookupEnv)
	if err != nil {
		return nil, err
	}
	return s.connector.Connect(ctx, proxy)
}

// GetRateLimitInfo returns the latest rate limit the API reported for name.
func (s *APIService) GetRateLimitInfo(name string) *NormalizedRateLimitInfo {
	return s.rateLimiter.GetRateLimitInfo(name)
}

func (s *APIService) debug(msg string, args ...any) {
	s.logger.Debug(msg, args...)
}
