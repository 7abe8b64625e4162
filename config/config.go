// Package config loads dogapi settings from an optional YAML file and from
// DATADOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opengovern/dogapi"
)

const EnvPrefix = "DATADOG"

type Config struct {
	APIKey         string
	ApplicationKey string
	Host           string
	Timeout        time.Duration
	Silent         bool
	EscapeParams   bool
	LogLevel       string
	TLS            dogapi.TLSConfig
}

// Load reads path when it is not empty, otherwise dogapi.yaml from the working
// directory and $HOME/.dogapi if present. Environment variables take precedence
// over the file: host is DATADOG_HOST, tls.ca_file is DATADOG_TLS_CA_FILE.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api_key", "")
	v.SetDefault("application_key", "")
	v.SetDefault("host", dogapi.DefaultEndpoint)
	v.SetDefault("timeout", dogapi.DefaultTimeout.String())
	v.SetDefault("silent", true)
	v.SetDefault("escape_params", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("tls.ca_file", "")
	v.SetDefault("tls.pkcs12_file", "")
	v.SetDefault("tls.pkcs12_password", "")
	v.SetDefault("tls.insecure_skip_verify", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dogapi")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.dogapi")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	timeout, err := parseTimeout(v.GetString("timeout"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIKey:         v.GetString("api_key"),
		ApplicationKey: v.GetString("application_key"),
		Host:           v.GetString("host"),
		Timeout:        timeout,
		Silent:         v.GetBool("silent"),
		EscapeParams:   v.GetBool("escape_params"),
		LogLevel:       v.GetString("log_level"),
		TLS: dogapi.TLSConfig{
			CAFile:             v.GetString("tls.ca_file"),
			PKCS12File:         v.GetString("tls.pkcs12_file"),
			PKCS12Password:     v.GetString("tls.pkcs12_password"),
			InsecureSkipVerify: v.GetBool("tls.insecure_skip_verify"),
		},
	}
	if cfg.Host == "" {
		cfg.Host = dogapi.DefaultEndpoint
	}
	return cfg, nil
}

// parseTimeout accepts a Go duration ("2.5s", "500ms") or a bare number of seconds.
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return dogapi.DefaultTimeout, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid timeout %q: must be positive", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid timeout %q: must be positive", s)
	}
	return d, nil
}

// Options turns the config into dogapi service options.
func (c *Config) Options(logger *slog.Logger) []dogapi.Option {
	return []dogapi.Option{
		dogapi.WithEndpoint(c.Host),
		dogapi.WithTimeout(c.Timeout),
		dogapi.WithSilent(c.Silent),
		dogapi.WithParamEscaping(c.EscapeParams),
		dogapi.WithTLS(c.TLS),
		dogapi.WithLogger(logger),
	}
}
