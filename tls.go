package dogapi

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// TLSConfig holds the user-facing TLS options for https endpoints.
type TLSConfig struct {
	// CAFile is a PEM bundle added to the system roots.
	CAFile string `mapstructure:"ca_file"`

	// PKCS12File is a .p12/.pfx client certificate bundle, for endpoints or
	// gateways that require mutual TLS.
	PKCS12File     string `mapstructure:"pkcs12_file"`
	PKCS12Password string `mapstructure:"pkcs12_password"`

	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// Build returns the client *tls.Config. ServerName stays empty: net/http fills
// it per handshake, with the proxy host for an https proxy and the endpoint
// host for the request itself. CAFile and PKCS12File apply to both.
func (c TLSConfig) Build() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // opt-in
	}

	if c.CAFile != "" {
		pool, err := loadCAPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if c.PKCS12File != "" {
		cert, err := loadPKCS12(c.PKCS12File, c.PKCS12Password)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in CA file %s", path)
	}
	return pool, nil
}

func loadPKCS12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read pkcs12 file: %w", err)
	}
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to decode pkcs12: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}
