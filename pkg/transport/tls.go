package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds client settings for wss:// connections.
type TLSConfig struct {
	// CAFile is a PEM bundle of extra trusted roots. Empty uses the system
	// pool only.
	CAFile string

	// CertFile and KeyFile hold an optional client certificate.
	CertFile string
	KeyFile  string

	// ServerName overrides the name used for certificate verification.
	ServerName string

	// InsecureSkipVerify disables certificate verification.
	// Only for testing - never use in production!
	InsecureSkipVerify bool
}

// IsZero reports whether no TLS option is set.
func (c TLSConfig) IsZero() bool {
	return c == TLSConfig{}
}

// NewClientTLSConfig builds a crypto/tls client configuration.
func NewClientTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		// TLS 1.2 is the floor for public WebSocket endpoints
		MinVersion: tls.VersionTLS12,

		// Server name for verification
		ServerName: cfg.ServerName,

		// For testing only
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA file %s contains no certificates", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	switch {
	case cfg.CertFile != "" && cfg.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	case cfg.CertFile != "" || cfg.KeyFile != "":
		return nil, fmt.Errorf("client certificate requires both cert and key file")
	}

	return tlsConfig, nil
}
