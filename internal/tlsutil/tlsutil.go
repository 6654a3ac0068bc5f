package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientOptions tunes the outbound client used for skill calls.
type ClientOptions struct {
	// Timeout bounds one whole request including reading the reply batch.
	Timeout time.Duration
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
	// MaxIdleConnsPerHost keeps warm connections to frequently called skills.
	MaxIdleConnsPerHost int
}

// DefaultClientOptions returns options for skill forwarding.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:             30 * time.Second,
		DialTimeout:         5 * time.Second,
		MaxIdleConnsPerHost: 16,
	}
}

// SecureTransport returns an http.Transport with TLS hardening.
func SecureTransport(opts ClientOptions) *http.Transport {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// SecureHTTPClient returns an http.Client with TLS hardening.
func SecureHTTPClient(opts ClientOptions) *http.Client {
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: SecureTransport(opts),
	}
}
