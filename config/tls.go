package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// LoadTLSConfig turns the PEM paths in cfg into a mutual-TLS configuration
// for peer links. A nil cfg, or one with every path empty, yields (nil, nil)
// and the node falls back to plain TCP.
func LoadTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, nil
	}
	if cfg.CACert == "" && cfg.NodeCert == "" && cfg.NodeKey == "" {
		return nil, nil
	}

	keyPair, err := tls.LoadX509KeyPair(cfg.NodeCert, cfg.NodeKey)
	if err != nil {
		return nil, fmt.Errorf("node keypair: %w", err)
	}
	pool, err := caPool(cfg.CACert)
	if err != nil {
		return nil, err
	}

	// Both ends of every peer link authenticate against the shared CA.
	return &tls.Config{
		Certificates: []tls.Certificate{keyPair},
		ClientCAs:    pool,
		RootCAs:      pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func caPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no usable certificates in %s", path)
	}
	return pool, nil
}
