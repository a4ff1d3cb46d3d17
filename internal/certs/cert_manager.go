// Package certs inspects the relay's TLS certificate before serving.
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNoCertificate is returned when a PEM file has no CERTIFICATE block.
var ErrNoCertificate = errors.New("certs: no certificate in PEM data")

// Status describes the leaf certificate of a PEM file.
type Status struct {
	Subject  string
	NotAfter time.Time
	Expired  bool
	// ExpiringSoon is set when the certificate is valid but ends within
	// the warning window.
	ExpiringSoon bool
}

// Load reads the first certificate from a PEM file.
func Load(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrNoCertificate
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
}

// Check loads the certificate at path and compares its validity with now.
func Check(path string, warnWithin time.Duration, now time.Time) (Status, error) {
	cert, err := Load(path)
	if err != nil {
		return Status{}, fmt.Errorf("load %s: %w", path, err)
	}
	st := Status{
		Subject:  cert.Subject.String(),
		NotAfter: cert.NotAfter,
		Expired:  cert.NotAfter.Before(now),
	}
	st.ExpiringSoon = !st.Expired && cert.NotAfter.Before(now.Add(warnWithin))
	return st, nil
}

// ServerConfig returns a TLS config for the key pair with TLS 1.2 as floor.
func ServerConfig(certFile, keyFile string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
