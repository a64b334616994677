package transport

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertificates is returned when a PEM trust anchor holds no usable
// certificate.
var ErrNoCertificates = errors.New("no certificates found in PEM data")

// TrustStore supplies the root certificates a TLS session verifies the
// server against.
type TrustStore interface {
	CertPool() (*x509.CertPool, error)
}

// SystemTrustStore trusts the host's certificate bundle.
type SystemTrustStore struct{}

func (SystemTrustStore) CertPool() (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("system cert pool: %w", err)
	}
	return pool, nil
}

// PEMTrustStore trusts the certificates in PEM, or in the file at Path when
// PEM is empty.
type PEMTrustStore struct {
	PEM  []byte
	Path string
}

func (p PEMTrustStore) CertPool() (*x509.CertPool, error) {
	data := p.PEM
	if len(data) == 0 {
		if p.Path == "" {
			return nil, ErrNoCertificates
		}

		var err error
		if data, err = os.ReadFile(p.Path); err != nil {
			return nil, fmt.Errorf("reading trust anchor: %w", err)
		}
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, ErrNoCertificates
	}

	return pool, nil
}

// PoolTrustStore trusts a prebuilt pool.
type PoolTrustStore struct {
	Pool *x509.CertPool
}

func (p PoolTrustStore) CertPool() (*x509.CertPool, error) {
	if p.Pool == nil {
		return nil, ErrNoCertificates
	}
	return p.Pool, nil
}
