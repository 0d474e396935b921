package tlsconfig

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/hostgate/hostgate/internal/config"
)

// Store holds externally provisioned certificate material keyed by virtual
// host and picks one per TLS handshake via SNI. Certificate issuance and
// renewal happen outside the proxy; the store only loads what it is given.
type Store struct {
	byHost   map[string]*tls.Certificate
	fallback *tls.Certificate
}

// NewStore loads all configured certificates
func NewStore(certs []config.CertificateConfig) (*Store, error) {
	s := &Store{byHost: make(map[string]*tls.Certificate)}

	for _, cc := range certs {
		cert, err := tls.LoadX509KeyPair(cc.CertFile, cc.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load certificate %s: %w", cc.CertFile, err)
		}
		for _, h := range cc.Hosts {
			s.byHost[strings.ToLower(h)] = &cert
		}
		if cc.Default {
			s.fallback = &cert
		}
	}

	if len(s.byHost) == 0 && s.fallback == nil {
		return nil, fmt.Errorf("tls enabled but no certificates configured")
	}
	return s, nil
}

// GetCertificate implements the tls.Config callback: exact SNI match first,
// then the configured default for unmatched hosts.
func (s *Store) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	name := strings.ToLower(hello.ServerName)
	if cert, ok := s.byHost[name]; ok {
		return cert, nil
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return nil, fmt.Errorf("no certificate for server name %q", hello.ServerName)
}

// Config returns a tls.Config backed by the store
func (s *Store) Config() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: s.GetCertificate,
	}
}
