// Package transport builds the proxy's listening socket and upstream
// dialer, plain or TLS, from a config.Document.
package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/config"
)

// DialTimeout bounds how long connecting to the upstream server may take.
const DialTimeout = 10 * time.Second

// Listen opens the proxy's client-facing listener: plain TCP, or implicit
// TLS if doc.SSL is set, loaded once at startup from doc.TLSCert/TLSKey.
func Listen(doc *config.Document) (net.Listener, error) {
	if !doc.SSL {
		return net.Listen("tcp", doc.Listen)
	}
	cert, err := tls.LoadX509KeyPair(doc.TLSCert, doc.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("transport: loading listener cert: %w", err)
	}
	return tls.Listen("tcp", doc.Listen, &tls.Config{Certificates: []tls.Certificate{cert}})
}

// Dial connects to the configured upstream LDAP server, plain or TLS.
func Dial(doc *config.Document) (net.Conn, error) {
	if !doc.UpstreamSSL {
		return net.DialTimeout("tcp", doc.UpstreamLDAP, DialTimeout)
	}
	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: DialTimeout}}
	return dialer.Dial("tcp", doc.UpstreamLDAP)
}
