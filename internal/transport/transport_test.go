package transport

import (
	"net"
	"testing"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/config"
	"github.com/stretchr/testify/require"
)

func TestListen_Plain(t *testing.T) {
	doc := &config.Document{Listen: "127.0.0.1:0"}

	ln, err := Listen(doc)
	require.NoError(t, err)
	defer ln.Close()
	require.NotEmpty(t, ln.Addr().String())
}

func TestDial_PlainConnectsToListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
		close(accepted)
	}()

	doc := &config.Document{UpstreamLDAP: ln.Addr().String()}
	conn, err := Dial(doc)
	require.NoError(t, err)
	conn.Close()
	<-accepted
}

func TestListen_TLSMissingCertErrors(t *testing.T) {
	doc := &config.Document{Listen: "127.0.0.1:0", SSL: true, TLSCert: "/nonexistent/cert.pem", TLSKey: "/nonexistent/key.pem"}

	_, err := Listen(doc)
	require.Error(t, err)
}
