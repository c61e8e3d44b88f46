package server

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/spiral/errors"
)

// handshakeTimeout bounds how long a peer may stall the TLS handshake
// before the connection is dropped.
const handshakeTimeout = 10 * time.Second

// loadTLS reads the PEM certificate chain and private key once, at
// startup. Any failure here is fatal to Serve.
func loadTLS(certFile, keyFile string) (*tls.Config, error) {
	const op = errors.Op("server_load_tls")
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// handshake terminates TLS on an accepted connection. The acceptor config
// is shared; each connection gets its own tls.Conn.
func (s *Server) handshake(conn net.Conn) (net.Conn, error) {
	tconn := tls.Server(conn, s.tlsConf)

	if err := tconn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, err
	}
	if err := tconn.Handshake(); err != nil {
		return nil, err
	}
	if err := tconn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return tconn, nil
}
