// Package client implements the calling side of stubrpc.
//
// A call is stateless: every Invoke opens a fresh connection to the target
// address, writes one request frame, reads one response frame, and closes.
// No pooling, no keepalive, no retries — a failure is surfaced to the
// caller exactly once.
//
// Generated client stubs are thin wrappers over Invoke: they build the
// request union, name the service, and assert the response variant.
package client

import (
	"context"
	"crypto/tls"
	stderr "errors"
	"fmt"
	"net"
	"time"

	"github.com/spiral/errors"
	"go.uber.org/zap"

	"stubrpc/codec"
	"stubrpc/frame"
	"stubrpc/transport"
)

// Kind classifies a call failure. The taxonomy is closed: every error
// Invoke returns is one of these.
type Kind int

const (
	KindIO       Kind = iota + 1 // connect, read, or write failure
	KindEncoding                 // the payload codec failed
	KindServer                   // the server answered with an error frame
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindEncoding:
		return "encoding"
	case KindServer:
		return "server-error"
	default:
		return "unknown"
	}
}

// Error is the failure type returned by Invoke. Server-reported kinds
// (including timeout) travel verbatim in Server.
type Error struct {
	Kind   Kind
	Server frame.ErrorKind // set when Kind == KindServer
	Err    error           // underlying cause for io/encoding failures
}

func (e *Error) Error() string {
	if e.Kind == KindServer {
		return fmt.Sprintf("rpc %s: %s", e.Kind, e.Server)
	}
	return fmt.Sprintf("rpc %s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e.Kind == KindServer {
		return e.Server
	}
	return e.Err
}

// IsServerError reports whether err is a server-reported failure of the
// given wire kind.
func IsServerError(err error, kind frame.ErrorKind) bool {
	var ce *Error
	return stderr.As(err, &ce) && ce.Kind == KindServer && ce.Server == kind
}

// Options holds per-call configuration. The zero value is completed by
// defaultOptions.
type Options struct {
	codec       codec.Codec
	dialTimeout time.Duration
	useTLS      bool
	tlsConf     *tls.Config
	log         *zap.Logger
}

// Option customizes a call or a generated client stub.
type Option func(*Options)

// WithCodec substitutes the payload codec. Both peers must agree on it.
func WithCodec(c codec.Codec) Option {
	return func(o *Options) { o.codec = c }
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(o *Options) { o.dialTimeout = d }
}

// WithTLS dials through TLS. A nil config uses the platform root bundle
// and verifies the server against the hostname component of the target
// address; a non-nil config overrides everything (private CAs, tests).
func WithTLS(cfg *tls.Config) Option {
	return func(o *Options) {
		o.useTLS = true
		o.tlsConf = cfg
	}
}

// WithLogger replaces the default no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Options) { o.log = log }
}

func defaultOptions() *Options {
	return &Options{
		codec:       codec.Default(),
		dialTimeout: 10 * time.Second,
		log:         zap.NewNop(),
	}
}

// Invoke performs one complete call against the named service at addr:
// encode req, connect, send, read one response frame, decode into resp.
// resp must be a pointer to the service's response union.
func Invoke(ctx context.Context, addr, service string, req, resp any, opts ...Option) error {
	const op = errors.Op("client_invoke")

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	args, err := o.codec.Encode(req)
	if err != nil {
		return &Error{Kind: KindEncoding, Err: errors.E(op, err)}
	}

	conn, err := dial(ctx, addr, o)
	if err != nil {
		return &Error{Kind: KindIO, Err: errors.E(op, err)}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return &Error{Kind: KindIO, Err: errors.E(op, err)}
		}
	}

	o.log.Debug("invoke", zap.String("addr", addr), zap.String("service", service), zap.Int("args_bytes", len(args)))

	wr := transport.NewRequestWriter(conn)
	if err := wr.WriteFrame(&frame.Request{Command: service, Arguments: args}); err != nil {
		if stderr.Is(err, frame.ErrFrameTooLarge) {
			return &Error{Kind: KindEncoding, Err: err}
		}
		return &Error{Kind: KindIO, Err: err}
	}

	f, err := transport.NewResponseReader(conn).ReadFrame()
	if err != nil {
		return &Error{Kind: KindIO, Err: errors.E(op, err)}
	}
	if f.Error != 0 {
		return &Error{Kind: KindServer, Server: f.Error}
	}

	if err := o.codec.Decode(f.Payload, resp); err != nil {
		return &Error{Kind: KindEncoding, Err: errors.E(op, err)}
	}
	return nil
}

func dial(ctx context.Context, addr string, o *Options) (net.Conn, error) {
	d := &net.Dialer{Timeout: o.dialTimeout}
	if !o.useTLS {
		return d.DialContext(ctx, "tcp", addr)
	}

	cfg := o.tlsConf
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		// The hostname component of the target is the expected server name.
		if host, _, err := net.SplitHostPort(addr); err == nil {
			cfg = cfg.Clone()
			cfg.ServerName = host
		}
	}
	td := &tls.Dialer{NetDialer: d, Config: cfg}
	return td.DialContext(ctx, "tcp", addr)
}
