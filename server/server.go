// Package server implements the multi-service RPC server runtime: the
// accept loop, per-connection goroutines, registry dispatch, per-call
// timeouts, optional TLS termination, and graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (one goroutine per connection)
//	  → for each request frame: registry lookup → interceptor chain
//	    → dispatcher.Call under the per-call timeout → write response frame
//
// A connection is streaming: the goroutine keeps reading request frames
// until the peer closes the stream or a protocol violation makes the frame
// boundary unrecoverable. Within one connection, request and response are
// strictly serialized; across connections there is no ordering.
package server

import (
	"context"
	"crypto/tls"
	stderr "errors"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stubrpc/frame"
	"stubrpc/registry"
	"stubrpc/transport"
)

// Server demultiplexes incoming request frames to the dispatchers of a
// frozen registry.
type Server struct {
	reg          *registry.Frozen
	timeout      time.Duration
	certFile     string
	keyFile      string
	log          *zap.Logger
	interceptors []Interceptor

	handler  Handler     // interceptor chain around dispatch, built once at startup
	tlsConf  *tls.Config // nil unless WithTLS was given
	listener net.Listener

	shutdown  atomic.Bool    // set before the listener closes, so Accept errors are recognized
	closeOnce sync.Once
	drained   chan struct{}  // closed by Serve once all in-flight calls finished
	calls     sync.WaitGroup // tracks in-flight request handling, response write included

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithTimeout bounds each dispatcher invocation. When the timer wins the
// race the client receives a timeout error frame; the handler's goroutine
// observes a cancelled context but is not forcibly stopped, so handlers
// must be cancellation-safe or idempotent.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithTLS terminates TLS on every accepted connection using the PEM
// certificate chain and private key at the given paths. The material is
// loaded once at startup; unreadable or unparsable files fail Serve before
// it accepts anything.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// WithLogger replaces the default no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithInterceptor appends interceptors to the chain, outermost first.
func WithInterceptor(ints ...Interceptor) Option {
	return func(s *Server) { s.interceptors = append(s.interceptors, ints...) }
}

// New builds a server over a frozen registry. The registry is shared
// read-only across every connection goroutine.
func New(reg *registry.Frozen, opts ...Option) *Server {
	s := &Server{
		reg:     reg,
		log:     zap.NewNop(),
		drained: make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve runs the accept loop on lis until shutdown. A background goroutine
// watches for the OS interrupt; when it fires, the server stops accepting,
// waits for in-flight calls to complete, closes the remaining connections,
// and Serve returns nil.
func (s *Server) Serve(lis net.Listener) error {
	s.listener = lis

	// The chain is built once at startup, not per request.
	s.handler = Chain(s.interceptors...)(s.call)

	if s.certFile != "" {
		cfg, err := loadTLS(s.certFile, s.keyFile)
		if err != nil {
			return err
		}
		s.tlsConf = cfg
	}

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go s.watchInterrupt(stopWatch)

	s.log.Info("serving", zap.Strings("services", s.reg.Names()), zap.String("addr", lis.Addr().String()))

	for {
		conn, err := lis.Accept()
		if err != nil {
			// During shutdown the closed listener makes Accept fail; the
			// flag distinguishes that from a real listener error.
			if !s.shutdown.Load() {
				return err
			}
			s.calls.Wait()
			close(s.drained)
			s.closeConns()
			return nil
		}
		s.track(conn)
		go s.handleConn(conn)
	}
}

// Shutdown initiates a graceful stop and waits up to timeout for in-flight
// calls to drain. The interrupt watcher starts the same stop without
// waiting; Shutdown exposes it for programmatic use and tests.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.beginShutdown()
	select {
	case <-s.drained:
		return nil
	case <-time.After(timeout):
		return stderr.New("server: timed out waiting for in-flight calls")
	}
}

func (s *Server) watchInterrupt(stop <-chan struct{}) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		s.log.Info("interrupt received, draining")
		s.beginShutdown()
	case <-stop:
	}
}

// beginShutdown flips the flag before closing the listener. The other
// order would make Serve report the Accept error as real.
func (s *Server) beginShutdown() {
	s.closeOnce.Do(func() {
		s.shutdown.Store(true)
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// closeConns tears down connections that survived the drain: their peers
// never sent a request or are parked between frames.
func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for conn := range s.conns {
		err = multierr.Append(err, conn.Close())
	}
	if err != nil {
		s.log.Debug("closing idle connections", zap.Error(err))
	}
	s.conns = make(map[net.Conn]struct{})
}

// handleConn owns one connection for its whole lifetime.
func (s *Server) handleConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	log := s.log.With(zap.String("peer", conn.RemoteAddr().String()))

	if s.tlsConf != nil {
		tconn, err := s.handshake(conn)
		if err != nil {
			// A failed handshake terminates this connection only.
			log.Debug("tls handshake failed", zap.Error(err))
			return
		}
		conn = tconn
	}

	rd := transport.NewRequestReader(conn)
	wr := transport.NewResponseWriter(conn)

	for {
		req, err := rd.ReadFrame()
		if err != nil {
			if stderr.Is(err, io.EOF) {
				return // peer closed between frames
			}
			// Mid-frame EOF or a protocol violation: the frame boundary is
			// lost, drop the connection.
			log.Debug("dropping connection", zap.Error(err))
			return
		}

		s.calls.Add(1)
		resp := s.dispatch(context.Background(), req)
		werr := wr.WriteFrame(resp)
		s.calls.Done()

		if werr != nil {
			// A response we already produced failed to reach the wire.
			// That is a broken write path, not a per-call condition.
			log.Panic("failed to write response frame", zap.Error(werr))
		}
	}
}

// dispatch runs one request through the interceptor chain and folds the
// outcome into a response frame. Every per-call failure becomes an error
// frame; nothing here can take down another peer's work.
func (s *Server) dispatch(ctx context.Context, req *frame.Request) *frame.Response {
	payload, err := s.handler(ctx, req.Command, req.Arguments)
	if err != nil {
		var kind frame.ErrorKind
		if !stderr.As(err, &kind) {
			kind = frame.ErrInvalidRequest
		}
		return &frame.Response{Error: kind}
	}
	return &frame.Response{Payload: payload}
}

// call is the innermost handler: registry lookup, then the dispatcher
// raced against the per-call timeout.
func (s *Server) call(ctx context.Context, cmd string, args []byte) ([]byte, error) {
	d, ok := s.reg.Query(cmd)
	if !ok {
		return nil, frame.ErrMethodNotFound
	}

	if s.timeout <= 0 {
		return d.Call(ctx, args)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		payload []byte
		err     error
	}
	// Buffered so a late finisher does not leak its goroutine.
	done := make(chan result, 1)
	go func() {
		payload, err := d.Call(ctx, args)
		done <- result{payload: payload, err: err}
	}()

	select {
	case r := <-done:
		return r.payload, r.err
	case <-ctx.Done():
		return nil, frame.ErrTimeout
	}
}
