// Package test wires the generated example services to a real server over
// real sockets and walks the end-to-end scenarios: happy path, unknown
// service, malformed payload, per-call timeout, graceful shutdown, and
// argument echo.
package test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stubrpc"
	"stubrpc/client"
	"stubrpc/codec"
	"stubrpc/examples/hello"
	"stubrpc/frame"
	"stubrpc/registry"
	"stubrpc/server"
	"stubrpc/transport"
)

type pingServer struct {
	delay time.Duration
}

func (p pingServer) Ping(ctx context.Context) bool {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
		}
	}
	return true
}

type helloServer struct{}

func (helloServer) Hello(_ context.Context, a, b string) string { return a + "+" + b }

func (helloServer) Notify(_ context.Context, _ string) {}

// startServer serves Ping and Hello on an ephemeral port.
func startServer(t *testing.T, ping hello.PingService, opts ...server.Option) (string, *server.Server, chan error) {
	t.Helper()

	r := registry.New()
	require.NoError(t, r.Add(hello.NewPingDispatcher(ping)))
	require.NoError(t, r.Add(hello.NewHelloDispatcher(helloServer{})))

	s := server.New(r.Freeze(), opts...)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(lis) }()
	return lis.Addr().String(), s, done
}

func TestHappyPath(t *testing.T) {
	addr, s, _ := startServer(t, pingServer{})
	defer s.Shutdown(time.Second)

	ok, err := hello.NewPingClient(addr).Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestHappyPathWire drives the same call at the frame level and checks the
// bytes the stub would produce and consume.
func TestHappyPathWire(t *testing.T) {
	addr, s, _ := startServer(t, pingServer{})
	defer s.Shutdown(time.Second)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	c := codec.Default()
	args, err := c.Encode(&hello.PingRequest{Kind: hello.PingKindPing, Ping: &hello.PingPingArgs{}})
	require.NoError(t, err)

	require.NoError(t, transport.NewRequestWriter(conn).WriteFrame(
		&frame.Request{Command: "Ping", Arguments: args}))

	resp, err := transport.NewResponseReader(conn).ReadFrame()
	require.NoError(t, err)
	require.Zero(t, resp.Error, "discriminant must be 0x00")

	var out hello.PingResponse
	require.NoError(t, c.Decode(resp.Payload, &out))
	assert.Equal(t, hello.PingKindPing, out.Kind)
	require.NotNil(t, out.Ping)
	assert.True(t, *out.Ping)
}

func TestUnknownService(t *testing.T) {
	addr, s, _ := startServer(t, pingServer{})
	defer s.Shutdown(time.Second)

	var resp hello.PingResponse
	err := client.Invoke(context.Background(), addr, "Unknown",
		&hello.PingRequest{Kind: hello.PingKindPing, Ping: &hello.PingPingArgs{}}, &resp)
	require.Error(t, err)
	assert.True(t, client.IsServerError(err, frame.ErrMethodNotFound))
}

func TestMalformedPayload(t *testing.T) {
	addr, s, _ := startServer(t, pingServer{})
	defer s.Shutdown(time.Second)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, transport.NewRequestWriter(conn).WriteFrame(
		&frame.Request{Command: "Ping", Arguments: []byte{0xFF, 0xFF, 0xFF}}))

	resp, err := transport.NewResponseReader(conn).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, frame.ErrInvalidRequest, resp.Error)
}

func TestPerCallTimeout(t *testing.T) {
	addr, s, _ := startServer(t, pingServer{delay: 500 * time.Millisecond},
		server.WithTimeout(100*time.Millisecond))
	defer s.Shutdown(time.Second)

	start := time.Now()
	_, err := hello.NewPingClient(addr).Ping(context.Background())
	took := time.Since(start)

	require.Error(t, err)
	assert.True(t, client.IsServerError(err, frame.ErrTimeout))
	assert.Less(t, took, 400*time.Millisecond)
}

func TestGracefulShutdown(t *testing.T) {
	addr, s, done := startServer(t, pingServer{delay: 200 * time.Millisecond})

	// Connection A: a slow call in flight when shutdown begins.
	type pingResult struct {
		ok  bool
		err error
	}
	resultA := make(chan pingResult, 1)
	go func() {
		ok, err := hello.NewPingClient(addr).Ping(context.Background())
		resultA <- pingResult{ok: ok, err: err}
	}()

	// Connection B: connected, nothing sent yet.
	connB, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer connB.Close()

	time.Sleep(50 * time.Millisecond) // let A's request reach the handler
	require.NoError(t, s.Shutdown(2*time.Second))

	// A's response is delivered normally.
	select {
	case r := <-resultA:
		require.NoError(t, r.err)
		assert.True(t, r.ok)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call was not drained")
	}

	// The accept loop exits with success.
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	// No new connections are admitted.
	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestArgumentEcho(t *testing.T) {
	addr, s, _ := startServer(t, pingServer{})
	defer s.Shutdown(time.Second)

	got, err := hello.NewHelloClient(addr).Hello(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Equal(t, "x+y", got)
}

func TestUnitReturnOperation(t *testing.T) {
	addr, s, _ := startServer(t, pingServer{})
	defer s.Shutdown(time.Second)

	err := hello.NewHelloClient(addr).Notify(context.Background(), "fire and forget")
	require.NoError(t, err)
}

// TestCodecAgreement runs the same service with the JSON codec on both
// ends: the framework is codec-agnostic as long as the peers agree.
func TestCodecAgreement(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Add(hello.NewHelloDispatcher(helloServer{}, stubrpc.WithCodec(codec.JSON{}))))

	s := server.New(r.Freeze())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(lis)
	defer s.Shutdown(time.Second)

	c := hello.NewHelloClient(lis.Addr().String(), client.WithCodec(codec.JSON{}))
	got, err := c.Hello(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a+b", got)
}

func TestConcurrentClients(t *testing.T) {
	addr, s, _ := startServer(t, pingServer{})
	defer s.Shutdown(time.Second)

	const callers = 8
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			got, err := hello.NewHelloClient(addr).Hello(context.Background(), "x", "y")
			if err == nil && got != "x+y" {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	for i := 0; i < callers; i++ {
		assert.NoError(t, <-errs)
	}
}
