// Package stubrpc is a typed RPC framework: service interfaces are declared
// in a small definition language, and stubrpc-gen materializes a request
// union, a response union, a server-side dispatcher, and a typed client stub
// for each one. The generated code runs over a length-delimited binary frame
// protocol (package frame), a pluggable payload codec (package codec), and a
// multi-service server runtime (package server).
//
// Call flow for a single request:
//
//	client stub → codec.Encode(request union) → frame.Request → TCP
//	  → server reads frame → registry lookup by service name
//	  → dispatcher decodes the union, calls the user handler
//	  → codec.Encode(response union) → frame.Response → TCP
//	  → client stub decodes and asserts the variant
package stubrpc

import (
	"context"

	"stubrpc/codec"
)

// Dispatcher is the type-erased server-side handle for one service.
// Generated dispatchers are small value types: copying one shares the
// user's service implementation by reference, so a dispatcher may be
// used concurrently from many connection goroutines. Implementations
// carry no exclusive mutable state.
type Dispatcher interface {
	// Name reports the service's wire identity, matched against the
	// command field of incoming request frames.
	Name() string

	// Call decodes args into the service's request union, invokes the
	// handler for the matching variant, and returns the encoded response
	// union. A payload that does not decode yields frame.ErrInvalidRequest.
	// The response variant always matches the request variant.
	Call(ctx context.Context, args []byte) ([]byte, error)
}

// DispatcherOptions configures a generated dispatcher.
type DispatcherOptions struct {
	// Codec encodes and decodes the service's request/response unions.
	Codec codec.Codec
}

// DispatcherOption customizes a generated dispatcher at construction time.
type DispatcherOption func(*DispatcherOptions)

// WithCodec substitutes the payload codec. Both peers must agree on it.
func WithCodec(c codec.Codec) DispatcherOption {
	return func(o *DispatcherOptions) { o.Codec = c }
}

// NewDispatcherOptions resolves opts against the defaults. Called by
// generated code.
func NewDispatcherOptions(opts ...DispatcherOption) DispatcherOptions {
	o := DispatcherOptions{Codec: codec.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
