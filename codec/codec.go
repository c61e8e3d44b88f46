// Package codec provides the payload serialization layer for stubrpc.
//
// The framework is codec-agnostic: a request or response union is an opaque
// byte blob at the framing layer, produced and consumed by whichever Codec
// both peers agreed on. Three implementations ship:
//
//   - Msgpack: compact binary, the default
//   - JSON:    human-readable, easy to debug cross-language
//   - Proto:   for payload types generated by protoc
//
// Any implementation must satisfy the contract: Decode(Encode(v)) restores
// v for every round-trippable value, Decode returns an error rather than
// panicking on malformed input, and union encodings discriminate by variant
// (the generated unions carry an explicit Kind tag, so any struct codec
// meets the last clause for free).
package codec

// Codec serializes request and response unions to opaque bytes.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error

	// Name identifies the codec for logs and error messages. It does not
	// travel on the wire — both peers must agree on the codec out-of-band.
	Name() string
}

// Default returns the codec used when none is configured.
func Default() Codec {
	return Msgpack{}
}
