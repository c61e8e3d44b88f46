// Package frame implements the length-delimited binary framing for stubrpc.
//
// Request frame:
//
//	0        2             2+n        4+n
//	┌────────┬─────────────┬──────────┬───────────────┐
//	│ cmdLen │ cmd (UTF-8) │ argsLen  │ args ...      │
//	│ uint16 │   n bytes   │ uint16   │ argsLen bytes │
//	└────────┴─────────────┴──────────┴───────────────┘
//
// Response frame: a single discriminant byte. 0x00 announces a payload and
// is followed by a uint16 length and that many payload bytes; any other
// known discriminant is a complete error frame on its own.
//
// All integers are big-endian. Decoding is incremental: a decoder either
// returns one whole frame together with the number of bytes it occupies, or
// reports need-more and the caller's buffer is left untouched. There is no
// magic number and no version byte — both peers must share the service
// definition out-of-band.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxFieldLen is the largest command or payload the 16-bit length prefixes
// can carry. Larger fields are not representable on the wire.
const MaxFieldLen = 65535

var (
	// ErrFrameTooLarge reports a command or payload longer than MaxFieldLen.
	// Encoding fails outright rather than truncating.
	ErrFrameTooLarge = errors.New("frame: field exceeds 16-bit length prefix")

	// ErrInvalidFrame reports bytes that cannot be a well-formed frame.
	// A decoder returning it has detected a protocol violation; the stream
	// is not recoverable past this point.
	ErrInvalidFrame = errors.New("frame: invalid frame")
)

// ErrorKind is the wire representation of a server-reported call failure.
// Each kind occupies one discriminant byte in a response frame; the zero
// value is reserved for payload responses.
type ErrorKind byte

const (
	ErrMethodNotFound ErrorKind = 0x01 // no service registered under the command name
	ErrInvalidRequest ErrorKind = 0x02 // request payload did not decode
	ErrTimeout        ErrorKind = 0x03 // per-call timeout elapsed before the handler finished
	ErrOverloaded     ErrorKind = 0x04 // the server refused the call at admission
)

func (k ErrorKind) Error() string {
	switch k {
	case ErrMethodNotFound:
		return "method not found"
	case ErrInvalidRequest:
		return "invalid request"
	case ErrTimeout:
		return "timeout"
	case ErrOverloaded:
		return "overloaded"
	default:
		return fmt.Sprintf("unknown error kind 0x%02x", byte(k))
	}
}

// valid reports whether k is an allocated discriminant.
func (k ErrorKind) valid() bool {
	return k >= ErrMethodNotFound && k <= ErrOverloaded
}

// Request is one client→server frame: the target service name plus the
// payload codec's encoding of that service's request union.
type Request struct {
	Command   string
	Arguments []byte
}

// Response is one server→client frame. A zero Error means Payload holds the
// encoded response union; otherwise Error identifies the failure and
// Payload is empty.
type Response struct {
	Error   ErrorKind
	Payload []byte
}

// AppendRequest appends the encoding of f to dst and returns the extended
// slice. It fails only when a field cannot be represented in 16 bits, in
// which case dst is returned unchanged.
func AppendRequest(dst []byte, f *Request) ([]byte, error) {
	if len(f.Command) > MaxFieldLen || len(f.Arguments) > MaxFieldLen {
		return dst, ErrFrameTooLarge
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(f.Command)))
	dst = append(dst, f.Command...)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(f.Arguments)))
	dst = append(dst, f.Arguments...)
	return dst, nil
}

// DecodeRequest parses one request frame from the front of src. It returns
// the frame and the number of bytes it occupies, or (nil, 0, nil) when src
// does not yet hold a complete frame. src is never modified; the caller
// advances its buffer by the returned count.
func DecodeRequest(src []byte) (*Request, int, error) {
	// Both length prefixes must be present before anything is inspected.
	if len(src) < 4 {
		return nil, 0, nil
	}
	cmdLen := int(binary.BigEndian.Uint16(src))
	if len(src) < 2+cmdLen+2 {
		return nil, 0, nil
	}
	cmd := src[2 : 2+cmdLen]
	if !utf8.Valid(cmd) {
		return nil, 0, fmt.Errorf("%w: command is not valid UTF-8", ErrInvalidFrame)
	}
	argsLen := int(binary.BigEndian.Uint16(src[2+cmdLen:]))
	total := 2 + cmdLen + 2 + argsLen
	if len(src) < total {
		return nil, 0, nil
	}
	args := make([]byte, argsLen)
	copy(args, src[2+cmdLen+2:total])
	return &Request{Command: string(cmd), Arguments: args}, total, nil
}

// AppendResponse appends the encoding of f to dst and returns the extended
// slice. Error frames are a single discriminant byte; payload frames fail
// with ErrFrameTooLarge when the payload exceeds MaxFieldLen.
func AppendResponse(dst []byte, f *Response) ([]byte, error) {
	if f.Error != 0 {
		if !f.Error.valid() {
			return dst, fmt.Errorf("%w: unallocated error kind 0x%02x", ErrInvalidFrame, byte(f.Error))
		}
		return append(dst, byte(f.Error)), nil
	}
	if len(f.Payload) > MaxFieldLen {
		return dst, ErrFrameTooLarge
	}
	dst = append(dst, 0x00)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(f.Payload)))
	return append(dst, f.Payload...), nil
}

// DecodeResponse parses one response frame from the front of src, with the
// same need-more contract as DecodeRequest. An unallocated discriminant
// byte is a protocol violation.
func DecodeResponse(src []byte) (*Response, int, error) {
	if len(src) < 1 {
		return nil, 0, nil
	}
	k := src[0]
	if k == 0x00 {
		if len(src) < 3 {
			return nil, 0, nil
		}
		n := int(binary.BigEndian.Uint16(src[1:3]))
		if len(src) < 3+n {
			return nil, 0, nil
		}
		payload := make([]byte, n)
		copy(payload, src[3:3+n])
		return &Response{Payload: payload}, 3 + n, nil
	}
	if kind := ErrorKind(k); kind.valid() {
		return &Response{Error: kind}, 1, nil
	}
	return nil, 0, fmt.Errorf("%w: unknown response discriminant 0x%02x", ErrInvalidFrame, k)
}
