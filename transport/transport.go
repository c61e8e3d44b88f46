// Package transport adapts a byte-oriented stream into a record-oriented
// producer/consumer of frames.
//
// The read side buffers bytes across wakeups: each ReadFrame call runs a
// decode-then-fill loop, so a frame split across arbitrarily many TCP
// segments is reassembled transparently. The write side encodes a frame and
// writes it through to the underlying sink in one call. No additional
// framing, no keepalive.
package transport

import (
	stderr "errors"
	"fmt"
	"io"

	"github.com/spiral/errors"

	"stubrpc/frame"
)

// readChunk is the granularity of reads from the underlying stream.
const readChunk = 4096

// frameReader is the shared decode-then-fill loop, parameterized by the
// frame type and its decoder.
type frameReader[F any] struct {
	r      io.Reader
	buf    []byte
	decode func([]byte) (*F, int, error)
}

// readFrame returns the next complete frame. io.EOF is returned only when
// the stream ends exactly on a frame boundary; a stream ending mid-frame
// yields io.ErrUnexpectedEOF. Both terminate the stream: a decoder error is
// not recoverable because the frame boundary is lost.
func (fr *frameReader[F]) readFrame(op errors.Op) (*F, error) {
	for {
		f, n, err := fr.decode(fr.buf)
		if err != nil {
			// %w keeps frame.ErrInvalidFrame reachable through errors.Is.
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if f != nil {
			fr.buf = fr.buf[n:]
			return f, nil
		}

		chunk := make([]byte, readChunk)
		m, rerr := fr.r.Read(chunk)
		if m > 0 {
			fr.buf = append(fr.buf, chunk[:m]...)
		}
		if rerr != nil {
			if !stderr.Is(rerr, io.EOF) {
				return nil, errors.E(op, rerr)
			}
			if m > 0 {
				// The final read may have completed a frame; decode once more.
				continue
			}
			if len(fr.buf) == 0 {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
	}
}

// RequestReader yields request frames from an underlying byte stream.
type RequestReader struct {
	fr frameReader[frame.Request]
}

func NewRequestReader(r io.Reader) *RequestReader {
	return &RequestReader{fr: frameReader[frame.Request]{r: r, decode: frame.DecodeRequest}}
}

func (r *RequestReader) ReadFrame() (*frame.Request, error) {
	return r.fr.readFrame("transport_read_request")
}

// ResponseReader yields response frames from an underlying byte stream.
type ResponseReader struct {
	fr frameReader[frame.Response]
}

func NewResponseReader(r io.Reader) *ResponseReader {
	return &ResponseReader{fr: frameReader[frame.Response]{r: r, decode: frame.DecodeResponse}}
}

func (r *ResponseReader) ReadFrame() (*frame.Response, error) {
	return r.fr.readFrame("transport_read_response")
}

// RequestWriter writes request frames through to an underlying byte sink.
// Not safe for concurrent use: interleaved writes would corrupt the stream.
type RequestWriter struct {
	w       io.Writer
	scratch []byte
}

func NewRequestWriter(w io.Writer) *RequestWriter {
	return &RequestWriter{w: w}
}

func (w *RequestWriter) WriteFrame(f *frame.Request) error {
	const op = errors.Op("transport_write_request")
	buf, err := frame.AppendRequest(w.scratch[:0], f)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.scratch = buf
	if _, err := w.w.Write(buf); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// ResponseWriter writes response frames through to an underlying byte sink.
// Not safe for concurrent use.
type ResponseWriter struct {
	w       io.Writer
	scratch []byte
}

func NewResponseWriter(w io.Writer) *ResponseWriter {
	return &ResponseWriter{w: w}
}

func (w *ResponseWriter) WriteFrame(f *frame.Response) error {
	const op = errors.Op("transport_write_response")
	buf, err := frame.AppendResponse(w.scratch[:0], f)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.scratch = buf
	if _, err := w.w.Write(buf); err != nil {
		return errors.E(op, err)
	}
	return nil
}
