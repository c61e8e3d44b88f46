package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"stubrpc/frame"
)

// Handler processes one request: the command from the frame plus the opaque
// request-union bytes, yielding the response-union bytes or a wire error.
type Handler func(ctx context.Context, cmd string, args []byte) ([]byte, error)

// Interceptor wraps a handler with cross-cutting behavior. Interceptors
// compose in an onion: the first registered is the outermost layer.
type Interceptor func(next Handler) Handler

// Chain composes interceptors into one. Built from right to left so that
// Chain(A, B, C)(h) executes A before B before C before h.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(next Handler) Handler {
		for i := len(interceptors) - 1; i >= 0; i-- {
			next = interceptors[i](next)
		}
		return next
	}
}

// Logging records each call's command, duration, and outcome.
func Logging(log *zap.Logger) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, cmd string, args []byte) ([]byte, error) {
			start := time.Now()
			payload, err := next(ctx, cmd, args)
			if err != nil {
				log.Warn("call failed",
					zap.String("cmd", cmd),
					zap.Duration("took", time.Since(start)),
					zap.Error(err))
				return payload, err
			}
			log.Info("call",
				zap.String("cmd", cmd),
				zap.Duration("took", time.Since(start)),
				zap.Int("response_bytes", len(payload)))
			return payload, nil
		}
	}
}

// RateLimit admits calls through a token bucket: tokens refill at r per
// second up to burst. A call arriving to an empty bucket is rejected with
// the overloaded error kind without reaching the dispatcher.
//
// The limiter lives in the outer closure — one bucket shared by every call
// across every connection, not a fresh bucket per request.
func RateLimit(r float64, burst int) Interceptor {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Handler) Handler {
		return func(ctx context.Context, cmd string, args []byte) ([]byte, error) {
			if !limiter.Allow() {
				return nil, frame.ErrOverloaded
			}
			return next(ctx, cmd, args)
		}
	}
}
