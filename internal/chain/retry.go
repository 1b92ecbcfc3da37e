package chain

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// ErrTransient wraps network failures that are safe to retry.
var ErrTransient = errors.New("transient network error")

// Markers of retryable endpoint failures seen from public RPC providers.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"too many requests",
	"rate limit",
	"eof",
	"502",
	"503",
}

// Markers of failures that must never be retried: the node evaluated the call
// and rejected it.
var permanentMarkers = []string{
	"execution reverted",
	"revert",
	"insufficient funds",
	"nonce too low",
	"already known",
	"invalid argument",
}

// IsTransient reports whether an error is a retryable network failure rather
// than a revert or validation error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// WithRetry runs fn with bounded exponential backoff, retrying only transient
// failures. The delay doubles after every attempt starting from baseDelay.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !IsTransient(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
