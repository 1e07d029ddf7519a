package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure classes surfaced by generators. Every error returned from
// Generate wraps exactly one of these, or context.Canceled.
var (
	ErrTimeout    = errors.New("generation backend timed out")
	ErrConnection = errors.New("generation backend unreachable")
	ErrBackend    = errors.New("generation backend failed")
)

// ClassifyTransport maps a transport-level error to a failure class.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection) || errors.Is(err, ErrBackend) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// Retryable reports whether another attempt may succeed.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}
