package multicall

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrLengthMismatch means the node returned a different number of results than calls sent.
var ErrLengthMismatch = errors.New("multicall: result length mismatch")

// TransportError wraps RPC failures. The batch produced no usable results.
type TransportError struct {
	Op      string
	Err     error
	timeout bool
}

func newTransportError(ctx context.Context, op string, err error) *TransportError {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &TransportError{Op: op, Err: err, timeout: timeout}
}

func (e *TransportError) Error() string {
	if e.timeout {
		return fmt.Sprintf("%s: timeout: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline expiry.
func (e *TransportError) Timeout() bool {
	return e.timeout
}

// DecodeError reports return data that does not match the declared output shape.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err carries a TransportError and may be retried.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
