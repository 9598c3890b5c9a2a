// Package transport provides the raw byte-stream links a terminal client runs on.
// Implementations know nothing about framing.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by reads that see no data within their budget.
var ErrTimeout = errors.New("transport read timeout")

// ErrClosed is returned when the link is used before Open or after Close.
var ErrClosed = errors.New("transport closed")

// ErrPeerClosed is returned by reads after the terminal closed its end.
var ErrPeerClosed = errors.New("transport closed by peer")

// Transport is a byte-stream link to a terminal. It is opened and closed once per
// exchange and is not safe for concurrent use.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
	Send(p []byte) error
	// RecvByte returns the next byte or ErrTimeout when none arrives in time.
	RecvByte(timeout time.Duration) (byte, error)
	// RecvFull fills buf within timeout and returns the count actually read.
	// A short count is returned together with ErrTimeout.
	RecvFull(buf []byte, timeout time.Duration) (int, error)
}
