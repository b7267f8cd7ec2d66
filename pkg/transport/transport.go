package transport

import (
	"context"
	"errors"
	"fmt"
)

// MaxDatagramSize bounds a single transport frame. Synchronization messages
// that would exceed it are split by the caller into multiple rounds.
const MaxDatagramSize = 60 * 1024

// Message is one inbound frame together with the sender's address, which the
// receiver uses to reply.
type Message struct {
	From string
	Data []byte
}

// Transport moves opaque frames between devices. Delivery is best-effort and
// unordered; the synchronization protocol above it tolerates loss and
// duplication.
type Transport interface {
	// Send transmits one frame to the peer at addr.
	Send(ctx context.Context, addr string, data []byte) error

	// Receive returns the inbound frame channel. The channel is closed
	// when the transport shuts down.
	Receive() <-chan Message

	// LocalAddr returns the address peers should use to reach this
	// transport.
	LocalAddr() string

	// Close stops the transport and closes the receive channel.
	Close() error
}

// ErrClosed indicates use of a transport after Close.
var ErrClosed = errors.New("transport: closed")

// ErrFrameTooLarge indicates a frame above MaxDatagramSize.
var ErrFrameTooLarge = errors.New("transport: frame exceeds datagram size")

// SendError wraps a failure to reach a specific peer.
type SendError struct {
	Addr  string
	Cause error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	return fmt.Sprintf("transport: send to %s failed: %v", e.Addr, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SendError) Unwrap() error { return e.Cause }
