// Package transport moves protocol envelopes between endpoints and the
// broker.
package transport

import (
	"context"
	"errors"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// ErrClosed is returned by Send and Recv once a connection is closed.
var ErrClosed = errors.New("transport closed")

// Conn is one bidirectional, ordered envelope stream.
type Conn interface {
	Send(env protocol.Envelope) error
	Recv(ctx context.Context) (protocol.Envelope, error)
	Close() error
}
