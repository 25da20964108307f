package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// ErrClosed is returned by Read and Write once the connection is closed
var ErrClosed = errors.New("transport closed")

// Conn is a duplex channel of JSON-RPC messages between two peers.
//
// Read blocks until a message arrives, ctx is done, or the channel fails.
// A peer that hangs up yields io.EOF; a frame that could not be decoded yields
// a *DecodeError and the connection remains usable. Write must be safe for
// concurrent use and preserves the order of calls made by one goroutine.
type Conn interface {
	Read(ctx context.Context) (protocol.Message, error)
	Write(ctx context.Context, msg protocol.Message) error
	Close() error
}

// DecodeError reports an inbound frame that is not a valid message. ID is set
// when the request id could be recovered so the receiver can still answer.
type DecodeError struct {
	ID  protocol.RequestID
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decode(data []byte) (protocol.Message, error) {
	msg, id, err := protocol.DecodeMessage(data)
	if err != nil {
		return nil, &DecodeError{ID: id, Err: err}
	}
	return msg, nil
}
