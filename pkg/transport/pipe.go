package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

const pipeBuffer = 64

// PipeConn is one end of an in-memory connection created by Pipe. Messages
// are encoded on Write and decoded on Read, exactly as on a real stream.
type PipeConn struct {
	inbox  chan []byte
	outbox chan []byte

	closed    chan struct{}
	closeOnce *sync.Once
}

// Pipe returns two connected ends. Closing either end closes both.
func Pipe() (*PipeConn, *PipeConn) {
	a := make(chan []byte, pipeBuffer)
	b := make(chan []byte, pipeBuffer)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &PipeConn{inbox: a, outbox: b, closed: closed, closeOnce: once},
		&PipeConn{inbox: b, outbox: a, closed: closed, closeOnce: once}
}

// Read returns the next message written by the other end. Messages already
// queued are still returned after the pipe is closed.
func (p *PipeConn) Read(ctx context.Context) (protocol.Message, error) {
	select {
	case data := <-p.inbox:
		return decode(data)
	default:
	}

	select {
	case data := <-p.inbox:
		return decode(data)
	case <-p.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write sends msg to the other end
func (p *PipeConn) Write(ctx context.Context, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return p.WriteRaw(ctx, data)
}

// WriteRaw sends an undecoded frame to the other end
func (p *PipeConn) WriteRaw(ctx context.Context, data []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	select {
	case p.outbox <- data:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes both ends
func (p *PipeConn) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}
