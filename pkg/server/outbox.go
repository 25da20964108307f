package server

import (
	"context"
	"sync"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// outbox funnels every outbound message of a session through one writer, so
// messages leave in the order they were queued. Messages queued before the
// writer starts are held in the buffer.
type outbox struct {
	queue chan protocol.Message

	mu     sync.RWMutex // guards closed against concurrent send
	closed bool

	done     chan struct{} // closed when the writer has stopped
	doneOnce sync.Once
}

func newOutbox(size int) *outbox {
	return &outbox{
		queue: make(chan protocol.Message, size),
		done:  make(chan struct{}),
	}
}

// send queues msg, blocking while the buffer is full. A message is queued
// whenever there is room, even if ctx is already done.
func (o *outbox) send(ctx context.Context, msg protocol.Message) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return transport.ErrClosed
	}
	select {
	case <-o.done:
		return transport.ErrClosed
	default:
	}
	select {
	case o.queue <- msg:
		return nil
	default:
	}
	select {
	case o.queue <- msg:
		return nil
	case <-o.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting messages. The writer drains what is queued and exits.
func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
}

// run writes queued messages to conn until the outbox is closed and drained,
// a write fails or ctx ends
func (o *outbox) run(ctx context.Context, conn transport.Conn) error {
	defer o.stop()
	for {
		select {
		case msg, ok := <-o.queue:
			if !ok {
				return nil
			}
			if err := conn.Write(ctx, msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *outbox) stop() {
	o.doneOnce.Do(func() { close(o.done) })
}
