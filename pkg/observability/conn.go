package observability

import (
	"context"
	"errors"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// instrumentedConn counts every message that crosses the wrapped connection
type instrumentedConn struct {
	next    transport.Conn
	metrics *Metrics
}

// InstrumentConn wraps conn so that inbound and outbound messages are counted
// by kind. It returns conn unchanged when metrics is nil.
func InstrumentConn(conn transport.Conn, metrics *Metrics) transport.Conn {
	if metrics == nil {
		return conn
	}
	return &instrumentedConn{next: conn, metrics: metrics}
}

func (c *instrumentedConn) Read(ctx context.Context) (protocol.Message, error) {
	msg, err := c.next.Read(ctx)
	switch {
	case err == nil:
		c.metrics.RecordMessage("in", messageKind(msg))
	case isDecodeError(err):
		c.metrics.RecordMessage("in", "invalid")
	}
	return msg, err
}

func (c *instrumentedConn) Write(ctx context.Context, msg protocol.Message) error {
	err := c.next.Write(ctx, msg)
	if err == nil {
		c.metrics.RecordMessage("out", messageKind(msg))
	}
	return err
}

func (c *instrumentedConn) Close() error {
	return c.next.Close()
}

func messageKind(msg protocol.Message) string {
	switch m := msg.(type) {
	case *protocol.Request:
		return "request"
	case *protocol.Notification:
		return "notification"
	case *protocol.Response:
		if m.Error != nil {
			return "error"
		}
		return "response"
	}
	return "unknown"
}

func isDecodeError(err error) bool {
	var decodeErr *transport.DecodeError
	return errors.As(err, &decodeErr)
}
