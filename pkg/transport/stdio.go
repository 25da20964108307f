package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// DefaultMaxMessageSize bounds a single newline-delimited frame
const DefaultMaxMessageSize = 4 << 20

// StreamConn carries newline-delimited JSON messages over a byte stream,
// typically the process's stdin and stdout.
type StreamConn struct {
	reader io.Reader
	frames chan []byte
	group  errgroup.Group

	mu     sync.Mutex // protects writer
	writer *bufio.Writer

	done      chan struct{}
	closeOnce sync.Once
}

// NewStdioConn returns a StreamConn over os.Stdin and os.Stdout
func NewStdioConn() *StreamConn {
	return NewStreamConn(os.Stdin, os.Stdout, DefaultMaxMessageSize)
}

// NewStreamConn starts reading frames from r. Frames longer than maxMessageSize
// end the stream with an error.
func NewStreamConn(r io.Reader, w io.Writer, maxMessageSize int) *StreamConn {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	c := &StreamConn{
		reader: r,
		frames: make(chan []byte),
		writer: bufio.NewWriter(w),
		done:   make(chan struct{}),
	}
	c.group.Go(func() error {
		return c.scan(maxMessageSize)
	})
	return c
}

func (c *StreamConn) scan(maxMessageSize int) error {
	defer close(c.frames)

	scanner := bufio.NewScanner(c.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// Copy the line to avoid it being overwritten by the next Scan
		data := make([]byte, len(line))
		copy(data, line)

		select {
		case c.frames <- data:
		case <-c.done:
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// Read returns the next message
func (c *StreamConn) Read(ctx context.Context) (protocol.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	case data, ok := <-c.frames:
		if !ok {
			select {
			case <-c.done:
				return nil, ErrClosed
			default:
			}
			if err := c.group.Wait(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return decode(data)
	}
}

// Write encodes msg as one line and flushes it
func (c *StreamConn) Write(ctx context.Context, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close stops reading and flushes pending output. A reader that implements
// io.Closer is closed to unblock the scanner.
func (c *StreamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		err = c.writer.Flush()
		c.mu.Unlock()

		if closer, ok := c.reader.(io.Closer); ok {
			_ = closer.Close()
		}
	})
	return err
}
