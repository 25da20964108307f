package server

import (
	"context"
	"sync"

	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/progress"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// activeRequest is one request whose response has not been sent yet
type activeRequest struct {
	cancel    context.CancelFunc
	op        *progress.Operation
	cancelled bool
}

// inflight tracks running requests for cancellation
type inflight struct {
	mu       sync.Mutex
	requests map[protocol.RequestID]*activeRequest
	logger   logging.Logger
}

func newInflight(logger logging.Logger) *inflight {
	return &inflight{
		requests: make(map[protocol.RequestID]*activeRequest),
		logger:   logger,
	}
}

// begin registers id and returns the request context plus the function that
// completes the request. ok is false when id is already in flight.
func (f *inflight) begin(ctx context.Context, id protocol.RequestID) (context.Context, func(), bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.requests[id]; exists {
		return ctx, func() {}, false
	}
	reqCtx, cancel := context.WithCancel(ctx)
	req := &activeRequest{cancel: cancel}
	f.requests[id] = req
	return reqCtx, func() {
		f.mu.Lock()
		if f.requests[id] == req {
			delete(f.requests, id)
		}
		f.mu.Unlock()
		cancel()
	}, true
}

// attach links the progress operation of a running request. The operation is
// flagged at once if the request was cancelled before it was attached.
func (f *inflight) attach(id protocol.RequestID, op *progress.Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.requests[id]; ok {
		req.op = op
		if req.cancelled {
			op.Cancel()
		}
	}
}

// cancel cancels the context of id and flags its progress operation. The
// request stays registered until its handler returns.
func (f *inflight) cancel(id protocol.RequestID) bool {
	f.mu.Lock()
	req, ok := f.requests[id]
	var op *progress.Operation
	if ok {
		req.cancelled = true
		op = req.op
	}
	f.mu.Unlock()
	if !ok {
		f.logger.Debug("cancellation for unknown request", logging.String(logging.RequestIDKey, id.String()))
		return false
	}
	op.Cancel()
	req.cancel()
	f.logger.Info("request cancelled", logging.String(logging.RequestIDKey, id.String()))
	return true
}

// cancelAll cancels every running request
func (f *inflight) cancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		req.cancelled = true
		req.op.Cancel()
		req.cancel()
	}
}

func (f *inflight) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
