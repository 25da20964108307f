// Package progress tracks long-running operations that report incremental
// progress to the peer and can be cancelled cooperatively.
//
// Cancellation is advisory. Tracker.Cancel only sets a flag; the handler that
// owns the Operation polls Cancelled at its own checkpoints and may still run
// to completion. Updates issued after cancellation are delivered.
package progress

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// ErrReleased is returned by Update once the operation has been released
var ErrReleased = errors.New("progress operation released")

// Sender delivers notifications to the peer
type Sender interface {
	Notify(ctx context.Context, method string, params interface{}) error
}

// Tracker owns the live progress operations of one session
type Tracker struct {
	mu  sync.Mutex
	ops map[protocol.ProgressToken]*Operation

	sender Sender
	logger logging.Logger
}

// NewTracker creates a tracker that emits notifications through sender
func NewTracker(sender Sender, logger logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tracker{
		ops:    make(map[protocol.ProgressToken]*Operation),
		sender: sender,
		logger: logger,
	}
}

// Create starts tracking token. total may be nil when the amount of work is
// unknown. Reusing a token that is still live fails with InvalidParams.
func (t *Tracker) Create(token protocol.ProgressToken, total *float64) (*Operation, error) {
	if !token.IsValid() {
		return nil, mcperrors.InvalidParams("progress token is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.ops[token]; exists {
		return nil, mcperrors.InvalidParamsf("progress token %q is already in use", token.String())
	}

	op := &Operation{token: token, tracker: t}
	if total != nil {
		v := *total
		op.total = &v
	}
	t.ops[token] = op
	return op, nil
}

// Get returns the live operation for token
func (t *Tracker) Get(token protocol.ProgressToken) (*Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[token]
	return op, ok
}

// Cancel sets the cancelled flag of the operation tracking token. It reports
// whether such an operation was live.
func (t *Tracker) Cancel(token protocol.ProgressToken) bool {
	op, ok := t.Get(token)
	if !ok {
		return false
	}
	op.Cancel()
	return true
}

// Release stops tracking token. Subsequent updates on its operation fail with
// ErrReleased and the token may be reused.
func (t *Tracker) Release(token protocol.ProgressToken) {
	t.mu.Lock()
	op, ok := t.ops[token]
	delete(t.ops, token)
	t.mu.Unlock()

	if ok {
		op.released.Store(true)
	}
}

// CancelAll flags every live operation as cancelled
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	ops := make([]*Operation, 0, len(t.ops))
	for _, op := range t.ops {
		ops = append(ops, op)
	}
	t.mu.Unlock()

	for _, op := range ops {
		op.Cancel()
	}
}

// Len returns the number of live operations
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// Operation is the handle of one tracked operation. A nil *Operation is
// valid and ignores every call, so handlers need not check whether the caller
// asked for progress.
type Operation struct {
	token   protocol.ProgressToken
	total   *float64
	tracker *Tracker

	// sendMu serializes updates so notifications leave in call order
	sendMu  sync.Mutex
	current float64

	cancelled atomic.Bool
	released  atomic.Bool
}

// Token returns the progress token
func (o *Operation) Token() protocol.ProgressToken {
	if o == nil {
		return protocol.ProgressToken{}
	}
	return o.token
}

// Total returns the declared total, or nil when unknown
func (o *Operation) Total() *float64 {
	if o == nil {
		return nil
	}
	return o.total
}

// Current returns the last reported progress value
func (o *Operation) Current() float64 {
	if o == nil {
		return 0
	}
	o.sendMu.Lock()
	defer o.sendMu.Unlock()
	return o.current
}

// Update records current and emits notifications/progress. Values are not
// required to be monotonic. Updates on a cancelled operation are still
// delivered.
func (o *Operation) Update(ctx context.Context, current float64, message string) error {
	if o == nil {
		return nil
	}
	if o.released.Load() {
		return ErrReleased
	}

	o.sendMu.Lock()
	defer o.sendMu.Unlock()
	o.current = current

	params := &protocol.ProgressParams{
		ProgressToken: o.token,
		Progress:      current,
		Total:         o.total,
		Message:       message,
	}
	if err := o.tracker.sender.Notify(ctx, protocol.MethodProgress, params); err != nil {
		o.tracker.logger.Debug("progress notification not delivered",
			logging.String("token", o.token.String()),
			logging.ErrorField(err))
		return err
	}
	return nil
}

// Cancel sets the cancelled flag
func (o *Operation) Cancel() {
	if o != nil {
		o.cancelled.Store(true)
	}
}

// Cancelled reports whether cancellation was requested. Handlers poll this at
// their checkpoints.
func (o *Operation) Cancelled() bool {
	return o != nil && o.cancelled.Load()
}

// Done releases the operation's token
func (o *Operation) Done() {
	if o != nil {
		o.tracker.Release(o.token)
	}
}

type contextKey struct{}

// WithOperation attaches op to ctx for use by handlers
func WithOperation(ctx context.Context, op *Operation) context.Context {
	return context.WithValue(ctx, contextKey{}, op)
}

// FromContext returns the operation attached to ctx, or nil
func FromContext(ctx context.Context) *Operation {
	op, _ := ctx.Value(contextKey{}).(*Operation)
	return op
}
