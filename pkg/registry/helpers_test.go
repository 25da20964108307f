package registry

import (
	"context"
	"errors"
	"sync"
)

type notice struct {
	method string
	params interface{}
}

// recorder is a Subscriber that keeps every notification it receives
type recorder struct {
	id string

	mu      sync.Mutex
	notices []notice
	fail    bool
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) SubscriberID() string { return r.id }

func (r *recorder) Notify(_ context.Context, method string, params interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("channel closed")
	}
	r.notices = append(r.notices, notice{method: method, params: params})
	return nil
}

func (r *recorder) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *recorder) received() []notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notice, len(r.notices))
	copy(out, r.notices)
	return out
}

func (r *recorder) count(method string) int {
	n := 0
	for _, m := range r.received() {
		if m.method == method {
			n++
		}
	}
	return n
}
