package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// stuckSubscriber blocks in Notify until released
type stuckSubscriber struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	methods []string
}

func newStuckSubscriber() *stuckSubscriber {
	return &stuckSubscriber{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *stuckSubscriber) SubscriberID() string { return "stuck" }

func (s *stuckSubscriber) Notify(_ context.Context, method string, _ interface{}) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = append(s.methods, method)
	return nil
}

func (s *stuckSubscriber) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

func TestSlowSubscriberDoesNotBlockReaders(t *testing.T) {
	ctx := context.Background()
	tools := NewTools(nil)
	sub := newStuckSubscriber()
	tools.Watch(sub)

	first := echoTool(t)
	second := echoTool(t)
	second.Tool.Name = "echo2"

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, tools.Register(ctx, first))
	}()
	select {
	case <-sub.entered:
	case <-time.After(time.Second):
		t.Fatal("subscriber was never notified")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, tools.Register(ctx, second))
	}()

	// both tools are visible while delivery is stuck
	require.Eventually(t, func() bool {
		done := make(chan int, 1)
		go func() { done <- len(tools.List()) }()
		select {
		case n := <-done:
			return n == 2
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, time.Second, 10*time.Millisecond)

	_, err := tools.Get("echo2")
	assert.NoError(t, err)

	close(sub.release)
	wg.Wait()
	assert.Equal(t, []string{protocol.MethodToolListChanged, protocol.MethodToolListChanged}, sub.received())
}

func TestDeliveryFollowsMutationOrder(t *testing.T) {
	ctx := context.Background()
	resources := NewResources(nil)
	rec := newRecorder("ordered")
	require.NoError(t, resources.Subscribe(Wildcard, rec))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resources.NotifyUpdated(ctx, "file:///r/"+string(rune('a'+i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, rec.count(protocol.MethodResourceUpdated))
}
