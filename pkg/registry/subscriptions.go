package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
)

// Wildcard subscribes to every identifier of a registry
const Wildcard = "*"

// Subscriber receives change notifications pushed by a registry. A Notify
// error means the subscriber's channel is gone; the registry then forgets every
// subscription held by that subscriber. Notify runs outside the registry
// lock but must not mutate the same registry, whose later events wait for it.
type Subscriber interface {
	SubscriberID() string
	Notify(ctx context.Context, method string, params interface{}) error
}

// event is one notification addressed to a fixed set of subscribers
type event struct {
	targets []Subscriber
	method  string
	params  interface{}
}

// hub tracks subscriptions for one registry and delivers its events.
//
// Registries compute events while holding their own lock, then call
// hub.publish, which draws a delivery ticket before the registry lock is
// released and waits for its turn afterwards. Events therefore reach each
// subscriber in mutation order, and a slow subscriber never holds up readers
// of the registry.
type hub struct {
	mu       sync.Mutex
	byID     map[string]map[string]Subscriber
	watchers map[string]Subscriber

	turnMu  sync.Mutex
	turn    *sync.Cond
	next    uint64 // next ticket to hand out
	serving uint64 // ticket currently delivering

	logger logging.Logger
}

func newHub(logger logging.Logger) *hub {
	h := &hub{
		byID:     make(map[string]map[string]Subscriber),
		watchers: make(map[string]Subscriber),
		logger:   logger,
	}
	h.turn = sync.NewCond(&h.turnMu)
	return h
}

func (h *hub) subscribe(identifier string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.byID[identifier]
	if !ok {
		subs = make(map[string]Subscriber)
		h.byID[identifier] = subs
	}
	subs[sub.SubscriberID()] = sub
}

func (h *hub) unsubscribe(identifier, subscriberID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.byID[identifier]
	if !ok {
		return false
	}
	if _, ok := subs[subscriberID]; !ok {
		return false
	}
	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(h.byID, identifier)
	}
	return true
}

func (h *hub) subscribed(identifier, subscriberID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.byID[identifier][subscriberID]
	return ok
}

func (h *hub) watch(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchers[sub.SubscriberID()] = sub
}

func (h *hub) unwatch(subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.watchers, subscriberID)
}

// drop forgets everything held by a subscriber
func (h *hub) drop(subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for identifier, subs := range h.byID {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(h.byID, identifier)
		}
	}
	delete(h.watchers, subscriberID)
}

// matching returns the distinct subscribers of identifier, including wildcard
// subscribers, ordered by id
func (h *hub) matching(identifier string) []Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]Subscriber)
	for id, sub := range h.byID[identifier] {
		seen[id] = sub
	}
	for id, sub := range h.byID[Wildcard] {
		seen[id] = sub
	}
	return sortedSubscribers(seen)
}

func (h *hub) watching() []Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]Subscriber, len(h.watchers))
	for id, sub := range h.watchers {
		seen[id] = sub
	}
	return sortedSubscribers(seen)
}

// publish delivers events in ticket order. unlock is the registry's unlock
// function; the ticket is drawn before it is called so that delivery order
// matches mutation order.
func (h *hub) publish(ctx context.Context, unlock func(), events ...event) {
	h.turnMu.Lock()
	ticket := h.next
	h.next++
	h.turnMu.Unlock()

	unlock()

	h.turnMu.Lock()
	for h.serving != ticket {
		h.turn.Wait()
	}
	h.turnMu.Unlock()

	defer func() {
		h.turnMu.Lock()
		h.serving++
		h.turn.Broadcast()
		h.turnMu.Unlock()
	}()

	var dead map[string]bool
	for _, ev := range events {
		for _, sub := range ev.targets {
			if dead[sub.SubscriberID()] {
				continue
			}
			if err := sub.Notify(ctx, ev.method, ev.params); err != nil {
				if dead == nil {
					dead = make(map[string]bool)
				}
				dead[sub.SubscriberID()] = true
				h.logger.Debug("dropping subscriber",
					logging.String("subscriber", sub.SubscriberID()),
					logging.String("method", ev.method),
					logging.ErrorField(err))
				h.drop(sub.SubscriberID())
			}
		}
	}
}

func sortedSubscribers(m map[string]Subscriber) []Subscriber {
	if len(m) == 0 {
		return nil
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
