package registry

import (
	"context"
	"net/url"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// Roots is the root registry. Roots are file:// URIs; every mutation sends
// roots/list_changed to the subscribers of the affected root and to wildcard
// subscribers.
type Roots struct {
	mu    sync.RWMutex
	roots *store[protocol.Root]

	hub    *hub
	logger logging.Logger
}

// NewRoots creates an empty root registry
func NewRoots(logger logging.Logger) *Roots {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Roots{
		roots:  newStore[protocol.Root]("root"),
		hub:    newHub(logger),
		logger: logger,
	}
}

// ValidateRootURI checks that uri is an absolute file:// URI
func ValidateRootURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return mcperrors.InvalidParamsf("invalid root uri %q", uri).WithDetail(err.Error())
	}
	if u.Scheme != "file" || u.Path == "" {
		return mcperrors.InvalidParamsf("root uri %q must be an absolute file:// uri", uri)
	}
	return nil
}

// Register adds a root
func (r *Roots) Register(ctx context.Context, root protocol.Root) error {
	if err := ValidateRootURI(root.URI); err != nil {
		return err
	}

	r.mu.Lock()
	if err := r.roots.add(root.URI, root); err != nil {
		r.mu.Unlock()
		return err
	}
	r.hub.publish(ctx, r.mu.Unlock, r.changedEvent(root.URI))
	r.logger.Debug("root registered", logging.String("uri", root.URI))
	return nil
}

// Unregister removes a root
func (r *Roots) Unregister(ctx context.Context, uri string) error {
	r.mu.Lock()
	if _, err := r.roots.remove(uri); err != nil {
		r.mu.Unlock()
		return err
	}
	r.hub.publish(ctx, r.mu.Unlock, r.changedEvent(uri))
	r.logger.Debug("root unregistered", logging.String("uri", uri))
	return nil
}

// Get returns a registered root
func (r *Roots) Get(uri string) (protocol.Root, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roots.get(uri)
}

// List returns all roots in registration order
func (r *Roots) List() []protocol.Root {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roots.values()
}

// Subscribe records interest of sub in uri, or in every root when uri is
// Wildcard
func (r *Roots) Subscribe(uri string, sub Subscriber) error {
	if uri != Wildcard {
		if err := ValidateRootURI(uri); err != nil {
			return err
		}
	}
	r.hub.subscribe(uri, sub)
	return nil
}

// Unsubscribe removes a subscription created by Subscribe
func (r *Roots) Unsubscribe(uri, subscriberID string) error {
	if !r.hub.unsubscribe(uri, subscriberID) {
		return mcperrors.NotFound("subscription", uri)
	}
	return nil
}

// Drop forgets every subscription held by subscriberID
func (r *Roots) Drop(subscriberID string) {
	r.hub.drop(subscriberID)
}

// NotifyChanged signals a change under uri made outside the registry
func (r *Roots) NotifyChanged(ctx context.Context, uri string) {
	r.mu.Lock()
	r.hub.publish(ctx, r.mu.Unlock, r.changedEvent(uri))
}

func (r *Roots) changedEvent(uri string) event {
	return event{
		targets: r.hub.matching(uri),
		method:  protocol.MethodRootsListChanged,
	}
}
