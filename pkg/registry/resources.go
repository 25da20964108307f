package registry

import (
	"context"
	"sync"

	"github.com/yosida95/uritemplate/v3"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// ResourceReader produces the contents of a registered resource
type ResourceReader func(ctx context.Context, uri string) ([]protocol.ResourceContents, error)

// TemplateReader produces the contents of a resource matched by a template.
// vars holds the template variables extracted from uri.
type TemplateReader func(ctx context.Context, uri string, vars map[string]string) ([]protocol.ResourceContents, error)

// ResourceEntry is a registered resource descriptor plus its reader
type ResourceEntry struct {
	Resource protocol.Resource
	Read     ResourceReader
}

// TemplateEntry is a registered resource template plus its reader
type TemplateEntry struct {
	Template protocol.ResourceTemplate
	Read     TemplateReader

	compiled *uritemplate.Template
}

// Resources is the resource registry. Subscriptions are keyed by URI or
// Wildcard; list watchers receive resources/list_changed.
type Resources struct {
	mu        sync.RWMutex
	resources *store[ResourceEntry]
	templates *store[TemplateEntry]

	hub    *hub
	logger logging.Logger
}

// NewResources creates an empty resource registry
func NewResources(logger logging.Logger) *Resources {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resources{
		resources: newStore[ResourceEntry]("resource"),
		templates: newStore[TemplateEntry]("resource template"),
		hub:       newHub(logger),
		logger:    logger,
	}
}

// Register adds a resource. Subscribers of its URI receive
// resources/updated and list watchers receive resources/list_changed.
func (r *Resources) Register(ctx context.Context, entry ResourceEntry) error {
	uri := entry.Resource.URI
	if uri == "" {
		return mcperrors.InvalidParams("resource uri is required")
	}
	if entry.Read == nil {
		return mcperrors.InvalidParamsf("resource %q has no reader", uri)
	}
	if entry.Resource.Name == "" {
		entry.Resource.Name = uri
	}

	r.mu.Lock()
	if err := r.resources.add(uri, entry); err != nil {
		r.mu.Unlock()
		return err
	}
	r.hub.publish(ctx, r.mu.Unlock, r.changeEvents(uri)...)
	r.logger.Debug("resource registered", logging.String("uri", uri))
	return nil
}

// Unregister removes a resource
func (r *Resources) Unregister(ctx context.Context, uri string) error {
	r.mu.Lock()
	if _, err := r.resources.remove(uri); err != nil {
		r.mu.Unlock()
		return err
	}
	r.hub.publish(ctx, r.mu.Unlock, r.changeEvents(uri)...)
	r.logger.Debug("resource unregistered", logging.String("uri", uri))
	return nil
}

// Get returns the descriptor of a registered resource
func (r *Resources) Get(uri string) (protocol.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, err := r.resources.get(uri)
	if err != nil {
		return protocol.Resource{}, err
	}
	return entry.Resource, nil
}

// List returns all resources in registration order
func (r *Resources) List() []protocol.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.resources.values()
	out := make([]protocol.Resource, len(entries))
	for i, e := range entries {
		out[i] = e.Resource
	}
	return out
}

// Read returns the contents of uri. Registered resources take precedence;
// otherwise the first template, in registration order, that matches uri
// serves the read.
func (r *Resources) Read(ctx context.Context, uri string) ([]protocol.ResourceContents, error) {
	if uri == "" {
		return nil, mcperrors.InvalidParams("uri is required")
	}

	r.mu.RLock()
	entry, err := r.resources.get(uri)
	templates := r.templates.values()
	r.mu.RUnlock()

	if err == nil {
		return entry.Read(ctx, uri)
	}

	for _, t := range templates {
		values := t.compiled.Match(uri)
		if values == nil {
			continue
		}
		vars := make(map[string]string, len(values))
		for name, v := range values {
			vars[name] = v.String()
		}
		return t.Read(ctx, uri, vars)
	}
	return nil, err
}

// RegisterTemplate adds a resource template. The URI template is compiled
// eagerly; an invalid template fails with InvalidParams.
func (r *Resources) RegisterTemplate(ctx context.Context, entry TemplateEntry) error {
	raw := entry.Template.URITemplate
	if raw == "" {
		return mcperrors.InvalidParams("uriTemplate is required")
	}
	if entry.Read == nil {
		return mcperrors.InvalidParamsf("resource template %q has no reader", raw)
	}
	compiled, err := uritemplate.New(raw)
	if err != nil {
		return mcperrors.InvalidParamsf("invalid uri template %q", raw).WithDetail(err.Error())
	}
	entry.compiled = compiled
	if entry.Template.Name == "" {
		entry.Template.Name = raw
	}

	r.mu.Lock()
	if err := r.templates.add(raw, entry); err != nil {
		r.mu.Unlock()
		return err
	}
	r.hub.publish(ctx, r.mu.Unlock, r.listChangedEvent())
	return nil
}

// UnregisterTemplate removes a resource template
func (r *Resources) UnregisterTemplate(ctx context.Context, uriTemplate string) error {
	r.mu.Lock()
	if _, err := r.templates.remove(uriTemplate); err != nil {
		r.mu.Unlock()
		return err
	}
	r.hub.publish(ctx, r.mu.Unlock, r.listChangedEvent())
	return nil
}

// Templates returns all templates in registration order
func (r *Resources) Templates() []protocol.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.templates.values()
	out := make([]protocol.ResourceTemplate, len(entries))
	for i, e := range entries {
		out[i] = e.Template
	}
	return out
}

// Subscribe records interest of sub in uri, or in every resource when uri is
// Wildcard. Subscribing twice is a no-op.
func (r *Resources) Subscribe(uri string, sub Subscriber) error {
	if uri == "" {
		return mcperrors.InvalidParams("uri is required")
	}
	r.hub.subscribe(uri, sub)
	return nil
}

// Unsubscribe removes a subscription created by Subscribe
func (r *Resources) Unsubscribe(uri, subscriberID string) error {
	if !r.hub.unsubscribe(uri, subscriberID) {
		return mcperrors.NotFound("subscription", uri)
	}
	return nil
}

// Subscribed reports whether subscriberID holds a subscription on uri
func (r *Resources) Subscribed(uri, subscriberID string) bool {
	return r.hub.subscribed(uri, subscriberID)
}

// Watch registers sub for resources/list_changed notifications
func (r *Resources) Watch(sub Subscriber) {
	r.hub.watch(sub)
}

// Drop forgets every subscription and watch held by subscriberID
func (r *Resources) Drop(subscriberID string) {
	r.hub.drop(subscriberID)
}

// NotifyUpdated signals that the content behind uri changed outside the
// registry. Subscribers of uri receive one resources/updated notification.
func (r *Resources) NotifyUpdated(ctx context.Context, uri string) {
	r.mu.Lock()
	r.hub.publish(ctx, r.mu.Unlock, r.updatedEvent(uri))
}

func (r *Resources) changeEvents(uri string) []event {
	return []event{r.updatedEvent(uri), r.listChangedEvent()}
}

func (r *Resources) updatedEvent(uri string) event {
	return event{
		targets: r.hub.matching(uri),
		method:  protocol.MethodResourceUpdated,
		params:  protocol.ResourceUpdatedParams{URI: uri},
	}
}

func (r *Resources) listChangedEvent() event {
	return event{
		targets: r.hub.watching(),
		method:  protocol.MethodResourceListChanged,
	}
}
