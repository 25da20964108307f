package registry

import (
	"context"
	"sort"
	"strings"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// PromptRenderer builds prompt messages from validated arguments
type PromptRenderer func(ctx context.Context, args map[string]string) (*protocol.GetPromptResult, error)

// PromptEntry is a registered prompt. When Render is nil the text content of
// Messages is rendered by replacing {{name}} placeholders with argument values.
type PromptEntry struct {
	Prompt   protocol.Prompt
	Messages []protocol.PromptMessage
	Render   PromptRenderer
}

// Prompts is the prompt registry
type Prompts struct {
	mu      sync.RWMutex
	prompts *store[PromptEntry]

	hub    *hub
	logger logging.Logger
}

// NewPrompts creates an empty prompt registry
func NewPrompts(logger logging.Logger) *Prompts {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Prompts{
		prompts: newStore[PromptEntry]("prompt"),
		hub:     newHub(logger),
		logger:  logger,
	}
}

// Register adds a prompt
func (p *Prompts) Register(ctx context.Context, entry PromptEntry) error {
	name := entry.Prompt.Name
	if name == "" {
		return mcperrors.InvalidParams("prompt name is required")
	}
	if entry.Render == nil && len(entry.Messages) == 0 {
		return mcperrors.InvalidParamsf("prompt %q has neither messages nor a renderer", name)
	}
	seen := make(map[string]bool, len(entry.Prompt.Arguments))
	for _, arg := range entry.Prompt.Arguments {
		if arg.Name == "" || seen[arg.Name] {
			return mcperrors.InvalidParamsf("prompt %q declares an empty or repeated argument", name)
		}
		seen[arg.Name] = true
	}

	p.mu.Lock()
	if err := p.prompts.add(name, entry); err != nil {
		p.mu.Unlock()
		return err
	}
	p.hub.publish(ctx, p.mu.Unlock, p.listChangedEvent())
	p.logger.Debug("prompt registered", logging.String("prompt", name))
	return nil
}

// Unregister removes a prompt
func (p *Prompts) Unregister(ctx context.Context, name string) error {
	p.mu.Lock()
	if _, err := p.prompts.remove(name); err != nil {
		p.mu.Unlock()
		return err
	}
	p.hub.publish(ctx, p.mu.Unlock, p.listChangedEvent())
	return nil
}

// Get returns the descriptor of a registered prompt
func (p *Prompts) Get(name string) (protocol.Prompt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, err := p.prompts.get(name)
	if err != nil {
		return protocol.Prompt{}, err
	}
	return entry.Prompt, nil
}

// List returns all prompts in registration order
func (p *Prompts) List() []protocol.Prompt {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entries := p.prompts.values()
	out := make([]protocol.Prompt, len(entries))
	for i, e := range entries {
		out[i] = e.Prompt
	}
	return out
}

// Render validates args against the prompt's declared arguments and renders
// it. Missing required arguments and undeclared arguments fail with
// InvalidParams.
func (p *Prompts) Render(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	p.mu.RLock()
	entry, err := p.prompts.get(name)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if err := checkPromptArgs(entry.Prompt, args); err != nil {
		return nil, err
	}

	if entry.Render != nil {
		result, err := entry.Render(ctx, args)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = &protocol.GetPromptResult{Messages: []protocol.PromptMessage{}}
		}
		if result.Description == "" {
			result.Description = entry.Prompt.Description
		}
		return result, nil
	}

	pairs := make([]string, 0, 2*len(entry.Prompt.Arguments))
	for _, arg := range entry.Prompt.Arguments {
		pairs = append(pairs, "{{"+arg.Name+"}}", args[arg.Name])
	}
	replacer := strings.NewReplacer(pairs...)

	messages := make([]protocol.PromptMessage, len(entry.Messages))
	for i, m := range entry.Messages {
		messages[i] = m
		if m.Content.Type == "text" {
			messages[i].Content.Text = replacer.Replace(m.Content.Text)
		}
	}
	return &protocol.GetPromptResult{
		Description: entry.Prompt.Description,
		Messages:    messages,
	}, nil
}

func checkPromptArgs(prompt protocol.Prompt, args map[string]string) error {
	declared := make(map[string]bool, len(prompt.Arguments))
	var missing []string
	for _, arg := range prompt.Arguments {
		declared[arg.Name] = true
		if _, ok := args[arg.Name]; arg.Required && !ok {
			missing = append(missing, arg.Name)
		}
	}
	if len(missing) > 0 {
		return mcperrors.InvalidParamsf("prompt %q is missing required arguments: %s",
			prompt.Name, strings.Join(missing, ", "))
	}

	var unknown []string
	for name := range args {
		if !declared[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return mcperrors.InvalidParamsf("prompt %q does not accept arguments: %s",
			prompt.Name, strings.Join(unknown, ", "))
	}
	return nil
}

// Watch registers sub for prompts/list_changed notifications
func (p *Prompts) Watch(sub Subscriber) {
	p.hub.watch(sub)
}

// Drop forgets the watch held by subscriberID
func (p *Prompts) Drop(subscriberID string) {
	p.hub.drop(subscriberID)
}

func (p *Prompts) listChangedEvent() event {
	return event{
		targets: p.hub.watching(),
		method:  protocol.MethodPromptListChanged,
	}
}
