// Package capability declares which optional subsystems a server supports and
// gates methods on them.
package capability

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// Flag names one capability group or sub-flag
type Flag uint16

const (
	// None marks methods that are not capability gated (session lifecycle)
	None Flag = 0

	Resources Flag = 1 << iota
	ResourcesSubscribe
	ResourcesListChanged
	Tools
	ToolsListChanged
	Prompts
	PromptsListChanged
	Logging
	Roots
	RootsListChanged
)

var flagNames = map[Flag]string{
	Resources:            "resources",
	ResourcesSubscribe:   "resources.subscribe",
	ResourcesListChanged: "resources.listChanged",
	Tools:                "tools",
	ToolsListChanged:     "tools.listChanged",
	Prompts:              "prompts",
	PromptsListChanged:   "prompts.listChanged",
	Logging:              "logging",
	Roots:                "roots",
	RootsListChanged:     "roots.listChanged",
}

// group maps a sub-flag to the group it belongs to
var group = map[Flag]Flag{
	ResourcesSubscribe:   Resources,
	ResourcesListChanged: Resources,
	ToolsListChanged:     Tools,
	PromptsListChanged:   Prompts,
	RootsListChanged:     Roots,
}

// String returns the dotted name of a single flag
func (f Flag) String() string {
	if f == None {
		return "none"
	}
	if name, ok := flagNames[f]; ok {
		return name
	}
	return "unknown"
}

// Set is an immutable set of capability flags. Enabling a sub-flag also
// enables its group.
type Set struct {
	bits Flag
}

// New returns a set holding flags and the groups they imply
func New(flags ...Flag) Set {
	return Set{}.With(flags...)
}

// All returns a set with every group and sub-flag enabled
func All() Set {
	var flags []Flag
	for f := range flagNames {
		flags = append(flags, f)
	}
	return New(flags...)
}

// With returns a copy of s with flags added
func (s Set) With(flags ...Flag) Set {
	for _, f := range flags {
		s.bits |= f
		if g, ok := group[f]; ok {
			s.bits |= g
		}
	}
	return s
}

// Has reports whether f is enabled. None is always enabled.
func (s Set) Has(f Flag) bool {
	if f == None {
		return true
	}
	return s.bits&f == f
}

// Flags lists the enabled flags by name, sorted
func (s Set) Flags() []string {
	var names []string
	for f, name := range flagNames {
		if s.bits&f != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// String implements fmt.Stringer
func (s Set) String() string {
	return "{" + strings.Join(s.Flags(), ",") + "}"
}

// Wire converts the set to the capabilities object sent in InitializeResult
func (s Set) Wire() protocol.ServerCapabilities {
	var caps protocol.ServerCapabilities
	if s.Has(Resources) {
		caps.Resources = &protocol.ResourcesCapability{
			Subscribe:   s.Has(ResourcesSubscribe),
			ListChanged: s.Has(ResourcesListChanged),
		}
	}
	if s.Has(Tools) {
		caps.Tools = &protocol.ToolsCapability{ListChanged: s.Has(ToolsListChanged)}
	}
	if s.Has(Prompts) {
		caps.Prompts = &protocol.PromptsCapability{ListChanged: s.Has(PromptsListChanged)}
	}
	if s.Has(Logging) {
		caps.Logging = &protocol.LoggingCapability{}
	}
	if s.Has(Roots) {
		caps.Roots = &protocol.RootsCapability{ListChanged: s.Has(RootsListChanged)}
	}
	return caps
}

// FromWire converts a capabilities object back into a set
func FromWire(caps protocol.ServerCapabilities) Set {
	var s Set
	if c := caps.Resources; c != nil {
		s = s.With(Resources)
		if c.Subscribe {
			s = s.With(ResourcesSubscribe)
		}
		if c.ListChanged {
			s = s.With(ResourcesListChanged)
		}
	}
	if c := caps.Tools; c != nil {
		s = s.With(Tools)
		if c.ListChanged {
			s = s.With(ToolsListChanged)
		}
	}
	if c := caps.Prompts; c != nil {
		s = s.With(Prompts)
		if c.ListChanged {
			s = s.With(PromptsListChanged)
		}
	}
	if caps.Logging != nil {
		s = s.With(Logging)
	}
	if c := caps.Roots; c != nil {
		s = s.With(Roots)
		if c.ListChanged {
			s = s.With(RootsListChanged)
		}
	}
	return s
}

// Negotiate computes the capabilities in force for a session. The server's
// declared set is advertised as-is; client capabilities describe what the
// client accepts in return and do not narrow it.
func Negotiate(declared Set, _ protocol.ClientCapabilities) Set {
	return declared
}

// Parse builds a set from dotted flag names such as "tools" or
// "resources.subscribe". "all" enables everything; "none" or an empty list
// yields the empty set.
func Parse(names ...string) (Set, error) {
	var s Set
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		switch name {
		case "":
			continue
		case "all":
			s = All()
			continue
		case "none":
			continue
		}
		f, ok := lookup(name)
		if !ok {
			return Set{}, fmt.Errorf("unknown capability %q", name)
		}
		s = s.With(f)
	}
	return s, nil
}

func lookup(name string) (Flag, bool) {
	for f, n := range flagNames {
		if strings.EqualFold(n, name) {
			return f, true
		}
	}
	return None, false
}
