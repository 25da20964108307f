package capability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

func TestSubFlagImpliesGroup(t *testing.T) {
	s := New(ResourcesSubscribe, ToolsListChanged)

	assert.True(t, s.Has(Resources))
	assert.True(t, s.Has(ResourcesSubscribe))
	assert.False(t, s.Has(ResourcesListChanged))
	assert.True(t, s.Has(Tools))
	assert.False(t, s.Has(Prompts))
	assert.True(t, s.Has(None))
}

func TestSetIsImmutable(t *testing.T) {
	base := New(Tools)
	extended := base.With(Prompts)

	assert.False(t, base.Has(Prompts))
	assert.True(t, extended.Has(Prompts))
}

func TestWire(t *testing.T) {
	s := New(Resources, ResourcesSubscribe, Tools, Logging, RootsListChanged)

	data, err := json.Marshal(s.Wire())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"resources": {"subscribe": true},
		"tools": {},
		"logging": {},
		"roots": {"listChanged": true}
	}`, string(data))
}

func TestFromWireRoundTrip(t *testing.T) {
	for _, s := range []Set{New(), New(Tools), All(), New(PromptsListChanged, Logging)} {
		assert.Equal(t, s, FromWire(s.Wire()), s.String())
	}
}

func TestNegotiateAdvertisesDeclared(t *testing.T) {
	declared := New(Resources, Tools)
	client := protocol.ClientCapabilities{Roots: &protocol.RootsCapability{ListChanged: true}}

	assert.Equal(t, declared, Negotiate(declared, client))
	assert.Equal(t, declared, Negotiate(declared, protocol.ClientCapabilities{}))
}

func TestFlags(t *testing.T) {
	assert.Equal(t, []string{"resources", "resources.subscribe"}, New(ResourcesSubscribe).Flags())
	assert.Equal(t, "{}", New().String())
	assert.Equal(t, "tools.listChanged", ToolsListChanged.String())
	assert.Equal(t, "none", None.String())
}

func TestParse(t *testing.T) {
	s, err := Parse("tools", " resources.subscribe ", "Logging")
	require.NoError(t, err)
	assert.Equal(t, New(Tools, ResourcesSubscribe, Logging), s)

	s, err = Parse("all")
	require.NoError(t, err)
	assert.Equal(t, All(), s)

	s, err = Parse("none", "")
	require.NoError(t, err)
	assert.Equal(t, New(), s)

	_, err = Parse("sampling")
	assert.Error(t, err)
}
