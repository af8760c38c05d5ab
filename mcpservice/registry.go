package mcpservice

import (
	"errors"
	"fmt"

	"github.com/ggoodman/shiprocket-mcp-go/mcp"
)

// ErrDuplicateTool is returned when two descriptors share a name.
var ErrDuplicateTool = errors.New("mcpservice: duplicate tool name")

// ToolRegistry is the fixed set of tools served by a process. It is built once
// and never mutated, so concurrent readers need no locking.
type ToolRegistry struct {
	tools map[string]*ToolDescriptor
	order []string
}

// NewToolRegistry registers every descriptor, preserving the given order for
// listings.
func NewToolRegistry(tools ...ToolDescriptor) (*ToolRegistry, error) {
	r := &ToolRegistry{tools: make(map[string]*ToolDescriptor, len(tools))}
	for i := range tools {
		t := tools[i]
		if t.Name == "" || t.Handler == nil || t.Schema == nil {
			return nil, fmt.Errorf("mcpservice: incomplete tool descriptor at index %d", i)
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
		}
		r.tools[t.Name] = &t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// Lookup returns the descriptor registered under name.
func (r *ToolRegistry) Lookup(name string) (*ToolDescriptor, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns the tools/list view of the registry.
func (r *ToolRegistry) List() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema.JSON(),
		})
	}
	return out
}
