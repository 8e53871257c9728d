// Package tool defines the contract every callable tool satisfies and the
// registry the orchestration loop executes calls through.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ErrUnknownTool is returned when a call names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is a callable capability advertised to the backend.
type Tool interface {
	// Definition returns the name, description and input schema.
	Definition() mcptypes.Tool
	// Execute runs the tool. The returned payload is serialized into the
	// conversation.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Func adapts a plain function to Tool.
type Func struct {
	Def mcptypes.Tool
	Fn  func(ctx context.Context, args map[string]any) (any, error)
}

func (f Func) Definition() mcptypes.Tool { return f.Def }

func (f Func) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f.Fn(ctx, args)
}

// Registry holds the tools available to a session.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tools. A name may only be registered once.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		name := t.Definition().Name
		if name == "" {
			return errors.New("tool has no name")
		}
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("tool %s already registered", name)
		}
		r.tools[name] = t
	}
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns all tool definitions sorted by name.
func (r *Registry) Definitions() []mcptypes.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]mcptypes.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Select returns the registered definitions among names, in the given
// order. Unknown and repeated names are skipped.
func (r *Registry) Select(names []string) []mcptypes.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(names))
	var defs []mcptypes.Tool
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		defs = append(defs, t.Definition())
	}
	return defs
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Execute(ctx, args)
}
