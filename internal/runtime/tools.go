package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ExecContext carries per-invocation state into a tool.
type ExecContext struct {
	// WorkDir is the project directory the session serves. Tools resolve
	// relative paths against it and must not escape it.
	WorkDir string

	// Approved reports whether the invocation is cleared to run, either
	// by explicit caller approval or by yolo mode.
	Approved bool
}

// Result is a successful tool outcome.
type Result struct {
	// Content is the text handed back to the model.
	Content string
}

// Tool is one function the model may invoke.
type Tool interface {
	Name() string
	Description() string

	// Parameters returns the JSON schema of the tool's arguments.
	Parameters() json.RawMessage

	Execute(ctx context.Context, args map[string]any, ec ExecContext) (*Result, error)
}

// Registry holds the tools offered to a conversation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry preloaded with the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Resolve looks a tool up by name.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return t, nil
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
