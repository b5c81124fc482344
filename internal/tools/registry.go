package tools

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the catalog of tools, resolving name -> executor. Immutable
// for the session once populated.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t, failing if its name is already taken.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// MustRegister registers t, panicking on a name collision. Used at
// process init for the built-in tool set.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get resolves name to its Tool, the pipeline's first "resolve" stage.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns every registered tool name sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry wires the built-in tool set against workspaceRoot,
// mirroring tools/registry.go's DefaultRegistry.
func DefaultRegistry(workspaceRoot string) *Registry {
	r := NewRegistry()
	r.MustRegister(NewReadFileTool())
	r.MustRegister(NewWriteFileTool())
	r.MustRegister(NewEditFileTool())
	r.MustRegister(NewListDirTool())
	r.MustRegister(NewGlobTool())
	r.MustRegister(NewGrepTool())
	r.MustRegister(NewRunCommandTool())
	return r
}
