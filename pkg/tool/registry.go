package tool

import (
	"sort"
	"sync"

	"github.com/omniforge-ai/omniforge/pkg/registry"
)

// Registry is a thread-safe, insertion-order-preserving name→Tool map.
type Registry struct {
	tools *registry.OrderedRegistry[Tool]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: registry.NewOrderedRegistry[Tool](),
	}
}

// Register adds a tool. Registering a duplicate name fails unless replace is
// set.
func (r *Registry) Register(t Tool, replace bool) error {
	name := t.Definition().Name
	if replace {
		r.tools.Replace(name, t)
		return nil
	}
	if err := r.tools.Register(name, t); err != nil {
		return NewAlreadyRegisteredError(name)
	}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) error {
	if err := r.tools.Remove(name); err != nil {
		return NewNotFoundError(name)
	}
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools.Get(name)
	if !ok {
		return nil, NewNotFoundError(name)
	}
	return t, nil
}

// GetDefinition returns the named tool's schema.
func (r *Registry) GetDefinition(name string) (Definition, error) {
	t, ok := r.tools.Get(name)
	if !ok {
		return Definition{}, NewNotFoundError(name)
	}
	return t.Definition(), nil
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools.Get(name)
	return ok
}

// List returns sorted tool names, optionally filtered by type.
func (r *Registry) List(types ...Type) []string {
	names := make([]string, 0, r.tools.Count())
	for _, t := range r.tools.List() {
		def := t.Definition()
		if len(types) > 0 && !containsType(types, def.Type) {
			continue
		}
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all tool schemas in registration order.
func (r *Registry) Definitions() []Definition {
	tools := r.tools.List()
	defs := make([]Definition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	return r.tools.Count()
}

// Clear removes all tools.
func (r *Registry) Clear() {
	r.tools.Clear()
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry. It is initialized on first
// access and never torn down; tests should construct private registries.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}
