package tools

import (
	"fmt"
	"sync"

	"github.com/ghostpirates/crew/pkg/models"
)

// Registry provides thread-safe storage and lookup of tool definitions.
// Definitions are immutable once registered except for the health flag.
type Registry struct {
	// defs maps tool IDs to definitions.
	defs map[string]*models.ToolDefinition
	// mu protects defs.
	mu sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*models.ToolDefinition)}
}

// Register adds a tool definition. Registering an existing ID is an error.
func (r *Registry) Register(def *models.ToolDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("tool definition missing ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.ID]; ok {
		return fmt.Errorf("tool %s already registered", def.ID)
	}
	r.defs[def.ID] = def
	return nil
}

// Get retrieves a tool definition by ID. Returns nil if not registered.
func (r *Registry) Get(id string) *models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defs[id]
}

// SetHealthy updates a tool's health flag, the only mutable field.
func (r *Registry) SetHealthy(id string, healthy bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.defs[id]
	if !ok {
		return fmt.Errorf("tool %s not registered", id)
	}
	def.Healthy = healthy
	return nil
}

// All returns a copy of all registered definitions.
func (r *Registry) All() []*models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.ToolDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
