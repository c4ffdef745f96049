package llm

import (
	"fmt"
	"slices"
	"sync"

	"chatstream/internal/domain"
)

// Registry holds named language models.
type Registry struct {
	mu     sync.RWMutex
	models map[string]domain.LanguageModel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]domain.LanguageModel),
	}
}

// Register adds a model under its Name. Returns error if the name is taken.
func (r *Registry) Register(model domain.LanguageModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := model.Name()
	if _, exists := r.models[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.models[name] = model
	return nil
}

// Get retrieves a model by name.
func (r *Registry) Get(name string) (domain.LanguageModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return m, nil
}

// List returns all registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
