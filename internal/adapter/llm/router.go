package llm

import (
	"fmt"

	"chatstream/internal/domain"
)

// PreferenceRouter maps preference labels (e.g. "fast", "cheap") to models
// in a Registry.
type PreferenceRouter struct {
	mapping  map[string]string // preference → provider name
	registry *Registry
	fallback domain.LanguageModel
}

// NewPreferenceRouter creates a router from a mapping and a registry.
// The fallback is used for empty, "default" and unknown preferences.
func NewPreferenceRouter(mapping map[string]string, registry *Registry, fallback domain.LanguageModel) *PreferenceRouter {
	return &PreferenceRouter{
		mapping:  mapping,
		registry: registry,
		fallback: fallback,
	}
}

// Route resolves a preference label to a model.
func (r *PreferenceRouter) Route(preference string) (domain.LanguageModel, error) {
	name, ok := r.mapping[preference]
	if preference == "" || preference == "default" || !ok || name == "" || name == "default" {
		if r.fallback != nil {
			return r.fallback, nil
		}
		return nil, domain.NewDomainError("PreferenceRouter.Route", domain.ErrProviderNotFound,
			fmt.Sprintf("no fallback for preference %q", preference))
	}

	m, err := r.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("preference %q: %w", preference, err)
	}
	return m, nil
}
