// Model routing - maps a model identifier to the provider that hosts it.
//
// Information Hiding:
// - Provider search order
// - Fallback policy for unclaimed models

package llm

import (
	"fmt"
	"slices"
	"sort"
)

// ProviderConfig is one provider entry of the routing table.
type ProviderConfig struct {
	BaseURL  string
	APIKey   string
	Protocol Protocol

	// Local marks self-hosted backends (Ollama, LM Studio) that may not be
	// reachable for every user.
	Local bool

	// StripOptions drops all sampling options before sending; the
	// provider rejects them.
	StripOptions bool

	// Models lists the model identifiers this provider claims, in
	// configuration order.
	Models []string
}

// RoutingTable maps provider names to their endpoint, credential and
// claimed models. It is treated as immutable once built; callers swap a
// whole table rather than mutating one in place.
type RoutingTable struct {
	Providers map[string]ProviderConfig

	// Fallback names the provider used for models no provider claims.
	// Empty disables the fallback and makes such models an error.
	Fallback string
}

// Route is the result of resolving a model.
type Route struct {
	Provider string
	Config   ProviderConfig

	// Fallback is true when no provider claimed the model and the
	// fallback provider was substituted.
	Fallback bool
}

// ProviderNames returns provider names in search order.
func (rt RoutingTable) ProviderNames() []string {
	names := make([]string, 0, len(rt.Providers))
	for name := range rt.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Owner returns the first provider, in search order, claiming model.
func (rt RoutingTable) Owner(model string) (string, bool) {
	for _, name := range rt.ProviderNames() {
		if slices.Contains(rt.Providers[name].Models, model) {
			return name, true
		}
	}
	return "", false
}

// Resolve maps a model to its provider. The search is linear over the
// providers in name order and the first claim wins, so the result is
// deterministic for a fixed table.
func (rt RoutingTable) Resolve(model string) (Route, error) {
	if name, ok := rt.Owner(model); ok {
		return Route{Provider: name, Config: rt.Providers[name]}, nil
	}
	if rt.Fallback != "" {
		if cfg, ok := rt.Providers[rt.Fallback]; ok {
			return Route{Provider: rt.Fallback, Config: cfg, Fallback: true}, nil
		}
	}
	return Route{}, fmt.Errorf("%w: %s", ErrUnresolvedModel, model)
}

// Models returns every claimed model, sorted and de-duplicated.
func (rt RoutingTable) Models() []string {
	var models []string
	for _, cfg := range rt.Providers {
		models = append(models, cfg.Models...)
	}
	sort.Strings(models)
	return slices.Compact(models)
}

// IsLocal reports whether model is claimed by a local provider.
func (rt RoutingTable) IsLocal(model string) bool {
	name, ok := rt.Owner(model)
	return ok && rt.Providers[name].Local
}

// Clone returns a deep copy of the table.
func (rt RoutingTable) Clone() RoutingTable {
	out := RoutingTable{Fallback: rt.Fallback, Providers: make(map[string]ProviderConfig, len(rt.Providers))}
	for name, cfg := range rt.Providers {
		cfg.Models = slices.Clone(cfg.Models)
		out.Providers[name] = cfg
	}
	return out
}
