package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ProviderFactory builds a provider for one upstream model. apiKey overrides
// the platform credential when the caller brings their own key; empty means
// use the platform key.
type ProviderFactory func(ctx context.Context, upstream, apiKey string) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(host string, f ProviderFactory) {
	host = strings.ToLower(strings.TrimSpace(host))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[host] = f
}

func (r *Registry) Get(ctx context.Context, host, upstream, apiKey string) (Provider, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	r.mu.RLock()
	f, ok := r.factories[host]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai host: %s", host)
	}
	return f(ctx, upstream, apiKey)
}

// RegistryTokenizer counts prompt tokens through the host's own provider,
// using the platform credential.
type RegistryTokenizer struct {
	Registry *Registry
}

func (t *RegistryTokenizer) CountTokens(ctx context.Context, model *Model, messages []Message) (int, error) {
	p, err := t.Registry.Get(ctx, model.Host, model.Upstream, "")
	if err != nil {
		return 0, err
	}
	return p.CountTokens(messages), nil
}
