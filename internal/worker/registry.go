package worker

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"time"

	"github.com/Iron-Ham/genbridge/internal/config"
)

// Provider is a registered executor together with its request deadline.
type Provider struct {
	Name     string
	Executor Executor
	// Timeout bounds one execution (0 = none).
	Timeout time.Duration
}

// Registry maps provider identifiers to executors. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	providers       map[string]Provider
	defaultProvider string
}

// NewRegistry creates a registry from providers. defaultProvider must be one
// of them.
func NewRegistry(defaultProvider string, providers ...Provider) (*Registry, error) {
	r := &Registry{
		providers:       make(map[string]Provider, len(providers)),
		defaultProvider: defaultProvider,
	}
	for _, p := range providers {
		if p.Name == "" {
			return nil, fmt.Errorf("provider name is required")
		}
		if p.Executor == nil {
			return nil, fmt.Errorf("provider %q has no executor", p.Name)
		}
		if _, dup := r.providers[p.Name]; dup {
			return nil, fmt.Errorf("provider %q registered twice", p.Name)
		}
		r.providers[p.Name] = p
	}
	if _, ok := r.providers[defaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q is not registered", defaultProvider)
	}
	return r, nil
}

// NewRegistryFromConfig builds one executor per configured provider.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config) (*Registry, error) {
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, name := range cfg.ProviderNames() {
		pc := cfg.Providers[name]
		exec, err := newExecutor(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		providers = append(providers, Provider{Name: name, Executor: exec, Timeout: pc.Timeout})
	}
	return NewRegistry(cfg.DefaultProvider, providers...)
}

func newExecutor(ctx context.Context, pc config.ProviderConfig) (Executor, error) {
	switch pc.Executor {
	case config.ExecutorSubprocess, "":
		return NewSubprocess(pc.Subprocess)
	case config.ExecutorLambda:
		return NewLambdaFromConfig(ctx, pc.Lambda)
	case config.ExecutorOpenAI:
		client := &http.Client{}
		if pc.Timeout > 0 {
			client.Timeout = pc.Timeout
		}
		return NewOpenAI(pc.OpenAI, client), nil
	default:
		return nil, fmt.Errorf("unknown executor %q (valid: %v)", pc.Executor, config.ValidExecutors())
	}
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Has reports whether name is a registered provider.
func (r *Registry) Has(name string) bool {
	_, ok := r.providers[name]
	return ok
}

// Default returns the provider used when a request names none.
func (r *Registry) Default() string {
	return r.defaultProvider
}

// Names returns the registered provider ids in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxTimeout returns the longest provider timeout, or 0 if any provider is
// unbounded.
func (r *Registry) MaxTimeout() time.Duration {
	timeouts := make([]time.Duration, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Timeout == 0 {
			return 0
		}
		timeouts = append(timeouts, p.Timeout)
	}
	if len(timeouts) == 0 {
		return 0
	}
	return slices.Max(timeouts)
}
