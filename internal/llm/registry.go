package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/scoutbot/internal/config"
	"github.com/soyeahso/scoutbot/internal/logging"
)

// Profile is a selectable backend together with its windowing policy.
type Profile struct {
	Key     string
	Display string
	Backend Backend
	Window  int // non-system messages per request, 0 = full history
}

// Label returns the display name, falling back to the key.
func (p Profile) Label() string {
	if p.Display != "" {
		return p.Display
	}
	return p.Key
}

// Registry manages backend profiles and resolves keys and aliases to them.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile // backend key → profile
	aliases  map[string]string  // alias → backend key
	fallback string             // default backend key
	log      *logging.Logger
}

// NewRegistry creates an empty backend registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		profiles: make(map[string]Profile),
		aliases:  make(map[string]string),
		log:      log.Sub("llm.registry"),
	}
}

// Register adds a profile under its key.
func (r *Registry) Register(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Key] = p
	r.log.Info().Str("backend", p.Key).Int("window", p.Window).Msg("registered model backend")
}

// Alias maps an alternate name to a backend key.
func (r *Registry) Alias(alias, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = key
}

// SetFallback sets the default backend used when no key or alias matches.
func (r *Registry) SetFallback(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = key
}

// Fallback returns the default backend key.
func (r *Registry) Fallback() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Get returns the profile registered under exactly key.
func (r *Registry) Get(key string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[key]
	return p, ok
}

// Resolve returns the profile for the given key.
// Resolution order: exact key → alias → fallback.
func (r *Registry) Resolve(key string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.profiles[key]; ok {
		return p, nil
	}
	if target, ok := r.aliases[key]; ok {
		if p, ok := r.profiles[target]; ok {
			return p, nil
		}
	}
	if r.fallback != "" {
		if p, ok := r.profiles[r.fallback]; ok {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("no model backend for %q", key)
}

// List returns all profiles sorted by key.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// NewBackend constructs the provider backend for one config entry.
func NewBackend(ctx context.Context, name string, bc config.BackendConfig, log *logging.Logger) (Backend, error) {
	opts := BackendOptions{
		Name:        name,
		Model:       bc.Model,
		BaseURL:     bc.BaseURL,
		APIKey:      bc.APIKey,
		MaxTokens:   bc.MaxTokens,
		Temperature: bc.Temperature,
	}
	switch bc.Provider {
	case "openai":
		return NewOpenAIBackend(opts, log)
	case "anthropic":
		return NewAnthropicBackend(opts, log)
	case "gemini":
		return NewGeminiBackend(ctx, opts, log)
	case "ollama":
		return NewOllamaBackend(opts, log), nil
	default:
		return nil, fmt.Errorf("%s: unknown provider %q", name, bc.Provider)
	}
}

// NewRegistryFromConfig builds a Registry with one Guard-wrapped backend per
// configured entry. Entries that cannot be built (usually a missing API key)
// are skipped with a warning.
func NewRegistryFromConfig(ctx context.Context, cfg config.ModelsConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)
	retry := RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
	}

	names := make([]string, 0, len(cfg.Backends))
	for name := range cfg.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		bc := cfg.Backends[name]
		backend, err := NewBackend(ctx, name, bc, log)
		if err != nil {
			reg.log.Warn().Str("backend", name).Err(err).Msg("skipping model backend")
			continue
		}
		guard := NewGuard(backend, NewLimiter(bc.RequestsPerMinute, bc.Burst), retry, log)
		reg.Register(Profile{Key: name, Display: bc.Display, Backend: guard, Window: bc.Window})
		for _, alias := range bc.Aliases {
			reg.Alias(alias, name)
		}
	}

	if _, ok := reg.Get(cfg.Default); ok {
		reg.SetFallback(cfg.Default)
	} else if list := reg.List(); len(list) > 0 {
		reg.log.Warn().Str("default", cfg.Default).Str("using", list[0].Key).Msg("default backend unavailable")
		reg.SetFallback(list[0].Key)
	}
	return reg
}
