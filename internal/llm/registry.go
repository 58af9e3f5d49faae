package llm

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/logging"
)

// Registry maps binding names, and the models served by them, to clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	models  map[string]string // model -> binding
	def     string
	log     *logging.Logger
}

func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: map[string]Client{},
		models:  map[string]string{},
		log:     log.Sub("llm"),
	}
}

// Register adds client under binding and makes it the default when it is
// the first one. Models listed are resolved to the binding as well.
func (r *Registry) Register(binding string, client Client, models ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[binding] = client
	for _, m := range models {
		if m != "" {
			r.models[m] = binding
		}
	}
	if r.def == "" {
		r.def = binding
	}
	r.log.Info().Str("binding", binding).Strs("models", models).Msg("generation backend registered")
}

// Resolve finds the client for a binding or model name. Unknown names
// resolve to the default binding, if any.
func (r *Registry) Resolve(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[name]; ok {
		return c, nil
	}
	binding, ok := r.models[name]
	if !ok {
		binding = r.def
	}
	if c, ok := r.clients[binding]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("no generation backend for %q", name)
}

// List returns the registered binding names in order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.clients))
}

// NewRegistryFromConfig registers the configured binding. With binding
// "none" the registry stays empty and personalities are served untranslated.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	switch binding := strings.ToLower(strings.TrimSpace(cfg.Binding)); binding {
	case "ollama":
		client := NewOllamaClient(cfg.Endpoint, cfg.Model,
			WithAPIKey(cfg.APIKey),
			WithTimeout(time.Duration(cfg.TimeoutSec)*time.Second))
		reg.Register(binding, client, cfg.Model)
	case "", "none":
	default:
		reg.log.Warn().Str("binding", cfg.Binding).Msg("unknown generation binding, translation disabled")
	}
	return reg
}
