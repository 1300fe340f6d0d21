package verdict

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Capability is an external reasoning backend invoked during escalation.
// Implementations must honor ctx cancellation; the controller treats any
// error, panic, or malformed result as a failed attempt.
type Capability interface {
	ID() string
	Invoke(ctx context.Context, prompt string, params InvokeParams) (CapabilityResult, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc struct {
	Name string
	Fn   func(ctx context.Context, prompt string, params InvokeParams) (CapabilityResult, error)
}

// ID returns the capability id.
func (f CapabilityFunc) ID() string { return f.Name }

// Invoke calls Fn.
func (f CapabilityFunc) Invoke(ctx context.Context, prompt string, params InvokeParams) (CapabilityResult, error) {
	return f.Fn(ctx, prompt, params)
}

// Registry holds capability configuration in declared order and the
// implementations bound to it. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []CapabilityConfig
	impls   map[string]Capability
}

// NewRegistry creates a registry from configuration entries.
// Returns *ValidationError for duplicate ids, bad ranges, or unknown fallbacks.
func NewRegistry(entries ...CapabilityConfig) (*Registry, error) {
	if err := validateRegistry(entries); err != nil {
		return nil, err
	}
	r := &Registry{
		entries: make([]CapabilityConfig, len(entries)),
		impls:   make(map[string]Capability),
	}
	for i, e := range entries {
		r.entries[i] = normalizeEntry(e)
	}
	return r, nil
}

func normalizeEntry(e CapabilityConfig) CapabilityConfig {
	if e.Tier == "" {
		e.Tier = TierSimple
	}
	e.Fallbacks = append([]string(nil), e.Fallbacks...)
	return e
}

// Register adds or replaces a capability entry and binds its implementation.
// impl may be nil to register configuration only.
func (r *Registry) Register(cfg CapabilityConfig, impl Capability) error {
	if cfg.ID == "" {
		return &ValidationError{Field: "Capability.ID", Message: "required"}
	}
	if !inUnitRange(cfg.MinConfidence) {
		return &ValidationError{Field: "Capability.MinConfidence", Message: "must be between 0 and 1"}
	}
	if cfg.Tier != "" && !cfg.Tier.IsValid() {
		return &ValidationError{Field: "Capability.Tier", Message: fmt.Sprintf("unknown tier %q", cfg.Tier)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cfg = normalizeEntry(cfg)
	replaced := false
	for i := range r.entries {
		if r.entries[i].ID == cfg.ID {
			r.entries[i] = cfg
			replaced = true
			break
		}
	}
	if !replaced {
		r.entries = append(r.entries, cfg)
	}
	if impl != nil {
		r.impls[cfg.ID] = impl
	}
	return nil
}

// Bind attaches an implementation to a registered capability.
// Returns ErrUnknownCapability if id is not registered.
func (r *Registry) Bind(id string, impl Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(id) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, id)
	}
	r.impls[id] = impl
	return nil
}

// Entries returns a copy of the registry entries in declared order.
func (r *Registry) Entries() []CapabilityConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CapabilityConfig, len(r.entries))
	for i, e := range r.entries {
		out[i] = normalizeEntry(e)
	}
	return out
}

// IDs returns capability ids in declared order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID
	}
	return ids
}

// Get returns the configuration for id.
func (r *Registry) Get(id string) (CapabilityConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(id)
	if i < 0 {
		return CapabilityConfig{}, false
	}
	return normalizeEntry(r.entries[i]), true
}

// Capability returns the implementation bound to id.
func (r *Registry) Capability(id string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.impls[id]
	return c, ok
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) indexOf(id string) int {
	for i, e := range r.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// registryFile is the YAML layout accepted by LoadRegistry.
type registryFile struct {
	Capabilities []CapabilityConfig `yaml:"capabilities"`
}

// LoadRegistry reads capability entries from a YAML file:
//
//	capabilities:
//	  - id: basic
//	    min_confidence: 0
//	    tier: simple
//	  - id: search
//	    min_confidence: 0.2
//	    tier: complex
//	    fallbacks: [basic]
//	    endpoint: http://localhost:8081/invoke
func LoadRegistry(path string) ([]CapabilityConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes capability entries from YAML and validates them.
func ParseRegistry(data []byte) ([]CapabilityConfig, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if err := validateRegistry(f.Capabilities); err != nil {
		return nil, err
	}
	return f.Capabilities, nil
}
