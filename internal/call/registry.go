package call

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownType is returned when a spec names a type no block registered.
var ErrUnknownType = errors.New("unknown call type")

// Factory builds a call from its configuration mapping.
type Factory func(config map[string]any) (Call, error)

// Block is a plugin that contributes call types to a registry.
type Block interface {
	Name() string
	Register(r *Registry)
}

// Registry maps call type tags to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	owners    map[string]string
}

// NewRegistry creates a registry and lets each block register its types.
func NewRegistry(blocks ...Block) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		owners:    make(map[string]string),
	}
	for _, b := range blocks {
		r.registerBlock(b)
	}
	return r
}

func (r *Registry) registerBlock(b Block) {
	before := r.Types()
	b.Register(r)
	r.mu.Lock()
	defer r.mu.Unlock()
	for typ := range r.factories {
		if _, ok := r.owners[typ]; ok {
			continue
		}
		if !containsString(before, typ) {
			r.owners[typ] = b.Name()
		}
	}
}

// Register adds a factory for typ. Registering the same type twice panics,
// as it means two blocks claim one tag.
func (r *Registry) Register(typ string, f Factory) {
	if typ == "" {
		panic("call: Register with empty type")
	}
	if f == nil {
		panic("call: Register factory is nil for " + typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[typ]; dup {
		panic("call: Register called twice for " + typ)
	}
	r.factories[typ] = f
}

// New constructs a fresh call for spec.
func (r *Registry) New(spec Spec) (Call, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownType, spec.Type, strings.Join(r.Types(), ", "))
	}

	cfg := spec.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	c, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure %s: %w", spec.Type, err)
	}
	return c, nil
}

// Has reports whether typ is registered.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typ]
	return ok
}

// Owner returns the name of the block that registered typ, if known.
func (r *Registry) Owner(typ string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owners[typ]
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for typ := range r.factories {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
