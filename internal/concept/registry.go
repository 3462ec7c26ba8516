package concept

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps concept names to concepts.
//
// The composition root builds it once at startup; after that it is only
// read. Reads are safe from any goroutine.
type Registry struct {
	mu       sync.RWMutex
	concepts map[string]Concept
}

// NewRegistry creates an empty registry, optionally pre-populated.
func NewRegistry(concepts ...Concept) *Registry {
	r := &Registry{concepts: make(map[string]Concept)}
	for _, c := range concepts {
		r.Register(c)
	}
	return r
}

// Register adds c under its own name. Registering a name twice replaces
// the earlier concept.
func (r *Registry) Register(c Concept) {
	r.RegisterAs(c.Name(), c)
}

// RegisterAs adds c under name, replacing any earlier entry.
func (r *Registry) RegisterAs(name string, c Concept) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.concepts[name] = c
}

// Get returns the concept registered under name.
func (r *Registry) Get(name string) (Concept, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.concepts[name]
	return c, ok
}

// Lookup resolves concept and action to a handler. The returned error
// wraps ErrConceptNotFound or ErrActionNotFound.
func (r *Registry) Lookup(conceptName, action string) (Handler, error) {
	c, ok := r.Get(conceptName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConceptNotFound, conceptName)
	}
	h, ok := c.Action(action)
	if !ok || h == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrActionNotFound, conceptName, action)
	}
	return h, nil
}

// Names returns all registered concept names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.concepts))
	for n := range r.concepts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ActionRefs returns every registered "Concept.action", sorted.
func (r *Registry) ActionRefs() []string {
	var refs []string
	for _, name := range r.Names() {
		c, _ := r.Get(name)
		for _, a := range c.Actions() {
			refs = append(refs, name+"."+a)
		}
	}
	sort.Strings(refs)
	return refs
}
