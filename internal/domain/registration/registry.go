package registration

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Registry maps client identifiers to policies. It is never mutated after NewRegistry.
type Registry struct {
	policies map[string]*Policy
}

// NewRegistry indexes the given policies by client id.
func NewRegistry(policies ...*Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]*Policy, len(policies))}
	for _, p := range policies {
		if p == nil {
			return nil, fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
		}
		if _, dup := r.policies[p.clientID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClient, p.clientID)
		}
		r.policies[p.clientID] = p
	}
	return r, nil
}

// Lookup returns the policy registered for clientID.
func (r *Registry) Lookup(clientID string) (*Policy, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.policies[clientID]
	return p, ok
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.policies)
}

// ClientIDs returns the registered client identifiers, sorted.
func (r *Registry) ClientIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Holder publishes the current Registry. Readers never block; Swap replaces the whole registry.
type Holder struct {
	current atomic.Pointer[Registry]
}

// NewHolder returns a Holder serving r.
func NewHolder(r *Registry) *Holder {
	h := &Holder{}
	h.Swap(r)
	return h
}

// Load returns the registry currently in effect.
func (h *Holder) Load() *Registry {
	return h.current.Load()
}

// Lookup resolves clientID against the current registry.
func (h *Holder) Lookup(clientID string) (*Policy, bool) {
	return h.Load().Lookup(clientID)
}

// Swap installs r and returns the registry it replaced.
func (h *Holder) Swap(r *Registry) *Registry {
	if r == nil {
		r = &Registry{policies: map[string]*Policy{}}
	}
	return h.current.Swap(r)
}
