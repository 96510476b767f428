// ABOUTME: Process-wide registries mapping ids to identities and agents.
// ABOUTME: Entries survive disconnects so a reconnect regains its id.

package relay

import (
	"errors"
)

// ErrMissingProfileID indicates a profile without a usable external id.
var ErrMissingProfileID = errors.New("profile has no id")

// IdentityRegistry is the process-wide store of identities, keyed by the
// externally issued identity id with a secondary credential lookup.
// Disconnects never remove entries; see Core.EvictIdle for the optional
// capacity policy.
type IdentityRegistry struct {
	core *Core
	byID map[string]*Identity
}

// Add constructs and stores a new identity from an external profile.
// A profile without an id is a hard error. Adding an id that already
// exists replaces the stored profile fields but keeps the entry.
func (r *IdentityRegistry) Add(profile Profile) (*Identity, error) {
	if profile.ID == "" {
		return nil, ErrMissingProfileID
	}

	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	ident, ok := r.byID[profile.ID]
	if !ok {
		ident = &Identity{ID: profile.ID, core: r.core}
		r.byID[profile.ID] = ident
	}
	ident.Name = profile.Name
	ident.Avatar = profile.Avatar
	ident.locale = profile.Locale
	ident.credential = profile.Credential
	return ident, nil
}

// Get returns the identity with the given id, or nil.
func (r *IdentityRegistry) Get(id string) *Identity {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()
	return r.byID[id]
}

// GetByCredential returns the identity holding the given opaque credential,
// or nil. This is a linear scan; fine at dashboard scale, and a secondary
// index is the fix if that ever changes.
func (r *IdentityRegistry) GetByCredential(credential string) *Identity {
	if credential == "" {
		return nil
	}
	r.core.mu.Lock()
	defer r.core.mu.Unlock()
	for _, ident := range r.byID {
		if ident.credential == credential {
			return ident
		}
	}
	return nil
}

// Len returns the number of registered identities.
func (r *IdentityRegistry) Len() int {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()
	return len(r.byID)
}

// get assumes core.mu is held.
func (r *IdentityRegistry) get(id string) *Identity {
	return r.byID[id]
}

// AgentRegistry is the process-wide store of agents keyed by agent id.
type AgentRegistry struct {
	core *Core
	byID map[string]*Agent
}

// Get returns the agent with the given id, or nil.
func (r *AgentRegistry) Get(id string) *Agent {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()
	return r.byID[id]
}

// Len returns the number of registered agents.
func (r *AgentRegistry) Len() int {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()
	return len(r.byID)
}

// ConnectedCount returns the number of agents holding a live channel.
func (r *AgentRegistry) ConnectedCount() int {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()
	n := 0
	for _, ag := range r.byID {
		if ag.conn != nil {
			n++
		}
	}
	return n
}

// BroadcastAll sends an envelope to every registered agent with a live
// channel. Best effort: delivery failures are logged, never retried, and
// no ordering holds across agents.
func (r *AgentRegistry) BroadcastAll(env Envelope) {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()
	r.broadcastAll(env)
}

// broadcastAll assumes core.mu is held.
func (r *AgentRegistry) broadcastAll(env Envelope) {
	for _, ag := range r.byID {
		ag.send(env)
	}
}

// get assumes core.mu is held.
func (r *AgentRegistry) get(id string) *Agent {
	return r.byID[id]
}
