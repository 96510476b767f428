// ABOUTME: Core wires the identity and agent registries into one relay.
// ABOUTME: Owns the single serialization domain guarding all relay state.

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GuildPermissionThreshold is the minimum permission bitmask an identity
// must hold in a guild for that guild to count as mutual. Guilds below the
// threshold are filtered out of getMutualGuilds responses.
const GuildPermissionThreshold int64 = 1275593889

// Profile is the external identity profile resolved from a credential.
type Profile struct {
	ID         string
	Name       string
	Avatar     string
	Locale     string
	Credential string
}

// Group is one external group (guild) membership of an identity.
// The JSON shape matches what the dashboard frontend renders.
type Group struct {
	Name        string `json:"name"`
	Icon        string `json:"avatar,omitempty"`
	Banner      string `json:"banner,omitempty"`
	ID          string `json:"-"`
	Permissions int64  `json:"-"`
}

// ProfileProvider is the external auth/profile collaborator. The relay
// never sees how credentials are issued; it only resolves them.
type ProfileProvider interface {
	FetchProfile(ctx context.Context, credential string) (Profile, error)
	FetchGroupMemberships(ctx context.Context, credential string) ([]Group, error)
}

// Options configures a Core.
type Options struct {
	Logger   *slog.Logger
	Provider ProfileProvider
}

// Core is the process-wide relay: it owns both registries and the mutex
// that serializes every mutation of relay state. Construct one per process
// and pass it by reference to every connection handler.
//
// Locking discipline: exported methods and the per-connection dispatch
// paths acquire mu; lowercase methods on Identity, Agent and Session assume
// it is held. The only blocking operations (channel reads, provider
// fetches) run outside the lock.
type Core struct {
	mu         sync.Mutex
	identities *IdentityRegistry
	agents     *AgentRegistry
	provider   ProfileProvider
	logger     *slog.Logger
	serverID   string
}

// New creates a relay Core.
func New(opts Options) *Core {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Core{
		provider: opts.Provider,
		logger:   logger.With("component", "relay"),
		serverID: fmt.Sprintf("relay-%s", uuid.NewString()[:8]),
	}
	c.identities = &IdentityRegistry{core: c, byID: make(map[string]*Identity)}
	c.agents = &AgentRegistry{core: c, byID: make(map[string]*Agent)}
	return c
}

// Identities returns the identity registry.
func (c *Core) Identities() *IdentityRegistry { return c.identities }

// Agents returns the agent registry.
func (c *Core) Agents() *AgentRegistry { return c.agents }

// ServerID identifies this relay instance in logs.
func (c *Core) ServerID() string { return c.serverID }

// EvictIdle removes identities and agents that have been disconnected for
// longer than the given window. Connected entries, current session members
// and entries that never held a channel are left alone. Returns the number
// of evicted identities and agents.
func (c *Core) EvictIdle(window time.Duration) (identities, agents int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-window)
	for id, ident := range c.identities.byID {
		// Agent ops can place a disconnected identity in a session;
		// deleting the entry would strand the membership.
		if ident.sessionID != "" {
			continue
		}
		if ident.conn == nil && !ident.lastSeen.IsZero() && ident.lastSeen.Before(cutoff) {
			delete(c.identities.byID, id)
			identities++
		}
	}
	for id, ag := range c.agents.byID {
		if ag.conn == nil && !ag.lastSeen.IsZero() && ag.lastSeen.Before(cutoff) {
			delete(c.agents.byID, id)
			agents++
		}
	}
	if identities > 0 || agents > 0 {
		c.logger.Info("evicted idle registry entries",
			"identities", identities,
			"agents", agents,
			"window", window,
		)
	}
	return identities, agents
}

// DisconnectAll tears down every live channel. Used on shutdown so that
// blocked receive loops unwind promptly. Registry entries survive.
func (c *Core) DisconnectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ident := range c.identities.byID {
		ident.disconnect(ReasonClosed)
	}
	for _, ag := range c.agents.byID {
		ag.disconnect(ReasonClosed)
	}
}
