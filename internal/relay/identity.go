// ABOUTME: Identity lifecycle and the per-identity half of the relay router.
// ABOUTME: Runs one receive loop per connected identity and dispatches by op.

package relay

import (
	"context"
	"time"

	"github.com/samber/lo"
)

const guildFetchErrorMsg = "Failed to retrieve guild information. Please try again later!"

// Identity is one connected (or pending) end-user. It owns at most one
// channel and references at most one agent and one session.
//
// Back-references are stored as ids and resolved through the registries so
// that teardown of one side never leaves a dangling reference.
type Identity struct {
	ID     string
	Name   string
	Avatar string

	core       *Core
	credential string
	locale     string

	agentID   string
	sessionID string
	conn      Conn
	lastSeen  time.Time
}

// Connected reports whether the identity currently holds a live channel.
func (i *Identity) Connected() bool {
	i.core.mu.Lock()
	defer i.core.mu.Unlock()
	return i.conn != nil
}

// Locale returns the identity's display locale.
func (i *Identity) Locale() string {
	i.core.mu.Lock()
	defer i.core.mu.Unlock()
	return i.locale
}

// SetLocale updates the identity's display locale. Not relay-correctness;
// the frontend reads it when rendering.
func (i *Identity) SetLocale(locale string) {
	i.core.mu.Lock()
	defer i.core.mu.Unlock()
	i.locale = locale
}

// Send delivers an envelope on the identity's own channel. Messages to a
// disconnected identity are dropped silently; there is no buffering.
func (i *Identity) Send(env Envelope) {
	i.core.mu.Lock()
	defer i.core.mu.Unlock()
	i.send(env)
}

// Disconnect tears down the identity's channel and downstream relations.
// Idempotent; the registry entry survives.
func (i *Identity) Disconnect() {
	i.core.mu.Lock()
	defer i.core.mu.Unlock()
	i.disconnect(ReasonClosed)
}

// ConnectIdentity attaches a channel to the identity, superseding any live
// one, and runs the receive loop until the channel fails or closes. Cleanup
// runs exactly once, whether the loop ends by error, close or supersession.
func (c *Core) ConnectIdentity(ctx context.Context, ident *Identity, conn Conn) error {
	c.mu.Lock()
	ident.disconnect(ReasonReplaced)
	ident.conn = conn
	c.mu.Unlock()

	c.logger.Info("identity connected", "identity_id", ident.ID, "name", ident.Name)

	defer func() {
		c.mu.Lock()
		// Only tear down if this loop still owns the channel; a
		// superseding connection has already detached it otherwise.
		if ident.conn == conn {
			ident.disconnect(ReasonClosed)
		}
		c.mu.Unlock()
		c.logger.Info("identity disconnected", "identity_id", ident.ID, "name", ident.Name)
	}()

	for {
		c.mu.Lock()
		if ident.conn != conn {
			c.mu.Unlock()
			return nil
		}
		if ident.agentID == "" {
			// Unassigned: let any agent claim this identity.
			c.agents.broadcastAll(Envelope{FieldOp: OpInitBot, FieldUserID: ident.ID})
		}
		c.mu.Unlock()

		data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("identity channel closed", "identity_id", ident.ID, "error", err)
			return nil
		}

		env, err := ParseEnvelope(data)
		if err != nil {
			c.logger.Warn("dropping malformed identity frame", "identity_id", ident.ID, "error", err)
			continue
		}
		c.dispatchIdentity(ctx, ident, env)
	}
}

// dispatchIdentity applies the per-identity routing rules to one inbound
// envelope. Provider calls happen before the core lock is taken.
func (c *Core) dispatchIdentity(ctx context.Context, ident *Identity, env Envelope) {
	switch env.Op() {
	case OpHeartbeat:
		// Application-level keepalive, deliberately ignored.
		return

	case OpUpdateSelectedBot:
		c.mu.Lock()
		defer c.mu.Unlock()
		target := c.agents.get(env.StringField(FieldBotID))
		if target == nil {
			ident.send(Envelope{FieldOp: OpBotNotFound})
			return
		}
		ident.assignAgent(target)

	case OpGetMutualGuilds:
		groups, err := c.provider.FetchGroupMemberships(ctx, ident.credential)
		if err != nil {
			c.logger.Warn("guild membership fetch failed", "identity_id", ident.ID, "error", err)
			c.mu.Lock()
			defer c.mu.Unlock()
			ident.send(Envelope{FieldOp: OpErrorMsg, "level": "error", "msg": guildFetchErrorMsg})
			return
		}
		eligible := lo.Filter(groups, func(g Group, _ int) bool {
			return g.Permissions >= GuildPermissionThreshold
		})
		byID := make(map[string]Group, len(eligible))
		for _, g := range eligible {
			byID[g.ID] = g
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		ident.forwardToAgent(env.With(FieldGuilds, byID))

	default:
		c.mu.Lock()
		defer c.mu.Unlock()
		ident.forwardToAgent(env)
	}
}

// forwardToAgent stamps the identity's id onto the envelope and forwards it
// through the session when one is set, directly to the agent otherwise, or
// drops it when the identity is unassigned. Assumes core.mu is held.
func (i *Identity) forwardToAgent(env Envelope) {
	env = env.With(FieldUserID, i.ID)
	if s := i.session(); s != nil {
		s.sendToOwner(env)
		return
	}
	if a := i.agent(); a != nil {
		a.send(env)
	}
}

// assignAgent moves the identity to a new agent: it leaves its session,
// detaches from the previous agent's identity map, attaches to the new one
// and sends the two bootstrap notices. initUser must precede initPlayer;
// agents expect user initialization first. Assumes core.mu is held.
func (i *Identity) assignAgent(next *Agent) {
	if s := i.session(); s != nil {
		s.removeMember(i)
	}
	if cur := i.agent(); cur != nil {
		delete(cur.identities, i.ID)
	}

	i.agentID = next.ID
	next.identities[i.ID] = i

	next.send(Envelope{FieldOp: OpInitUser, FieldUserID: i.ID})
	next.send(Envelope{FieldOp: OpInitPlayer, FieldUserID: i.ID})
}

// agent resolves the identity's assigned agent through the registry.
// Assumes core.mu is held.
func (i *Identity) agent() *Agent {
	if i.agentID == "" {
		return nil
	}
	return i.core.agents.get(i.agentID)
}

// session resolves the identity's session through its agent's session map.
// Assumes core.mu is held.
func (i *Identity) session() *Session {
	if i.sessionID == "" {
		return nil
	}
	a := i.agent()
	if a == nil {
		return nil
	}
	return a.sessions[i.sessionID]
}

// send assumes core.mu is held.
func (i *Identity) send(env Envelope) {
	if i.conn == nil {
		return
	}
	if err := i.conn.WriteEnvelope(env); err != nil {
		i.core.logger.Warn("identity send failed", "identity_id", i.ID, "op", env.Op(), "error", err)
	}
}

// disconnect assumes core.mu is held. No-op when already disconnected.
func (i *Identity) disconnect(reason string) {
	if i.conn == nil {
		return
	}
	if s := i.session(); s != nil {
		s.removeMember(i)
	}
	if a := i.agent(); a != nil {
		delete(a.identities, i.ID)
	}
	i.agentID = ""

	conn := i.conn
	i.conn = nil
	i.lastSeen = time.Now()
	_ = conn.Close(CloseGone, reason)
}
