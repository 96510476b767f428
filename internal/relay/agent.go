// ABOUTME: Agent lifecycle and the per-agent half of the relay router.
// ABOUTME: Handles reconnect supersession and session-scoped op dispatch.

package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSessionExists indicates a duplicate session creation for one agent.
var ErrSessionExists = errors.New("session already exists")

// Agent is one connected remote bot process. It owns its channel, its
// sessions and a map of identities currently routed through it directly.
type Agent struct {
	ID string

	core       *Core
	conn       Conn
	sessions   map[string]*Session
	identities map[string]*Identity
	instanceID string
	lastSeen   time.Time
}

// Connected reports whether the agent currently holds a live channel.
func (a *Agent) Connected() bool {
	a.core.mu.Lock()
	defer a.core.mu.Unlock()
	return a.conn != nil
}

// Session returns the agent's session with the given id, or nil.
func (a *Agent) Session(id string) *Session {
	a.core.mu.Lock()
	defer a.core.mu.Unlock()
	return a.sessions[id]
}

// Send delivers an envelope on the agent's channel; dropped when the agent
// is disconnected.
func (a *Agent) Send(env Envelope) {
	a.core.mu.Lock()
	defer a.core.mu.Unlock()
	a.send(env)
}

// ConnectAgent attaches a channel to the agent with the given id,
// constructing the agent on first contact and superseding a live channel
// otherwise, then runs the receive loop for the channel lifetime. On loop
// exit the agent is disconnected but stays registered, so a later
// reconnect regains its id.
func (c *Core) ConnectAgent(ctx context.Context, agentID string, conn Conn) error {
	c.mu.Lock()
	ag := c.agents.get(agentID)
	if ag != nil {
		if ag.conn != nil {
			c.logger.Info("agent superseded", "agent_id", agentID, "instance_id", ag.instanceID)
			ag.disconnect(ReasonReplaced)
		}
	} else {
		ag = &Agent{
			ID:         agentID,
			core:       c,
			sessions:   make(map[string]*Session),
			identities: make(map[string]*Identity),
		}
		c.agents.byID[agentID] = ag
	}
	ag.conn = conn
	ag.instanceID = uuid.NewString()
	total := len(c.agents.byID)
	c.mu.Unlock()

	c.logger.Info("agent connected", "agent_id", agentID, "instance_id", ag.instanceID, "total_agents", total)

	defer func() {
		c.mu.Lock()
		if ag.conn == conn {
			ag.disconnect(ReasonClosed)
		}
		c.mu.Unlock()
		c.logger.Info("agent disconnected", "agent_id", agentID)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("agent channel closed", "agent_id", agentID, "error", err)
			return nil
		}

		env, err := ParseEnvelope(data)
		if err != nil {
			c.logger.Warn("dropping malformed agent frame", "agent_id", agentID, "error", err)
			continue
		}

		c.mu.Lock()
		if ag.conn != conn {
			c.mu.Unlock()
			return nil
		}
		c.dispatchAgent(ag, env)
		c.mu.Unlock()
	}
}

// dispatchAgent applies the per-agent routing rules to one inbound
// envelope. Assumes core.mu is held.
//
// When the envelope names a session, the session is resolved or created
// idempotently and membership ops are applied. Afterwards the envelope is
// delivered to the named identity when userId is present, broadcast to the
// resolved session otherwise, or dropped.
func (c *Core) dispatchAgent(ag *Agent, env Envelope) {
	var sess *Session
	if sid := env.StringField(FieldSessionID); sid != "" {
		sess = ag.sessions[sid]
		if sess == nil {
			// Existence was just checked, so the constructor
			// guard cannot fire here.
			sess, _ = ag.createSession(sid)
		}

		switch env.Op() {
		case OpUpdateGuild:
			ref := env.ObjectField(FieldUser)
			if ident := c.identities.get(ref.StringField(FieldUserID)); ident != nil {
				if env.BoolField(FieldIsJoined) {
					sess.addMember(ident, true)
				} else {
					sess.removeMember(ident)
				}
			}

		case OpCreatePlayer:
			for _, memberID := range env.StringSlice(FieldMemberIDs) {
				if ident := c.identities.get(memberID); ident != nil {
					sess.addMember(ident, true)
				}
			}
			// The caller already knows these members exist; skip
			// the generic delivery below.
			return

		case OpInitPlayer:
			// The identity was already initialized via assignment;
			// do not duplicate the initPlayer notice.
			if ident := c.identities.get(env.StringField(FieldUserID)); ident != nil {
				sess.addMember(ident, false)
			}

		case OpPlayerClose:
			sess.removeAllMembers()
		}
	}

	if userID := env.StringField(FieldUserID); userID != "" {
		if ident := c.identities.get(userID); ident != nil {
			ident.send(env)
		}
		return
	}
	if sess != nil {
		skip := env.StringSlice(FieldSkipUsers)
		sess.broadcast(env, skip)
	}
}

// createSession constructs a session owned by this agent. Duplicate
// creation for the same id fails. Assumes core.mu is held.
func (a *Agent) createSession(id string) (*Session, error) {
	if _, exists := a.sessions[id]; exists {
		return nil, ErrSessionExists
	}
	s := &Session{
		ID:      id,
		owner:   a,
		members: make(map[string]*Identity),
	}
	a.sessions[id] = s
	return s, nil
}

// send assumes core.mu is held.
func (a *Agent) send(env Envelope) {
	if a.conn == nil {
		return
	}
	a.core.logger.Debug("sending to agent", "agent_id", a.ID, "op", env.Op())
	if err := a.conn.WriteEnvelope(env); err != nil {
		a.core.logger.Warn("agent send failed", "agent_id", a.ID, "op", env.Op(), "error", err)
	}
}

// disconnect tears down the agent's channel and everything routed through
// it: every owned session drops its members, every directly mapped identity
// gets a closeConnection notice, and both maps are cleared. The registry
// entry survives. Assumes core.mu is held; no-op when already disconnected.
func (a *Agent) disconnect(reason string) {
	if a.conn == nil {
		return
	}
	conn := a.conn
	a.conn = nil
	a.lastSeen = time.Now()
	_ = conn.Close(CloseGone, reason)

	for _, s := range a.sessions {
		s.removeAllMembers()
	}
	for _, ident := range a.identities {
		ident.send(Envelope{FieldOp: OpCloseConnection})
	}
	a.sessions = make(map[string]*Session)
	a.identities = make(map[string]*Identity)
}
