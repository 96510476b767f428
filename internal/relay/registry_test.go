// ABOUTME: Tests for the identity and agent registries.
// ABOUTME: Covers upserts, credential lookup and idle eviction.

package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityRegistryAdd(t *testing.T) {
	c := newTestCore(t)

	t.Run("missing id is rejected", func(t *testing.T) {
		_, err := c.Identities().Add(Profile{Name: "no id"})
		assert.ErrorIs(t, err, ErrMissingProfileID)
	})

	t.Run("add then lookup", func(t *testing.T) {
		ident, err := c.Identities().Add(Profile{ID: "u1", Name: "Alice", Credential: "tok-1"})
		require.NoError(t, err)
		assert.Same(t, ident, c.Identities().Get("u1"))
		assert.Same(t, ident, c.Identities().GetByCredential("tok-1"))
	})

	t.Run("re-add updates profile but keeps entry", func(t *testing.T) {
		before := c.Identities().Get("u1")
		after, err := c.Identities().Add(Profile{ID: "u1", Name: "Alice Smith", Credential: "tok-2"})
		require.NoError(t, err)
		assert.Same(t, before, after)
		assert.Equal(t, "Alice Smith", after.Name)
		assert.Nil(t, c.Identities().GetByCredential("tok-1"))
		assert.Same(t, after, c.Identities().GetByCredential("tok-2"))
	})

	t.Run("empty credential never matches", func(t *testing.T) {
		assert.Nil(t, c.Identities().GetByCredential(""))
	})
}

func TestEvictIdle(t *testing.T) {
	c := newTestCore(t)

	// Disconnected long ago: eligible.
	stale := addIdentity(t, c, "stale", newFakeConn())
	stale.Disconnect()

	// Currently connected: kept.
	addIdentity(t, c, "live", newFakeConn())

	// Registered but never held a channel: kept.
	_, err := c.Identities().Add(Profile{ID: "pending"})
	require.NoError(t, err)

	staleAgentConn := newFakeConn()
	addAgent(t, c, "agent-stale", staleAgentConn)
	c.mu.Lock()
	c.agents.byID["agent-stale"].disconnect(ReasonClosed)
	c.mu.Unlock()

	addAgent(t, c, "agent-live", newFakeConn())

	// Age the disconnect timestamps past the window.
	c.mu.Lock()
	stale.lastSeen = time.Now().Add(-time.Hour)
	c.agents.byID["agent-stale"].lastSeen = time.Now().Add(-time.Hour)
	c.mu.Unlock()

	identities, agents := c.EvictIdle(30 * time.Minute)
	assert.Equal(t, 1, identities)
	assert.Equal(t, 1, agents)

	assert.Nil(t, c.Identities().Get("stale"))
	assert.NotNil(t, c.Identities().Get("live"))
	assert.NotNil(t, c.Identities().Get("pending"))
	assert.Nil(t, c.Agents().Get("agent-stale"))
	assert.NotNil(t, c.Agents().Get("agent-live"))
}

func TestEvictIdleKeepsSessionMembers(t *testing.T) {
	c := newTestCore(t)
	ident := addIdentity(t, c, "u1", newFakeConn())
	ident.Disconnect()
	ag := addAgent(t, c, "a1", newFakeConn())

	// An agent op can re-enroll a disconnected identity in a session.
	join := Envelope{
		FieldOp:        OpUpdateGuild,
		FieldSessionID: "g1",
		FieldIsJoined:  true,
		FieldUser:      map[string]any{FieldUserID: "u1"},
	}
	c.mu.Lock()
	c.dispatchAgent(ag, join)
	ident.lastSeen = time.Now().Add(-time.Hour)
	c.mu.Unlock()

	identities, _ := c.EvictIdle(30 * time.Minute)
	assert.Zero(t, identities)

	// The member is still reachable through the registry.
	assert.Same(t, ident, c.Identities().Get("u1"))
	assert.True(t, ag.Session("g1").Has("u1"))
}

func TestBroadcastAll(t *testing.T) {
	c := newTestCore(t)
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	addAgent(t, c, "a1", conn1)
	addAgent(t, c, "a2", conn2)

	disconnected := addAgent(t, c, "a3", newFakeConn())
	c.mu.Lock()
	disconnected.disconnect(ReasonClosed)
	c.mu.Unlock()

	c.Agents().BroadcastAll(Envelope{FieldOp: OpInitBot, FieldUserID: "u1"})

	assert.Equal(t, []string{OpInitBot}, conn1.ops())
	assert.Equal(t, []string{OpInitBot}, conn2.ops())
	assert.Equal(t, 2, c.Agents().ConnectedCount())
}
