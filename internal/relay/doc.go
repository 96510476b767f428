// Package relay is the dashboard's in-memory message router between
// end-user identities and remote bot agents.
//
// # Overview
//
// Two populations of long-lived connections attach to the relay:
// identities (end-users of the dashboard) and agents (remote bot
// processes). Traffic between them is operation-coded JSON envelopes,
// multiplexed through sessions, one per external guild, each owned by
// exactly one agent.
//
// # Core
//
// Core holds both registries and is constructed once at process start:
//
//	core := relay.New(relay.Options{Logger: logger, Provider: provider})
//
// Key operations:
//
//   - Identities().Add(profile): register an identity from an external profile
//   - Identities().Get / GetByCredential: id and credential lookup
//   - Agents().Get / BroadcastAll: agent lookup and best-effort fan-out
//   - ConnectIdentity(ctx, ident, conn): run an identity's receive loop
//   - ConnectAgent(ctx, id, conn): register-or-supersede an agent and run its loop
//   - EvictIdle(window): optional sweep of long-disconnected entries
//
// # Routing rules
//
// Identity frames are dispatched by op: heartbeat is dropped,
// updateSelectedBot reassigns the identity to another agent,
// getMutualGuilds enriches the frame with the identity's eligible guilds,
// and everything else is stamped with the identity's id and forwarded
// through its session or agent. Agent frames carrying a sessionId mutate
// session membership (updateGuild, createPlayer, initPlayer, playerClose);
// afterwards the frame is delivered to the named identity, broadcast to
// the session, or dropped.
//
// # Lifecycle
//
// Connecting an id that already holds a live channel supersedes it: the
// old channel is closed with reason "replaced" before the new one becomes
// active. Disconnects tear down channels and downstream relations but
// never remove registry entries, so a reconnect regains its id and state
// is rebuilt from live traffic.
//
// # Concurrency
//
// One receive loop runs per connection. A single Core mutex serializes
// every mutation of registry, identity, agent and session state; the only
// blocking calls (channel reads, provider fetches) happen outside it.
// Exported methods lock; lowercase methods assume the lock is held.
package relay
