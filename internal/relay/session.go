// ABOUTME: Session groups the identities of one guild under its owning agent.
// ABOUTME: Membership changes carry the notices agents and users rely on.

package relay

// Session is a per-agent grouping of identities, one per external guild.
// The owner is set at creation and never changes. A session with zero
// members stays registered until its agent disconnects; the owner is told
// it is closing the moment the last member leaves.
type Session struct {
	ID      string
	owner   *Agent
	members map[string]*Identity
}

// Owner returns the owning agent.
func (s *Session) Owner() *Agent { return s.owner }

// MemberCount returns the current number of members.
func (s *Session) MemberCount() int {
	s.owner.core.mu.Lock()
	defer s.owner.core.mu.Unlock()
	return len(s.members)
}

// Has reports whether the identity with the given id is a member.
func (s *Session) Has(identityID string) bool {
	s.owner.core.mu.Lock()
	defer s.owner.core.mu.Unlock()
	_, ok := s.members[identityID]
	return ok
}

// addMember registers an identity with the session. No-op when the
// identity is already a member of some session. The identity is also
// routed through the owning agent, keeping membership and assignment in
// lockstep. When notifyOwner is set the owner receives an initPlayer
// notice for the new member. Assumes core.mu is held.
func (s *Session) addMember(ident *Identity, notifyOwner bool) {
	if ident.sessionID != "" {
		return
	}

	if cur := ident.agent(); cur != s.owner {
		if cur != nil {
			delete(cur.identities, ident.ID)
		}
		ident.agentID = s.owner.ID
		s.owner.identities[ident.ID] = ident
	}

	ident.sessionID = s.ID
	s.members[ident.ID] = ident

	if notifyOwner {
		s.owner.send(Envelope{FieldOp: OpInitPlayer, FieldUserID: ident.ID})
	}
}

// removeMember detaches an identity from the session. No-op when not a
// member. The member is sent a playerClose notice; when it was the last
// member, the owner is told the session is closing before the member is
// detached, so the owner still sees the session as populated.
// Assumes core.mu is held.
func (s *Session) removeMember(ident *Identity) {
	if _, ok := s.members[ident.ID]; !ok {
		return
	}

	ident.send(Envelope{FieldOp: OpPlayerClose})
	if len(s.members) <= 1 {
		s.sendToOwner(Envelope{FieldOp: OpCloseConnection, FieldUserID: ident.ID})
	}

	ident.sessionID = ""
	delete(s.members, ident.ID)
}

// removeAllMembers drops every member with a playerClose notice and clears
// membership. Unlike removeMember's last-member path, the owner is not
// notified: this bulk teardown is agent-initiated, so the agent already
// knows. Assumes core.mu is held.
func (s *Session) removeAllMembers() {
	for id, ident := range s.members {
		ident.send(Envelope{FieldOp: OpPlayerClose})
		ident.sessionID = ""
		delete(s.members, id)
	}
}

// broadcast delivers an envelope to every member whose id is not in skip.
// Assumes core.mu is held.
func (s *Session) broadcast(env Envelope, skip []string) {
	skipped := make(map[string]struct{}, len(skip))
	for _, id := range skip {
		skipped[id] = struct{}{}
	}
	for id, ident := range s.members {
		if _, ok := skipped[id]; ok {
			continue
		}
		ident.send(env)
	}
}

// sendToOwner stamps the session id onto the envelope and delivers it to
// the owning agent. Assumes core.mu is held.
func (s *Session) sendToOwner(env Envelope) {
	s.owner.send(env.With(FieldSessionID, s.ID))
}

// Broadcast delivers an envelope to every member not in skip.
func (s *Session) Broadcast(env Envelope, skip []string) {
	s.owner.core.mu.Lock()
	defer s.owner.core.mu.Unlock()
	s.broadcast(env, skip)
}

// SendToOwner stamps the session id onto the envelope and delivers it to
// the owning agent.
func (s *Session) SendToOwner(env Envelope) {
	s.owner.core.mu.Lock()
	defer s.owner.core.mu.Unlock()
	s.sendToOwner(env)
}
