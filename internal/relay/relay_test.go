// ABOUTME: Shared test doubles for the relay package.
// ABOUTME: In-memory channel, stub profile provider and polling helpers.

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn. Writes are recorded; reads block on a
// frame channel until the conn is closed.
type fakeConn struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	mu          sync.Mutex
	sent        []Envelope
	closeCode   int
	closeReason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-f.frames:
		return data, nil
	case <-f.done:
		return nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteEnvelope(env Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env.Clone())
	return nil
}

func (f *fakeConn) Close(code int, reason string) error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closeCode = code
		f.closeReason = reason
		f.mu.Unlock()
		close(f.done)
	})
	return nil
}

// push feeds one frame to the next ReadMessage call.
func (f *fakeConn) push(t *testing.T, env Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshaling frame: %v", err)
	}
	select {
	case f.frames <- data:
	case <-time.After(time.Second):
		t.Fatal("frame buffer full")
	}
}

func (f *fakeConn) envelopes() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeConn) ops() []string {
	envs := f.envelopes()
	out := make([]string, len(envs))
	for i, env := range envs {
		out[i] = env.Op()
	}
	return out
}

func (f *fakeConn) closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeConn) lastClose() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode, f.closeReason
}

// stubProvider returns canned profile and group data.
type stubProvider struct {
	profile Profile
	groups  []Group
	err     error
}

func (p *stubProvider) FetchProfile(context.Context, string) (Profile, error) {
	return p.profile, p.err
}

func (p *stubProvider) FetchGroupMemberships(context.Context, string) ([]Group, error) {
	return p.groups, p.err
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	return New(Options{Provider: &stubProvider{}})
}

// addIdentity registers an identity and attaches a channel without running
// a receive loop, so dispatch can be exercised synchronously.
func addIdentity(t *testing.T, c *Core, id string, conn Conn) *Identity {
	t.Helper()
	ident, err := c.Identities().Add(Profile{ID: id, Name: id})
	if err != nil {
		t.Fatalf("adding identity: %v", err)
	}
	c.mu.Lock()
	ident.conn = conn
	c.mu.Unlock()
	return ident
}

// addAgent registers an agent with a live channel without running a
// receive loop.
func addAgent(t *testing.T, c *Core, id string, conn Conn) *Agent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.agents.byID[id]; exists {
		t.Fatalf("agent %q already registered", id)
	}
	ag := &Agent{
		ID:         id,
		core:       c,
		conn:       conn,
		sessions:   make(map[string]*Session),
		identities: make(map[string]*Identity),
	}
	c.agents.byID[id] = ag
	return ag
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
