// Package presence implements the stanza session state machine and the
// process-wide session and room registries backing friend-presence relay
// and room fan-out.
package presence

import (
	"sync"
)

// Conn is the transport surface a session handler drives. The gateway's
// websocket connection implements it; tests substitute channel-backed
// fakes.
type Conn interface {
	// ReadFrame blocks until the next inbound frame or a transport
	// error. Any error means the connection is gone.
	ReadFrame() ([]byte, error)
	// Send enqueues one outbound frame. Best effort: an error means
	// the peer is slow or gone and the connection is being torn down.
	Send(frame []byte) error
	// Close tears the connection down. Idempotent.
	Close()
}

// Session is a bound identity on a connection. Fields are written once at
// bind time; joined-room bookkeeping lives in the Registry under its lock.
type Session struct {
	AccountID   string
	DisplayName string
	// JID is the bound address accountId@domain/resource.
	JID      string
	Resource string
	Conn     Conn

	// rooms the session has joined, guarded by the Registry mutex.
	rooms map[string]bool
}

// Member is a snapshot of one room member taken under the registry lock.
type Member struct {
	AccountID   string
	DisplayName string
	// JID is the member's bound address.
	JID string
	// RoomJID is the room-scoped address the member joined with.
	RoomJID string
	Conn    Conn
}

type roomMember struct {
	sess    *Session
	roomJID string
}

// Registry tracks all registered sessions and ephemeral rooms. It is the
// only cross-connection mutable state; every check-then-mutate runs under
// one mutex so concurrent joins, leaves, and evictions never interleave
// into an inconsistent state. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session     // accountId → session
	rooms    map[string][]roomMember // roomId → ordered members
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rooms:    make(map[string][]roomMember),
	}
}

// Register inserts a session, evicting any session already registered for
// the same account. The evicted session's connection is closed before the
// new session becomes visible; its room memberships are pruned when its
// handler tears down.
//
// Precondition: sess must have non-empty AccountID and a non-nil Conn.
// Postcondition: Exactly one session is registered for sess.AccountID.
func (r *Registry) Register(sess *Session) {
	r.mu.Lock()
	evicted := r.sessions[sess.AccountID]
	if evicted != nil {
		delete(r.sessions, sess.AccountID)
	}
	if sess.rooms == nil {
		sess.rooms = make(map[string]bool)
	}
	r.sessions[sess.AccountID] = sess
	r.mu.Unlock()

	// Close outside the lock: the evicted handler's teardown re-enters
	// the registry.
	if evicted != nil {
		evicted.Conn.Close()
	}
}

// Remove unregisters the session and prunes its room memberships, deleting
// rooms that become empty. A session that was already evicted (a newer
// session holds its account id) keeps the newer registration intact; only
// its own memberships are pruned. Safe to call repeatedly.
func (r *Registry) Remove(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current := r.sessions[sess.AccountID]; current == sess {
		delete(r.sessions, sess.AccountID)
	}

	for roomID := range sess.rooms {
		r.leaveRoomLocked(roomID, sess)
	}
	sess.rooms = nil
}

func (r *Registry) leaveRoomLocked(roomID string, sess *Session) {
	members := r.rooms[roomID]
	for i, m := range members {
		if m.sess == sess {
			members = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(members) == 0 {
		delete(r.rooms, roomID)
	} else {
		r.rooms[roomID] = members
	}
}

// Lookup returns the registered session for the account.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (r *Registry) Lookup(accountID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[accountID]
	return sess, ok
}

// JoinRoom adds the session to the room, creating the room on first join.
// Joining a room the session is already in is a no-op beyond the snapshot.
//
// Postcondition: Returns the room's member snapshot including the joiner.
func (r *Registry) JoinRoom(roomID string, sess *Session, roomJID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	already := false
	for _, m := range r.rooms[roomID] {
		if m.sess == sess {
			already = true
			break
		}
	}
	if !already {
		r.rooms[roomID] = append(r.rooms[roomID], roomMember{sess: sess, roomJID: roomJID})
		sess.rooms[roomID] = true
	}

	return r.snapshotLocked(roomID)
}

// RoomMembers returns the room's member snapshot.
//
// Postcondition: Returns (members, true) if the room exists, or (nil, false).
func (r *Registry) RoomMembers(roomID string) ([]Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		return nil, false
	}
	return r.snapshotLocked(roomID), true
}

func (r *Registry) snapshotLocked(roomID string) []Member {
	members := r.rooms[roomID]
	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = append(out, Member{
			AccountID:   m.sess.AccountID,
			DisplayName: m.sess.DisplayName,
			JID:         m.sess.JID,
			RoomJID:     m.roomJID,
			Conn:        m.sess.Conn,
		})
	}
	return out
}

// SessionCount returns the number of registered sessions.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
