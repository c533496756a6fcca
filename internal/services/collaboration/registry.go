package collaboration

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"watchparty/internal/models"
	"watchparty/internal/names"
)

/*
Registry is the live source of truth for who is in which session.

Locking:
  - Registry.mu guards the rooms and bindings maps only and is held briefly.
  - room.mu serializes everything that happens inside one session: joins,
    leaves, persist+broadcast of chat, playback updates.
  - Registry.mu may be taken while holding a room.mu, never the reverse.
    lockRoom releases Registry.mu before waiting on the room.

A room whose last member leaves is retired: removed from the map and marked
so that a goroutine already waiting on its lock retries with a fresh room.
*/

// Member is one connection's membership in a session.
type Member struct {
	SessionID   string
	UserID      string
	DisplayName string
	Role        models.Role
	JoinedAt    time.Time
}

func (m *Member) IsMaster() bool {
	return m.Role == models.RoleMaster
}

// PlaybackState is the per-session sync state machine.
type PlaybackState string

const (
	PlaybackUninitialized PlaybackState = "uninitialized"
	PlaybackTracking      PlaybackState = "tracking"
)

type playback struct {
	state     PlaybackState
	time      float64
	updatedAt time.Time
}

type room struct {
	id string

	mu      sync.Mutex
	session *models.Session
	members map[*Client]*Member
	master  *Client
	sync    playback
	watch   *statusWatch
	retired bool
}

func (rm *room) broadcast(msg []byte, except *Client) {
	for c := range rm.members {
		if c != except {
			c.enqueue(msg)
		}
	}
}

// roster lists members in join order.
func (rm *room) roster() []RosterEntry {
	entries := make([]RosterEntry, 0, len(rm.members))
	for _, m := range rm.members {
		entries = append(entries, RosterEntry{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			IsMaster:    m.IsMaster(),
			JoinedAt:    m.JoinedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})
	return entries
}

func (rm *room) clientFor(userID string) *Client {
	for c, m := range rm.members {
		if m.UserID == userID {
			return c
		}
	}
	return nil
}

type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*room
	bindings map[*Client]*Member
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*room),
		bindings: make(map[*Client]*Member),
	}
}

// lockRoom returns the session's room with its lock held, creating it when
// create is set. Returns nil if there is no room and create is false.
func (r *Registry) lockRoom(sessionID string, create bool) *room {
	for {
		r.mu.Lock()
		rm := r.rooms[sessionID]
		if rm == nil {
			if !create {
				r.mu.Unlock()
				return nil
			}
			rm = &room{
				id:      sessionID,
				members: make(map[*Client]*Member),
				sync:    playback{state: PlaybackUninitialized},
			}
			r.rooms[sessionID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if !rm.retired {
			return rm
		}
		rm.mu.Unlock()
	}
}

// retire drops an empty room. Caller holds rm.mu.
func (r *Registry) retire(rm *room) {
	rm.retired = true
	if rm.watch != nil {
		rm.watch.cancel()
		rm.watch = nil
	}

	r.mu.Lock()
	if r.rooms[rm.id] == rm {
		delete(r.rooms, rm.id)
	}
	r.mu.Unlock()
}

// register adds c to the locked room. A fresh user id is always generated;
// displayName falls back to a random one. The master slot goes to the first
// connection that asks for it, and only if the session allows a master.
func (r *Registry) register(rm *room, c *Client, displayName string, wantMaster bool) *Member {
	if displayName == "" {
		displayName = names.Random()
	}

	m := &Member{
		SessionID:   rm.id,
		UserID:      names.UserID(),
		DisplayName: displayName,
		Role:        models.RoleParticipant,
		JoinedAt:    time.Now().UTC(),
	}

	if wantMaster && rm.session.IsMaster && rm.master == nil {
		m.Role = models.RoleMaster
		rm.master = c
	} else if wantMaster {
		slog.Info("master slot taken, joining as participant",
			"session_id", rm.id, "user_id", m.UserID)
	}

	rm.members[c] = m

	r.mu.Lock()
	r.bindings[c] = m
	r.mu.Unlock()

	return m
}

// unregister removes c from the locked room. ok is false when c was not a
// member, which makes a second call a no-op.
func (r *Registry) unregister(rm *room, c *Client) (m *Member, wasMaster, ok bool) {
	m, ok = rm.members[c]
	if !ok {
		return nil, false, false
	}
	delete(rm.members, c)

	r.mu.Lock()
	if r.bindings[c] == m {
		delete(r.bindings, c)
	}
	r.mu.Unlock()

	if rm.master == c {
		rm.master = nil
		rm.sync.state = PlaybackUninitialized
		wasMaster = true
	}
	return m, wasMaster, true
}

// binding returns the membership of c, if any.
func (r *Registry) binding(c *Client) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.bindings[c]
	return m, ok
}

// lockMember resolves c to its locked room. Returns ErrNotJoined when c is
// not a member of a live room.
func (r *Registry) lockMember(c *Client) (*room, *Member, error) {
	m, ok := r.binding(c)
	if !ok {
		return nil, nil, ErrNotJoined
	}
	rm := r.lockRoom(m.SessionID, false)
	if rm == nil {
		return nil, nil, ErrNotJoined
	}
	if rm.members[c] != m {
		rm.mu.Unlock()
		return nil, nil, ErrNotJoined
	}
	return rm, m, nil
}

// ConnectionsFor returns the clients currently in sessionID.
func (r *Registry) ConnectionsFor(sessionID string) []*Client {
	rm := r.lockRoom(sessionID, false)
	if rm == nil {
		return nil
	}
	defer rm.mu.Unlock()

	clients := make([]*Client, 0, len(rm.members))
	for c := range rm.members {
		clients = append(clients, c)
	}
	return clients
}

// MasterFor returns the session's master connection, or nil.
func (r *Registry) MasterFor(sessionID string) *Client {
	rm := r.lockRoom(sessionID, false)
	if rm == nil {
		return nil
	}
	defer rm.mu.Unlock()
	return rm.master
}

// Roster returns the live member list of sessionID.
func (r *Registry) Roster(sessionID string) []RosterEntry {
	rm := r.lockRoom(sessionID, false)
	if rm == nil {
		return []RosterEntry{}
	}
	defer rm.mu.Unlock()
	return rm.roster()
}

// UserCount is the number of live connections in sessionID.
func (r *Registry) UserCount(sessionID string) int {
	rm := r.lockRoom(sessionID, false)
	if rm == nil {
		return 0
	}
	defer rm.mu.Unlock()
	return len(rm.members)
}

// Playback returns the session's sync state and last known time.
func (r *Registry) Playback(sessionID string) (PlaybackState, float64) {
	rm := r.lockRoom(sessionID, false)
	if rm == nil {
		return PlaybackUninitialized, 0
	}
	defer rm.mu.Unlock()
	return rm.sync.state, rm.sync.time
}
