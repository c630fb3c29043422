package broadcast

import (
	"errors"
	"time"
)

var errMaxRoomsReached = errors.New("max rooms per client reached")

type connState int

const (
	stateOpen connState = iota
	stateActive
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateActive:
		return "active"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connection is owned by the registry. Only the broadcaster goroutine reads or writes it.
type connection struct {
	id          string
	peer        Peer
	connectedAt time.Time
	lastSeenAt  time.Time
	rooms       map[string]struct{}
	state       connState
}

// joinedRooms returns a snapshot of the rooms the connection belongs to.
func (c *connection) joinedRooms() []string {
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

type joinResult struct {
	alreadyMember bool
	members       int
}

// departure records a room a removed connection left and how many members remain.
type departure struct {
	dashboardID string
	remaining   int
}

// registry holds the live connections and the room table. A connection id is in
// rooms[d] exactly when d is in that connection's room set; empty rooms are deleted.
type registry struct {
	conns    map[string]*connection
	rooms    map[string]map[string]struct{}
	maxRooms int
	newID    func() string
}

func newRegistry(maxRooms int, newID func() string) *registry {
	if newID == nil {
		newID = newClientID
	}
	return &registry{
		conns:    make(map[string]*connection),
		rooms:    make(map[string]map[string]struct{}),
		maxRooms: maxRooms,
		newID:    newID,
	}
}

func (r *registry) add(peer Peer, now time.Time) *connection {
	id := r.newID()
	for _, taken := r.conns[id]; taken; _, taken = r.conns[id] {
		id = r.newID()
	}

	conn := &connection{
		id:          id,
		peer:        peer,
		connectedAt: now,
		lastSeenAt:  now,
		rooms:       make(map[string]struct{}),
		state:       stateOpen,
	}
	r.conns[id] = conn
	return conn
}

func (r *registry) get(id string) (*connection, bool) {
	conn, ok := r.conns[id]
	return conn, ok
}

// touch refreshes lastSeenAt. Timestamps never move backwards.
func (r *registry) touch(id string, now time.Time) bool {
	conn, ok := r.conns[id]
	if !ok {
		return false
	}
	if now.After(conn.lastSeenAt) {
		conn.lastSeenAt = now
	}
	return true
}

func (r *registry) join(conn *connection, dashboardID string) (joinResult, error) {
	if _, ok := conn.rooms[dashboardID]; ok {
		return joinResult{alreadyMember: true, members: len(r.rooms[dashboardID])}, nil
	}
	if len(conn.rooms) >= r.maxRooms {
		return joinResult{}, errMaxRoomsReached
	}

	members, ok := r.rooms[dashboardID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[dashboardID] = members
	}
	members[conn.id] = struct{}{}
	conn.rooms[dashboardID] = struct{}{}

	return joinResult{members: len(members)}, nil
}

// leave removes conn from the room. ok is false if it was not a member.
func (r *registry) leave(conn *connection, dashboardID string) (remaining int, ok bool) {
	if _, joined := conn.rooms[dashboardID]; !joined {
		return 0, false
	}
	delete(conn.rooms, dashboardID)

	members := r.rooms[dashboardID]
	delete(members, conn.id)
	if len(members) == 0 {
		delete(r.rooms, dashboardID)
		return 0, true
	}
	return len(members), true
}

// remove takes the connection out of every room and then out of the registry.
// Removing an unknown id is a no-op.
func (r *registry) remove(id string) (*connection, []departure, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return nil, nil, false
	}

	departures := make([]departure, 0, len(conn.rooms))
	for _, dashboardID := range conn.joinedRooms() {
		remaining, _ := r.leave(conn, dashboardID)
		departures = append(departures, departure{dashboardID: dashboardID, remaining: remaining})
	}
	delete(r.conns, id)

	return conn, departures, true
}

// members returns a copy of the room's member ids.
func (r *registry) members(dashboardID string) []string {
	room, ok := r.rooms[dashboardID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(room))
	for id := range room {
		ids = append(ids, id)
	}
	return ids
}

func (r *registry) roomSize(dashboardID string) int {
	return len(r.rooms[dashboardID])
}

// connections returns a snapshot safe to iterate while removing entries.
func (r *registry) connections() []*connection {
	conns := make([]*connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (r *registry) len() int {
	return len(r.conns)
}

func (r *registry) roomCount() int {
	return len(r.rooms)
}
