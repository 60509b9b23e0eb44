package multiplayer

import (
	"errors"
	"sort"
	"sync"
)

// Conn is the transport-neutral handle for one live client connection.
// It lets the coordinator deliver messages without depending on websockets.
type Conn interface {
	// ID returns the unique connection identifier.
	ID() ConnID

	// Send queues a message for delivery.
	// Must be non-blocking; a slow or closed client yields an error instead.
	Send(env Envelope) error

	// Ping queues a liveness probe. Non-blocking.
	Ping() error

	// Close terminates the connection. Safe to call multiple times.
	Close()

	// Done returns a channel that closes when the connection ends.
	Done() <-chan struct{}
}

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// ChannelConn is a Conn backed by Go channels.
// The websocket transport drains Outbox and Pings from its writer goroutine;
// tests read them directly.
type ChannelConn struct {
	id        ConnID
	outbox    chan Envelope
	pings     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannelConn creates a channel-backed connection.
// bufferSize controls how many messages may queue before Send fails.
func NewChannelConn(id ConnID, bufferSize int) *ChannelConn {
	if bufferSize < 1 {
		bufferSize = 64
	}
	return &ChannelConn{
		id:     id,
		outbox: make(chan Envelope, bufferSize),
		pings:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *ChannelConn) ID() ConnID {
	return c.id
}

// Send queues env without blocking.
func (c *ChannelConn) Send(env Envelope) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.outbox <- env:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Ping queues a probe. A probe already pending is enough.
func (c *ChannelConn) Ping() error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.pings <- struct{}{}:
	default:
	}
	return nil
}

// Outbox returns the queued outbound messages.
func (c *ChannelConn) Outbox() <-chan Envelope {
	return c.outbox
}

// Pings returns the pending liveness probes.
func (c *ChannelConn) Pings() <-chan struct{} {
	return c.pings
}

// Done returns the done channel.
func (c *ChannelConn) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection as done.
func (c *ChannelConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// connEntry tracks one open connection, joined or not.
type connEntry struct {
	conn   Conn
	player PlayerID
	joined bool

	// liveness bookkeeping
	seen   bool
	missed int
}

// Registry tracks every open connection and at most one joined Player per PlayerID.
// It is not safe for concurrent use; the Coordinator serializes all access.
type Registry struct {
	conns   map[ConnID]*connEntry
	players map[PlayerID]*Player
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[ConnID]*connEntry),
		players: make(map[PlayerID]*Player),
	}
}

// Attach records an open connection that has not joined yet.
func (r *Registry) Attach(conn Conn) {
	if _, ok := r.conns[conn.ID()]; ok {
		return
	}
	r.conns[conn.ID()] = &connEntry{conn: conn, seen: true}
}

// Detach forgets a connection and returns the player bound to it, if any.
// The player record itself stays registered; callers unregister it.
func (r *Registry) Detach(id ConnID) (PlayerID, bool) {
	e, ok := r.conns[id]
	if !ok {
		return 0, false
	}
	delete(r.conns, id)
	return e.player, e.joined
}

// Register stores a new idle Player for the connection.
// If the player id is already bound to a different connection, that record is
// removed and returned as stale; the caller tears it down and closes it.
// A repeated join on the same connection only refreshes the pet snapshot while idle.
// A connection already joined as another player is rejected with ErrNotAuthorized.
func (r *Registry) Register(conn Conn, id PlayerID, pet PetSnapshot) (stale *Player, err error) {
	r.Attach(conn)
	e := r.conns[conn.ID()]
	if e.joined && e.player != id {
		return nil, ErrNotAuthorized
	}

	if prev, ok := r.players[id]; ok {
		if prev.Conn.ID() == conn.ID() {
			if prev.Status == StatusIdle {
				prev.Pet = pet.normalized()
			}
			return nil, nil
		}
		stale = prev
		delete(r.players, id)
		if e, ok := r.conns[prev.Conn.ID()]; ok {
			e.joined = false
			e.player = 0
		}
	}

	e.joined = true
	e.player = id

	r.players[id] = &Player{
		ID:     id,
		Pet:    pet.normalized(),
		Conn:   conn,
		Status: StatusIdle,
	}
	return stale, nil
}

// Unregister removes and returns the player record. Unknown ids are a no-op.
func (r *Registry) Unregister(id PlayerID) (*Player, bool) {
	p, ok := r.players[id]
	if !ok {
		return nil, false
	}
	delete(r.players, id)
	if e, ok := r.conns[p.Conn.ID()]; ok && e.player == id {
		e.joined = false
		e.player = 0
	}
	return p, true
}

// Lookup returns the player record for id.
func (r *Registry) Lookup(id PlayerID) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// PlayerFor returns the player joined on the given connection.
func (r *Registry) PlayerFor(id ConnID) (*Player, bool) {
	e, ok := r.conns[id]
	if !ok || !e.joined {
		return nil, false
	}
	return r.Lookup(e.player)
}

// SetStatus applies a guarded status transition.
// Entering StatusBattling requires a match id; leaving it clears the match.
// Moving from battling to anything but idle, or into a second battle, is rejected.
func (r *Registry) SetStatus(id PlayerID, status Status, match MatchID) error {
	p, ok := r.players[id]
	if !ok {
		return ErrUnknownPlayer
	}
	if !status.Valid() {
		return ErrInvalidTransition
	}

	switch p.Status {
	case StatusIdle:
		if status == StatusBattling {
			return ErrInvalidTransition
		}
	case StatusSearching:
		if status == StatusBattling && match == "" {
			return ErrInvalidTransition
		}
	case StatusBattling:
		if status == StatusBattling {
			return ErrAlreadyBattling
		}
		if status != StatusIdle {
			return ErrInvalidTransition
		}
	}

	p.Status = status
	if status == StatusBattling {
		p.Match = match
	} else {
		p.Match = ""
	}
	return nil
}

// Count returns the number of joined players.
func (r *Registry) Count() int {
	return len(r.players)
}

// Online returns the presence list ordered by player id.
func (r *Registry) Online() OnlinePlayersPayload {
	players := make([]OnlinePlayer, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, OnlinePlayer{
			UserID:  p.ID,
			PetName: p.Pet.Name,
			Level:   p.Pet.Level,
			Status:  p.Status,
		})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].UserID < players[j].UserID })
	return OnlinePlayersPayload{Count: len(players), Players: players}
}

// Conns returns every open connection, joined or not.
func (r *Registry) Conns() []Conn {
	out := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.conn)
	}
	return out
}

// markSeen records that a connection answered or sent something.
func (r *Registry) markSeen(id ConnID) {
	if e, ok := r.conns[id]; ok {
		e.seen = true
		e.missed = 0
	}
}
