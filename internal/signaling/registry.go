package signaling

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry owns every live client record: id, display name, room assignment,
// origin address and the connection handle. All reads and mutations are
// serialized by one mutex; the room-choice-then-register sequence at join
// time runs inside a single critical section so two clients racing for the
// last slot in a room cannot both be admitted.
type Registry struct {
	mu        sync.Mutex
	clients   map[int64]*Client
	allocator RoomAllocator
	nextID    int64
	logger    *slog.Logger
}

// NewRegistry creates an empty registry enforcing the given per-room cap.
func NewRegistry(maxPeersPerRoom int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients:   make(map[int64]*Client),
		allocator: RoomAllocator{MaxPeersPerRoom: maxPeersPerRoom},
		logger:    logger,
	}
}

// JoinResult carries everything the welcome and peer-connected messages
// need, captured while the registry lock was held.
type JoinResult struct {
	ID            int64
	RoomID        string
	RequestedRoom string
	Redirected    bool

	// TotalClients and RoomPeers count the newcomer.
	TotalClients int
	RoomPeers    int
}

// Join admits a client: picks the actual room via the allocator, assigns the
// next id and registers the record, all in one critical section. Ids start
// at 1 and are never reused for the process lifetime.
func (r *Registry) Join(c *Client, requestedRoom, name string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, redirected := r.allocator.ChooseRoom(requestedRoom, r.roomSizeLocked)

	r.nextID++
	c.ID = r.nextID
	c.RoomID = room
	c.name = name
	r.clients[c.ID] = c

	res := JoinResult{
		ID:            c.ID,
		RoomID:        room,
		RequestedRoom: requestedRoom,
		Redirected:    redirected,
		TotalClients:  len(r.clients),
		RoomPeers:     r.roomSizeLocked(room),
	}
	if redirected {
		r.logger.Info("client redirected to overflow room",
			"client_id", c.ID, "name", name,
			"requested_room", requestedRoom, "room", room,
			"peers_in_room", res.RoomPeers-1)
	} else {
		r.logger.Info("client joined room",
			"client_id", c.ID, "name", name, "room", room,
			"peers_in_room", res.RoomPeers-1)
	}
	return res
}

// Disconnect removes a client's record and closes its send channel. It is
// idempotent: cleanup may run from both the session's normal exit and an
// error path without side effects the second time.
func (r *Registry) Disconnect(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return false
	}
	delete(r.clients, id)
	close(c.send)
	r.logger.Info("client disconnected", "client_id", id, "total_clients", len(r.clients))
	return true
}

// PeersInRoom returns the ids currently assigned to exactly this room name,
// in ascending order. Overflow siblings are distinct rooms.
func (r *Registry) PeersInRoom(room string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int64
	for id, c := range r.clients {
		if c.RoomID == room {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TotalClients returns the number of live registered clients.
func (r *Registry) TotalClients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// MaxPeersPerRoom returns the configured per-room capacity.
func (r *Registry) MaxPeersPerRoom() int {
	return r.allocator.MaxPeersPerRoom
}

// SetDisplayName overwrites a client's stored name; no-op when the id is not
// registered.
func (r *Registry) SetDisplayName(id int64, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		c.name = name
	}
}

// SendTo queues a frame for one client. Reports false when the id is not
// registered or the client stopped draining its connection.
func (r *Registry) SendTo(id int64, frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return false
	}
	return c.trySend(frame)
}

// SendToRoomPeer queues a frame for one client only if it currently occupies
// the given room. Used for unicast routing, which never crosses rooms.
func (r *Registry) SendToRoomPeer(room string, id int64, frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok || c.RoomID != room {
		return false
	}
	return c.trySend(frame)
}

// Broadcast queues a frame for every member of a room except one. A
// recipient that cannot accept the frame is cut off individually; the
// remaining sends proceed. Returns the number of successful deliveries.
func (r *Registry) Broadcast(room string, exclude int64, frame []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	sent := 0
	for id, c := range r.clients {
		if id == exclude || c.RoomID != room {
			continue
		}
		if c.trySend(frame) {
			sent++
		} else {
			r.logger.Warn("dropping unresponsive client", "client_id", id, "room", room)
		}
	}
	return sent
}

// Snapshot builds the room inspection report: every occupied room with its
// members and counts plus global totals. Clients without a display name get
// the synthesized "Client-<id>" default.
func (r *Registry) Snapshot() RoomsReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make(map[string]RoomReport)
	for id, c := range r.clients {
		room := rooms[c.RoomID]
		room.MaxPeers = r.allocator.MaxPeersPerRoom

		name := c.name
		if name == "" {
			name = fmt.Sprintf("Client-%d", id)
		}
		room.Peers = append(room.Peers, PeerInfo{ID: id, Name: name, IP: c.RemoteAddr})
		room.Count = len(room.Peers)
		rooms[c.RoomID] = room
	}
	for _, room := range rooms {
		sort.Slice(room.Peers, func(i, j int) bool { return room.Peers[i].ID < room.Peers[j].ID })
	}
	return RoomsReport{
		TotalClients: len(r.clients),
		TotalRooms:   len(rooms),
		Rooms:        rooms,
	}
}

// roomSizeLocked counts members of an exact room name. Callers hold r.mu.
func (r *Registry) roomSizeLocked(room string) int {
	n := 0
	for _, c := range r.clients {
		if c.RoomID == room {
			n++
		}
	}
	return n
}
