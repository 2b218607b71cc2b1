package signaling

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Session drives one connection through its lifecycle: wait for the join
// message, admit the client, then pull and dispatch frames until the
// transport fails. Cleanup is an explicit exit path, not an error handler
// side effect, so it runs exactly once whether the peer hung up or a frame
// could not be written.
type Session struct {
	client   *Client
	registry *Registry
	router   *Router

	// joinWait bounds how long an accepted connection may sit without
	// sending its join message. Zero means wait forever.
	joinWait time.Duration

	logger *slog.Logger
}

// NewSession prepares a session for an accepted connection.
func NewSession(client *Client, registry *Registry, router *Router, joinWait time.Duration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client:   client,
		registry: registry,
		router:   router,
		joinWait: joinWait,
		logger:   logger,
	}
}

// Run blocks until the connection is gone and cleanup has finished. The
// caller runs it in the per-connection goroutine alongside WritePump.
func (s *Session) Run() {
	defer s.client.closeConn()

	if err := s.join(); err != nil {
		// Never joined: no record to remove, nobody to notify. The send
		// channel is still this session's to close.
		s.client.releaseSend()
		s.logger.Info("connection closed before join", "remote_addr", s.client.RemoteAddr, "error", err)
		return
	}
	defer s.leave()

	s.logger = s.logger.With("client_id", s.client.ID, "room", s.client.RoomID)
	s.readLoop()
}

// join performs the handshake: the first frame names the room (and
// optionally the client), the registry admits the client, and the welcome,
// redirect notice and peer-connected event go out. A first frame that is
// itself a negotiation message doubles as the first routed payload.
func (s *Session) join() error {
	conn := s.client.conn
	conn.SetReadLimit(maxMessageSize)
	if s.joinWait > 0 {
		conn.SetReadDeadline(time.Now().Add(s.joinWait))
	} else {
		conn.SetReadDeadline(time.Time{})
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("awaiting join message: %w", err)
	}
	msg, err := DecodeInbound(data)
	if err != nil {
		// A malformed first frame is fatal; there is no session to keep.
		return fmt.Errorf("malformed join message: %w", err)
	}

	requested := msg.RoomID
	if requested == "" {
		requested = DefaultRoom
	}
	res := s.registry.Join(s.client, requested, msg.PeerName)

	// Joined: switch from the handshake deadline to ping/pong keepalive.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.send(Welcome{
		Type:         TypeWelcome,
		ClientID:     res.ID,
		TotalClients: res.TotalClients,
		PeersInRoom:  res.RoomPeers - 1, // exclude self
		RoomID:       res.RoomID,
	})
	if res.Redirected {
		s.send(RoomRedirect{
			Type: TypeRoomRedirect,
			Message: fmt.Sprintf("Room '%s' is full (max %d peers). You have been placed in overflow room '%s'.",
				res.RequestedRoom, s.registry.MaxPeersPerRoom(), res.RoomID),
			OriginalRoom: res.RequestedRoom,
			AssignedRoom: res.RoomID,
		})
	}

	s.broadcastEvent(res.RoomID, res.ID, PeerConnected{
		Type:         TypePeerConnected,
		ClientID:     res.ID,
		PeerName:     msg.PeerName,
		TotalClients: res.TotalClients,
		PeersInRoom:  res.RoomPeers,
	})

	switch msg.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		s.router.Dispatch(s.client, msg)
	}
	return nil
}

// readLoop is the Active state: pull frames and dispatch until the
// transport fails. Malformed frames are dropped; the connection lives on.
func (s *Session) readLoop() {
	for {
		_, data, err := s.client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Info("read failed", "error", err)
			}
			return
		}
		msg, err := DecodeInbound(data)
		if err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		s.logger.Debug("message received", "type", msg.Type)
		s.router.Dispatch(s.client, msg)
	}
}

// leave removes the client and notifies its former room. Disconnect is
// idempotent, so a client already cut off by a failed broadcast is not
// announced twice.
func (s *Session) leave() {
	id, room := s.client.ID, s.client.RoomID
	if !s.registry.Disconnect(id) {
		return
	}
	// Each remaining member learns how many peers it still shares the room
	// with, itself excluded, mirroring the welcome count.
	peers := len(s.registry.PeersInRoom(room)) - 1
	if peers < 0 {
		peers = 0
	}
	s.broadcastEvent(room, id, PeerDisconnected{
		Type:         TypePeerDisconnected,
		ClientID:     id,
		TotalClients: s.registry.TotalClients(),
		PeersInRoom:  peers,
	})
}

func (s *Session) send(msg any) {
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode outbound message", "error", err)
		return
	}
	s.registry.SendTo(s.client.ID, frame)
}

func (s *Session) broadcastEvent(room string, exclude int64, msg any) {
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode lifecycle event", "error", err)
		return
	}
	s.registry.Broadcast(room, exclude, frame)
}
