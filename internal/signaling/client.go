package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for WebRTC SDP messages

	// Outbound frames buffered per connection before the peer is
	// considered dead.
	sendBufferSize = 256
)

// Client is one live connection and its registry record. ID and RoomID are
// zero until the join handshake completes; name is guarded by the registry
// lock for the connection's lifetime.
type Client struct {
	ID         int64
	RoomID     string
	RemoteAddr string

	conn *websocket.Conn
	send chan []byte
	name string

	logger    *slog.Logger
	closeOnce sync.Once
}

// NewClient wraps an accepted websocket connection. The caller owns starting
// WritePump and the session loop.
func NewClient(conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:       conn,
		RemoteAddr: remoteAddr,
		send:       make(chan []byte, sendBufferSize),
		logger:     logger,
	}
}

// trySend queues a frame for delivery. A full buffer means the peer has
// stopped draining its socket; the connection is closed and the peer's own
// session loop performs the usual disconnect cleanup. Only the Registry may
// call this, under its lock, so it never races the channel close in
// Disconnect.
func (c *Client) trySend(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.closeConn()
		return false
	}
}

// releaseSend closes the send channel of a client that never entered the
// registry, unblocking its WritePump right away instead of waiting for the
// next ping to fail. Joined clients get their channel closed by
// Registry.Disconnect; calling this on one would race the registry.
func (c *Client) releaseSend() {
	close(c.send)
}

// closeConn tears down the transport. Safe to call from any goroutine and
// more than once.
func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// WritePump pumps queued frames to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the channel on disconnect.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
