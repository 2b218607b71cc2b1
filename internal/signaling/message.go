package signaling

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Message types sent by clients.
const (
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeICECandidate       = "ice-candidate"
	TypeChat               = "chat"
	TypeMuteState          = "mute-state"
	TypeScreenShareStopped = "screen-share-stopped"
	TypeGetPeers           = "get-peers"
	TypeUnknown            = "unknown"
)

// Message types synthesized by the server.
const (
	TypeWelcome          = "welcome"
	TypeRoomRedirect     = "room-redirect"
	TypePeerConnected    = "peer-connected"
	TypePeerDisconnected = "peer-disconnected"
	TypePeerList         = "peer-list"
)

// DefaultRoom is the room assigned when a join message names none.
const DefaultRoom = "default"

// Inbound is one parsed client frame. The fields the server acts on are
// decoded up front; the rest of the payload is kept verbatim so negotiation
// messages can be forwarded untouched.
type Inbound struct {
	Type     string
	RoomID   string
	PeerName string

	// TargetID is nil when the frame named no parseable target.
	// HasTarget reports whether a targetId field was present at all, so a
	// garbled target can be dropped instead of silently becoming a
	// broadcast.
	TargetID  *int64
	HasTarget bool

	Text       string
	SenderName string
	Timestamp  json.RawMessage
	IsMuted    bool

	raw map[string]json.RawMessage
}

// DecodeInbound parses a client frame. Any JSON object is accepted; a
// missing type dispatches as "unknown".
func DecodeInbound(data []byte) (*Inbound, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	m := &Inbound{Type: TypeUnknown, raw: raw}
	if v, ok := raw["type"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			m.Type = s
		}
	}
	m.RoomID = stringField(raw, "roomId")
	m.PeerName = stringField(raw, "peerName")
	if m.PeerName == "" {
		m.PeerName = stringField(raw, "name")
	}
	if v, ok := raw["targetId"]; ok {
		m.HasTarget = true
		if id, ok := coerceID(v); ok {
			m.TargetID = &id
		}
	}
	m.Text = stringField(raw, "text")
	m.SenderName = stringField(raw, "senderName")
	m.Timestamp = raw["timestamp"]
	if v, ok := raw["isMuted"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			m.IsMuted = b
		}
	}
	return m, nil
}

// ForwardFrom re-encodes the original frame with the sender's id injected,
// for verbatim relaying of negotiation payloads.
func (m *Inbound) ForwardFrom(senderID int64) ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(m.raw)+1)
	for k, v := range m.raw {
		fields[k] = v
	}
	fields["senderId"] = json.RawMessage(strconv.FormatInt(senderID, 10))
	return json.Marshal(fields)
}

func stringField(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// coerceID accepts a target id as a JSON number or a numeric string.
func coerceID(raw json.RawMessage) (int64, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if id, err := n.Int64(); err == nil {
			return id, true
		}
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return id, true
		}
	}
	return 0, false
}

// Welcome is the first message a client receives after joining.
type Welcome struct {
	Type         string `json:"type"`
	ClientID     int64  `json:"clientId"`
	TotalClients int    `json:"totalClients"`
	PeersInRoom  int    `json:"peersInRoom"`
	RoomID       string `json:"roomId"`
}

// RoomRedirect tells a client its requested room was full and where it
// landed instead.
type RoomRedirect struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	OriginalRoom string `json:"originalRoom"`
	AssignedRoom string `json:"assignedRoom"`
}

// PeerConnected notifies a room that a new client joined it.
type PeerConnected struct {
	Type         string `json:"type"`
	ClientID     int64  `json:"clientId"`
	PeerName     string `json:"peerName"`
	TotalClients int    `json:"totalClients"`
	PeersInRoom  int    `json:"peersInRoom"`
}

// PeerDisconnected notifies a room that a member left it.
type PeerDisconnected struct {
	Type         string `json:"type"`
	ClientID     int64  `json:"clientId"`
	TotalClients int    `json:"totalClients"`
	PeersInRoom  int    `json:"peersInRoom"`
}

// PeerList answers a get-peers request with the other ids in the room.
type PeerList struct {
	Type  string  `json:"type"`
	Peers []int64 `json:"peers"`
}

// Chat is the relayed form of a chat message.
type Chat struct {
	Type       string          `json:"type"`
	Text       string          `json:"text"`
	SenderID   int64           `json:"senderId"`
	SenderName string          `json:"senderName"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// MuteState is the relayed form of a mute-state message.
type MuteState struct {
	Type     string `json:"type"`
	SenderID int64  `json:"senderId"`
	IsMuted  bool   `json:"isMuted"`
}

// RoomsReport is the read-only room inspection report served at /api/rooms.
type RoomsReport struct {
	TotalClients int                   `json:"total_clients"`
	TotalRooms   int                   `json:"total_rooms"`
	Rooms        map[string]RoomReport `json:"rooms"`
}

// RoomReport lists one room's members.
type RoomReport struct {
	Peers    []PeerInfo `json:"peers"`
	Count    int        `json:"count"`
	MaxPeers int        `json:"max_peers"`
}

// PeerInfo identifies one room member in the report.
type PeerInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}
